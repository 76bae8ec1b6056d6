package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ikuo/appmap/classmap"
	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/idgen"
	"github.com/ikuo/appmap/monitoring"
	"github.com/ikuo/appmap/recorder"
	"github.com/ikuo/appmap/tracing"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <recording.sqlite3>",
	Short: "Serve the sessions of a recording database over HTTP.",
	Long: "`monitor` loads every session of a recording database into a " +
		"tracer and serves them with the monitoring API until interrupted.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		reader, err := recorder.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		d := tracing.MakeBuilder().WithContext(ctx).Build()
		b := classmap.NewBuilder()

		n, err := replaySessions(ctx, reader, d, b)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Loaded %d sessions from %s\n", n, args[0])

		port, _ := cmd.Flags().GetInt("port")

		addr, err := monitoring.NewMonitor(ctx, d, b).
			WithPortNumber(port).
			StartServer(ctx)
		if err != nil {
			return err
		}

		if open, _ := cmd.Flags().GetBool("open"); open {
			if err := browser.OpenURL(addr + "/api/tracers"); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\n", err)
			}
		}

		<-ctx.Done()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Int("port", 0, "Port of the monitoring server")
	monitorCmd.Flags().Bool("open", false, "Open the tracer list in a browser")
}

// replaySessions dispatches the stored events of every session into a tracer
// of its own. Tracers are left disabled.
func replaySessions(
	ctx context.Context,
	reader *recorder.Reader,
	d *tracing.Dispatcher,
	b *classmap.Builder,
) (int, error) {
	sessions, err := reader.Sessions(ctx)
	if err != nil {
		return 0, err
	}

	for _, s := range sessions {
		events, err := reader.Events(ctx, s.ID)
		if err != nil {
			return 0, err
		}

		t := d.Trace(true)
		replay(d, b, events)
		d.Disable(t)
	}

	return len(sessions), nil
}

func replay(d *tracing.Dispatcher, b *classmap.Builder, events []event.Event) {
	ids := make(map[idgen.ID]idgen.ID)

	for _, e := range events {
		if e.IsCall() {
			_ = b.RegisterFunction(e.DefinedClass, e.MethodID, classmap.Metadata{
				Location: location(e),
				Static:   e.Static != nil && *e.Static,
			})

			ids[e.ID] = d.DispatchCall(callInfo(e))

			continue
		}

		info := tracing.ReturnInfo{
			ThreadID:           e.ThreadID,
			HTTPServerResponse: e.HTTPServerResponse,
		}

		if e.ReturnValue != nil {
			info.ReturnValue = e.ReturnValue.Value
			info.HasReturnValue = true
		}

		d.DispatchReturn(ids[e.ParentID], info)
	}
}

func callInfo(e event.Event) tracing.CallInfo {
	info := tracing.CallInfo{
		ThreadID:          e.ThreadID,
		DefinedClass:      e.DefinedClass,
		MethodID:          e.MethodID,
		Path:              e.Path,
		Lineno:            e.Lineno,
		Static:            e.Static != nil && *e.Static,
		HTTPServerRequest: e.HTTPServerRequest,
	}

	if e.Receiver != nil {
		info.Receiver = e.Receiver.Value
		info.HasReceiver = true
	}

	for _, p := range e.Parameters {
		info.Parameters = append(info.Parameters, tracing.RawParameter{
			Name: p.Name, Kind: p.Kind, Value: p.Value,
		})
	}

	for _, m := range e.Message {
		info.Message = append(info.Message, tracing.RawParameter{
			Name: m.Name, Value: m.Value,
		})
	}

	return info
}

func location(e event.Event) string {
	if e.Path == "" {
		return ""
	}

	return fmt.Sprintf("%s:%d", e.Path, e.Lineno)
}
