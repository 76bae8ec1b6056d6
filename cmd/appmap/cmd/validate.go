package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ikuo/appmap/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Check that a configuration file loads and compiles.",
	Long: "`validate <config>` loads and compiles a configuration file. With " +
		"--watch it validates the file again every time it is written.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cmd.Context(), path)
		if err == nil {
			err = report(out, path, cfg)
		}

		watch, _ := cmd.Flags().GetBool("watch")
		if !watch {
			return err
		}

		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return config.Watch(ctx, path, func(cfg *config.Config, err error) {
			if err == nil {
				err = report(out, path, cfg)
			}

			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("watch", false, "Validate again whenever the file changes")
}

func report(w io.Writer, path string, cfg *config.Config) error {
	compiled, err := cfg.Compile()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Fprintf(w, "%s is valid: %d label rules, output to %s\n",
		path, len(compiled.Rules), cfg.Env.OutputDir)

	return nil
}
