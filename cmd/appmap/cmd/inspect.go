package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ikuo/appmap/artifact"
	"github.com/ikuo/appmap/classmap"
	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/stats"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.appmap.json>",
	Short: "Summarize an appmap document.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := artifact.ReadFile(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		summarize(out, doc)

		top, _ := cmd.Flags().GetInt("top")
		printTop(out, stats.Summarize(doc.Events, nil), top)

		tree, _ := cmd.Flags().GetBool("tree")
		if !tree {
			return nil
		}

		roots, err := event.BuildCallTree(doc.Events)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		for _, r := range roots {
			printCall(out, r, 0)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("tree", false, "Print the call tree")
	inspectCmd.Flags().Int("top", 5, "Number of most expensive functions to print")
}

func summarize(w io.Writer, doc artifact.Document) {
	calls := 0
	threads := make(map[event.ThreadID]bool)

	for _, e := range doc.Events {
		if e.IsCall() {
			calls++
		}

		threads[e.ThreadID] = true
	}

	fmt.Fprintf(w, "Name:      %s\n", doc.Metadata.Name)
	fmt.Fprintf(w, "Version:   %s\n", doc.Version)

	if doc.Metadata.TestStatus != "" {
		fmt.Fprintf(w, "Status:    %s\n", doc.Metadata.TestStatus)
	}

	fmt.Fprintf(w, "Events:    %d\n", len(doc.Events))
	fmt.Fprintf(w, "Calls:     %d\n", calls)
	fmt.Fprintf(w, "Threads:   %d\n", len(threads))
	fmt.Fprintf(w, "Functions: %d\n", countFunctions(doc.ClassMap))
}

func countFunctions(nodes []*classmap.Node) int {
	n := 0
	for _, node := range nodes {
		if node.Type == classmap.TypeFunction {
			n++
		}

		n += countFunctions(node.Children)
	}

	return n
}

func printTop(w io.Writer, functions []stats.Function, n int) {
	if n <= 0 || len(functions) == 0 {
		return
	}

	if n > len(functions) {
		n = len(functions)
	}

	fmt.Fprintln(w, "Most time spent in:")

	for _, f := range functions[:n] {
		fmt.Fprintf(w, "  %s#%s  calls=%d total=%.6fs max=%.6fs\n",
			f.DefinedClass, f.MethodID, f.Calls, f.TotalTime, f.MaxTime)
	}
}

func printCall(w io.Writer, n *event.CallNode, depth int) {
	elapsed := "unfinished"
	if n.Return != nil {
		elapsed = fmt.Sprintf("%.6fs", n.Return.ElapsedSeconds())
	}

	fmt.Fprintf(w, "%s%s#%s (%s)\n",
		strings.Repeat("  ", depth), n.Call.DefinedClass, n.Call.MethodID, elapsed)

	for _, c := range n.Children {
		printCall(w, c, depth+1)
	}
}
