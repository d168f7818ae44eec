package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rahul/stepwise/internal/agent"
	"github.com/spf13/cobra"
)

var tracesLimit int

var errNoArchive = errors.New("no trace archive configured (set memory.path)")

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "List archived traces, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		archive, err := a.openArchive()
		if err != nil {
			return err
		}
		if archive == nil {
			return errNoArchive
		}

		traces, err := archive.ListTraces(cmd.Context(), tracesLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tSTEPS\tSUMMARY")
		for _, tr := range traces {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", tr.ID, tr.StartTime.Local().Format(time.DateTime), len(tr.Steps), tr.Summary)
		}
		return w.Flush()
	},
}

var traceCmd = &cobra.Command{
	Use:   "trace <id>",
	Short: "Print one archived trace as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		archive, err := a.openArchive()
		if err != nil {
			return err
		}
		if archive == nil {
			return errNoArchive
		}

		tr, ok, err := archive.GetTrace(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("trace %s not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tr)
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents available to plans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tDESCRIPTION")
		for _, name := range a.registry.Names() {
			desc := ""
			if ag, ok := a.registry.Resolve(name); ok {
				if d, ok := ag.(agent.Describer); ok {
					desc = d.Description()
				}
			}
			fmt.Fprintf(w, "%s\t%s\n", name, desc)
		}
		return w.Flush()
	},
}

func init() {
	tracesCmd.Flags().IntVarP(&tracesLimit, "limit", "n", 20, "Maximum number of traces to list")
}
