package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"whalewatcher/internal/client"
	"whalewatcher/pkg/domain"
)

func (o *rootOptions) apiClient() *client.Client {
	return client.New(o.server, client.WithActor(o.actor))
}

func (o *rootOptions) print(w io.Writer, v any, table func(io.Writer)) error {
	if o.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func printCase(o *rootOptions, w io.Writer, c domain.Case) error {
	return o.print(w, c, func(w io.Writer) {
		fmt.Fprintf(w, "%s\t%s\tstage %d (%s)\t%s\t%d%%\n",
			c.ID, c.Applicant.Name, c.Stage, c.StageStatus, c.Priority, c.CompletenessScore)
	})
}

func newCasesCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cases",
		Short: "List the work queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cases, err := o.apiClient().ListCases(cmd.Context())
			if err != nil {
				return err
			}
			return o.print(cmd.OutOrStdout(), cases, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tAPPLICANT\tSTAGE\tSTATUS\tPRIORITY\tSLA DUE\tCOMPLETE")
				for _, c := range cases {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%d%%\n",
						c.ID, c.Applicant.Name, c.Stage, c.StageStatus, c.Priority,
						c.SLADueAt.Format("2006-01-02 15:04"), c.CompletenessScore)
				}
			})
		},
	}
}

func newAdvanceCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "advance CASE_ID",
		Short: "Advance a case to its next stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.apiClient().AdvanceStage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printCase(o, cmd.OutOrStdout(), c)
		},
	}
}

func newGapCmd(o *rootOptions) *cobra.Command {
	gap := &cobra.Command{Use: "gap", Short: "Work with gaps"}
	gap.AddCommand(&cobra.Command{
		Use:   "close GAP_ID",
		Short: "Close a gap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := o.apiClient().CloseGap(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return o.print(cmd.OutOrStdout(), g, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", g.ID, g.Status, g.Description)
			})
		},
	})
	return gap
}

func newDemoCmd(o *rootOptions) *cobra.Command {
	demo := &cobra.Command{Use: "demo", Short: "Demo shortcuts"}
	demo.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore the seed fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.apiClient().ResetDemo(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "demo reset")
			return nil
		},
	}, &cobra.Command{
		Use:   "complete CASE_ID",
		Short: "Fast-forward a case to decision-ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.apiClient().CompleteDemo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printCase(o, cmd.OutOrStdout(), c)
		},
	})
	return demo
}

func newExportCmd(o *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the work queue as XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := o.apiClient().ExportWorkQueue(cmd.Context())
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "work-queue.xlsx", "output file")
	return cmd
}
