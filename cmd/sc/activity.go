package main

import (
	"bufio"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/catalog"
	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/models"
)

func newActivityCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Activity inspection and maintenance commands",
	}

	cmd.AddCommand(newActivityListCmd(configPath))
	cmd.AddCommand(newActivityPiecesCmd(configPath))
	cmd.AddCommand(newActivityCloseAllCmd(configPath))
	cmd.AddCommand(newActivityAuditCmd(configPath))
	cmd.AddCommand(newActivityDeleteCmd(configPath))
	return cmd
}

func newActivityListCmd(configPath *string) *cobra.Command {
	var (
		badge  string
		status string
		since  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, gormDB, err := engineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			f := activity.ListFilter{Status: status, Limit: limit}
			if badge != "" {
				op, err := catalog.GetOperatorByBadge(cmd.Context(), gormDB, badge)
				if err != nil {
					return err
				}
				f.OperatorID = op.ID
			}
			if since != "" {
				t, err := time.ParseInLocation("2006-01-02", since, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --since %q (want YYYY-MM-DD)", since)
				}
				f.Since = t
			}
			list, err := eng.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printActivities(cmd, list)
		},
	}

	cmd.Flags().StringVar(&badge, "operator", "", "filter by operator badge")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, paused, finished, anomalous)")
	cmd.Flags().StringVar(&since, "since", "", "only activities started on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func printActivities(cmd *cobra.Command, list []models.Activity) error {
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No activities found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOPERATOR\tPROCESS\tOF\tSTATUS\tPIECES\tSTARTED\tELAPSED")
	for _, a := range list {
		var opName, procName, woCode string
		if a.Operator != nil {
			opName = a.Operator.Name
		}
		if a.Process != nil {
			procName = a.Process.Name
		}
		if a.WorkOrder != nil {
			woCode = a.WorkOrder.Code
		}
		elapsed := "-"
		if a.TotalElapsedSec != nil {
			elapsed = formatDuration(*a.TotalElapsedSec)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			a.ID, opName, procName, woCode, a.Status, a.PiecesDone, a.PlannedQty, formatTime(a.StartedAt), elapsed)
	}
	return w.Flush()
}

func newActivityPiecesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pieces <activity-id>",
		Short: "Show the pieces registered on an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, gormDB, err := engineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			ds, err := eng.Pieces(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ds) == 0 {
				fmt.Fprintln(out, "No pieces registered.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tCUMULATIVE\tPIECE\tCOMPLETED")
			for _, d := range ds {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.Sequence,
					formatDuration(d.CumulativeSec), formatDuration(d.IndividualSec), formatTime(d.CompletedAt))
			}
			if tpu, ok := activity.PerPieceTPU(piecesOf(ds)); ok {
				fmt.Fprintf(w, "\nTPU\t%.2f min\t(%d samples)\t\n", tpu.Minutes(), tpu.Samples)
			}
			return w.Flush()
		},
	}
}

func piecesOf(ds []activity.PieceDuration) []models.PieceRecord {
	ps := make([]models.PieceRecord, len(ds))
	for i, d := range ds {
		ps[i] = models.PieceRecord{ID: d.ID, Sequence: d.Sequence, CumulativeSec: d.CumulativeSec, CompletedAt: d.CompletedAt}
	}
	return ps
}

func newActivityCloseAllCmd(configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "close-all <badge>",
		Short: "Force-close every open activity of an operator",
		Long: `Force-closes every open activity of an operator without computing metrics
(realized 0, elapsed 0). Use it to recover sessions left open by lost devices.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, gormDB, err := engineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			op, err := catalog.GetOperatorByBadge(cmd.Context(), gormDB, args[0])
			if err != nil {
				return err
			}
			if !yes && !confirm(cmd, fmt.Sprintf("Force-close all open activities of %s?", op.Name)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			ids, err := eng.ForceCloseAll(cmd.Context(), op.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Closed %d activities\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func newActivityAuditCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <badge>",
		Short: "Diagnose an operator's activities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, gormDB, err := engineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			op, err := catalog.GetOperatorByBadge(cmd.Context(), gormDB, args[0])
			if err != nil {
				return err
			}
			rep, err := eng.Audit(cmd.Context(), op.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Operator %s (%s)\n", op.Name, op.Badge)
			fmt.Fprintf(out, "In progress: %d\n", rep.InProgress)
			for _, s := range []string{models.StatusActive, models.StatusPaused, models.StatusFinished, models.StatusAnomalous} {
				fmt.Fprintf(out, "  %-10s %d\n", s, rep.Counts[s])
			}
			if len(rep.Inconsistent) > 0 {
				fmt.Fprintf(out, "Inconsistent rows: %d\n", len(rep.Inconsistent))
				for _, a := range rep.Inconsistent {
					fmt.Fprintf(out, "  %s status=%s in_progress=%t\n", a.ID, a.Status, a.InProgress)
				}
			}
			fmt.Fprintln(out, "\nRecent activities:")
			return printActivities(cmd, rep.Recent)
		},
	}
}

func newActivityDeleteCmd(configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <activity-id>",
		Short: "Delete an activity and its pieces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, gormDB, err := engineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			if !yes && !confirm(cmd, fmt.Sprintf("Delete activity %s and all its pieces?", args[0])) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			if err := eng.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted activity %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

// confirm asks a yes/no question on the command's input.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
