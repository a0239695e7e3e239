package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopclock/internal/catalog"
	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/report"
)

type rangeFlags struct {
	period string
	from   string
	to     string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.period, "period", "today", "named period (today, week, month)")
	cmd.Flags().StringVar(&f.from, "from", "", "range start (YYYY-MM-DD or RFC3339); overrides --period")
	cmd.Flags().StringVar(&f.to, "to", "", "range end, inclusive for dates; overrides --period")
}

func (f *rangeFlags) resolve() (report.Range, error) {
	return report.ParseRange(f.period, f.from, f.to, time.Now())
}

func newReportCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Production reports",
	}

	cmd.AddCommand(newReportProcessesCmd(configPath))
	cmd.AddCommand(newReportProductionCmd(configPath))
	cmd.AddCommand(newReportOverviewCmd(configPath))
	cmd.AddCommand(newReportLiveCmd(configPath))
	cmd.AddCommand(newReportMachinesCmd(configPath))
	cmd.AddCommand(newReportProblemsCmd(configPath))
	return cmd
}

func newReportProcessesCmd(configPath *string) *cobra.Command {
	var rf rangeFlags

	cmd := &cobra.Command{
		Use:   "processes",
		Short: "Per-process piece counts and TPU statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rf.resolve()
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			rep, err := report.ProcessAnalysis(cmd.Context(), gormDB, r)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processes %s to %s\n\n", formatTime(r.From), formatTime(r.To))
			if len(rep.Processes) == 0 {
				fmt.Fprintln(out, "No pieces in range.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROCESS\tPIECES\tACTIVITIES\tOPERATORS\tTPU (min)\tSTDDEV\tTOTAL (min)\tSHARE")
			for _, p := range rep.Processes {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\t%.1f\t%d\t%.1f%%\n",
					p.Name, p.Pieces, p.Activities, p.Operators, p.MeanTPUMin, p.StdDevTPUMin, p.TotalMinutes, p.SharePct)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if rep.Discarded > 0 {
				fmt.Fprintf(out, "\n%d non-positive piece durations excluded.\n", rep.Discarded)
			}
			return nil
		},
	}

	rf.register(cmd)
	return cmd
}

func newReportProductionCmd(configPath *string) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "production",
		Short: "Per-work-order production by process",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			var workOrderID string
			if code != "" {
				wo, err := catalog.GetWorkOrder(cmd.Context(), gormDB, code)
				if err != nil {
					return err
				}
				workOrderID = wo.ID
			}
			rep, err := report.Production(cmd.Context(), gormDB, workOrderID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rep.WorkOrders) == 0 {
				fmt.Fprintln(out, "No work orders found.")
				return nil
			}
			for _, wo := range rep.WorkOrders {
				fmt.Fprintf(out, "%s  %s  %s\n", wo.Code, wo.Reference, truncate(wo.Description, 50))
				if len(wo.Processes) == 0 {
					fmt.Fprintln(out, "  no closed activities")
					continue
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "  PROCESS\tUNITS\tSEC/UNIT\tTOTAL\tOPERATORS")
				for _, p := range wo.Processes {
					fmt.Fprintf(w, "  %s\t%d\t%.0f\t%s\t%s\n", p.Process, p.Units, p.MeanSecPerUnit,
						formatDuration(int64(p.TotalSec)), strings.Join(p.Operators, ", "))
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "of", "", "limit to one work order (code or id)")
	return cmd
}

func newReportOverviewCmd(configPath *string) *cobra.Command {
	var rf rangeFlags

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Headline figures for a range",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rf.resolve()
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			ov, err := report.BuildOverview(cmd.Context(), gormDB, r)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Overview %s to %s\n", formatTime(r.From), formatTime(r.To))
			fmt.Fprintf(out, "Pieces:          %d\n", ov.Pieces)
			fmt.Fprintf(out, "Operators:       %d\n", ov.Operators)
			fmt.Fprintf(out, "Processes:       %d\n", ov.Processes)
			fmt.Fprintf(out, "Mean TPU:        %.1f min\n", ov.MeanTPUMin)
			fmt.Fprintf(out, "Pieces/hour:     %.1f\n", ov.PiecesPerHour)
			fmt.Fprintf(out, "Mean activity:   %.1f min\n", ov.MeanActivityMin)
			if ov.Fastest != nil {
				fmt.Fprintf(out, "Fastest process: %s (%.1f min)\n", ov.Fastest.Name, ov.Fastest.MeanTPUMin)
			}
			return nil
		},
	}

	rf.register(cmd)
	return cmd
}

func newReportLiveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Open activities on the floor right now",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			sessions, err := report.Live(cmd.Context(), gormDB, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "Nobody is working right now.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BADGE\tOPERATOR\tPROCESS\tOF\tSTATUS\tPIECES\tELAPSED\tDEVICE")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n", s.Badge, s.OperatorName, s.Process,
					s.WorkOrderCode, s.Status, s.PiecesDone, s.PlannedQty, formatDuration(s.ElapsedSec), s.DeviceID)
			}
			return w.Flush()
		},
	}
}

func newReportMachinesCmd(configPath *string) *cobra.Command {
	var (
		rf      rangeFlags
		machine uint
	)

	cmd := &cobra.Command{
		Use:   "machines",
		Short: "Machine efficiency, output and problem downtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rf.resolve()
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			rep, err := report.Efficiency(cmd.Context(), gormDB, r, machine)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Machines %s to %s\n\n", formatTime(r.From), formatTime(r.To))
			if len(rep.Machines) == 0 {
				fmt.Fprintln(out, "No machine activities in range.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MACHINE\tKIND\tACTIVITIES\tEFFICIENCY\tUNITS\tELAPSED\tPROBLEMS\tDOWNTIME")
			for _, m := range append(rep.Machines, rep.Totals) {
				name := m.Machine
				if m.MachineID == 0 {
					name = "TOTAL"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%.0f%%\t%d\t%s\t%d\t%s\n", name, m.Kind, m.Activities,
					m.MeanEfficiencyPct, m.Units, formatDuration(m.ElapsedSec), m.Problems, formatDuration(m.DowntimeSec))
			}
			return w.Flush()
		},
	}

	rf.register(cmd)
	cmd.Flags().UintVar(&machine, "machine", 0, "limit to one machine id")
	return cmd
}

func newReportProblemsCmd(configPath *string) *cobra.Command {
	var (
		rf      rangeFlags
		machine uint
		kind    string
	)

	cmd := &cobra.Command{
		Use:   "problems",
		Short: "Head problems per head and per kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rf.resolve()
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			rep, err := report.HeadProblems(cmd.Context(), gormDB, r, machine, kind)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Head problems %s to %s: %d problems on %d heads, %.2f h stopped\n\n",
				formatTime(r.From), formatTime(r.To), rep.Problems, rep.AffectedHeads, rep.DowntimeHours)
			if rep.Problems == 0 {
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MACHINE\tHEAD\tPROBLEMS\tOPEN\tDOWNTIME\tLAST KIND")
			for _, h := range rep.Heads {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n",
					h.Machine, h.Head, h.Problems, h.Open, formatDuration(h.DowntimeSec), h.LastKind)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "KIND\tPROBLEMS\tDOWNTIME")
			for _, k := range rep.ByKind {
				fmt.Fprintf(w, "%s\t%d\t%s\n", k.Kind, k.Problems, formatDuration(k.DowntimeSec))
			}
			return w.Flush()
		},
	}

	rf.register(cmd)
	cmd.Flags().UintVar(&machine, "machine", 0, "limit to one machine id")
	cmd.Flags().StringVar(&kind, "kind", "", "limit to one problem kind")
	return cmd
}
