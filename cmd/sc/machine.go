package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/catalog"
	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/models"
)

func newMachineCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machine",
		Short: "Machine and head management commands",
	}

	cmd.AddCommand(newMachineAddCmd(configPath))
	cmd.AddCommand(newMachineListCmd(configPath))
	cmd.AddCommand(newMachineEditCmd(configPath))
	cmd.AddCommand(newMachineHeadsCmd(configPath))
	cmd.AddCommand(newMachineHeadStatusCmd(configPath))
	cmd.AddCommand(newMachineActiveCmd(configPath, "disable", "Mark a machine as inactive", false))
	cmd.AddCommand(newMachineActiveCmd(configPath, "enable", "Mark a machine as active again", true))
	cmd.AddCommand(newMachineDeleteCmd(configPath))
	cmd.AddCommand(newMachineProblemsCmd(configPath))
	cmd.AddCommand(newMachineResolveCmd(configPath))
	return cmd
}

func parseMachineID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid machine id %q", s)
	}
	return uint(n), nil
}

func newMachineAddCmd(configPath *string) *cobra.Command {
	var (
		id    uint
		name  string
		kind  string
		heads int
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a machine with its heads",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			m, err := catalog.CreateMachine(cmd.Context(), gormDB, catalog.MachineOpts{
				ID: id, Name: name, Kind: kind, Heads: heads,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created machine %d (%s, %s, %d heads)\n", m.ID, m.Name, m.Kind, m.Heads)
			return nil
		},
	}

	cmd.Flags().UintVar(&id, "id", 0, "machine id (assigned when omitted)")
	cmd.Flags().StringVar(&name, "name", "", "machine name (required)")
	cmd.Flags().StringVar(&kind, "kind", models.MachineEmbroidery, "machine kind (embroidery, dtf, press)")
	cmd.Flags().IntVar(&heads, "heads", 1, "number of heads")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newMachineEditCmd(configPath *string) *cobra.Command {
	var (
		name  string
		heads int
	)

	cmd := &cobra.Command{
		Use:   "edit <machine-id>",
		Short: "Rename a machine or change its head count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMachineID(args[0])
			if err != nil {
				return err
			}
			var u catalog.MachineUpdate
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			if cmd.Flags().Changed("heads") {
				u.Heads = &heads
			}
			if u.Name == nil && u.Heads == nil {
				return fmt.Errorf("nothing to change: pass --name or --heads")
			}

			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			m, err := catalog.UpdateMachine(cmd.Context(), gormDB, id, u)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Machine %d is now %s with %d heads\n", m.ID, m.Name, m.Heads)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new machine name")
	cmd.Flags().IntVar(&heads, "heads", 0, "new number of heads")
	return cmd
}

func newMachineListCmd(configPath *string) *cobra.Command {
	var (
		all  bool
		kind string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List machines",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			ms, err := catalog.ListMachines(cmd.Context(), gormDB, catalog.MachineFilters{All: all, Kind: kind})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ms) == 0 {
				fmt.Fprintln(out, "No machines found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tKIND\tHEADS\tACTIVE")
			for _, m := range ms {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%t\n", m.ID, m.Name, m.Kind, m.Heads, m.Active)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive machines")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind")
	return cmd
}

func newMachineHeadsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "heads <machine-id>",
		Short: "Show the status of each head of a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMachineID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			m, err := catalog.GetMachine(cmd.Context(), gormDB, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n\n", m.Name, m.Kind)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "HEAD\tSTATUS\tPROBLEMS\tLAST PROBLEM\tLAST MAINTENANCE")
			for _, h := range m.HeadStates {
				maint := "-"
				if h.LastMaintenance != nil {
					maint = formatTime(*h.LastMaintenance)
				}
				last := h.LastProblem
				if last == "" {
					last = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", h.Number, h.Status, h.ProblemCount, last, maint)
			}
			return w.Flush()
		},
	}
}

func newMachineHeadStatusCmd(configPath *string) *cobra.Command {
	var problem string

	cmd := &cobra.Command{
		Use:   "head-status <machine-id> <head> <ok|problem|maintenance>",
		Short: "Set the status of one machine head",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMachineID(args[0])
			if err != nil {
				return err
			}
			head, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid head %q", args[1])
			}
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			h, err := catalog.SetHeadStatus(cmd.Context(), gormDB, id, head, args[2], problem, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Head %d of machine %d is now %s\n", h.Number, id, h.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&problem, "problem", "", "problem kind, required for status problem")
	return cmd
}

func newMachineActiveCmd(configPath *string, use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <machine-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMachineID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			if err := catalog.SetMachineActive(cmd.Context(), gormDB, id, active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Machine %d %sd\n", id, use)
			return nil
		},
	}
}

func newMachineDeleteCmd(configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <machine-id>",
		Short: "Delete a machine that has no activity history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMachineID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			if !yes && !confirm(cmd, fmt.Sprintf("Delete machine %d?", id)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			if err := catalog.DeleteMachine(cmd.Context(), gormDB, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted machine %d\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func newMachineProblemsCmd(configPath *string) *cobra.Command {
	var (
		open  bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "problems [machine-id]",
		Short: "List head problems, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var f activity.ProblemFilter
			if len(args) == 1 {
				id, err := parseMachineID(args[0])
				if err != nil {
					return err
				}
				f.MachineID = id
			}
			if open {
				unresolved := false
				f.Resolved = &unresolved
			}
			f.Limit = limit

			eng, gormDB, err := engineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			ps, err := eng.Problems(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ps) == 0 {
				fmt.Fprintln(out, "No problems found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMACHINE\tHEAD\tKIND\tSTARTED\tDOWNTIME")
			for _, p := range ps {
				machine := strconv.FormatUint(uint64(p.MachineID), 10)
				if p.Machine != nil {
					machine = p.Machine.Name
				}
				downtime := "open"
				if !p.Open() {
					downtime = formatDuration(p.DowntimeSec)
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
					p.ID, machine, p.Head, truncate(p.Kind, 30), formatTime(p.StartedAt), downtime)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "only unresolved problems")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func newMachineResolveCmd(configPath *string) *cobra.Command {
	var badge string

	cmd := &cobra.Command{
		Use:   "resolve <problem-id>",
		Short: "Resolve an open head problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid problem id %q", args[0])
			}
			eng, gormDB, err := engineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			rc := activity.ResolveProblemCmd{ProblemID: uint(id)}
			if badge != "" {
				op, err := catalog.GetOperatorByBadge(cmd.Context(), gormDB, badge)
				if err != nil {
					return err
				}
				rc.ResolvedBy = op.ID
			}
			p, err := eng.ResolveProblem(cmd.Context(), rc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resolved problem %d on head %d after %s\n",
				p.ID, p.Head, formatDuration(p.DowntimeSec))
			return nil
		},
	}

	cmd.Flags().StringVar(&badge, "by", "", "badge of the operator who fixed the head")
	return cmd
}
