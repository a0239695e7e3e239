package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopclock/internal/catalog"
	"github.com/zulandar/shopclock/internal/db"
)

func newProcessCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process management commands",
	}

	cmd.AddCommand(newProcessAddCmd(configPath))
	cmd.AddCommand(newProcessListCmd(configPath))
	return cmd
}

func newProcessAddCmd(configPath *string) *cobra.Command {
	var name, sector string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a production process",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			p, err := catalog.CreateProcess(cmd.Context(), gormDB, name, sector)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created process %s (%s)\n", p.ID, p.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "process name (required)")
	cmd.Flags().StringVar(&sector, "sector", "", "sector the process belongs to")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newProcessListCmd(configPath *string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			ps, err := catalog.ListProcesses(cmd.Context(), gormDB, all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ps) == 0 {
				fmt.Fprintln(out, "No processes found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SECTOR\tNAME\tACTIVE\tID")
			for _, p := range ps {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.Sector, p.Name, p.Active, p.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive processes")
	return cmd
}
