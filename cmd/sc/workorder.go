package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/catalog"
	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/models"
)

func newWorkOrderCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "of",
		Aliases: []string{"work-order"},
		Short:   "Work order (OF) management commands",
	}

	cmd.AddCommand(newWorkOrderAddCmd(configPath))
	cmd.AddCommand(newWorkOrderListCmd(configPath))
	cmd.AddCommand(newWorkOrderActivitiesCmd(configPath))
	cmd.AddCommand(newWorkOrderStatusCmd(configPath, "complete", models.WorkOrderCompleted, "Mark a work order completed"))
	cmd.AddCommand(newWorkOrderStatusCmd(configPath, "reopen", models.WorkOrderOpen, "Reopen a work order"))
	return cmd
}

func newWorkOrderAddCmd(configPath *string) *cobra.Command {
	var opts catalog.WorkOrderOpts

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a work order",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			wo, err := catalog.CreateWorkOrder(cmd.Context(), gormDB, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created work order %s (%s, qty %d)\n", wo.Code, wo.ID, wo.Quantity)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Code, "code", "", "work order code, e.g. OF-1001 (required)")
	cmd.Flags().StringVar(&opts.Reference, "reference", "", "product reference")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.Quantity, "qty", 0, "ordered quantity")
	cmd.MarkFlagRequired("code")
	return cmd
}

func newWorkOrderListCmd(configPath *string) *cobra.Command {
	var filters catalog.WorkOrderFilters

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			wos, err := catalog.ListWorkOrders(cmd.Context(), gormDB, filters)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(wos) == 0 {
				fmt.Fprintln(out, "No work orders found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tREFERENCE\tQTY\tSTATUS\tDESCRIPTION")
			for _, wo := range wos {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", wo.Code, wo.Reference, wo.Quantity, wo.Status, truncate(wo.Description, 40))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status (open, in_progress, completed)")
	cmd.Flags().StringVar(&filters.Reference, "reference", "", "filter by product reference")
	return cmd
}

func newWorkOrderActivitiesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "activities <code>",
		Short: "List the activities run against a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, gormDB, err := engineFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			wo, err := catalog.GetWorkOrder(cmd.Context(), gormDB, args[0])
			if err != nil {
				return err
			}
			list, err := eng.List(cmd.Context(), activity.ListFilter{WorkOrderID: wo.ID})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Work order %s (%s), %d activities\n", wo.Code, wo.Status, len(list))
			return printActivities(cmd, list)
		},
	}
}

func newWorkOrderStatusCmd(configPath *string, use, status, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <code>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			if err := catalog.SetWorkOrderStatus(cmd.Context(), gormDB, args[0], status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Work order %s is now %s\n", args[0], status)
			return nil
		},
	}
}
