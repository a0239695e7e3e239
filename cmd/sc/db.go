package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopclock/internal/config"
	"github.com/zulandar/shopclock/internal/db"
)

func newDBCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd(configPath))
	return cmd
}

func newDBInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the shopclock database",
		Long:  "Creates the database (MySQL), migrates all tables and seeds processes and machines from config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, *configPath)
		},
	}
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config for plant %q from %s\n", cfg.Plant, configPath)

	if cfg.Database.Driver == "mysql" {
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return err
		}
		err = db.CreateDatabase(adminDB, cfg.Database.Name)
		db.Close(adminDB)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready on %s:%d\n", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedProcesses(gormDB, cfg.Processes); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d processes\n", len(cfg.Processes))

	if err := db.SeedMachines(gormDB, cfg.Machines); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d machines\n", len(cfg.Machines))

	fmt.Fprintln(out, "\nshopclock database initialized successfully.")
	return nil
}
