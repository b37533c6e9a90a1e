package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/panoramix/internal/config"
	"github.com/zulandar/panoramix/internal/db"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Panoramix database",
		Long:  "Creates the database (MySQL/Dolt) or file (SQLite) and migrates all tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config for peer %q from %s\n", cfg.PeerID, configPath)

	if cfg.Database.Driver == "mysql" {
		adminDB, err := db.ConnectAdmin(cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password)
		if err != nil {
			return fmt.Errorf("connect to %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
		}
		fmt.Fprintf(out, "Connected to %s:%d\n", cfg.Database.Host, cfg.Database.Port)
		if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Name)
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to %s store: %w", cfg.Database.Driver, err)
	}
	if err := migrate(cmd, gormDB); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nPanoramix database initialized successfully.")
	return nil
}

func migrate(cmd *cobra.Command, gormDB *gorm.DB) error {
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(db.AllModels()))
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the Panoramix database",
		Long: `Drops every negotiation, peer, endpoint and message and re-creates
empty tables. For MySQL the database is dropped; for SQLite the file is removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	target := cfg.Database.Path
	if cfg.Database.Driver == "mysql" {
		target = cfg.Database.Name
	}
	if !skipConfirm && !confirmReset(cmd, target) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	switch cfg.Database.Driver {
	case "mysql":
		adminDB, err := db.ConnectAdmin(cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password)
		if err != nil {
			return fmt.Errorf("connect to %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
		}
		if err := db.DropDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
		if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
	case "sqlite":
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(cfg.Database.Path + suffix); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", cfg.Database.Path+suffix, err)
			}
		}
	}
	fmt.Fprintf(out, "Dropped %s\n", target)

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to %s store: %w", cfg.Database.Driver, err)
	}
	if err := migrate(cmd, gormDB); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nPanoramix database reset successfully.")
	return nil
}

// confirmReset asks the user to type "yes" before data is destroyed.
func confirmReset(cmd *cobra.Command, target string) bool {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "WARNING: This will permanently delete all data in %q.\n", target)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
