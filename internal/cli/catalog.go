package cli

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hanif/warden/internal/config"
	"github.com/hanif/warden/internal/settings"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the tool-server catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a tool-server catalog file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogValidate,
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync [file]",
	Short: "Load a catalog file into the settings store",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogSync,
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogSyncCmd)
	rootCmd.AddCommand(catalogCmd)
}

func catalogPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.Catalog.File, nil
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	path, err := catalogPath(args)
	if err != nil {
		return err
	}

	descriptors, err := settings.LoadCatalogFile(path)
	if err != nil {
		return fmt.Errorf("catalog invalid: %w", err)
	}

	fmt.Printf("Catalog valid: %d tool server(s)\n", len(descriptors))
	for _, d := range descriptors {
		fmt.Printf("  %s  %s %v\n", d.ID, d.Command, d.Args)
	}
	return nil
}

func runCatalogSync(cmd *cobra.Command, args []string) error {
	path, err := catalogPath(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	descriptors, err := settings.LoadCatalogFile(path)
	if err != nil {
		return fmt.Errorf("catalog invalid: %w", err)
	}

	store, err := settings.Open(filepath.Join(cfg.DataDir, "settings.db"), zerolog.Nop())
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer store.Close()

	if err := store.ReplaceToolServers(cmd.Context(), descriptors); err != nil {
		return fmt.Errorf("failed to sync catalog: %w", err)
	}

	fmt.Printf("Synced %d tool server(s)\n", len(descriptors))
	return nil
}
