package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hanif/warden/internal/config"
	"github.com/hanif/warden/internal/settings"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted session settings",
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the persisted settings for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsForgetCmd = &cobra.Command{
	Use:   "forget <session-id>",
	Short: "Delete the persisted settings for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsForget,
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsForgetCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openSettings() (*settings.SQLiteStore, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return settings.Open(filepath.Join(cfg.DataDir, "settings.db"), zerolog.Nop())
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openSettings()
	if err != nil {
		return err
	}
	defer store.Close()

	saved, err := store.SavedSession(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return fmt.Errorf("no saved settings for session %s", args[0])
		}
		return err
	}

	fmt.Printf("Session:      %s\n", saved.SessionID)
	fmt.Printf("Owner:        %s\n", saved.OwnerID)
	fmt.Printf("Provider:     %s\n", saved.Backend.Provider)
	fmt.Printf("Model:        %s\n", saved.Backend.Model)
	fmt.Printf("Tool servers: %v\n", saved.ToolServerIDs)
	fmt.Printf("Saved at:     %s\n", saved.SavedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runSessionsForget(cmd *cobra.Command, args []string) error {
	store, err := openSettings()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteSavedSession(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete saved settings: %w", err)
	}

	fmt.Printf("Forgot session %s\n", args[0])
	return nil
}
