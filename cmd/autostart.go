package cmd

import (
	"fmt"
	"log/slog"

	"github.com/somebottle/cooperation-daemon/utils"
	"github.com/spf13/cobra"
)

var autostartCmd = &cobra.Command{
	Use:       "autostart enable|disable",
	Short:     "Set auto start on login",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"enable", "disable"},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "enable":
			if err := utils.SetAutoStart(true, workingDir); err != nil {
				return fmt.Errorf("Failed to enable autostart: %w", err)
			}
			slog.Info("Autostart enabled successfully")
		case "disable":
			if err := utils.SetAutoStart(false, workingDir); err != nil {
				return fmt.Errorf("Failed to disable autostart: %w", err)
			}
			slog.Info("Autostart disabled successfully")
		default:
			return fmt.Errorf("Invalid value for autostart, should be 'enable' or 'disable': %s", args[0])
		}
		return nil
	},
}
