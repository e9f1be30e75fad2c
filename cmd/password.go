package cmd

import (
	"context"
	"errors"

	"github.com/BioHazard786/deskwarp/internal/settings"
	"github.com/BioHazard786/deskwarp/internal/ui"
	"github.com/spf13/cobra"
)

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Manage the host access password",
}

var passwordSetCmd = &cobra.Command{
	Use:   "set [password]",
	Short: "Set the password controllers need in hidden mode",
	Long: `Set the host access password. Without an argument the password is
read from a hidden prompt. Only a bcrypt hash is stored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSettings()
		if err != nil {
			return err
		}
		password := ""
		if len(args) == 1 {
			password = args[0]
		} else {
			password, err = askNewPassword(cmd.Context())
			if err != nil {
				return err
			}
		}
		if err := store.SetPassword(password); err != nil {
			return err
		}
		ui.PrintSuccess("Password saved")
		return nil
	},
}

var passwordClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the host access password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSettings()
		if err != nil {
			return err
		}
		if err := store.ClearPassword(); err != nil {
			return err
		}
		if store.Get().HiddenAccess {
			ui.PrintWarning("Hidden access is on but no password is set, hosting will refuse to start")
		}
		ui.PrintSuccess("Password cleared")
		return nil
	},
}

func askNewPassword(ctx context.Context) (string, error) {
	p := ui.NewPrompter()
	first, ok, err := p.AskSecret(ctx, "New host password")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("cancelled")
	}
	second, ok, err := p.AskSecret(ctx, "Repeat the password")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("cancelled")
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

func openSettings() (*settings.Store, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	return settings.Open(dir)
}

func init() {
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordSetCmd, passwordClearCmd)
}
