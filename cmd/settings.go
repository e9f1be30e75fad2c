package cmd

import (
	"fmt"

	"github.com/BioHazard786/deskwarp/internal/settings"
	"github.com/BioHazard786/deskwarp/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagSetHidden   bool
	flagSetRandomID bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change host settings",
	Long: `Show the host settings, or change them with flags.

Examples:
  deskwarp settings
  deskwarp settings --hidden-access=true
  deskwarp settings --random-id=false`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSettings()
		if err != nil {
			return err
		}

		hiddenChanged := cmd.Flags().Changed("hidden-access")
		randomChanged := cmd.Flags().Changed("random-id")
		if hiddenChanged || randomChanged {
			if hiddenChanged && flagSetHidden && !store.HasPassword() {
				ui.PrintWarning("Hidden access needs a password, set one with `deskwarp password set`")
			}
			err := store.Update(func(s *settings.Settings) {
				if hiddenChanged {
					s.HiddenAccess = flagSetHidden
				}
				if randomChanged {
					s.RandomID = flagSetRandomID
				}
			})
			if err != nil {
				return err
			}
			ui.PrintSuccess("Settings saved")
		}

		fmt.Println(settingsView(store.Get(), store.HasPassword(), store.Path()))
		return nil
	},
}

func settingsView(s settings.Settings, hasPassword bool, path string) string {
	onOff := func(b bool) string {
		if b {
			return ui.SuccessStyle.Render("on")
		}
		return ui.MutedStyle.Render("off")
	}
	return ui.BoxStyle.Render(fmt.Sprintf("%s\n\nHidden access:  %s\nRandom room ID: %s\nPassword:       %s\n\n%s",
		ui.TitleStyle.Render("Host settings"),
		onOff(s.HiddenAccess),
		onOff(s.RandomID),
		onOff(hasPassword),
		ui.MutedStyle.Render(path),
	))
}

func init() {
	rootCmd.AddCommand(settingsCmd)

	settingsCmd.Flags().BoolVar(&flagSetHidden, "hidden-access", false, "Gate connections behind the host password")
	settingsCmd.Flags().BoolVar(&flagSetRandomID, "random-id", true, "Pick a new room ID on every launch")
}
