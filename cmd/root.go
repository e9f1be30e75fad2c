package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/BioHazard786/deskwarp/internal/session"
	"github.com/BioHazard786/deskwarp/internal/ui"
	"github.com/BioHazard786/deskwarp/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagDomain      string
	flagRelayURL    string
	flagSTUN        string
	flagTURN        string
	flagTURNUser    string
	flagTURNPass    string
	flagForceRelay  bool
	flagConfigDir   string
	flagDownloadDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deskwarp",
	Short: "Peer-to-peer remote desktop over WebRTC",
	Long: `DeskWarp lets one machine control another directly over WebRTC.

A host advertises a 9-digit room ID and waits. A controller dials that ID,
is let in by the person at the host (or by the host password), and then
streams the host screen while sending pointer, keyboard, clipboard, chat and
files back over the same peer connection.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Ended sessions were already reported by the terminal shell.
		var ended *session.EndedError
		if !errors.As(err, &ended) {
			ui.PrintError(err.Error())
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDomain, "domain", "", "Relay domain (wss://<domain>/ws)")
	pf.StringVar(&flagRelayURL, "relay-url", "", "Full relay WebSocket URL, overrides --domain")
	pf.StringVar(&flagSTUN, "stun", "", "STUN server URL")
	pf.StringVar(&flagTURN, "turn", "", "TURN server URL")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	pf.BoolVar(&flagForceRelay, "force-relay", false, "Only use TURN relay candidates")
	pf.StringVar(&flagConfigDir, "config-dir", "", "Directory holding settings, address book and config.yaml")
	pf.StringVar(&flagDownloadDir, "download-dir", "", "Where received files are saved")
}
