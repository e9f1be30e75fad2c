package cmd

import (
	"log/slog"

	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/relay"
	"github.com/BioHazard786/deskwarp/internal/ui"
	"github.com/spf13/cobra"
)

var flagRelayAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay",
	Long: `Run the WebSocket relay that pairs hosts and controllers by room ID.

The relay only forwards signaling; screen, input and files flow directly
between the peers (or through TURN).

Examples:
  deskwarp relay
  deskwarp relay --addr :9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := relay.NewServer(flagRelayAddr, logging.Component(slog.Default(), "relay"))
		ui.PrintInfof("Relay listening on %s (ws path /ws)", srv.Addr)
		return srv.ListenAndServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVar(&flagRelayAddr, "addr", relay.DefaultAddr, "Listen address")
}
