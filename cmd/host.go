package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/BioHazard786/deskwarp/internal/bridge"
	"github.com/BioHazard786/deskwarp/internal/chat"
	"github.com/BioHazard786/deskwarp/internal/logging"
	"github.com/BioHazard786/deskwarp/internal/relay"
	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/BioHazard786/deskwarp/internal/session"
	"github.com/BioHazard786/deskwarp/internal/settings"
	"github.com/BioHazard786/deskwarp/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagHidden       bool
	flagServe        bool
	flagRandomID     bool
	flagScreenWidth  int
	flagScreenHeight int
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Wait for a controller to connect to this machine",
	Long: `Advertise this machine under a 9-digit room ID and wait for controllers.

Every incoming connection is confirmed here unless hidden access is on, in
which case the controller must know the host password instead.

Examples:
  deskwarp host
  deskwarp host --random-id
  deskwarp host --hidden
  deskwarp host --serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHost(cmd.Context())
	},
}

func runHost(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	cfg, err := LoadConfig(configOptions(flagServe))
	if err != nil {
		return err
	}
	store, err := settings.Open(cfg.ConfigDir)
	if err != nil {
		return err
	}

	st := store.Get()
	hidden := flagHidden || st.HiddenAccess
	if hidden && !store.HasPassword() {
		return errors.New("hidden access needs a password, set one with `deskwarp password set`")
	}

	id, err := room.Generate(flagRandomID || st.RandomID, room.MachineID)
	if err != nil {
		return err
	}
	logger := slog.Default().With("room", id)

	if flagServe {
		go serveDevRelay(ctx, logger)
	}

	desk := bridge.NewHeadless(bridge.HeadlessOptions{
		Width:  flagScreenWidth,
		Height: flagScreenHeight,
		Logger: logger,
	})
	term := ui.NewTerminal(nil)
	transfers := ui.NewTransferView(nil)
	console := ui.NewConsole(os.Stdin)
	prompter := ui.NewPrompter()
	prompter.Source = console
	chatLog := chat.NewLog(0)
	chatLog.Subscribe(printRemoteChat)

	host, err := session.NewHost(session.HostOptions{
		Room:            id,
		Hidden:          hidden,
		Channel:         channelFactory(cfg, logger),
		Peer:            peerFactory(cfg, logger, nil),
		Bridge:          desk,
		Prompter:        prompter,
		Shell:           term,
		Passwords:       store,
		Chat:            chatLog,
		DownloadDir:     cfg.DownloadDir,
		OnProgress:      transfers.Progress,
		OnComplete:      transfers.Complete,
		OnTransferError: transfers.Failed,
		OnStateChange: func(s session.State) {
			logger.Debug("host state", "state", s)
		},
		ReconnectDelay: cfg.ReconnectDelay,
		PromptTimeout:  cfg.PromptTimeout,
		GOOS:           runtime.GOOS,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	fmt.Println(ui.HostInfo{Room: id, Relay: cfg.WebSocketURL, Hidden: hidden}.View())
	fmt.Println(ui.MutedStyle.Render("Type help for commands, quit or Ctrl+C to stop hosting."))
	go newHostREPL(host, os.Stdout, stop).run(console.Commands())

	if err := host.Run(ctx); err != nil {
		return err
	}
	ui.PrintInfo("Stopped hosting")
	return nil
}

// serveDevRelay runs a local relay next to a --serve host. A relay that is
// already listening is fine.
func serveDevRelay(ctx context.Context, logger *slog.Logger) {
	srv := relay.NewServer(relay.DefaultAddr, logging.Component(logger, "relay"))
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Warn("dev relay not started", "error", err)
	}
}

func printRemoteChat(m chat.Message) {
	if m.Origin == chat.Remote {
		fmt.Println(ui.ChatLine(m))
	}
}

func init() {
	rootCmd.AddCommand(hostCmd)

	hostCmd.Flags().BoolVar(&flagHidden, "hidden", false, "Require the host password instead of confirming each connection")
	hostCmd.Flags().BoolVar(&flagServe, "serve", false, "Development mode: run and use a relay on localhost:8080")
	hostCmd.Flags().BoolVar(&flagRandomID, "random-id", false, "Use a fresh room ID instead of the machine-derived one")
	hostCmd.Flags().IntVar(&flagScreenWidth, "width", 1920, "Width of the virtual display")
	hostCmd.Flags().IntVar(&flagScreenHeight, "height", 1080, "Height of the virtual display")
}
