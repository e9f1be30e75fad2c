package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/BioHazard786/deskwarp/internal/addressbook"
	"github.com/BioHazard786/deskwarp/internal/bridge"
	"github.com/BioHazard786/deskwarp/internal/chat"
	"github.com/BioHazard786/deskwarp/internal/session"
	"github.com/BioHazard786/deskwarp/internal/signaling"
	"github.com/BioHazard786/deskwarp/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagConnectServe bool
	flagNoCamera     bool
)

var _ remote = (*session.Controller)(nil)

var connectCmd = &cobra.Command{
	Use:     "connect <room-id>",
	Aliases: []string{"c"},
	Short:   "Control a host by its room ID",
	Long: `Connect to a host and control it from this terminal.

The room ID may be typed with spaces or dashes, or given as a share link
ending in /r/<room-id>. Once connected, type help for the command list.

Examples:
  deskwarp connect 123456789
  deskwarp connect "123 456 789"
  deskwarp connect https://deskwarp.qzz.io/r/123456789`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConnect(cmd.Context(), args[0])
	},
}

func runConnect(ctx context.Context, input string) error {
	id, err := parseRoomInput(input)
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(configOptions(flagConnectServe))
	if err != nil {
		return err
	}
	book, err := addressbook.Open(cfg.ConfigDir)
	if err != nil {
		return err
	}

	logger := slog.Default().With("room", id)
	local := bridge.NewHeadless(bridge.HeadlessOptions{DenyCamera: flagNoCamera, Logger: logger})
	transfers := ui.NewTransferView(nil)
	chatLog := chat.NewLog(0)
	chatLog.Subscribe(printRemoteChat)

	spin := ui.NewConnectionSpinner(fmt.Sprintf("Connecting to %s...", id.Grouped()))
	connected := make(chan struct{})
	var once sync.Once

	ctrl, err := session.NewController(session.ControllerOptions{
		Room:            id,
		Channel:         signaling.NewClient(cfg.WebSocketURL, logger),
		Peer:            peerFactory(cfg, logger, bridge.NewLogViewer(logger)),
		Prompter:        ui.NewPrompter(),
		Shell:           ui.NewTerminal(nil),
		Chat:            chatLog,
		Capturer:        local,
		Clipboard:       local,
		Credentials:     book,
		DownloadDir:     cfg.DownloadDir,
		OnProgress:      transfers.Progress,
		OnComplete:      transfers.Complete,
		OnTransferError: transfers.Failed,
		OnStateChange: func(s session.State) {
			switch s {
			case session.StateAwaitingPassword, session.StateEnded:
				spin.Stop()
			case session.StateConnected:
				spin.Success(fmt.Sprintf("Connected to %s", id.Grouped()))
				once.Do(func() { close(connected) })
			}
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	spin.Start()
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	select {
	case <-connected:
		// Commands address host pixels until a surface is set.
		if screen := ctrl.HostScreen(); screen.Known() {
			if err := ctrl.SetSurfaceSize(screen.Width, screen.Height); err != nil {
				logger.Debug("set surface", "error", err)
			}
		}
		fmt.Println(ui.MutedStyle.Render("Type help for commands."))
		go newREPL(ctrl, os.Stdout).run(os.Stdin)
		err = <-done
	case err = <-done:
	}
	spin.Stop()

	var ended *session.EndedError
	if errors.As(err, &ended) && ended.Local() {
		ui.PrintInfo("Disconnected")
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().BoolVar(&flagConnectServe, "serve", false, "Development mode: use the relay on localhost:8080")
	connectCmd.Flags().BoolVar(&flagNoCamera, "no-camera", false, "Run without a camera and microphone")
}
