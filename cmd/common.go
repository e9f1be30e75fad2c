package cmd

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/BioHazard786/deskwarp/internal/config"
	"github.com/BioHazard786/deskwarp/internal/media"
	"github.com/BioHazard786/deskwarp/internal/peer"
	"github.com/BioHazard786/deskwarp/internal/room"
	"github.com/BioHazard786/deskwarp/internal/session"
	"github.com/BioHazard786/deskwarp/internal/signaling"
	"github.com/BioHazard786/deskwarp/internal/transfer"
)

// configOptions collects the persistent connection flags.
func configOptions(serve bool) config.Options {
	return config.Options{
		Domain:      flagDomain,
		RelayURL:    flagRelayURL,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		ForceRelay:  flagForceRelay,
		Serve:       serve,
		DownloadDir: flagDownloadDir,
		ConfigDir:   flagConfigDir,
	}
}

// configDir is --config-dir or the per-user default.
func configDir() (string, error) {
	if flagConfigDir != "" {
		return flagConfigDir, nil
	}
	return config.DefaultConfigDir()
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return cfg, nil
}

// channelFactory builds a fresh relay client per signaling attempt.
func channelFactory(cfg *config.Config, logger *slog.Logger) session.ChannelFactory {
	return func() session.SignalChannel {
		return signaling.NewClient(cfg.WebSocketURL, logger)
	}
}

// peerFactory builds peer sessions with the configured ICE servers. sink may
// be nil.
func peerFactory(cfg *config.Config, logger *slog.Logger, sink media.Sink) session.PeerFactory {
	return func(role peer.Role, h peer.Handlers) (session.PeerSession, error) {
		return peer.New(peer.Config{
			Role:       role,
			ICEServers: cfg.ICEServers(),
			Policy:     cfg.TransportPolicy(),
			Logger:     logger,
			Sink:       sink,
		}, h)
	}
}

// parseRoomInput accepts a bare room ID or a share link ending in /r/<id>.
func parseRoomInput(input string) (room.ID, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}
	if strings.Contains(input, "://") {
		raw, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		input = raw
	}
	id, err := room.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid room ID %q: %w", input, err)
	}
	return id, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", transfer.NewError("parse URL", err)
	}

	parts := strings.Split(strings.TrimSuffix(parsedURL.Path, "/"), "/")
	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}
