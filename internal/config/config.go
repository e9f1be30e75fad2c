package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BioHazard786/deskwarp/internal/utils"
	"github.com/BioHazard786/deskwarp/internal/version"
	pion "github.com/pion/webrtc/v4"
	"github.com/spf13/viper"
)

// Default configuration values (production)
const (
	DefaultDomain         = "deskwarp.qzz.io"
	DefaultSTUN           = "stun:stun.l.google.com:19302"
	DefaultTURN           = "turn:deskwarp.qzz.io"
	DefaultTURNUser       = "deskwarp"
	DefaultTURNPass       = "deskwarp-secret"
	DefaultDevRelayURL    = "ws://localhost:8080/ws"
	DefaultReconnectDelay = 500 * time.Millisecond
	DefaultPromptTimeout  = 15 * time.Second
)

// Config holds application configuration
type Config struct {
	// Domain is the relay server domain
	Domain string

	// WebSocketURL is the signaling endpoint, derived from Domain unless
	// overridden
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// ReconnectDelay is the fixed cooldown between teardown and rejoin.
	ReconnectDelay time.Duration

	// PromptTimeout bounds the accept and password prompts.
	PromptTimeout time.Duration

	DownloadDir string
	ConfigDir   string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain      string
	RelayURL    string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	Serve       bool
	DownloadDir string
	ConfigDir   string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. config.yaml in the config directory
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	configDir := opts.ConfigDir
	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	v := viper.New()
	v.SetDefault("domain", DefaultDomain)
	v.SetDefault("relay_url", "")
	v.SetDefault("stun_server", DefaultSTUN)
	v.SetDefault("turn_server", DefaultTURN)
	v.SetDefault("turn_username", DefaultTURNUser)
	v.SetDefault("turn_password", DefaultTURNPass)
	v.SetDefault("force_relay", false)
	v.SetDefault("reconnect_delay", DefaultReconnectDelay)
	v.SetDefault("prompt_timeout", DefaultPromptTimeout)
	v.SetDefault("download_dir", defaultDownloadDir())

	for key, env := range map[string]string{
		"domain":          "DOMAIN",
		"relay_url":       "RELAY_URL",
		"stun_server":     "STUN_SERVER",
		"turn_server":     "TURN_SERVER",
		"turn_username":   "TURN_USERNAME",
		"turn_password":   "TURN_PASSWORD",
		"force_relay":     "FORCE_RELAY",
		"reconnect_delay": "RECONNECT_DELAY",
		"prompt_timeout":  "PROMPT_TIMEOUT",
		"download_dir":    "DOWNLOAD_DIR",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// Flags win over everything else
	overrides := map[string]string{
		"domain":        opts.Domain,
		"relay_url":     opts.RelayURL,
		"stun_server":   opts.STUNServer,
		"turn_server":   opts.TURNServer,
		"turn_username": opts.TURNUser,
		"turn_password": opts.TURNPass,
		"download_dir":  opts.DownloadDir,
	}
	for key, value := range overrides {
		if value != "" {
			v.Set(key, value)
		}
	}
	if opts.ForceRelay {
		v.Set("force_relay", true)
	}

	cfg := &Config{
		Domain:         v.GetString("domain"),
		STUNServer:     v.GetString("stun_server"),
		TURNServer:     v.GetString("turn_server"),
		TURNUser:       v.GetString("turn_username"),
		TURNPass:       v.GetString("turn_password"),
		ForceRelay:     v.GetBool("force_relay"),
		ReconnectDelay: v.GetDuration("reconnect_delay"),
		PromptTimeout:  v.GetDuration("prompt_timeout"),
		DownloadDir:    v.GetString("download_dir"),
		ConfigDir:      configDir,
	}

	switch {
	case v.GetString("relay_url") != "":
		cfg.WebSocketURL = v.GetString("relay_url")
	case opts.Serve:
		cfg.WebSocketURL = DefaultDevRelayURL
	default:
		cfg.WebSocketURL = fmt.Sprintf("wss://%s/ws", cfg.Domain)
	}

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = DefaultPromptTimeout
	}
	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// DefaultConfigDir returns the per-user directory holding settings, the
// address book and config.yaml.
func DefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, version.AppID), nil
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. Ports 80 and 443
// get through most corporate firewalls.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	base := strings.TrimSuffix(c.TURNServer, "/")
	return []string{
		fmt.Sprintf("%s:80", base),
		fmt.Sprintf("%s:80?transport=tcp", base),
		fmt.Sprintf("%s:443", base),
		fmt.Sprintf("%s:443?transport=tcp", base),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ICEServers builds the pion ICE server list.
func (c *Config) ICEServers() []pion.ICEServer {
	var servers []pion.ICEServer
	if stun := c.GetSTUNServers(); stun != nil {
		servers = append(servers, pion.ICEServer{URLs: stun})
	}
	if turn := c.GetTURNServers(); turn != nil {
		username, password := c.GetTURNCredentials()
		servers = append(servers, pion.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}
	return servers
}

// TransportPolicy forces TURN when asked to, or when the network looks like
// a VPN or CGNAT where direct paths rarely work.
func (c *Config) TransportPolicy() pion.ICETransportPolicy {
	if c.GetTURNServers() != nil && (c.ForceRelay || utils.ShouldForceRelay()) {
		return pion.ICETransportPolicyRelay
	}
	return pion.ICETransportPolicyAll
}
