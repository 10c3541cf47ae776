// Package config loads brainlink.yaml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"brainlink.ai/internal/gate/dice"
	"brainlink.ai/internal/scene"
)

type Config struct {
	Gateway Gateway    `yaml:"gateway"`
	Client  Client     `yaml:"client"`
	Relay   Relay      `yaml:"relay"`
	Scene   scene.Spec `yaml:"scene"`
}

type Gateway struct {
	Listen           string  `yaml:"listen" env:"BRAINLINK_GATEWAY_LISTEN"`
	Path             string  `yaml:"path" env:"BRAINLINK_GATEWAY_PATH"`
	AllowNonLoopback bool    `yaml:"allow_non_loopback" env:"BRAINLINK_GATEWAY_ALLOW_NON_LOOPBACK"`
	JournalDir       string  `yaml:"journal_dir" env:"BRAINLINK_GATEWAY_JOURNAL_DIR"`
	CloseRange       float64 `yaml:"close_range" env:"BRAINLINK_GATEWAY_CLOSE_RANGE"`
	Forward          float64 `yaml:"forward" env:"BRAINLINK_GATEWAY_FORWARD"`
	ReadLimitBytes   int64   `yaml:"read_limit_bytes" env:"BRAINLINK_GATEWAY_READ_LIMIT_BYTES"`
}

type Client struct {
	GatewayURL         string        `yaml:"gateway_url" env:"BRAINLINK_CLIENT_GATEWAY_URL"`
	Local              bool          `yaml:"local" env:"BRAINLINK_CLIENT_LOCAL"`
	Heartbeat          time.Duration `yaml:"heartbeat" env:"BRAINLINK_CLIENT_HEARTBEAT"`
	DefaultDC          int           `yaml:"default_dc" env:"BRAINLINK_CLIENT_DEFAULT_DC"`
	RespectSuggestedDC bool          `yaml:"respect_suggested_dc" env:"BRAINLINK_CLIENT_RESPECT_SUGGESTED_DC"`
	AutoResolve        bool          `yaml:"auto_resolve" env:"BRAINLINK_CLIENT_AUTO_RESOLVE"`
	FlashDuration      time.Duration `yaml:"flash_duration" env:"BRAINLINK_CLIENT_FLASH_DURATION"`
	Seed               int64         `yaml:"seed" env:"BRAINLINK_CLIENT_SEED"`
	OperatorListen     string        `yaml:"operator_listen" env:"BRAINLINK_CLIENT_OPERATOR_LISTEN"`
	OperatorSecret     string        `yaml:"operator_secret" env:"BRAINLINK_OPERATOR_SECRET"`
	SavePath           string        `yaml:"save_path" env:"BRAINLINK_CLIENT_SAVE_PATH"`
	JournalDir         string        `yaml:"journal_dir" env:"BRAINLINK_CLIENT_JOURNAL_DIR"`
	Reconnect          Reconnect     `yaml:"reconnect"`
}

// Reconnect controls whether a dropped client session dials again.
type Reconnect struct {
	Enabled     bool          `yaml:"enabled" env:"BRAINLINK_CLIENT_RECONNECT"`
	Initial     time.Duration `yaml:"initial" env:"BRAINLINK_CLIENT_RECONNECT_INITIAL"`
	Max         time.Duration `yaml:"max" env:"BRAINLINK_CLIENT_RECONNECT_MAX"`
	MaxAttempts int           `yaml:"max_attempts" env:"BRAINLINK_CLIENT_RECONNECT_MAX_ATTEMPTS"`
}

type Relay struct {
	Listen           string        `yaml:"listen" env:"BRAINLINK_RELAY_LISTEN"`
	ListenerURL      string        `yaml:"listener_url" env:"BRAINLINK_RELAY_LISTENER_URL"`
	Timeout          time.Duration `yaml:"timeout" env:"BRAINLINK_RELAY_TIMEOUT"`
	AllowNonLoopback bool          `yaml:"allow_non_loopback" env:"BRAINLINK_RELAY_ALLOW_NON_LOOPBACK"`
	OperatorSecret   string        `yaml:"operator_secret" env:"BRAINLINK_OPERATOR_SECRET"`
	Tools            []Tool        `yaml:"tools"`
}

type Tool struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

func Defaults() Config {
	return Config{
		Gateway: Gateway{
			Listen:         "127.0.0.1:8787",
			Path:           "/",
			CloseRange:     2,
			Forward:        2,
			ReadLimitBytes: 1 << 20,
		},
		Client: Client{
			GatewayURL:     "ws://127.0.0.1:8787/",
			Heartbeat:      2 * time.Second,
			DefaultDC:      dice.DefaultDC,
			FlashDuration:  250 * time.Millisecond,
			OperatorListen: "127.0.0.1:8081",
			Reconnect: Reconnect{
				Initial: 200 * time.Millisecond,
				Max:     5 * time.Second,
			},
		},
		Relay: Relay{
			Listen:      "127.0.0.1:3000",
			ListenerURL: "http://127.0.0.1:8081/",
			Timeout:     10 * time.Second,
			Tools:       DefaultTools(),
		},
		Scene: scene.DefaultSpec(),
	}
}

func DefaultTools() []Tool {
	return []Tool{
		{Name: "status", Description: "Show staged proposals, DCs and last outcomes"},
		{Name: "roll", Description: "Resolve the staged proposal for an actor"},
		{Name: "reroll", Description: "Roll the staged proposal for an actor again"},
		{Name: "set_dc", Description: "Set the DC for an actor, or the default DC"},
		{Name: "respect_suggested_dc", Description: "Toggle use of the proposal's suggested DC"},
		{Name: "auto_resolve", Description: "Toggle rolling proposals as soon as they arrive"},
		{Name: "cycle_candidate", Description: "Move the selected candidate action"},
		{Name: "narrate", Description: "Set the DM note for an actor"},
		{Name: "set_hp", Description: "Set an actor's hit points"},
		{Name: "give_item", Description: "Add an item to an actor's inventory"},
		{Name: "set_time", Description: "Set the scene's time of day"},
		{Name: "save", Description: "Save party state and DM notes"},
		{Name: "load", Description: "Load party state and DM notes"},
	}
}

// Load reads path on top of Defaults.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadOrDefault is Load, except that an empty path or a missing file yields
// Defaults.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Defaults(), nil
	}
	c, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	return c, err
}

// ApplyEnv overrides the gateway, client and relay sections from BRAINLINK_*
// variables. Unset variables leave values alone.
func ApplyEnv(c *Config) error {
	for _, target := range []any{&c.Gateway, &c.Client, &c.Relay} {
		if err := env.Parse(target); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Gateway.Listen == "" {
		errs = append(errs, errors.New("gateway.listen is empty"))
	}
	if c.Client.Heartbeat <= 0 {
		errs = append(errs, fmt.Errorf("client.heartbeat must be > 0 (got %s)", c.Client.Heartbeat))
	}
	if c.Client.DefaultDC != dice.ClampDC(c.Client.DefaultDC) {
		errs = append(errs, fmt.Errorf("client.default_dc must be in [%d,%d] (got %d)", dice.MinDC, dice.MaxDC, c.Client.DefaultDC))
	}
	if r := c.Client.Reconnect; r.Enabled && (r.Initial <= 0 || r.Max < r.Initial) {
		errs = append(errs, fmt.Errorf("client.reconnect needs 0 < initial <= max (got %s, %s)", r.Initial, r.Max))
	}
	if c.Relay.ListenerURL == "" {
		errs = append(errs, errors.New("relay.listener_url is empty"))
	}
	return errors.Join(errs...)
}

// IsLoopbackAddress reports whether a listen address binds only to a
// loopback interface. An empty host (":8080") binds everywhere.
func IsLoopbackAddress(addr string) bool {
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = strings.TrimSpace(h)
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
