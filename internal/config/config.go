package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the battleship server.
type Server struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Contract timeouts
	TurnTimeout       int `yaml:"turn_timeout"`        // seconds
	ReconnectWindow   int `yaml:"reconnect_window"`    // seconds
	LobbyAnnounceLead int `yaml:"lobby_announce_lead"` // seconds
	PairingInterval   int `yaml:"pairing_interval"`    // ms
	WatcherPoll       int `yaml:"watcher_poll"`        // ms
	AuthTimeout       int `yaml:"auth_timeout"`        // seconds

	// Flood protection
	FloodProtection bool    `yaml:"flood_protection"`
	AcceptRate      float64 `yaml:"accept_rate"`  // accepted connections per second
	AcceptBurst     int     `yaml:"accept_burst"` // burst size

	// Optional payload encryption
	Encryption EncryptionConfig `yaml:"encryption"`

	// Optional match-history database
	Database DatabaseConfig `yaml:"database"`
}

// EncryptionConfig enables the payload stream cipher. Both sides must share
// the same key; when disabled payloads are plaintext.
type EncryptionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Key     string `yaml:"key"` // 64 hex chars (32 bytes)
}

// DatabaseConfig holds PostgreSQL connection parameters for match history.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Default returns a Server config with the contract defaults.
func Default() Server {
	return Server{
		BindAddress:       "127.0.0.1",
		Port:              5000,
		TurnTimeout:       30,
		ReconnectWindow:   60,
		LobbyAnnounceLead: 5,
		PairingInterval:   500,
		WatcherPoll:       500,
		AuthTimeout:       30,
		FloodProtection:   true,
		AcceptRate:        20,
		AcceptBurst:       40,
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "broadside",
			Password: "broadside",
			DBName:   "broadside",
			SSLMode:  "disable",
		},
	}
}

// Load reads server config from a YAML file.
// If the file doesn't exist, returns defaults.
func Load(path string) (Server, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
