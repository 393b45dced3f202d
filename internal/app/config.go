package app

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cipherelay/internal/logging"
	"cipherelay/internal/services/auth"
	"cipherelay/internal/services/history"
	"cipherelay/internal/services/session"
	"cipherelay/internal/transport"
)

// EnvPrefix prefixes every environment variable the binary reads.
const EnvPrefix = "CIPHERELAY_"

// ServerConfig holds runtime options for the relay server.
type ServerConfig struct {
	HTTPAddr         string        // HTTP API and WebSocket listener
	TCPAddr          string        // line-protocol listener
	DBPath           string        // sqlite file; empty keeps everything in memory
	TokenSecret      string        // HS256 signing secret; empty generates one per process
	TokenTTL         time.Duration // access token lifetime
	Broadcast        bool          // fan out unaddressed frames
	OutboxSize       int           // per-connection send queue
	HistoryQueue     int           // pending history records before drops
	BcryptCost       int
	HandshakeTimeout time.Duration
	LogLevel         string
	LogFormat        string
}

// DefaultServerConfig returns defaults overridden by CIPHERELAY_* variables.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:         envString("HTTP_ADDR", ":8000"),
		TCPAddr:          envString("TCP_ADDR", ":12345"),
		DBPath:           envString("DB_PATH", ""),
		TokenSecret:      envString("TOKEN_SECRET", ""),
		TokenTTL:         envDuration("TOKEN_TTL", auth.DefaultTokenTTL),
		Broadcast:        envBool("BROADCAST", true),
		OutboxSize:       envInt("OUTBOX_SIZE", transport.DefaultQueueSize),
		HistoryQueue:     envInt("HISTORY_QUEUE", history.DefaultQueueSize),
		BcryptCost:       envInt("BCRYPT_COST", 0),
		HandshakeTimeout: envDuration("HANDSHAKE_TIMEOUT", session.DefaultHandshakeTimeout),
		LogLevel:         envString("LOG_LEVEL", "info"),
		LogFormat:        envString("LOG_FORMAT", logging.FormatJSON),
	}
}

// Validate reports the first unusable option.
func (c ServerConfig) Validate() error {
	switch {
	case c.HTTPAddr == "" || c.TCPAddr == "":
		return errors.New("both the HTTP and TCP addresses are required")
	case c.TokenTTL < 0:
		return fmt.Errorf("token ttl must not be negative, got %s", c.TokenTTL)
	case c.OutboxSize < 0:
		return fmt.Errorf("outbox size must not be negative, got %d", c.OutboxSize)
	case c.HistoryQueue < 0:
		return fmt.Errorf("history queue must not be negative, got %d", c.HistoryQueue)
	}
	return nil
}

// ClientConfig holds runtime options for CLI commands.
type ClientConfig struct {
	Home      string       // local state directory, e.g. $HOME/.cipherelay
	ServerURL string       // relay HTTP base URL
	TCPAddr   string       // relay line-protocol address
	HTTP      *http.Client // optional; defaults to http.DefaultClient
}

// DefaultClientConfig returns defaults overridden by CIPHERELAY_* variables.
func DefaultClientConfig() ClientConfig {
	home := envString("HOME_DIR", "")
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = filepath.Join(h, ".cipherelay")
		} else {
			home = ".cipherelay"
		}
	}
	return ClientConfig{
		Home:      home,
		ServerURL: envString("SERVER_URL", "http://127.0.0.1:8000"),
		TCPAddr:   envString("SERVER_TCP", "127.0.0.1:12345"),
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(EnvPrefix + key)); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(EnvPrefix + key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(EnvPrefix + key)); err == nil {
		return v
	}
	return def
}
