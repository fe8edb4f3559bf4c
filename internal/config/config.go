// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port string

	TickInterval    time.Duration
	GameStartDelay  time.Duration
	RoomRetention   time.Duration
	CleanupInterval time.Duration

	// RedisAddr left empty disables the Redis publisher.
	RedisAddr    string
	RedisDB      int
	RedisChannel string

	LogLevel logrus.Level
	// TokenExpire of 0 issues identity tokens without an exp claim.
	TokenExpire time.Duration
	// PrivateKeyPath and PublicKeyPath name a raw ed25519 key pair. When
	// either is empty a key pair is generated at startup.
	PrivateKeyPath string
	PublicKeyPath  string
	OutboxSize     int
}

// Defaults returns the configuration used when no variable is set.
func Defaults() Config {
	return Config{
		Port:            "8080",
		TickInterval:    500 * time.Millisecond,
		GameStartDelay:  2 * time.Second,
		RoomRetention:   5 * time.Minute,
		CleanupInterval: time.Minute,
		RedisChannel:    "columns:events",
		LogLevel:        logrus.DebugLevel,
		OutboxSize:      32,
	}
}

// Load reads the environment on top of Defaults. Invalid values are logged
// and replaced by their default.
func Load(logger *logrus.Logger) Config {
	return load(os.Getenv, logger)
}

func load(lookup func(string) string, logger *logrus.Logger) Config {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	e := env{lookup: lookup, logger: logger}
	def := Defaults()

	cfg := Config{
		Port:            e.str("PORT", def.Port),
		TickInterval:    e.positiveDuration("TICK_INTERVAL", def.TickInterval),
		GameStartDelay:  e.duration("GAME_START_DELAY", def.GameStartDelay),
		RoomRetention:   e.positiveDuration("ROOM_RETENTION", def.RoomRetention),
		CleanupInterval: e.positiveDuration("ROOM_CLEANUP_INTERVAL", def.CleanupInterval),
		RedisAddr:       e.str("REDIS_ADDR", ""),
		RedisDB:         e.integer("REDIS_DB", 0),
		RedisChannel:    e.str("REDIS_CHANNEL", def.RedisChannel),
		LogLevel:        e.level("LOG_LEVEL", def.LogLevel),
		TokenExpire:     e.tokenExpire("TOKEN_EXPIRE_TIME"),
		PrivateKeyPath:  e.str("PRIVATE_KEY_PATH", ""),
		PublicKeyPath:   e.str("PUBLIC_KEY_PATH", ""),
		OutboxSize:      e.integer("OUTBOX_SIZE", def.OutboxSize),
	}
	if cfg.OutboxSize <= 0 {
		logger.Warnf("OUTBOX_SIZE must be positive, using %d", def.OutboxSize)
		cfg.OutboxSize = def.OutboxSize
	}
	return cfg
}

type env struct {
	lookup func(string) string
	logger *logrus.Logger
}

// str reads key or returns def.
func (e env) str(key, def string) string {
	if v := e.lookup(key); v != "" {
		return v
	}
	return def
}

// integer parses key as an integer, else def.
func (e env) integer(key string, def int) int {
	s := e.lookup(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		e.logger.Warnf("invalid %s=%q, using %d", key, s, def)
		return def
	}
	return v
}

func (e env) duration(key string, def time.Duration) time.Duration {
	s := e.lookup(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		e.logger.Warnf("invalid %s=%q, using %s", key, s, def)
		return def
	}
	return d
}

func (e env) positiveDuration(key string, def time.Duration) time.Duration {
	d := e.duration(key, def)
	if d == 0 {
		e.logger.Warnf("%s must be positive, using %s", key, def)
		return def
	}
	return d
}

func (e env) level(key string, def logrus.Level) logrus.Level {
	s := e.lookup(key)
	if s == "" {
		return def
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		e.logger.Warnf("invalid %s=%q, using %s", key, s, def)
		return def
	}
	return lvl
}

// tokenExpire accepts "never", "0" or a Go duration.
func (e env) tokenExpire(key string) time.Duration {
	s := e.lookup(key)
	if s == "" || s == "never" || s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		e.logger.Warnf("invalid %s=%q, tokens will not expire", key, s)
		return 0
	}
	return d
}
