package server

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/nats-io/nuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/cipherrelay/cipherrelay/server/proto"
	"github.com/cipherrelay/cipherrelay/server/socket"
)

const (
	// DefaultHost is the address to bind to if one is not specified.
	DefaultHost = "0.0.0.0"

	// DefaultPort is the port to bind to if one is not specified.
	DefaultPort = 9000
)

const (
	defaultHandlerTimeout = 30 * time.Second
	defaultKeyCacheSize   = 128

	// maxEnvelopeBytesLimit caps envelope.max.bytes. Every handler allocates
	// a receive buffer of this size.
	maxEnvelopeBytesLimit = 1 << 20
)

// knownSettings lists every key accepted in a configuration file.
var knownSettings = map[string]struct{}{
	"host":               {},
	"port":               {},
	"backlog":            {},
	"envelope.max.bytes": {},
	"handler.timeout":    {},
	"key.cache.size":     {},
	"log.level":          {},
	"log.silent":         {},
	"pid.file":           {},
	"metrics.listen":     {},
	"health.port":        {},
	"server.id":          {},
}

// Config contains all settings for a relay Server.
type Config struct {
	ServerID         string
	Host             string
	Port             int
	Backlog          int
	MaxEnvelopeBytes int
	HandlerTimeout   time.Duration
	KeyCacheSize     int
	LogLevel         uint32
	LogSilent        bool
	PIDFile          string
	MetricsListen    string
	HealthPort       int
}

// NewDefaultConfig creates a new Config with default settings.
func NewDefaultConfig() *Config {
	return &Config{
		ServerID:         nuid.Next(),
		Host:             DefaultHost,
		Port:             DefaultPort,
		Backlog:          socket.DefaultBacklog,
		MaxEnvelopeBytes: proto.DefaultMaxEnvelopeSize,
		HandlerTimeout:   defaultHandlerTimeout,
		KeyCacheSize:     defaultKeyCacheSize,
		LogLevel:         uint32(log.InfoLevel),
	}
}

// String returns a human-readable summary of the connection handling
// settings.
func (c Config) String() string {
	timeout := "none"
	if c.HandlerTimeout > 0 {
		timeout = durafmt.Parse(c.HandlerTimeout).String()
	}
	cache := "disabled"
	if c.KeyCacheSize > 0 {
		cache = humanize.Comma(int64(c.KeyCacheSize)) + " keys"
	}
	return fmt.Sprintf("[Backlog: %d, Max envelope: %s, Handler timeout: %s, Key cache: %s]",
		c.Backlog, humanize.IBytes(uint64(c.MaxEnvelopeBytes)), timeout, cache)
}

// GetLogLevel converts the level string to its corresponding int value. It
// returns an error if the level is invalid.
func GetLogLevel(level string) (uint32, error) {
	var l uint32
	switch strings.ToLower(level) {
	case "debug":
		l = uint32(log.DebugLevel)
	case "info":
		l = uint32(log.InfoLevel)
	case "warn":
		l = uint32(log.WarnLevel)
	case "error":
		l = uint32(log.ErrorLevel)
	default:
		return 0, fmt.Errorf("Invalid log.level setting %q", level)
	}
	return l, nil
}

// NewConfig creates a new Config with default settings and applies any
// settings from the given configuration file. An empty path returns the
// defaults.
func NewConfig(configFile string) (*Config, error) { // nolint: gocyclo
	config := NewDefaultConfig()
	if configFile == "" {
		return config, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration file %q", configFile)
	}

	if err := checkSettings(v); err != nil {
		return nil, err
	}

	if v.IsSet("server.id") {
		config.ServerID = v.GetString("server.id")
	}

	if v.IsSet("host") {
		config.Host = v.GetString("host")
	}

	if v.IsSet("port") {
		config.Port = v.GetInt("port")
	}

	if v.IsSet("backlog") {
		config.Backlog = v.GetInt("backlog")
		if config.Backlog <= 0 {
			return nil, fmt.Errorf("Invalid backlog setting %d", config.Backlog)
		}
	}

	if v.IsSet("envelope.max.bytes") {
		size, err := humanize.ParseBytes(v.GetString("envelope.max.bytes"))
		if err != nil {
			return nil, errors.Wrap(err, "invalid envelope.max.bytes setting")
		}
		if size == 0 {
			return nil, errors.New("envelope.max.bytes must be greater than zero")
		}
		if size > maxEnvelopeBytesLimit {
			return nil, fmt.Errorf("envelope.max.bytes %s exceeds the limit of %s",
				humanize.IBytes(size), humanize.IBytes(maxEnvelopeBytesLimit))
		}
		config.MaxEnvelopeBytes = int(size)
	}

	if v.IsSet("handler.timeout") {
		dur, err := time.ParseDuration(v.GetString("handler.timeout"))
		if err != nil {
			return nil, err
		}
		config.HandlerTimeout = dur
	}

	if v.IsSet("key.cache.size") {
		config.KeyCacheSize = v.GetInt("key.cache.size")
	}

	if v.IsSet("log.level") {
		level, err := GetLogLevel(v.GetString("log.level"))
		if err != nil {
			return nil, err
		}
		config.LogLevel = level
	}

	if v.IsSet("log.silent") {
		config.LogSilent = v.GetBool("log.silent")
	}

	if v.IsSet("pid.file") {
		config.PIDFile = v.GetString("pid.file")
	}

	if v.IsSet("metrics.listen") {
		config.MetricsListen = v.GetString("metrics.listen")
	}

	if v.IsSet("health.port") {
		config.HealthPort = v.GetInt("health.port")
	}

	return config, nil
}

// checkSettings returns an error naming any keys in the file that are not
// recognized.
func checkSettings(v *viper.Viper) error {
	var unknown []string
	for _, key := range v.AllKeys() {
		if _, ok := knownSettings[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("Unknown configuration setting(s): %s", strings.Join(unknown, ", "))
	}
	return nil
}
