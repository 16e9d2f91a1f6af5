// Package config loads and validates the proxy configuration.
package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	E "github.com/sagernet/sing/common/exceptions"
	"gopkg.in/yaml.v3"
)

type Upstream struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`
}

func (u Upstream) Address() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(int(u.Port)))
}

// Timeouts are configured in milliseconds. Connect bounds the TCP dial,
// read and write bound each I/O step, total is the budget reserved for a
// whole-request deadline policy.
type Timeouts struct {
	ConnectMS int `yaml:"connect_ms"`
	ReadMS    int `yaml:"read_ms"`
	WriteMS   int `yaml:"write_ms"`
	TotalMS   int `yaml:"total_ms"`
}

func (t Timeouts) Connect() time.Duration { return time.Duration(t.ConnectMS) * time.Millisecond }
func (t Timeouts) Read() time.Duration    { return time.Duration(t.ReadMS) * time.Millisecond }
func (t Timeouts) Write() time.Duration   { return time.Duration(t.WriteMS) * time.Millisecond }
func (t Timeouts) Total() time.Duration   { return time.Duration(t.TotalMS) * time.Millisecond }

type Limits struct {
	MaxClientConns      int `yaml:"max_client_conns"`
	MaxConnsPerUpstream int `yaml:"max_conns_per_upstream"`
}

type Config struct {
	ListenHost    string
	ListenPort    uint16
	Upstreams     []Upstream
	Timeouts      Timeouts
	Limits        Limits
	LogLevel      string
	MetricsListen string
}

func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(int(c.ListenPort)))
}

// Default is the development configuration: two local echo upstreams.
func Default() *Config {
	return &Config{
		ListenHost: "127.0.0.1",
		ListenPort: 8080,
		Upstreams: []Upstream{
			{Host: "127.0.0.1", Port: 9001},
			{Host: "127.0.0.1", Port: 9002},
		},
		Timeouts: Timeouts{ConnectMS: 1000, ReadMS: 15000, WriteMS: 15000, TotalMS: 30000},
		Limits:   Limits{MaxClientConns: 1000, MaxConnsPerUpstream: 100},
		LogLevel: "info",
	}
}

type fileConfig struct {
	Listen    string     `yaml:"listen"`
	Upstreams []Upstream `yaml:"upstreams"`
	Timeouts  Timeouts   `yaml:"timeouts"`
	Limits    Limits     `yaml:"limits"`
	Logging   struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
}

// Load reads a YAML config file. Absent keys keep their defaults, except
// upstreams: a file without any is rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, E.Cause(err, "read config")
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	def := Default()
	fc := fileConfig{
		Listen:   def.ListenAddress(),
		Timeouts: def.Timeouts,
		Limits:   def.Limits,
	}
	fc.Logging.Level = def.LogLevel
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, E.Cause(err, "parse config")
	}

	host, port, err := splitListen(fc.Listen)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		ListenHost:    host,
		ListenPort:    port,
		Upstreams:     fc.Upstreams,
		Timeouts:      fc.Timeouts,
		Limits:        fc.Limits,
		LogLevel:      fc.Logging.Level,
		MetricsListen: fc.Metrics.Listen,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitListen accepts "host:port" or a bare host, which keeps the default
// port 8080.
func splitListen(listen string) (string, uint16, error) {
	i := strings.LastIndexByte(listen, ':')
	if i < 0 {
		return listen, 8080, nil
	}
	port, err := strconv.ParseUint(listen[i+1:], 10, 16)
	if err != nil || port == 0 {
		return "", 0, E.New("invalid listen address ", strconv.Quote(listen))
	}
	return listen[:i], uint16(port), nil
}

func (c *Config) Validate() error {
	if len(c.Upstreams) == 0 {
		return E.New("at least one upstream is required")
	}
	for _, u := range c.Upstreams {
		if u.Host == "" || u.Port == 0 {
			return E.New("invalid upstream ", strconv.Quote(u.Address()))
		}
	}
	if c.Timeouts.ConnectMS <= 0 || c.Timeouts.ReadMS <= 0 || c.Timeouts.WriteMS <= 0 || c.Timeouts.TotalMS <= 0 {
		return E.New("timeouts must be positive")
	}
	if c.Limits.MaxClientConns <= 0 || c.Limits.MaxConnsPerUpstream <= 0 {
		return E.New("limits must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return E.New("unknown log level ", strconv.Quote(c.LogLevel))
	}
	return nil
}
