// Package config loads daemon configuration from a JSON file (per the
// command-line contract) or, when no file is given, from environment
// variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultNumThreads is the default width of the per-range worker pool, and
// of the storage driver's connection pool, which is kept the same width so
// the driver never becomes the bottleneck on a fully loaded pool.
const DefaultNumThreads = 32

// Options carries the values accepted on the command line.
type Options struct {
	ConfigFile string
	LogLevel   string
	Interval   int
	LogFile    string
	DCName     string // reserved, currently ignored
}

// Config is the fully resolved daemon configuration, sourced from a JSON
// config file when one is given, or from the environment otherwise.
type Config struct {
	ACLPassword      string   `json:"acl_password"`
	ZKCoordination   bool     `json:"zk_coordination"`
	ZKServers        []string `json:"zk_servers"`
	CassandraServers []string `json:"cassandra_servers"`
	CassandraUser    string   `json:"cassandra_username"`
	CassandraPass    string   `json:"cassandra_password"`
	Keyspace         string   `json:"keyspace"`
	NumThreads       int      `json:"num_threads"`
	Precisions       []uint32 `json:"precisions"`
	IntervalSeconds  int      `json:"interval_seconds"`
	RootPath         string   `json:"root_path"`
}

// DefaultPrecisions is used when a config omits "precisions": the sample
// resolutions (in seconds) EnsureSchema provisions a table for.
var DefaultPrecisions = []uint32{10, 60, 600, 3600, 86400}

// DefaultIntervalSeconds is the scheduler's default cycle period.
const DefaultIntervalSeconds = 60

// ErrConfigInvalid marks a missing-required-key configuration error. It is
// the one error kind in this daemon that is fatal at process startup.
type ErrConfigInvalid struct {
	Reason string
}

func (e *ErrConfigInvalid) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// Load resolves a Config from opts.ConfigFile if set, or the environment
// otherwise, and validates required fields.
func Load(opts Options) (*Config, error) {
	var cfg *Config
	var err error

	if opts.ConfigFile != "" {
		cfg, err = loadJSONFile(opts.ConfigFile)
	} else {
		cfg, err = loadEnv()
	}
	if err != nil {
		return nil, err
	}

	if cfg.NumThreads <= 0 {
		cfg.NumThreads = DefaultNumThreads
	}
	if len(cfg.Precisions) == 0 {
		cfg.Precisions = DefaultPrecisions
	}
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = DefaultIntervalSeconds
	}
	if opts.Interval > 0 {
		cfg.IntervalSeconds = opts.Interval
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadJSONFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ErrConfigInvalid{Reason: fmt.Sprintf("cannot open config file %s: %v", path, err)}
	}
	defer f.Close()

	cfg := &Config{}
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, &ErrConfigInvalid{Reason: fmt.Sprintf("cannot parse config file %s: %v", path, err)}
	}
	return cfg, nil
}

// Environment variable names recognized when no config file is supplied.
const (
	envACLPassword      = "ZOOKEEPER_ACL_PASSWORD"
	envZKServers        = "ZOOKEEPER_SERVERS"
	envZKCoordination   = "ZOOKEEPER_COORDINATION"
	envCassandraServers = "CASSANDRA_SERVERS"
	envCassandraUser    = "CASSANDRA_USERNAME"
	envCassandraPass    = "CASSANDRA_PASSWORD"
	envKeyspace         = "CASSANDRA_KEYSPACE"
	envNumThreads       = "ROLLUP_THREADS"
)

func loadEnv() (*Config, error) {
	cfg := &Config{
		ACLPassword:      os.Getenv(envACLPassword),
		ZKCoordination:   os.Getenv(envZKCoordination) == "true",
		CassandraUser:    os.Getenv(envCassandraUser),
		CassandraPass:    os.Getenv(envCassandraPass),
		Keyspace:         os.Getenv(envKeyspace),
	}

	if v := os.Getenv(envZKServers); v != "" {
		cfg.ZKServers = splitCSV(v)
	}
	if v := os.Getenv(envCassandraServers); v != "" {
		cfg.CassandraServers = splitCSV(v)
	}
	if v := os.Getenv(envNumThreads); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &ErrConfigInvalid{Reason: fmt.Sprintf("%s must be an integer: %v", envNumThreads, err)}
		}
		cfg.NumThreads = n
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validate(cfg *Config) error {
	if len(cfg.ZKServers) == 0 {
		return &ErrConfigInvalid{Reason: "no zookeeper servers configured"}
	}
	if len(cfg.CassandraServers) == 0 {
		return &ErrConfigInvalid{Reason: "no cassandra servers configured"}
	}
	if cfg.Keyspace == "" {
		return &ErrConfigInvalid{Reason: "no keyspace configured"}
	}
	return nil
}
