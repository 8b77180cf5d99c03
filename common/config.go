package common

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// Version is set at build time with -ldflags "-X github.com/glossd/unsealer/common.Version=..."
var Version = "No Version"

const (
	DefaultBind           = "0.0.0.0:3000"
	DefaultRuns           = 2
	DefaultStopTimeout    = 10
	DefaultRequestTimeout = 5
	DefaultBodyLimit      = 1 << 20
	DefaultRatePerSecond  = 2
	DefaultRateBurst      = 5
)

// Environment variables read by the unsealer itself. None of them is passed
// on to the unsealed command.
const (
	EnvBind             = "S_BIND"
	EnvServerPrivateKey = "SERVER_PRIVATE_KEY"
	EnvManagerPublicKey = "MANAGER_PUBLIC_KEY"
	EnvCommand          = "COMMAND"
	EnvEnvFile          = "UNSEALER_ENV_FILE"
	EnvRuns             = "UNSEALER_RUNS"
)

var OwnEnvVars = []string{EnvBind, EnvServerPrivateKey, EnvManagerPublicKey, EnvCommand, EnvEnvFile, EnvRuns}

type Config struct {
	Bind             string    `json:"bind"`
	ServerPrivateKey SecretKey `json:"serverPrivateKey"`
	ManagerPublicKey PublicKey `json:"managerPublicKey"`
	Command          string    `json:"command"`
	// Optional .env file merged into the command's environment.
	EnvFile string `json:"envFile"`
	// How many times the command is run. 0 means the default, a negative
	// number restarts it forever.
	Runs                  int     `json:"runs"`
	StopTimeoutSeconds    float64 `json:"stopTimeoutSeconds"`
	RequestTimeoutSeconds float64 `json:"requestTimeoutSeconds"`
	BodyLimit             int64   `json:"bodyLimit"`
	RatePerSecond         float64 `json:"ratePerSecond"`
	RateBurst             int     `json:"rateBurst"`
}

func (c Config) WithDefaults() Config {
	if c.Bind == "" {
		c.Bind = DefaultBind
	}
	if c.Runs == 0 {
		c.Runs = DefaultRuns
	}
	if c.StopTimeoutSeconds == 0 {
		c.StopTimeoutSeconds = DefaultStopTimeout
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = DefaultRequestTimeout
	}
	if c.BodyLimit == 0 {
		c.BodyLimit = DefaultBodyLimit
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = DefaultRatePerSecond
	}
	if c.RateBurst == 0 {
		c.RateBurst = DefaultRateBurst
	}
	return c
}

func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Bind); err != nil {
		return fmt.Errorf("invalid bind address %q: %s", c.Bind, err)
	}
	if c.ServerPrivateKey.IsZero() {
		return fmt.Errorf("server private key is required")
	}
	if c.ManagerPublicKey.IsZero() {
		return fmt.Errorf("manager public key is required")
	}
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}
	if c.BodyLimit < 0 {
		return fmt.Errorf("body limit can't be negative")
	}
	if c.StopTimeoutSeconds < 0 || c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("timeouts can't be negative")
	}
	if c.RatePerSecond < 0 || c.RateBurst < 0 {
		return fmt.Errorf("rate limit can't be negative")
	}
	return nil
}

func (c Config) StopTimeout() time.Duration {
	return time.Millisecond * time.Duration(c.StopTimeoutSeconds*1000)
}

func (c Config) RequestTimeout() time.Duration {
	return time.Millisecond * time.Duration(c.RequestTimeoutSeconds*1000)
}

// ReadConfig reads a yaml config file. Unknown fields are rejected.
func ReadConfig(path string) (Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "reading config")
	}
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return c, errors.Wrapf(err, "parsing config %s", path)
	}
	return c, nil
}

// ApplyEnv overrides the fields that have their environment variable set.
func ApplyEnv(c Config, lookup func(string) (string, bool)) (Config, error) {
	if v, ok := lookup(EnvBind); ok && v != "" {
		c.Bind = v
	}
	if v, ok := lookup(EnvServerPrivateKey); ok && v != "" {
		key, err := ParseSecretKey(v)
		if err != nil {
			return c, errors.Wrap(err, EnvServerPrivateKey)
		}
		c.ServerPrivateKey = key
	}
	if v, ok := lookup(EnvManagerPublicKey); ok && v != "" {
		key, err := ParsePublicKey(v)
		if err != nil {
			return c, errors.Wrap(err, EnvManagerPublicKey)
		}
		c.ManagerPublicKey = key
	}
	if v, ok := lookup(EnvCommand); ok && v != "" {
		c.Command = v
	}
	if v, ok := lookup(EnvEnvFile); ok && v != "" {
		c.EnvFile = v
	}
	if v, ok := lookup(EnvRuns); ok && v != "" {
		runs, err := strconv.Atoi(v)
		if err != nil {
			return c, errors.Wrapf(err, "%s must be a number", EnvRuns)
		}
		c.Runs = runs
	}
	return c, nil
}

// LoadConfig reads the file at path, if any, and applies the environment on top.
func LoadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	var c Config
	if path != "" {
		var err error
		c, err = ReadConfig(path)
		if err != nil {
			return c, err
		}
	}
	return ApplyEnv(c, lookup)
}
