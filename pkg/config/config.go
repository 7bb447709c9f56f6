// Package config handles the configuration of an fdicomm run.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"

	"github.com/carun/fdicomm-go/pkg/fdi"
)

// Config holds everything needed for one run against an FDI communication server.
type Config struct {
	Endpoint       string         `yaml:"endpoint" validate:"nonzero"`
	Verbose        string         `yaml:"verbose,omitempty"`
	Timeout        time.Duration  `yaml:"timeout" validate:"min=0"`
	RequestTimeout time.Duration  `yaml:"request_timeout" validate:"min=0"`
	Security       SecurityConfig `yaml:"security"`
	Auth           AuthConfig     `yaml:"auth,omitempty"`
	Transfer       TransferConfig `yaml:"transfer"`
	CallRate       float64        `yaml:"call_rate,omitempty" validate:"min=0"`
	DecodeIM0      bool           `yaml:"decode_im0,omitempty"`
}

// SecurityConfig selects the secure channel parameters.
type SecurityConfig struct {
	Policy string `yaml:"policy"` // Security policy URI or short name, e.g. "None", "Basic256Sha256"
	Mode   string `yaml:"mode"`   // None, Sign or SignAndEncrypt
}

// AuthConfig holds optional user credentials. Empty username means anonymous.
type AuthConfig struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// TransferConfig addresses the record read from every device.
type TransferConfig struct {
	Slot    uint16 `yaml:"slot"`
	Subslot uint16 `yaml:"subslot"`
	Index   uint16 `yaml:"index"`
	API     uint32 `yaml:"api"`
}

// Default returns a configuration that reads I&M0 over an unsecured channel.
func Default() *Config {
	return &Config{
		Timeout:        10 * time.Second,
		RequestTimeout: 10 * time.Second,
		Security: SecurityConfig{
			Policy: "None",
			Mode:   "None",
		},
		Transfer: TransferConfig{
			Slot:    fdi.IM0Slot,
			Subslot: fdi.IM0Subslot,
			Index:   fdi.IM0Index,
			API:     fdi.IM0API,
		},
	}
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

var securityModes = map[string]bool{
	"none":           true,
	"sign":           true,
	"signandencrypt": true,
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validator.Validate(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if !strings.HasPrefix(strings.ToLower(c.Endpoint), "opc.tcp://") {
		return fmt.Errorf("invalid config: endpoint %q is not an opc.tcp:// URL", c.Endpoint)
	}
	if c.Security.Mode != "" && !securityModes[strings.ToLower(c.Security.Mode)] {
		return fmt.Errorf("invalid config: unknown security mode %q", c.Security.Mode)
	}
	return nil
}

// SessionOptions returns the session parameters.
func (c *Config) SessionOptions() fdi.Options {
	return fdi.Options{
		Endpoint:       c.Endpoint,
		DialTimeout:    c.Timeout,
		RequestTimeout: c.RequestTimeout,
		SecurityPolicy: securityPolicyURI(c.Security.Policy),
		SecurityMode:   c.Security.Mode,
		Username:       c.Auth.Username,
		Password:       c.Auth.Password,
	}
}

// RunConfig returns the parameters of the device sequence.
func (c *Config) RunConfig() fdi.RunConfig {
	return fdi.RunConfig{
		Slot:      c.Transfer.Slot,
		Subslot:   c.Transfer.Subslot,
		Index:     c.Transfer.Index,
		API:       c.Transfer.API,
		CallRate:  c.CallRate,
		DecodeIM0: c.DecodeIM0,
	}
}

const policyURIPrefix = "http://opcfoundation.org/UA/SecurityPolicy#"

// securityPolicyURI expands a short policy name such as "Basic256Sha256"
func securityPolicyURI(policy string) string {
	if policy == "" || strings.Contains(policy, "://") {
		return policy
	}
	return policyURIPrefix + policy
}

// ParseVerbosity maps a verbosity name to a log level.
// ERROR, WARNING, INFO and DEBUG are recognised; any other non-empty value
// falls back to ERROR. An empty value reports false: leave the level as is.
func ParseVerbosity(s string) (logrus.Level, bool) {
	if s == "" {
		return 0, false
	}
	switch s {
	case "INFO":
		return logrus.InfoLevel, true
	case "WARNING":
		return logrus.WarnLevel, true
	case "DEBUG":
		return logrus.DebugLevel, true
	default:
		return logrus.ErrorLevel, true
	}
}
