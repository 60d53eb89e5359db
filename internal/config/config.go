package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is read when no config path is given and DROPLETUP_CONFIG is unset.
	DefaultPath = "dropletup.yaml"
	// DefaultTokenFile is where the API token is read from when not set otherwise.
	DefaultTokenFile = "api_keys/digital_ocean_token.txt"

	EnvConfigPath = "DROPLETUP_CONFIG"
	EnvToken      = "DIGITALOCEAN_TOKEN"
)

// Config contains application configuration
type Config struct {
	// Token is the DigitalOcean API token. DIGITALOCEAN_TOKEN overrides it.
	Token string `yaml:"token"`
	// TokenFile holds the token when Token is empty.
	TokenFile string `yaml:"token_file"`

	API     APIConfig     `yaml:"api"`
	Droplet DropletConfig `yaml:"droplet"`
	SSHKey  SSHKeyConfig  `yaml:"ssh_key"`
	Poll    PollConfig    `yaml:"poll"`
	Verify  VerifyConfig  `yaml:"verify"`
	State   StateConfig   `yaml:"state"`
}

// APIConfig tunes the provider API client
type APIConfig struct {
	BaseURL  string `yaml:"base_url"`
	RetryMax int    `yaml:"retry_max"`
}

// DropletConfig describes the droplet to create
type DropletConfig struct {
	// Name is generated when empty.
	Name              string   `yaml:"name"`
	Region            string   `yaml:"region"`
	Size              string   `yaml:"size"`
	Image             string   `yaml:"image"`
	Backups           bool     `yaml:"backups"`
	IPv6              bool     `yaml:"ipv6"`
	PrivateNetworking bool     `yaml:"private_networking"`
	Monitoring        bool     `yaml:"monitoring"`
	PackageUpdate     bool     `yaml:"package_update"`
	Packages          []string `yaml:"packages"`
	RunCommands       []string `yaml:"run_commands"`
	Tags              []string `yaml:"tags"`
}

// SSHKeyConfig selects the account SSH key attached to the droplet
type SSHKeyConfig struct {
	Name        string `yaml:"name"`
	Fingerprint string `yaml:"fingerprint"`
	// PrivateKeyPath is used to log in for the readiness check.
	PrivateKeyPath string `yaml:"private_key_path"`
}

// PollConfig bounds waiting for the droplet to become active
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// VerifyConfig controls the SSH readiness check after provisioning
type VerifyConfig struct {
	Enabled bool          `yaml:"enabled"`
	User    string        `yaml:"user"`
	Timeout time.Duration `yaml:"timeout"`
	Command string        `yaml:"command"`
}

// StateConfig selects where provisioned droplets are recorded
type StateConfig struct {
	Path          string   `yaml:"path"`
	EtcdEndpoints []string `yaml:"etcd_endpoints"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		TokenFile: DefaultTokenFile,
		Droplet: DropletConfig{
			Region:            "nyc3",
			Size:              "s-1vcpu-1gb",
			Image:             "ubuntu-22-04-x64",
			Backups:           false,
			IPv6:              true,
			PrivateNetworking: true,
			Monitoring:        true,
			Packages:          []string{"nginx"},
			Tags:              []string{"dropletup", "ssh-droplet"},
		},
		Poll: PollConfig{
			Interval: 10 * time.Second,
			Timeout:  15 * time.Minute,
		},
		Verify: VerifyConfig{
			User:    "root",
			Timeout: 5 * time.Minute,
			Command: "cloud-init status --wait",
		},
		State: StateConfig{
			Path: "dropletup-state.json",
		},
	}
}

// Load loads configuration from a YAML file on top of the defaults.
// An empty path falls back to DROPLETUP_CONFIG and then DefaultPath; only the
// implicit default path may be absent.
func Load(path string) (*Config, error) {
	config := Default()

	explicit := true
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
		explicit = false
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.expandEnv()

	if token := os.Getenv(EnvToken); token != "" {
		config.Token = token
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// expandEnv expands environment variables in string fields
func (c *Config) expandEnv() {
	c.Token = os.ExpandEnv(c.Token)
	c.TokenFile = os.ExpandEnv(c.TokenFile)
	c.API.BaseURL = os.ExpandEnv(c.API.BaseURL)
	c.Droplet.Name = os.ExpandEnv(c.Droplet.Name)
	c.Droplet.Region = os.ExpandEnv(c.Droplet.Region)
	c.Droplet.Size = os.ExpandEnv(c.Droplet.Size)
	c.Droplet.Image = os.ExpandEnv(c.Droplet.Image)
	c.SSHKey.Name = os.ExpandEnv(c.SSHKey.Name)
	c.SSHKey.Fingerprint = os.ExpandEnv(c.SSHKey.Fingerprint)
	c.SSHKey.PrivateKeyPath = expandHome(os.ExpandEnv(c.SSHKey.PrivateKeyPath))
	c.State.Path = os.ExpandEnv(c.State.Path)

	for i, cmd := range c.Droplet.RunCommands {
		c.Droplet.RunCommands[i] = os.ExpandEnv(cmd)
	}
}

// Validate checks the fields every command relies on
func (c *Config) Validate() error {
	var problems []string

	if c.Droplet.Region == "" {
		problems = append(problems, "droplet.region is required")
	}
	if c.Droplet.Size == "" {
		problems = append(problems, "droplet.size is required")
	}
	if c.Droplet.Image == "" {
		problems = append(problems, "droplet.image is required")
	}
	if c.Poll.Interval <= 0 {
		problems = append(problems, "poll.interval must be positive")
	}
	if c.Poll.MaxAttempts < 0 {
		problems = append(problems, "poll.max_attempts must not be negative")
	}
	if c.Poll.Timeout < 0 {
		problems = append(problems, "poll.timeout must not be negative")
	}
	if c.API.RetryMax < 0 {
		problems = append(problems, "api.retry_max must not be negative")
	}
	if c.State.Path == "" && len(c.State.EtcdEndpoints) == 0 {
		problems = append(problems, "state.path or state.etcd_endpoints is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ResolveToken returns the API token, reading TokenFile when no token was
// configured directly. A missing token file is an I/O error.
func (c *Config) ResolveToken() (string, error) {
	if c.Token != "" {
		return strings.TrimSpace(c.Token), nil
	}
	if c.TokenFile == "" {
		return "", fmt.Errorf("no API token: set %s, token or token_file", EnvToken)
	}

	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", c.TokenFile)
	}
	return token, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
