package control

import (
	"context"
	"time"
)

// Controller runs commands on a freshly provisioned droplet
type Controller interface {
	// Close closes the connection
	Close() error

	// Run executes a command on the remote host and returns its stdout
	Run(command string) (string, error)

	// Fetch copies a remote file to localPath using SFTP
	Fetch(remotePath, localPath string) (int64, error)

	// GetInstanceName returns the droplet name
	GetInstanceName() string
}

// Config defines configuration for connecting to a droplet
type Config struct {
	Host           string
	Port           int
	User           string
	PrivateKeyPath string
	// Timeout bounds how long to wait for the SSH port to open.
	Timeout time.Duration
	// SSHTimeout bounds the SSH handshake itself.
	SSHTimeout   time.Duration
	InstanceName string
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.User == "" {
		c.User = "root"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.SSHTimeout == 0 {
		c.SSHTimeout = 30 * time.Second
	}
	return c
}

// NewController connects to the droplet described by config
func NewController(ctx context.Context, config Config) (Controller, error) {
	return Dial(ctx, config)
}
