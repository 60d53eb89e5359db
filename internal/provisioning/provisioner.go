package provisioning

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"dropletup/internal/logging"

	"go.uber.org/zap"
)

// Droplet statuses reported by the provider.
const (
	StatusNew    = "new"
	StatusActive = "active"
)

// Network types and protocols.
const (
	NetworkPublic  = "public"
	NetworkPrivate = "private"
	ProtocolIPv4   = "ipv4"
	ProtocolIPv6   = "ipv6"
)

// SSHKey is an SSH public key registered to the provider account
type SSHKey struct {
	ID          int
	Name        string
	Fingerprint string
	PublicKey   string
}

// KeySelector picks an SSH key by exact name or fingerprint.
// An empty selector picks the first key the provider returns.
type KeySelector struct {
	Name        string
	Fingerprint string
}

// InstanceSpec represents the specification for creating a droplet
type InstanceSpec struct {
	Name              string
	Region            string
	Size              string
	Image             string
	SSHKeyFingerprint string
	Backups           bool
	IPv6              bool
	PrivateNetworking bool
	Monitoring        bool
	UserData          string
	Tags              []string
}

// Network is a single network interface address of a droplet
type Network struct {
	Type      string
	IPAddress string
	Protocol  string
}

// InstanceRecord is the droplet state as last fetched from the provider
type InstanceRecord struct {
	ID       int
	Name     string
	Status   string
	Region   string
	Networks []Network
}

// Client is the subset of the provider API the provisioner consumes.
type Client interface {
	ListSSHKeys(ctx context.Context) ([]SSHKey, error)
	CreateSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error)
	CreateInstance(ctx context.Context, spec InstanceSpec) (int, error)
	GetInstance(ctx context.Context, id int) (*InstanceRecord, error)
	DeleteInstance(ctx context.Context, id int) error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tunes the provisioner. Zero values fall back to defaults.
type Options struct {
	// PollInterval is the fixed delay between status fetches.
	PollInterval time.Duration
	// MaxAttempts bounds the number of status fetches; 0 means unbounded.
	MaxAttempts int
	// Timeout bounds AwaitActive as a whole; 0 means no deadline.
	Timeout time.Duration
	Sleep   SleepFunc
	Logger  *zap.Logger
	// Out receives human-readable progress lines. Nil discards them.
	Out io.Writer
}

// DefaultPollInterval matches the provider's typical provisioning cadence.
const DefaultPollInterval = 10 * time.Second

// Provisioner creates a single droplet and waits for it to become active.
type Provisioner struct {
	client       Client
	pollInterval time.Duration
	maxAttempts  int
	timeout      time.Duration
	sleep        SleepFunc
	log          *zap.Logger

	outMu sync.Mutex
	out   io.Writer
}

// New creates a Provisioner on top of client.
func New(client Client, opts Options) *Provisioner {
	p := &Provisioner{
		client:       client,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		timeout:      opts.Timeout,
		sleep:        opts.Sleep,
		log:          opts.Logger,
		out:          opts.Out,
	}
	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	if p.log == nil {
		p.log = logging.Logger()
	}
	if p.out == nil {
		p.out = io.Discard
	}
	return p
}

// Client returns the provider client the provisioner talks to.
func (p *Provisioner) Client() Client {
	return p.client
}

func (p *Provisioner) printf(format string, args ...any) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
