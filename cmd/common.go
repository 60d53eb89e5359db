package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dropletup/internal/logging"
	"dropletup/internal/provisioning"
	"dropletup/internal/state"
)

// newClient builds the DigitalOcean client from the loaded configuration.
func newClient() (*provisioning.DOClient, error) {
	token, err := cfg.ResolveToken()
	if err != nil {
		return nil, err
	}
	return provisioning.NewDigitalOceanClient(token, provisioning.APIOptions{
		BaseURL:  cfg.API.BaseURL,
		RetryMax: cfg.API.RetryMax,
		Logger:   logging.Logger(),
	})
}

func newProvisioner(out io.Writer) (*provisioning.Provisioner, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	return provisioning.New(client, provisioning.Options{
		PollInterval: cfg.Poll.Interval,
		MaxAttempts:  cfg.Poll.MaxAttempts,
		Timeout:      cfg.Poll.Timeout,
		Logger:       logging.Logger(),
		Out:          out,
	}), nil
}

func openStore(ctx context.Context) state.Store {
	return state.Open(ctx, state.Options{
		Path:          cfg.State.Path,
		EtcdEndpoints: cfg.State.EtcdEndpoints,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func closeStore(store state.Store) {
	if err := store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close ledger: %v\n", err)
	}
}
