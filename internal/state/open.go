package state

import (
	"context"
	"time"

	"dropletup/internal/logging"

	"go.uber.org/zap"
)

// Options selects the ledger backend
type Options struct {
	Path          string
	EtcdEndpoints []string
}

// Open returns an etcd-backed store when endpoints are configured and
// reachable, and a file store otherwise.
func Open(ctx context.Context, opts Options) Store {
	if len(opts.EtcdEndpoints) == 0 {
		return NewFileStore(opts.Path)
	}

	store, err := NewEtcdStore(opts.EtcdEndpoints)
	if err != nil {
		logging.Logger().Warn("failed to connect to etcd, falling back to file ledger",
			zap.String("path", opts.Path),
			zap.Error(err))
		return NewFileStore(opts.Path)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := store.client.Get(pingCtx, etcdPrefix+"ping"); err != nil {
		logging.Logger().Warn("etcd connection test failed, falling back to file ledger",
			zap.String("path", opts.Path),
			zap.Error(err))
		_ = store.Close()
		return NewFileStore(opts.Path)
	}

	logging.Logger().Debug("using etcd droplet ledger", zap.Strings("endpoints", opts.EtcdEndpoints))
	return store
}
