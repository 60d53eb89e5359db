package provisioning

import (
	"context"
	"errors"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

// Deprovision deletes a single droplet. It is never called implicitly by
// Provision; callers decide when (and whether) a droplet goes away.
func (p *Provisioner) Deprovision(ctx context.Context, id int) error {
	p.log.Info("deleting droplet", zap.Int("droplet_id", id))

	if err := p.client.DeleteInstance(ctx, id); err != nil {
		return asProviderError("delete droplet", err)
	}

	p.printf("Droplet ID %d deleted successfully.", id)
	return nil
}

// DeprovisionAll deletes droplets with at most concurrency deletes in flight.
// The returned map holds an entry for every id that failed; a droplet that
// no longer exists maps to a *NotFoundError.
func (p *Provisioner) DeprovisionAll(ctx context.Context, ids []int, concurrency int) map[int]error {
	if concurrency <= 0 {
		concurrency = 1
	}
	concurrency = min(concurrency, max(len(ids), 1))

	pool := pond.NewPool(concurrency)

	var mu sync.Mutex
	failed := make(map[int]error)

	for _, id := range ids {
		pool.Submit(func() {
			if err := p.Deprovision(ctx, id); err != nil {
				var nf *NotFoundError
				if errors.As(err, &nf) {
					p.log.Info("droplet already deleted", zap.Int("droplet_id", id))
				} else {
					p.log.Error("failed to delete droplet", zap.Int("droplet_id", id), zap.Error(err))
				}
				mu.Lock()
				failed[id] = err
				mu.Unlock()
			}
		})
	}

	pool.StopAndWait()
	return failed
}
