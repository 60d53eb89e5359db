package provisioning_test

import (
	"context"
	"sync"
	"time"

	"dropletup/internal/provisioning"
)

// fakeClient replays a scripted sequence of droplet statuses.
type fakeClient struct {
	mu sync.Mutex

	keys    []provisioning.SSHKey
	listErr error

	createID  int
	createErr error
	created   []provisioning.InstanceSpec

	statuses []string
	networks []provisioning.Network
	getErr   error
	gets     int

	deleteErrs map[int]error
	deleted    []int
}

func (f *fakeClient) ListSSHKeys(ctx context.Context) ([]provisioning.SSHKey, error) {
	return f.keys, f.listErr
}

func (f *fakeClient) CreateSSHKey(ctx context.Context, name, publicKey string) (*provisioning.SSHKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := provisioning.SSHKey{ID: len(f.keys) + 1, Name: name, PublicKey: publicKey}
	f.keys = append(f.keys, k)
	return &k, nil
}

func (f *fakeClient) CreateInstance(ctx context.Context, spec provisioning.InstanceSpec) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, spec)
	if f.createErr != nil {
		return 0, f.createErr
	}
	return f.createID, nil
}

func (f *fakeClient) GetInstance(ctx context.Context, id int) (*provisioning.InstanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	status := f.statuses[min(f.gets, len(f.statuses)-1)]
	f.gets++
	return &provisioning.InstanceRecord{
		ID:       id,
		Status:   status,
		Networks: f.networks,
	}, nil
}

func (f *fakeClient) DeleteInstance(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErrs[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

// sleepRecorder counts sleeps without blocking.
type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}
