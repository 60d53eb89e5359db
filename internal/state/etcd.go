package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdPrefix = "/dropletup/droplets/"

// EtcdStore keeps one JSON value per droplet in etcd so that several
// operators can share a ledger
type EtcdStore struct {
	client *clientv3.Client
}

var _ Store = (*EtcdStore)(nil)

// NewEtcdStore connects to the given etcd endpoints
func NewEtcdStore(endpoints []string) (*EtcdStore, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &EtcdStore{client: cli}, nil
}

func etcdKey(id int) string {
	return fmt.Sprintf("%s%d", etcdPrefix, id)
}

// Put saves the record
func (s *EtcdStore) Put(ctx context.Context, rec DropletRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal droplet record: %w", err)
	}
	if _, err := s.client.Put(ctx, etcdKey(rec.ID), string(data)); err != nil {
		return fmt.Errorf("failed to save droplet record to etcd: %w", err)
	}
	return nil
}

// Get retrieves the record for id
func (s *EtcdStore) Get(ctx context.Context, id int) (DropletRecord, error) {
	resp, err := s.client.Get(ctx, etcdKey(id))
	if err != nil {
		return DropletRecord{}, fmt.Errorf("failed to get droplet record from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return DropletRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	var rec DropletRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return DropletRecord{}, fmt.Errorf("failed to unmarshal droplet record: %w", err)
	}
	return rec, nil
}

// List returns every record under the ledger prefix
func (s *EtcdStore) List(ctx context.Context) ([]DropletRecord, error) {
	resp, err := s.client.Get(ctx, etcdPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list droplet records from etcd: %w", err)
	}

	recs := make([]DropletRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec DropletRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal droplet record %s: %w", kv.Key, err)
		}
		recs = append(recs, rec)
	}
	sortRecords(recs)
	return recs, nil
}

// MarkDeleted stamps the record for id as deleted
func (s *EtcdStore) MarkDeleted(ctx context.Context, id int, at time.Time) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.DeletedAt = &at
	rec.Status = "deleted"
	return s.Put(ctx, rec)
}

// Close closes the etcd client connection
func (s *EtcdStore) Close() error {
	return s.client.Close()
}
