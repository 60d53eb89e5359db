package provisioning

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Request describes one provisioning run.
type Request struct {
	// Spec is the droplet to create. SSHKeyFingerprint is filled in from Key.
	Spec InstanceSpec
	Key  KeySelector
}

// Result is what a provisioning run produced. InstanceID is set as soon as
// the creation call succeeded, even if waiting for the droplet failed later.
type Result struct {
	Spec          InstanceSpec
	InstanceID    int
	Record        *InstanceRecord
	PublicIPv4    string
	HasPublicIPv4 bool
}

// Provision resolves the SSH key, creates the droplet, waits until it is
// active and extracts its public IPv4 address. A missing public address is
// not an error; check Result.HasPublicIPv4.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Result, error) {
	keys, err := p.client.ListSSHKeys(ctx)
	if err != nil {
		return nil, asProviderError("list ssh keys", err)
	}

	fingerprint, err := p.resolveSSHKey(keys, req.Key)
	if err != nil {
		return nil, err
	}

	spec := req.Spec
	spec.SSHKeyFingerprint = fingerprint
	res := &Result{Spec: spec}

	p.printf("Attempting to create droplet '%s' in region '%s' with image '%s' and size '%s'...",
		spec.Name, spec.Region, spec.Image, spec.Size)
	p.printf("Using SSH key fingerprint: %s", fingerprint)

	id, err := p.CreateInstance(ctx, spec)
	if err != nil {
		return nil, err
	}
	res.InstanceID = id
	p.printf("Droplet creation initiated. Droplet ID: %d", id)

	p.printf("Waiting for droplet to become active...")
	rec, err := p.AwaitActive(ctx, id)
	if err != nil {
		return res, err
	}
	res.Record = rec
	p.printf("Droplet '%s' is active!", spec.Name)

	res.PublicIPv4, res.HasPublicIPv4 = ExtractPublicIPv4(rec)
	if !res.HasPublicIPv4 {
		p.log.Warn("droplet has no public IPv4 address", zap.Int("droplet_id", id))
	}
	return res, nil
}

// CreateInstance issues a single creation request and returns the droplet id.
func (p *Provisioner) CreateInstance(ctx context.Context, spec InstanceSpec) (int, error) {
	p.log.Info("creating droplet",
		zap.String("name", spec.Name),
		zap.String("region", spec.Region),
		zap.String("size", spec.Size),
		zap.String("image", spec.Image),
		zap.Strings("tags", spec.Tags))

	id, err := p.client.CreateInstance(ctx, spec)
	if err != nil {
		return 0, asProviderError("create droplet", err)
	}

	p.log.Info("droplet creation initiated", zap.Int("droplet_id", id))
	return id, nil
}

// AwaitActive polls the droplet until its status is active. Status "new"
// keeps polling at the fixed interval; any other status fails immediately.
func (p *Provisioner) AwaitActive(ctx context.Context, id int) (*InstanceRecord, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	lastStatus := ""
	for attempt := 1; ; attempt++ {
		rec, err := p.client.GetInstance(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, &ProvisioningError{ID: id, Status: lastStatus, Err: ctxErr}
			}
			return nil, &ProviderError{Op: "get droplet", StatusCode: fetchStatusCode(err), Err: err}
		}
		lastStatus = rec.Status

		switch rec.Status {
		case StatusActive:
			p.log.Info("droplet is active",
				zap.Int("droplet_id", id),
				zap.Int("attempts", attempt))
			return rec, nil
		case StatusNew:
		default:
			return nil, &ProvisioningError{ID: id, Status: rec.Status}
		}

		if p.maxAttempts > 0 && attempt >= p.maxAttempts {
			return nil, &ProvisioningError{ID: id, Status: lastStatus, Err: ErrAttemptsExhausted}
		}

		p.printf("Droplet is still provisioning (status: %s)... Retrying in %s.", rec.Status, p.pollInterval)
		p.log.Debug("droplet still provisioning",
			zap.Int("droplet_id", id),
			zap.String("status", rec.Status),
			zap.Int("attempt", attempt),
			zap.Duration("interval", p.pollInterval))

		if err := p.sleep(ctx, p.pollInterval); err != nil {
			return nil, &ProvisioningError{ID: id, Status: lastStatus, Err: err}
		}
	}
}

// ExtractPublicIPv4 returns the first public IPv4 address in provider order.
func ExtractPublicIPv4(rec *InstanceRecord) (string, bool) {
	if rec == nil {
		return "", false
	}
	for _, n := range rec.Networks {
		if n.Type != NetworkPublic {
			continue
		}
		if n.Protocol != "" && n.Protocol != ProtocolIPv4 {
			continue
		}
		return n.IPAddress, true
	}
	return "", false
}

// asProviderError keeps already classified errors as they are and tags
// anything else as a provider failure of op.
func asProviderError(op string, err error) error {
	if Kind(err) != KindUnknown {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}

func fetchStatusCode(err error) int {
	var provErr *ProviderError
	var nf *NotFoundError
	switch {
	case errors.As(err, &provErr):
		return provErr.StatusCode
	case errors.As(err, &nf):
		return http.StatusNotFound
	}
	return 0
}
