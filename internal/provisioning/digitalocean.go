package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"dropletup/internal/logging"

	"github.com/digitalocean/godo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const userAgent = "dropletup"

// APIOptions tunes the DigitalOcean API client.
type APIOptions struct {
	// BaseURL overrides the API endpoint, e.g. for tests.
	BaseURL string
	// RetryMax enables transport-level retries of failed requests.
	// 0 leaves every request single-shot.
	RetryMax int
	Logger   *zap.Logger
}

// DOClient implements Client against the DigitalOcean API
type DOClient struct {
	client *godo.Client
}

var _ Client = (*DOClient)(nil)

// NewDigitalOceanClient builds an API client authenticated with token.
func NewDigitalOceanClient(token string, opts APIOptions) (*DOClient, error) {
	if token == "" {
		return nil, &ConfigurationError{Reason: "DigitalOcean API token is empty"}
	}

	httpClient := oauth2.NewClient(context.Background(),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	clientOpts := []godo.ClientOpt{godo.SetUserAgent(userAgent)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, godo.SetBaseURL(opts.BaseURL))
	}
	if opts.RetryMax > 0 {
		waitMin, waitMax := 1.0, 10.0
		clientOpts = append(clientOpts, godo.WithRetryAndBackoffs(godo.RetryConfig{
			RetryMax:     opts.RetryMax,
			RetryWaitMin: &waitMin,
			RetryWaitMax: &waitMax,
			Logger:       logging.NewRetryLogger(opts.Logger),
		}))
	}

	client, err := godo.New(httpClient, clientOpts...)
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid API client options", Err: err}
	}

	return &DOClient{client: client}, nil
}

// ListSSHKeys returns every key registered to the account, in provider order.
func (c *DOClient) ListSSHKeys(ctx context.Context) ([]SSHKey, error) {
	var keys []SSHKey
	opt := &godo.ListOptions{Page: 1, PerPage: 200}

	for {
		page, resp, err := c.client.Keys.List(ctx, opt)
		if err != nil {
			return nil, providerError("list ssh keys", err)
		}

		for _, k := range page {
			keys = append(keys, sshKeyFromGodo(k))
		}

		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			break
		}

		current, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, providerError("list ssh keys", err)
		}
		opt.Page = current + 1
	}

	return keys, nil
}

// CreateSSHKey registers a public key with the account.
func (c *DOClient) CreateSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error) {
	key, _, err := c.client.Keys.Create(ctx, &godo.KeyCreateRequest{
		Name:      name,
		PublicKey: publicKey,
	})
	if err != nil {
		return nil, providerError("create ssh key", err)
	}

	k := sshKeyFromGodo(*key)
	return &k, nil
}

// CreateInstance creates a droplet and returns its id
func (c *DOClient) CreateInstance(ctx context.Context, spec InstanceSpec) (int, error) {
	req := &godo.DropletCreateRequest{
		Name:   spec.Name,
		Region: spec.Region,
		Size:   spec.Size,
		Image: godo.DropletCreateImage{
			Slug: spec.Image,
		},
		Backups:           spec.Backups,
		IPv6:              spec.IPv6,
		PrivateNetworking: spec.PrivateNetworking,
		Monitoring:        spec.Monitoring,
		UserData:          spec.UserData,
		Tags:              spec.Tags,
	}
	if spec.SSHKeyFingerprint != "" {
		req.SSHKeys = []godo.DropletCreateSSHKey{{Fingerprint: spec.SSHKeyFingerprint}}
	}

	droplet, _, err := c.client.Droplets.Create(ctx, req)
	if err != nil {
		return 0, providerError("create droplet", err)
	}
	return droplet.ID, nil
}

// GetInstance fetches the current droplet state
func (c *DOClient) GetInstance(ctx context.Context, id int) (*InstanceRecord, error) {
	droplet, _, err := c.client.Droplets.Get(ctx, id)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, &NotFoundError{Kind: "droplet", Field: "id", Value: fmt.Sprintf("%d", id)}
		}
		return nil, providerError("get droplet", err)
	}
	return instanceFromGodo(droplet), nil
}

// DeleteInstance deletes a droplet by id
func (c *DOClient) DeleteInstance(ctx context.Context, id int) error {
	_, err := c.client.Droplets.Delete(ctx, id)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return &NotFoundError{Kind: "droplet", Field: "id", Value: fmt.Sprintf("%d", id)}
		}
		return providerError("delete droplet", err)
	}
	return nil
}

func sshKeyFromGodo(k godo.Key) SSHKey {
	return SSHKey{
		ID:          k.ID,
		Name:        k.Name,
		Fingerprint: k.Fingerprint,
		PublicKey:   k.PublicKey,
	}
}

func instanceFromGodo(d *godo.Droplet) *InstanceRecord {
	rec := &InstanceRecord{
		ID:     d.ID,
		Name:   d.Name,
		Status: d.Status,
	}
	if d.Region != nil {
		rec.Region = d.Region.Slug
	}
	if d.Networks == nil {
		return rec
	}
	for _, n := range d.Networks.V4 {
		rec.Networks = append(rec.Networks, Network{Type: n.Type, IPAddress: n.IPAddress, Protocol: ProtocolIPv4})
	}
	for _, n := range d.Networks.V6 {
		rec.Networks = append(rec.Networks, Network{Type: n.Type, IPAddress: n.IPAddress, Protocol: ProtocolIPv6})
	}
	return rec
}

func providerError(op string, err error) *ProviderError {
	return &ProviderError{Op: op, StatusCode: statusCode(err), Err: err}
}

func statusCode(err error) int {
	var errResp *godo.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}
