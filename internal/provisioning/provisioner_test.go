package provisioning_test

import (
	"bytes"
	"context"
	"errors"
	"time"

	"dropletup/internal/provisioning"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("Provisioner", func() {
	var (
		ctx     context.Context
		client  *fakeClient
		sleeper *sleepRecorder
		out     *bytes.Buffer
		opts    provisioning.Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &fakeClient{
			keys: []provisioning.SSHKey{
				{ID: 1, Name: "laptop", Fingerprint: "aa:bb:cc"},
				{ID: 2, Name: "ci", Fingerprint: "dd:ee:ff"},
			},
			createID: 42,
		}
		sleeper = &sleepRecorder{}
		out = &bytes.Buffer{}
		opts = provisioning.Options{
			PollInterval: 10 * time.Second,
			Sleep:        sleeper.Sleep,
			Out:          out,
		}
	})

	Describe("AwaitActive", func() {
		It("sleeps once per 'new' status and returns the active record", func() {
			client.statuses = []string{"new", "new", "active"}
			client.networks = []provisioning.Network{{Type: "public", IPAddress: "203.0.113.9", Protocol: "ipv4"}}
			p := provisioning.New(client, opts)

			rec, err := p.AwaitActive(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal("active"))
			Expect(rec.ID).To(Equal(42))
			Expect(client.gets).To(Equal(3))
			Expect(sleeper.calls).To(Equal([]time.Duration{10 * time.Second, 10 * time.Second}))
			Expect(out.String()).To(ContainSubstring("still provisioning (status: new)"))
		})

		It("fails on an unexpected status after one sleep", func() {
			client.statuses = []string{"new", "errored"}
			p := provisioning.New(client, opts)

			rec, err := p.AwaitActive(ctx, 42)
			Expect(rec).To(BeNil())
			Expect(sleeper.calls).To(HaveLen(1))

			var pErr *provisioning.ProvisioningError
			Expect(errors.As(err, &pErr)).To(BeTrue())
			Expect(pErr.Status).To(Equal("errored"))
			Expect(pErr.ID).To(Equal(42))
			Expect(pErr.Err).To(BeNil())
			Expect(err.Error()).To(ContainSubstring("errored"))
		})

		It("does not sleep when the droplet is already active", func() {
			client.statuses = []string{"active"}
			p := provisioning.New(client, opts)

			_, err := p.AwaitActive(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(sleeper.calls).To(BeEmpty())
		})

		It("stops after MaxAttempts fetches", func() {
			client.statuses = []string{"new"}
			opts.MaxAttempts = 3
			p := provisioning.New(client, opts)

			_, err := p.AwaitActive(ctx, 42)
			Expect(err).To(MatchError(provisioning.ErrAttemptsExhausted))
			Expect(client.gets).To(Equal(3))
			Expect(sleeper.calls).To(HaveLen(2))
			Expect(provisioning.Kind(err)).To(Equal(provisioning.KindProvisioning))
		})

		It("stops when the context is cancelled while waiting", func() {
			client.statuses = []string{"new"}
			opts.Sleep = nil
			opts.PollInterval = time.Hour
			p := provisioning.New(client, opts)

			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := p.AwaitActive(cctx, 42)
			Expect(err).To(MatchError(context.Canceled))

			var pErr *provisioning.ProvisioningError
			Expect(errors.As(err, &pErr)).To(BeTrue())
			Expect(pErr.Status).To(Equal("new"))
		})

		It("stops when the timeout expires", func() {
			client.statuses = []string{"new"}
			opts.Sleep = nil
			opts.PollInterval = time.Hour
			opts.Timeout = 20 * time.Millisecond
			p := provisioning.New(client, opts)

			_, err := p.AwaitActive(ctx, 42)
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})

		It("reports fetch failures as provider errors", func() {
			client.getErr = errors.New("connection reset")
			p := provisioning.New(client, opts)

			_, err := p.AwaitActive(ctx, 42)
			var provErr *provisioning.ProviderError
			Expect(errors.As(err, &provErr)).To(BeTrue())
			Expect(provErr.Op).To(Equal("get droplet"))
		})

		It("reports a droplet that disappears while waiting as a provider error", func() {
			client.getErr = &provisioning.NotFoundError{Kind: "droplet", Field: "id", Value: "42"}
			p := provisioning.New(client, opts)

			_, err := p.AwaitActive(ctx, 42)
			var provErr *provisioning.ProviderError
			Expect(errors.As(err, &provErr)).To(BeTrue())
			Expect(provErr.Op).To(Equal("get droplet"))
			Expect(provErr.StatusCode).To(Equal(404))
			Expect(provisioning.Kind(err)).To(Equal(provisioning.KindProvider))
			Expect(provisioning.ExitCode(err)).To(Equal(4))
		})
	})

	Describe("Provision", func() {
		var req provisioning.Request

		BeforeEach(func() {
			req = provisioning.Request{
				Spec: provisioning.InstanceSpec{
					Name:   "test-1",
					Region: "nyc3",
					Size:   "s-1vcpu-1gb",
					Image:  "ubuntu-22-04-x64",
					IPv6:   true,
					Tags:   []string{"dropletup"},
				},
			}
		})

		It("creates the droplet and reports its public address", func() {
			client.statuses = []string{"new", "active"}
			client.networks = []provisioning.Network{
				{Type: "private", IPAddress: "10.0.0.5", Protocol: "ipv4"},
				{Type: "public", IPAddress: "198.51.100.7", Protocol: "ipv4"},
			}
			p := provisioning.New(client, opts)

			res, err := p.Provision(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.InstanceID).To(Equal(42))
			Expect(res.HasPublicIPv4).To(BeTrue())
			Expect(res.PublicIPv4).To(Equal("198.51.100.7"))
			Expect(res.Record.Status).To(Equal("active"))
			Expect(sleeper.calls).To(HaveLen(1))

			Expect(client.created).To(HaveLen(1))
			Expect(client.created[0].Name).To(Equal("test-1"))
			Expect(client.created[0].SSHKeyFingerprint).To(Equal("aa:bb:cc"))
			Expect(client.created[0].IPv6).To(BeTrue())

			Expect(out.String()).To(ContainSubstring("Droplet creation initiated. Droplet ID: 42"))
		})

		It("announces the defaulted key on the progress stream", func() {
			client.statuses = []string{"active"}
			p := provisioning.New(client, opts)

			_, err := p.Provision(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).To(ContainSubstring("Using the first key found: laptop (aa:bb:cc)"))
		})

		It("stays quiet about key choice when a selector is given", func() {
			client.statuses = []string{"active"}
			req.Key = provisioning.KeySelector{Fingerprint: "dd:ee:ff"}
			p := provisioning.New(client, opts)

			_, err := p.Provision(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).NotTo(ContainSubstring("Using the first key found"))
		})

		It("uses the selected key", func() {
			client.statuses = []string{"active"}
			req.Key = provisioning.KeySelector{Name: "ci"}
			p := provisioning.New(client, opts)

			res, err := p.Provision(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Spec.SSHKeyFingerprint).To(Equal("dd:ee:ff"))
		})

		It("succeeds without a public address", func() {
			client.statuses = []string{"active"}
			client.networks = []provisioning.Network{{Type: "private", IPAddress: "10.0.0.5", Protocol: "ipv4"}}
			p := provisioning.New(client, opts)

			res, err := p.Provision(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.HasPublicIPv4).To(BeFalse())
			Expect(res.PublicIPv4).To(BeEmpty())
		})

		It("fails with a configuration error when no keys are registered", func() {
			client.keys = nil
			p := provisioning.New(client, opts)

			_, err := p.Provision(ctx, req)
			Expect(provisioning.Kind(err)).To(Equal(provisioning.KindConfiguration))
			Expect(client.created).To(BeEmpty())
		})

		It("propagates a rejected creation unmodified", func() {
			rejected := &provisioning.ProviderError{Op: "create droplet", StatusCode: 422, Err: errors.New("invalid size slug")}
			client.createErr = rejected
			p := provisioning.New(client, opts)

			res, err := p.Provision(ctx, req)
			Expect(res).To(BeNil())
			Expect(err).To(BeIdenticalTo(rejected))
			Expect(provisioning.ExitCode(err)).To(Equal(4))
		})

		It("returns the droplet id when waiting fails", func() {
			client.statuses = []string{"off"}
			p := provisioning.New(client, opts)

			res, err := p.Provision(ctx, req)
			Expect(provisioning.Kind(err)).To(Equal(provisioning.KindProvisioning))
			Expect(res).NotTo(BeNil())
			Expect(res.InstanceID).To(Equal(42))
			Expect(res.Record).To(BeNil())
		})

		It("reports key listing failures as provider errors", func() {
			client.listErr = errors.New("unauthorized")
			p := provisioning.New(client, opts)

			_, err := p.Provision(ctx, req)
			Expect(provisioning.Kind(err)).To(Equal(provisioning.KindProvider))
			Expect(err.Error()).To(ContainSubstring("list ssh keys"))
		})
	})

	Describe("DeprovisionAll", func() {
		It("deletes every droplet and collects failures", func() {
			boom := errors.New("boom")
			client.deleteErrs = map[int]error{3: boom}
			p := provisioning.New(client, opts)

			failed := p.DeprovisionAll(ctx, []int{1, 2, 3, 4}, 2)
			Expect(client.deleted).To(ConsistOf(1, 2, 4))
			Expect(failed).To(HaveLen(1))
			Expect(failed[3]).To(MatchError(boom))
			Expect(provisioning.Kind(failed[3])).To(Equal(provisioning.KindProvider))
		})

		It("keeps not-found errors distinguishable", func() {
			client.deleteErrs = map[int]error{7: &provisioning.NotFoundError{Kind: "droplet", Field: "id", Value: "7"}}
			p := provisioning.New(client, opts)

			err := p.Deprovision(ctx, 7)
			Expect(provisioning.ExitCode(err)).To(Equal(3))
		})

		It("logs already deleted droplets without an error entry", func() {
			core, logs := observer.New(zap.DebugLevel)
			opts.Logger = zap.New(core)
			client.deleteErrs = map[int]error{7: &provisioning.NotFoundError{Kind: "droplet", Field: "id", Value: "7"}}
			p := provisioning.New(client, opts)

			failed := p.DeprovisionAll(ctx, []int{7}, 1)
			Expect(failed).To(HaveKey(7))
			Expect(logs.FilterLevelExact(zap.ErrorLevel).Len()).To(Equal(0))
			Expect(logs.FilterMessage("droplet already deleted").Len()).To(Equal(1))
		})
	})
})
