package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dropletup/internal/control"
	"dropletup/internal/logging"
	"dropletup/internal/provisioning"
	"dropletup/internal/state"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const cloudInitLogPath = "/var/log/cloud-init-output.log"

var createFlags struct {
	name           string
	region         string
	size           string
	image          string
	keyName        string
	keyFingerprint string
	privateKey     string
	timeout        time.Duration
	verify         bool
	fetchLog       string
}

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a droplet and wait until it is active",
	Long: `Create a droplet with an SSH key registered to the account, wait until it
reports the active status and print its public IPv4 address.

Flags override the values from the config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return runCreate(ctx, cmd)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	f := createCmd.Flags()
	f.StringVarP(&createFlags.name, "name", "n", "", "Droplet name (generated when empty)")
	f.StringVarP(&createFlags.region, "region", "r", "", "Region slug")
	f.StringVarP(&createFlags.size, "size", "s", "", "Size slug")
	f.StringVarP(&createFlags.image, "image", "i", "", "Image slug")
	f.StringVar(&createFlags.keyName, "ssh-key-name", "", "Name of the account SSH key to attach")
	f.StringVar(&createFlags.keyFingerprint, "ssh-key-fingerprint", "", "Fingerprint of the account SSH key to attach")
	f.StringVar(&createFlags.privateKey, "private-key", "", "Private key used by --verify")
	f.DurationVar(&createFlags.timeout, "timeout", 0, "Maximum time to wait for the droplet to become active")
	f.BoolVar(&createFlags.verify, "verify", false, "Log in over SSH and run the readiness command")
	f.StringVar(&createFlags.fetchLog, "fetch-log", "", "Download the cloud-init output log to this path (implies --verify)")
}

func applyCreateFlags(cmd *cobra.Command) {
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Droplet.Name, createFlags.name)
	override(&cfg.Droplet.Region, createFlags.region)
	override(&cfg.Droplet.Size, createFlags.size)
	override(&cfg.Droplet.Image, createFlags.image)
	override(&cfg.SSHKey.Name, createFlags.keyName)
	override(&cfg.SSHKey.Fingerprint, createFlags.keyFingerprint)
	override(&cfg.SSHKey.PrivateKeyPath, createFlags.privateKey)

	if cmd.Flags().Changed("timeout") {
		cfg.Poll.Timeout = createFlags.timeout
	}
	if createFlags.verify || createFlags.fetchLog != "" {
		cfg.Verify.Enabled = true
	}
	if cfg.Droplet.Name == "" {
		cfg.Droplet.Name = generateName()
	}
}

func generateName() string {
	return "dropletup-" + uuid.NewString()[:8]
}

// buildRequest turns the droplet configuration into a provisioning request.
func buildRequest() (provisioning.Request, error) {
	userData, err := provisioning.GenerateCloudConfig(provisioning.CloudConfigData{
		PackageUpdate: cfg.Droplet.PackageUpdate,
		Packages:      cfg.Droplet.Packages,
		RunCommands:   cfg.Droplet.RunCommands,
	})
	if err != nil {
		return provisioning.Request{}, &provisioning.ConfigurationError{Reason: "invalid cloud-config", Err: err}
	}

	return provisioning.Request{
		Spec: provisioning.InstanceSpec{
			Name:              cfg.Droplet.Name,
			Region:            cfg.Droplet.Region,
			Size:              cfg.Droplet.Size,
			Image:             cfg.Droplet.Image,
			Backups:           cfg.Droplet.Backups,
			IPv6:              cfg.Droplet.IPv6,
			PrivateNetworking: cfg.Droplet.PrivateNetworking,
			Monitoring:        cfg.Droplet.Monitoring,
			UserData:          userData,
			Tags:              cfg.Droplet.Tags,
		},
		Key: provisioning.KeySelector{
			Name:        cfg.SSHKey.Name,
			Fingerprint: cfg.SSHKey.Fingerprint,
		},
	}, nil
}

func runCreate(ctx context.Context, cmd *cobra.Command) error {
	applyCreateFlags(cmd)

	if err := cfg.Validate(); err != nil {
		return &provisioning.ConfigurationError{Reason: "invalid flags", Err: err}
	}

	req, err := buildRequest()
	if err != nil {
		return err
	}

	p, err := newProvisioner(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	store := openStore(ctx)
	defer closeStore(store)

	res, err := p.Provision(ctx, req)
	if res != nil && res.InstanceID != 0 {
		// The ledger must learn about the droplet even when ctx was cancelled.
		recordDroplet(context.WithoutCancel(ctx), store, res, err)
	}
	if err != nil {
		if res != nil && res.InstanceID != 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), renderFailureHint(res.InstanceID))
		}
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderResult(res))

	if cfg.Verify.Enabled {
		if !res.HasPublicIPv4 {
			logging.Logger().Warn("skipping readiness check, droplet has no public IPv4 address",
				zap.Int("droplet_id", res.InstanceID))
			return nil
		}
		return verifyDroplet(ctx, cmd, res)
	}
	return nil
}

func recordDroplet(ctx context.Context, store state.Store, res *provisioning.Result, provErr error) {
	rec := state.DropletRecord{
		ID:         res.InstanceID,
		Name:       res.Spec.Name,
		Region:     res.Spec.Region,
		Size:       res.Spec.Size,
		Image:      res.Spec.Image,
		PublicIPv4: res.PublicIPv4,
		Status:     provisioning.StatusActive,
		CreatedAt:  time.Now().UTC(),
	}

	if provErr != nil {
		rec.Status = "failed"
		var pErr *provisioning.ProvisioningError
		if errors.As(provErr, &pErr) && pErr.Status != "" {
			rec.Status = pErr.Status
		}
		rec.Error = provErr.Error()
	}

	if err := store.Put(ctx, rec); err != nil {
		logging.Logger().Warn("failed to record droplet in ledger",
			zap.Int("droplet_id", rec.ID),
			zap.Error(err))
	}
}

// verifyDroplet logs in to the droplet and waits for cloud-init to finish.
func verifyDroplet(ctx context.Context, cmd *cobra.Command, res *provisioning.Result) error {
	if cfg.SSHKey.PrivateKeyPath == "" {
		return &provisioning.ConfigurationError{Reason: "readiness check needs ssh_key.private_key_path or --private-key"}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connecting to %s as %s...\n", res.PublicIPv4, cfg.Verify.User)

	ctrl, err := control.NewController(ctx, control.Config{
		Host:           res.PublicIPv4,
		User:           cfg.Verify.User,
		PrivateKeyPath: cfg.SSHKey.PrivateKeyPath,
		Timeout:        cfg.Verify.Timeout,
		InstanceName:   res.Spec.Name,
	})
	if err != nil {
		return fmt.Errorf("readiness check failed: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logging.Logger().Warn("failed to close ssh connection", zap.Error(err))
		}
	}()

	if cfg.Verify.Command != "" {
		output, err := ctrl.Run(cfg.Verify.Command)
		if err != nil {
			return fmt.Errorf("readiness command failed on %s: %w", ctrl.GetInstanceName(), err)
		}
		fmt.Fprintf(out, "Readiness check passed: %s\n", logging.Truncate(strings.TrimSpace(output)))
	}

	if createFlags.fetchLog != "" {
		local := createFlags.fetchLog
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			local = filepath.Join(local, filepath.Base(cloudInitLogPath))
		}
		n, err := ctrl.Fetch(cloudInitLogPath, local)
		if err != nil {
			return fmt.Errorf("failed to fetch cloud-init log: %w", err)
		}
		fmt.Fprintf(out, "Saved %s (%d bytes) to %s\n", cloudInitLogPath, n, local)
	}
	return nil
}
