package cmd

import (
	"context"
	"errors"
	"fmt"

	"dropletup/internal/logging"
	"dropletup/internal/provisioning"
	"dropletup/internal/state"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statusFlags struct {
	refresh bool
	deleted bool
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List droplets recorded in the ledger",
	Long:  `List droplets created by dropletup. With --refresh the current status is fetched from DigitalOcean.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return runStatus(ctx, cmd)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusFlags.refresh, "refresh", false, "Fetch live status from DigitalOcean")
	statusCmd.Flags().BoolVar(&statusFlags.deleted, "deleted", false, "Include deleted droplets")
}

func runStatus(ctx context.Context, cmd *cobra.Command) error {
	store := openStore(ctx)
	defer closeStore(store)

	all, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	recs := all[:0:0]
	for _, rec := range all {
		if statusFlags.deleted || !rec.Deleted() {
			recs = append(recs, rec)
		}
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No droplets recorded.")
		return nil
	}

	var live map[int]string
	if statusFlags.refresh {
		client, err := newClient()
		if err != nil {
			return err
		}
		live, err = liveStatuses(ctx, client, recs)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(out, ledgerTable(recs, live))
	return nil
}

// liveStatuses fetches the current status of every non-deleted droplet.
// Droplets the provider no longer knows are reported as "gone".
func liveStatuses(ctx context.Context, client provisioning.Client, recs []state.DropletRecord) (map[int]string, error) {
	live := make(map[int]string, len(recs))
	for _, rec := range recs {
		if rec.Deleted() {
			continue
		}
		inst, err := client.GetInstance(ctx, rec.ID)
		var nf *provisioning.NotFoundError
		switch {
		case err == nil:
			live[rec.ID] = inst.Status
		case errors.As(err, &nf):
			live[rec.ID] = "gone"
		default:
			logging.Logger().Error("failed to fetch droplet", zap.Int("droplet_id", rec.ID), zap.Error(err))
			return nil, err
		}
	}
	return live, nil
}
