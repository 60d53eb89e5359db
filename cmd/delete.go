package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"dropletup/internal/logging"
	"dropletup/internal/provisioning"
	"dropletup/internal/state"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var deleteFlags struct {
	yes         bool
	all         bool
	concurrency int
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete [droplet id]...",
	Short: "Delete droplets",
	Long: `Delete one or more droplets by ID. With --all every droplet in the ledger
that is not yet deleted is removed. Deletion asks for confirmation unless
--yes is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return runDelete(ctx, cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVarP(&deleteFlags.yes, "yes", "y", false, "Skip the confirmation prompt")
	deleteCmd.Flags().BoolVar(&deleteFlags.all, "all", false, "Delete every droplet recorded in the ledger")
	deleteCmd.Flags().IntVar(&deleteFlags.concurrency, "concurrency", 4, "Maximum number of concurrent delete requests")
}

// parseIDs converts droplet id arguments, dropping duplicates.
func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil || id <= 0 {
			return nil, &provisioning.ConfigurationError{Reason: fmt.Sprintf("invalid droplet id %q", arg)}
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func runDelete(ctx context.Context, cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	store := openStore(ctx)
	defer closeStore(store)

	if deleteFlags.all {
		recs, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to read ledger: %w", err)
		}
		for _, rec := range recs {
			if !rec.Deleted() && !slices.Contains(ids, rec.ID) {
				ids = append(ids, rec.ID)
			}
		}
	}
	if len(ids) == 0 {
		return &provisioning.ConfigurationError{Reason: "no droplets to delete: pass droplet IDs or --all"}
	}

	if !deleteFlags.yes {
		ok, err := confirmDelete(ctx, ids)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled.")
			return nil
		}
	}

	p, err := newProvisioner(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	failed := p.DeprovisionAll(ctx, ids, deleteFlags.concurrency)

	now := time.Now().UTC()
	var errs []error
	for _, id := range ids {
		err, bad := failed[id]
		var nf *provisioning.NotFoundError
		if bad && !errors.As(err, &nf) {
			errs = append(errs, err)
			continue
		}
		if bad {
			fmt.Fprintf(cmd.OutOrStdout(), "Droplet ID %d no longer exists.\n", id)
		}
		markDeleted(context.WithoutCancel(ctx), store, id, now)
	}
	return errors.Join(errs...)
}

func markDeleted(ctx context.Context, store state.Store, id int, at time.Time) {
	err := store.MarkDeleted(ctx, id, at)
	switch {
	case err == nil, errors.Is(err, state.ErrNotFound):
	default:
		logging.Logger().Warn("failed to mark droplet deleted in ledger",
			zap.Int("droplet_id", id),
			zap.Error(err))
	}
}

func confirmDelete(ctx context.Context, ids []int) (bool, error) {
	if !isInteractive() {
		return false, &provisioning.ConfigurationError{Reason: "refusing to delete without a terminal; pass --yes to confirm"}
	}

	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = strconv.Itoa(id)
	}

	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %d droplet(s)?", len(ids))).
				Description("IDs: " + strings.Join(labels, ", ")).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func isInteractive() bool {
	return (isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())) &&
		(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
}
