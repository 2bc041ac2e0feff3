package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/subsku/internal/engine"
)

// PoolOptions holds flags for the pool and reconcile commands.
type PoolOptions struct {
	*RootOptions
	StoreFlags
}

// PoolView is the availability of one SKU.
type PoolView struct {
	SKU         string   `json:"sku"`
	Total       int      `json:"total"`
	Available   int      `json:"available"`
	Unavailable int      `json:"unavailable"`
	Names       []string `json:"available_units"`
}

func (v PoolView) String() string {
	s := fmt.Sprintf("%s: total=%d available=%d unavailable=%d", v.SKU, v.Total, v.Available, v.Unavailable)
	if len(v.Names) > 0 {
		s += "\n  " + strings.Join(v.Names, "\n  ")
	}
	return s
}

// ReconcileView is the outcome of the reconcile command.
type ReconcileView struct {
	SKU      string   `json:"sku"`
	External int      `json:"external"`
	Created  bool     `json:"created"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
}

func (v ReconcileView) String() string {
	if !v.Created && len(v.Added) == 0 && len(v.Removed) == 0 {
		return fmt.Sprintf("%s already at %d available", v.SKU, v.External)
	}
	s := fmt.Sprintf("%s reconciled to %d available", v.SKU, v.External)
	if v.Created {
		s += " (pool created)"
	}
	if len(v.Added) > 0 {
		s += "\n  added: " + strings.Join(v.Added, ", ")
	}
	if len(v.Removed) > 0 {
		s += "\n  removed: " + strings.Join(v.Removed, ", ")
	}
	return s
}

// NewPoolCommand creates the pool command.
func NewPoolCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PoolOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pool <sku>",
		Short: "Show the availability of a SKU",
		Long: `Print the total, available and unavailable counts of a SKU's pool and
its available sub-units in ascending order. A SKU with no pool shows zero.

Example:
  subsku pool --db ./subsku.db ABC`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPool(opts, args[0], cmd)
		},
	}

	opts.StoreFlags.register(cmd)
	return cmd
}

func runPool(opts *PoolOptions, sku string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, &opts.StoreFlags)
	if err != nil {
		return err
	}
	logger := setupLogging(opts.RootOptions, cfg)

	a, err := openApp(cfg, opts.PlatformState, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	avail, err := a.engine.Availability(cmd.Context(), sku)
	if err != nil {
		return WrapExitError(ExitFailure, "availability query failed", err)
	}
	names := avail.Names()
	if names == nil {
		names = []string{}
	}
	return newFormatter(opts.RootOptions, cmd).Success(PoolView{
		SKU:         sku,
		Total:       avail.Total,
		Available:   avail.Available,
		Unavailable: avail.Unavailable(),
		Names:       names,
	})
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PoolOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile <sku> <quantity>",
		Short: "Set a SKU's available count",
		Long: `Add or remove available sub-units so the SKU's available count equals
quantity, creating the pool if it does not exist. Unavailable sub-units are
never removed; if too few are available the command fails and nothing
changes.

Example:
  subsku reconcile --db ./subsku.db ABC 12`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, args[0], args[1], cmd)
		},
	}

	opts.StoreFlags.register(cmd)
	return cmd
}

func runReconcile(opts *PoolOptions, sku, quantity string, cmd *cobra.Command) error {
	external, err := strconv.Atoi(quantity)
	if err != nil || external < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("quantity must be a non-negative integer, got %q", quantity))
	}

	cfg, err := loadConfig(opts.RootOptions, &opts.StoreFlags)
	if err != nil {
		return err
	}
	logger := setupLogging(opts.RootOptions, cfg)

	a, err := openApp(cfg, opts.PlatformState, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.engine.ReconcileToExternal(cmd.Context(), sku, external)
	if err != nil {
		formatter := newFormatter(opts.RootOptions, cmd)
		_ = formatter.Error("E_"+string(engine.CodeOf(err)), err.Error(), map[string]any{"sku": sku, "quantity": external})
		return WrapExitError(ExitFailure, "reconcile failed", err)
	}

	added, removed := rec.Added, rec.Removed
	if added == nil {
		added = []string{}
	}
	if removed == nil {
		removed = []string{}
	}
	return newFormatter(opts.RootOptions, cmd).Success(ReconcileView{
		SKU:      rec.SKU,
		External: rec.External,
		Created:  rec.Created,
		Added:    added,
		Removed:  removed,
	})
}
