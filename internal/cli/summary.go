package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thalesfsp/mfbo"
	"github.com/thalesfsp/mfbo/store"
)

// summaryOptions holds options for the summary command.
type summaryOptions struct {
	runOptions

	key    string
	joint  bool
	list   bool
	output string
}

// newSummaryCmd creates the summary command.
func (a *App) newSummaryCmd() *cobra.Command {
	opts := &summaryOptions{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Export the per-iteration result summary of a checkpoint",
		Long: `Print the result summary stored next to a checkpoint. When the summary is
missing it is rebuilt from the checkpoint history (the pair agent for joint
runs).

Examples:
  mfbo summary --store file --store-path runs
  mfbo summary --joint -o joint-summary.yaml
  mfbo summary --list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSummary(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.storeBackend, "store", "", "Checkpoint backend (overrides config)")
	cmd.Flags().StringVar(&opts.storePath, "store-path", "", "Checkpoint location (overrides config)")
	cmd.Flags().StringVar(&opts.key, "key", "", "Checkpoint key (defaults to the configured key)")
	cmd.Flags().BoolVar(&opts.joint, "joint", false, "Use the joint checkpoint key")
	cmd.Flags().BoolVar(&opts.list, "list", false, "List the stored keys instead")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the summary to a file instead of stdout")

	return cmd
}

func (a *App) runSummary(ctx context.Context, opts *summaryOptions) error {
	cfg, err := a.loadConfig(&opts.runOptions)
	if err != nil {
		return err
	}

	a.initLogging(cfg)

	st, err := cfg.Store.OpenStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.list {
		keys, err := st.Keys(ctx, "")
		if err != nil {
			return err
		}

		for _, k := range keys {
			fmt.Fprintln(a.stdout, k)
		}

		return nil
	}

	key := opts.key
	if key == "" {
		key = cfg.Single.CheckpointKey
		if opts.joint {
			key = cfg.Joint.CheckpointKey
		}
	}

	data, err := resultSummary(ctx, st, key)
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, data, 0o600); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}

		fmt.Fprintf(a.stdout, "summary of %q written to %s\n", key, opts.output)

		return nil
	}

	_, err = a.stdout.Write(data)

	return err
}

// resultSummary returns the stored summary, or rebuilds it from the last
// agent of the checkpoint.
func resultSummary(ctx context.Context, st store.Store, key string) ([]byte, error) {
	data, err := st.Get(ctx, key+mfbo.ResultSuffix)
	if err == nil {
		return data, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	snap, err := mfbo.LoadSnapshot(ctx, st, key)
	if err != nil {
		return nil, err
	}

	if len(snap.Agents) == 0 {
		return nil, fmt.Errorf("%w: checkpoint %q has no agents", mfbo.ErrPersistence, key)
	}

	return mfbo.MarshalResultSummary(snap.Agents[len(snap.Agents)-1].History)
}
