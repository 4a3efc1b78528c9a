package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// CachePruner deletes expired search cache rows.
type CachePruner interface {
	PruneSearchCache(now time.Time) (int64, error)
}

// NewPruneCacheCmd creates the prune-cache command
func NewPruneCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune-cache",
		Short: "Delete expired search results",
		Long:  `Remove cached web search payloads whose expiry has passed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := pruneCache(cmd, s, time.Now())
			if err != nil {
				return err
			}
			logger.Debug("search cache pruned", "removed", n)
			return nil
		},
	}

	return cmd
}

func pruneCache(cmd *cobra.Command, p CachePruner, now time.Time) (int64, error) {
	n, err := p.PruneSearchCache(now)
	if err != nil {
		return 0, fmt.Errorf("prune search cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired search cache entries\n", n)
	return n, nil
}
