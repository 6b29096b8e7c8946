package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/ThreatCanvas/internal/application/merge"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres/repositories"
)

func newMergeCommand(opts *RootOptions) *cobra.Command {
	var (
		sources     []string
		mergedBy    string
		contentPath string
		keepTitles  []string
	)

	cmd := &cobra.Command{
		Use:   "merge <primary-model-id>",
		Short: "Merge source threat models into a primary model",
		Long: "Merge consolidates the threats of one or more source models into the\n" +
			"primary model, skipping duplicates and bumping the primary's version.\n" +
			"With --content, the supplied Markdown replaces the primary's content\n" +
			"and its threats are rebuilt from it (manual strategy).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(opts)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := postgres.NewPool(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := repositories.NewMergeStore(pool, logger)
			svc := merge.NewService(store, nil, nil, logger)

			var result *merge.MergeResult
			if contentPath != "" {
				content, err := os.ReadFile(contentPath)
				if err != nil {
					return fmt.Errorf("read merged content: %w", err)
				}
				result, err = svc.MergeManual(ctx, &merge.ManualMergeInput{
					PrimaryID:            args[0],
					SourceIDs:            sources,
					MergedContent:        string(content),
					SelectedThreatTitles: keepTitles,
					MergedBy:             mergedBy,
				})
				if err != nil {
					return err
				}
			} else {
				result, err = svc.Merge(ctx, &merge.MergeInput{
					PrimaryID: args[0],
					SourceIDs: sources,
					MergedBy:  mergedBy,
				})
				if err != nil {
					return err
				}
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "source model ID (repeatable)")
	cmd.Flags().StringVar(&mergedBy, "merged-by", "tmctl", "actor name recorded in the merge metadata")
	cmd.Flags().StringVar(&contentPath, "content", "", "path to curated merged Markdown (switches to the manual strategy)")
	cmd.Flags().StringArrayVar(&keepTitles, "keep-title", nil, "threat title to keep from the curated content (repeatable, manual strategy only)")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}
