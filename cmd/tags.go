package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/pipeline"
)

// newTagsCmd creates the 'tags' subcommand.
func newTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "Rebuilds the tags db from the content db",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			table, err := pipeline.RebuildTags(a.Store())
			if err != nil {
				return fmt.Errorf("rebuild tags: %w", err)
			}
			a.Logger().Info("Tags db rebuilt", zap.Int("tags", table.Len()))
			return nil
		},
	}
}
