package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newPublishCmd creates the 'publish' subcommand.
func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Bundles the service artifacts into service_data.tar.gz",
		Long: `Copies the configured artifacts into service_data/, keeping any
superseded copy under a hash-prefixed name, and packs the directory into
service_data.tar.gz. When publish.gcs_bucket is set the bundle is uploaded,
and when publish.pubsub_topic is set a manifest message is published.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			p, err := a.Publisher(cmd.Context())
			if err != nil {
				return err
			}
			m, err := p.Publish(cmd.Context())
			if err != nil {
				return err
			}
			a.Logger().Info("Publish command finished",
				zap.String("archive", m.Archive),
				zap.String("location", m.Location),
				zap.Int("files", len(m.Files)))
			return nil
		},
	}
}
