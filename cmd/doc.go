// Package cmd defines the artharvest CLI.
//
// The root command runs one crawl pipeline:
//
//	artharvest --pipeline wikidata [--force]
//	artharvest --pipeline galleries
//
// Subcommands operate on the artifacts those pipelines leave behind:
//   - publish copies the service artifacts into service_data/ and bundles
//     them, optionally uploading to GCS and announcing on Pub/Sub.
//   - serve exposes the recommendation index over HTTP.
//   - tags rebuilds the tag table from the content db.
//
// Configuration is read from --config, then $CONFIG_PATH, then config.yml.
// Every key can be overridden with an ARTHARVEST_ environment variable, for
// example ARTHARVEST_CRAWL_BATCH_SIZE=50.
package cmd
