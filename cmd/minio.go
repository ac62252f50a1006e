package cmd

import (
	"context"
	"fmt"

	"wadio/config"
	"wadio/storage"

	"github.com/spf13/cobra"
)

var syncPrefix string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the music library from MinIO",
	Long: `Mirror the audio files under MINIO_PREFIX in MINIO_BUCKET into the music path.
Files that already exist with the same size and a newer timestamp are skipped;
nothing is ever deleted locally.`,
	Example: `  wadio sync --music-path /srv/music
  wadio sync --music-path /srv/music --prefix albums/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("prefix") {
			cfg.MinioPrefix = syncPrefix
		}
		initLogger(cfg)

		fmt.Fprintf(cmd.OutOrStdout(), "MinIO: %s, bucket %s, prefix %q -> %s\n",
			cfg.MinioEndpoint, cfg.MinioBucket, cfg.MinioPrefix, cfg.MusicPath)
		stats, err := syncLibrary(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d (%d bytes), up to date %d, skipped %d\n",
			stats.Downloaded, stats.Bytes, stats.UpToDate, stats.Skipped)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncPrefix, "prefix", "p", "", "object prefix to mirror (MINIO_PREFIX)")
	rootCmd.AddCommand(syncCmd)
}

func syncLibrary(ctx context.Context, cfg *config.Config) (storage.SyncStats, error) {
	client, err := storage.NewMinioClient(ctx, cfg)
	if err != nil {
		return storage.SyncStats{}, err
	}
	return storage.NewLibrarySync(client, cfg).Sync(ctx)
}
