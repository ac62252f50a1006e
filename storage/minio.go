// Package storage mirrors a music library kept in MinIO onto local disk so the
// broadcaster can stream it.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"wadio/config"
	"wadio/core/catalog"
	"wadio/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewMinioClient 初始化 MinIO 客户端并确认存储桶存在
func NewMinioClient(ctx context.Context, cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.MinioBucket)
	}

	logger.Info("connected to MinIO",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return client, nil
}

// SyncStats summarises one library sync.
type SyncStats struct {
	Downloaded int
	UpToDate   int
	Skipped    int
	Bytes      int64
}

// LibrarySync downloads the audio objects under Prefix into Root.
type LibrarySync struct {
	Client *minio.Client
	Bucket string
	Prefix string
	Root   string
}

// NewLibrarySync creates a sync from cfg's bucket into cfg.MusicPath.
func NewLibrarySync(client *minio.Client, cfg *config.Config) *LibrarySync {
	return &LibrarySync{
		Client: client,
		Bucket: cfg.MinioBucket,
		Prefix: cfg.MinioPrefix,
		Root:   cfg.MusicPath,
	}
}

// Sync fetches every audio object that is missing locally or differs in
// size or is newer than the local copy. Local files are never deleted.
func (s *LibrarySync) Sync(ctx context.Context) (SyncStats, error) {
	var stats SyncStats

	objects := s.Client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{
		Prefix:    s.Prefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return stats, fmt.Errorf("failed to list %s/%s: %w", s.Bucket, s.Prefix, obj.Err)
		}

		local, ok := LocalPath(s.Root, s.Prefix, obj.Key)
		if !ok {
			stats.Skipped++
			continue
		}
		if upToDate(local, obj.Size, obj.LastModified) {
			stats.UpToDate++
			continue
		}

		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return stats, fmt.Errorf("failed to create %s: %w", filepath.Dir(local), err)
		}
		if err := s.Client.FGetObject(ctx, s.Bucket, obj.Key, local, minio.GetObjectOptions{}); err != nil {
			return stats, fmt.Errorf("failed to download %s: %w", obj.Key, err)
		}
		logger.Debug("downloaded track",
			logger.String("key", obj.Key),
			logger.Int64("size", obj.Size))
		stats.Downloaded++
		stats.Bytes += obj.Size
	}

	logger.Info("library sync finished",
		logger.String("bucket", s.Bucket),
		logger.Int("downloaded", stats.Downloaded),
		logger.Int("upToDate", stats.UpToDate),
		logger.Int("skipped", stats.Skipped))
	return stats, nil
}

// LocalPath maps an object key under prefix to a file under root. Keys that
// are not audio files or would escape root are rejected.
func LocalPath(root, prefix, key string) (string, bool) {
	rel, ok := strings.CutPrefix(key, prefix)
	if !ok || rel == "" || strings.HasSuffix(rel, "/") {
		return "", false
	}
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" || !catalog.IsAudioFile(rel) {
		return "", false
	}
	return filepath.Join(root, filepath.FromSlash(rel)), true
}

func upToDate(local string, size int64, modified time.Time) bool {
	info, err := os.Stat(local)
	if err != nil {
		return false
	}
	return info.Size() == size && !info.ModTime().Before(modified)
}
