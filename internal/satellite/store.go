package satellite

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// SnapshotStore returns the most recent grid snapshot.
type SnapshotStore interface {
	Latest(ctx context.Context) (*Grid, error)
	Save(ctx context.Context, name string, data []byte) error
}

// snapshotExt is the suffix of grid snapshot files and objects.
const snapshotExt = ".json"

// DirStore keeps snapshots as files in a local directory.
type DirStore struct {
	Dir string
}

// NewDirStore returns a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{Dir: dir}
}

// Latest decodes the most recently modified snapshot file.
func (s *DirStore) Latest(_ context.Context) (*Grid, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*"+snapshotExt))
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return nil, ErrNoSnapshot
	}

	f, err := os.Open(newest)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	grid, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(newest), err)
	}
	grid.Name = filepath.Base(newest)
	return grid, nil
}

// Save writes a snapshot atomically into the directory.
func (s *DirStore) Save(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	if !strings.HasSuffix(name, snapshotExt) {
		name += snapshotExt
	}

	tmp, err := os.CreateTemp(s.Dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(s.Dir, name))
}

// ObjectStoreConfig configures an S3-compatible snapshot bucket.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
}

// ObjectStore keeps snapshots in an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectStore connects to the bucket described by cfg.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(sanitizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       strings.HasPrefix(strings.ToLower(cfg.Endpoint), "https"),
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Latest decodes the most recently modified snapshot object under the prefix.
func (s *ObjectStore) Latest(ctx context.Context) (*Grid, error) {
	var newest minio.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, snapshotExt) {
			continue
		}
		if newest.Key == "" || obj.LastModified.After(newest.LastModified) {
			newest = obj
		}
	}
	if newest.Key == "" {
		return nil, ErrNoSnapshot
	}

	obj, err := s.client.GetObject(ctx, s.bucket, newest.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot %s: %w", newest.Key, err)
	}
	defer obj.Close()

	grid, err := Decode(obj)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", newest.Key, err)
	}
	grid.Name = newest.Key
	return grid, nil
}

// Save uploads a snapshot under the prefix.
func (s *ObjectStore) Save(ctx context.Context, name string, data []byte) error {
	if !strings.HasSuffix(name, snapshotExt) {
		name += snapshotExt
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.prefix+name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:      "application/json",
		DisableMultipart: true,
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot: %w", err)
	}
	return nil
}

// sanitizeEndpoint strips scheme and path, which minio.New rejects.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.Index(raw, "/"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
