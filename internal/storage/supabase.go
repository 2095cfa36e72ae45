package storage

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	storage_go "github.com/supabase-community/storage-go"

	"github.com/edgard/labsage/internal/config"
)

const storageAPIPath = "/storage/v1"

// supabaseStore adapts the Supabase Storage client to ObjectStore.
// The client has no context support; ctx is only checked before each call.
// Upload options are written into the client's shared headers, so every call
// gets its own client.
type supabaseStore struct {
	url string
	key string
}

// NewSupabaseStore creates an ObjectStore backed by Supabase Storage.
func NewSupabaseStore(cfg config.StorageConfig) (ObjectStore, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, fmt.Errorf("storage url and key are required")
	}
	return &supabaseStore{url: storageURL(cfg.URL), key: cfg.Key}, nil
}

func (s *supabaseStore) client() *storage_go.Client {
	return storage_go.NewClient(s.url, s.key, map[string]string{"apikey": s.key})
}

// storageURL accepts either the project URL or the storage API URL.
func storageURL(raw string) string {
	u := strings.TrimRight(raw, "/")
	if !strings.HasSuffix(u, storageAPIPath) {
		u += storageAPIPath
	}
	return u
}

func (s *supabaseStore) ListContainers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buckets, err := s.client().ListBuckets()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, b.Name)
	}
	return names, nil
}

func (s *supabaseStore) CreateContainer(ctx context.Context, name string, opts ContainerOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.client().CreateBucket(name, storage_go.BucketOptions{
		Public:           opts.Public,
		FileSizeLimit:    strconv.FormatInt(opts.MaxObjectBytes, 10),
		AllowedMimeTypes: opts.AllowedMimeTypes,
	})
	return err
}

func (s *supabaseStore) UploadObject(ctx context.Context, container, name string, data []byte, opts UploadOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cacheControl := "max-age=" + strconv.Itoa(opts.CacheControlSeconds)
	upsert := opts.Overwrite
	fileOpts := storage_go.FileOptions{
		CacheControl: &cacheControl,
		Upsert:       &upsert,
	}
	if opts.ContentType != "" {
		contentType := opts.ContentType
		fileOpts.ContentType = &contentType
	}
	if _, err := s.client().UploadFile(container, name, bytes.NewReader(data), fileOpts); err != nil {
		return "", err
	}
	return name, nil
}

func (s *supabaseStore) PublicURL(container, path string) string {
	return s.client().GetPublicUrl(container, path).SignedURL
}
