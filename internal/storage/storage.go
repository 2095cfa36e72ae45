// Package storage uploads user media to object storage and returns a
// public reference the analysis provider can fetch.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edgard/labsage/internal/config"
	"github.com/edgard/labsage/internal/metrics"
)

// ensureTimeout bounds one shared container check.
const ensureTimeout = 30 * time.Second

// ErrStorageUnavailable is returned by Upload when the container could not be made ready.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Upload failure reasons.
const (
	ReasonContainerMissing = "container_missing"
	ReasonPermissionDenied = "permission_denied"
	ReasonPayloadTooLarge  = "payload_too_large"
	ReasonMissingURL       = "missing_url"
	ReasonUnknown          = "unknown"
)

// UploadError is returned when the provider rejected an upload.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err == nil {
		return "upload failed: " + e.Reason
	}
	return fmt.Sprintf("upload failed: %s: %v", e.Reason, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ContainerOptions configures a newly created container.
type ContainerOptions struct {
	Public           bool
	AllowedMimeTypes []string
	MaxObjectBytes   int64
}

// UploadOptions configures a single upload.
type UploadOptions struct {
	CacheControlSeconds int
	ContentType         string
	Overwrite           bool
}

// ObjectStore is the object storage collaborator.
type ObjectStore interface {
	ListContainers(ctx context.Context) ([]string, error)
	CreateContainer(ctx context.Context, name string, opts ContainerOptions) error
	// UploadObject stores data and returns the object path.
	UploadObject(ctx context.Context, container, name string, data []byte, opts UploadOptions) (string, error)
	PublicURL(container, path string) string
}

// Gateway owns one container and uploads media into it.
// It is safe for concurrent use.
type Gateway struct {
	store  ObjectStore
	cfg    config.StorageConfig
	logger *slog.Logger

	ready atomic.Bool
	group singleflight.Group
}

// NewGateway creates a Gateway for cfg.Bucket.
func NewGateway(store ObjectStore, cfg config.StorageConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gateway{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "storage", "bucket", cfg.Bucket),
	}
}

// EnsureContainerReady checks that the container exists and creates it when
// missing. Concurrent callers share one check, which runs detached from any
// single caller's cancellation. It never returns an error; false means the
// container is not known to be usable.
func (g *Gateway) EnsureContainerReady(ctx context.Context) bool {
	if g.ready.Load() {
		return true
	}

	v, _, _ := g.group.Do("ensure", func() (any, error) {
		if g.ready.Load() {
			return true, nil
		}
		ensureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ensureTimeout)
		defer cancel()
		ok := g.ensure(ensureCtx)
		if ok {
			g.ready.Store(true)
		}
		return ok, nil
	})
	ok, _ := v.(bool)
	return ok
}

func (g *Gateway) ensure(ctx context.Context) bool {
	names, err := g.store.ListContainers(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to list storage containers", "error", err)
		return false
	}
	for _, name := range names {
		if name == g.cfg.Bucket {
			g.logger.DebugContext(ctx, "Storage container exists")
			return true
		}
	}

	g.logger.InfoContext(ctx, "Storage container not found, creating")
	err = g.store.CreateContainer(ctx, g.cfg.Bucket, ContainerOptions{
		Public:           true,
		AllowedMimeTypes: g.cfg.AllowedMimeTypes,
		MaxObjectBytes:   g.cfg.MaxObjectBytes,
	})
	if err != nil {
		if isAlreadyExists(err) {
			g.logger.InfoContext(ctx, "Storage container was created concurrently")
			return true
		}
		g.logger.ErrorContext(ctx, "Failed to create storage container", "error", err)
		return false
	}

	g.logger.InfoContext(ctx, "Storage container created")
	return true
}

// Upload stores data under name, replacing any previous object, and returns
// its public URL. contentType is the type declared by the sender; it is
// sniffed from data when empty or generic.
func (g *Gateway) Upload(ctx context.Context, data []byte, name, contentType string) (string, error) {
	if !g.EnsureContainerReady(ctx) {
		metrics.StorageUploadsTotal.WithLabelValues("unavailable").Inc()
		return "", ErrStorageUnavailable
	}

	path, err := g.store.UploadObject(ctx, g.cfg.Bucket, name, data, UploadOptions{
		CacheControlSeconds: g.cfg.CacheControlSeconds,
		ContentType:         resolveContentType(contentType, data),
		Overwrite:           true,
	})
	if err != nil {
		reason := classifyUploadError(err)
		if reason == ReasonContainerMissing {
			// Deleted behind our back; check again next time.
			g.ready.Store(false)
		}
		metrics.StorageUploadsTotal.WithLabelValues(reason).Inc()
		g.logger.ErrorContext(ctx, "Upload failed", "object", name, "size", len(data), "reason", reason, "error", err)
		return "", &UploadError{Reason: reason, Err: err}
	}
	if path == "" {
		path = name
	}

	url := g.store.PublicURL(g.cfg.Bucket, path)
	if url == "" {
		metrics.StorageUploadsTotal.WithLabelValues(ReasonMissingURL).Inc()
		g.logger.ErrorContext(ctx, "Upload returned no public URL", "object", path)
		return "", &UploadError{Reason: ReasonMissingURL}
	}

	metrics.StorageUploadsTotal.WithLabelValues("ok").Inc()
	g.logger.DebugContext(ctx, "Upload completed", "object", path, "size", len(data))
	return url, nil
}

func resolveContentType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	return http.DetectContentType(data)
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate")
}

// classifyUploadError maps provider error text to a reason. Supabase reports
// failures as JSON messages rather than typed errors.
func classifyUploadError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "bucket not found"), strings.Contains(msg, "no such bucket"):
		return ReasonContainerMissing
	case strings.Contains(msg, "row-level security"), strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "permission"), strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "invalid jwt"), strings.Contains(msg, "403"):
		return ReasonPermissionDenied
	case strings.Contains(msg, "too large"), strings.Contains(msg, "maximum allowed size"),
		strings.Contains(msg, "413"):
		return ReasonPayloadTooLarge
	default:
		return ReasonUnknown
	}
}
