package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/labsage/internal/config"
)

type fakeStore struct {
	mu         sync.Mutex
	containers map[string]bool
	objects    map[string][]byte

	listCalls   atomic.Int32
	createCalls atomic.Int32

	listErr   error
	createErr error
	uploadErr error
	publicURL func(container, path string) string
	gate      chan struct{}
	lastOpts  UploadOptions
}

func newFakeStore() *fakeStore {
	return &fakeStore{containers: map[string]bool{}, objects: map[string][]byte{}}
}

func (f *fakeStore) ListContainers(ctx context.Context) ([]string, error) {
	f.listCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.containers {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeStore) CreateContainer(_ context.Context, name string, _ ContainerOptions) error {
	f.createCalls.Add(1)
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = true
	return nil
}

func (f *fakeStore) UploadObject(_ context.Context, container, name string, data []byte, opts UploadOptions) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = opts
	f.objects[container+"/"+name] = data
	return name, nil
}

func (f *fakeStore) PublicURL(container, path string) string {
	if f.publicURL != nil {
		return f.publicURL(container, path)
	}
	return "https://cdn.example/" + container + "/" + path
}

func testConfig() config.StorageConfig {
	return config.StorageConfig{
		Bucket:              "analyses_files",
		CacheControlSeconds: 3600,
		MaxObjectBytes:      20 << 20,
		AllowedMimeTypes:    []string{"image/jpeg", "image/png"},
	}
}

func TestEnsureContainerReadyCreatesOnce(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	g := NewGateway(store, testConfig(), nil)

	assert.True(t, g.EnsureContainerReady(context.Background()))
	assert.True(t, g.EnsureContainerReady(context.Background()))

	assert.Equal(t, int32(1), store.listCalls.Load())
	assert.Equal(t, int32(1), store.createCalls.Load())
	assert.True(t, store.containers["analyses_files"])
}

func TestEnsureContainerReadyExisting(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.containers["analyses_files"] = true
	g := NewGateway(store, testConfig(), nil)

	assert.True(t, g.EnsureContainerReady(context.Background()))
	assert.Equal(t, int32(0), store.createCalls.Load())
}

func TestEnsureContainerReadyConcurrent(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.gate = make(chan struct{})
	g := NewGateway(store, testConfig(), nil)

	var wg sync.WaitGroup
	results := make(chan bool, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- g.EnsureContainerReady(context.Background())
		}()
	}
	close(store.gate)
	wg.Wait()
	close(results)

	for ok := range results {
		assert.True(t, ok)
	}
	assert.LessOrEqual(t, store.createCalls.Load(), int32(1))
	assert.Len(t, store.containers, 1)
}

func TestEnsureContainerReadySurvivesCallerCancel(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.gate = make(chan struct{})
	g := NewGateway(store, testConfig(), nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	resultA := make(chan bool, 1)
	go func() { resultA <- g.EnsureContainerReady(ctxA) }()
	require.Eventually(t, func() bool { return store.listCalls.Load() == 1 }, time.Second, time.Millisecond)

	resultB := make(chan bool, 1)
	go func() { resultB <- g.EnsureContainerReady(context.Background()) }()
	cancelA()
	close(store.gate)

	assert.True(t, <-resultA)
	assert.True(t, <-resultB)
	assert.Equal(t, int32(1), store.listCalls.Load())
	assert.True(t, store.containers["analyses_files"])
}

func TestEnsureContainerReadyToleratesAlreadyExists(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.createErr = errors.New(`{"statusCode":"409","error":"Duplicate","message":"The resource already exists"}`)
	g := NewGateway(store, testConfig(), nil)

	assert.True(t, g.EnsureContainerReady(context.Background()))
}

func TestEnsureContainerReadyFailures(t *testing.T) {
	t.Parallel()

	listFails := newFakeStore()
	listFails.listErr = errors.New("connection refused")
	assert.False(t, NewGateway(listFails, testConfig(), nil).EnsureContainerReady(context.Background()))

	createFails := newFakeStore()
	createFails.createErr = errors.New("new row violates row-level security policy")
	g := NewGateway(createFails, testConfig(), nil)
	assert.False(t, g.EnsureContainerReady(context.Background()))

	// Not cached on failure.
	createFails.createErr = nil
	assert.True(t, g.EnsureContainerReady(context.Background()))
}

func TestUpload(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	g := NewGateway(store, testConfig(), nil)

	url, err := g.Upload(context.Background(), []byte{0xFF, 0xD8, 0xFF}, "user_1_1700000000000.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/analyses_files/user_1_1700000000000.jpg", url)
	assert.Contains(t, store.objects, "analyses_files/user_1_1700000000000.jpg")
}

func TestUploadContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		declared string
		data     []byte
		want     string
	}{
		{name: "declared heic is kept", declared: "image/heic", data: []byte("\x00\x00\x00\x18ftypheic"), want: "image/heic"},
		{name: "declared with params", declared: "application/pdf; name=a.pdf", data: []byte("%PDF-1.7"), want: "application/pdf"},
		{name: "empty is sniffed", data: []byte{0xFF, 0xD8, 0xFF}, want: "image/jpeg"},
		{name: "octet-stream is sniffed", declared: "application/octet-stream", data: []byte("\x89PNG\r\n\x1a\n"), want: "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newFakeStore()
			g := NewGateway(store, testConfig(), nil)

			_, err := g.Upload(context.Background(), tt.data, "a.bin", tt.declared)
			require.NoError(t, err)
			assert.Equal(t, tt.want, store.lastOpts.ContentType)
			assert.True(t, store.lastOpts.Overwrite)
			assert.Equal(t, 3600, store.lastOpts.CacheControlSeconds)
		})
	}
}

func TestUploadOverwrites(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	g := NewGateway(store, testConfig(), nil)

	_, err := g.Upload(context.Background(), []byte("first"), "same.jpg", "")
	require.NoError(t, err)
	_, err = g.Upload(context.Background(), []byte("second"), "same.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), store.objects["analyses_files/same.jpg"])
}

func TestUploadStorageUnavailable(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.listErr = errors.New("dial tcp: timeout")
	g := NewGateway(store, testConfig(), nil)

	_, err := g.Upload(context.Background(), []byte("x"), "a.jpg", "")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestUploadErrorReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"bucket missing", errors.New(`{"statusCode":"404","error":"Bucket not found"}`), ReasonContainerMissing},
		{"rls", errors.New("new row violates row-level security policy"), ReasonPermissionDenied},
		{"jwt", errors.New("Invalid JWT"), ReasonPermissionDenied},
		{"size", errors.New("The object exceeded the maximum allowed size"), ReasonPayloadTooLarge},
		{"413", errors.New(`{"statusCode":"413","error":"Payload too large"}`), ReasonPayloadTooLarge},
		{"other", errors.New("internal server error"), ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newFakeStore()
			store.uploadErr = tt.err
			g := NewGateway(store, testConfig(), nil)

			url, err := g.Upload(context.Background(), []byte("x"), "a.jpg", "")
			assert.Empty(t, url)

			var uploadErr *UploadError
			require.ErrorAs(t, err, &uploadErr)
			assert.Equal(t, tt.reason, uploadErr.Reason)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestUploadContainerMissingResetsReady(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	g := NewGateway(store, testConfig(), nil)
	require.True(t, g.EnsureContainerReady(context.Background()))

	store.uploadErr = errors.New("Bucket not found")
	_, err := g.Upload(context.Background(), []byte("x"), "a.jpg", "")
	require.Error(t, err)
	assert.False(t, g.ready.Load())
}

func TestUploadWithoutPublicURL(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.publicURL = func(string, string) string { return "" }
	g := NewGateway(store, testConfig(), nil)

	url, err := g.Upload(context.Background(), []byte("x"), "a.jpg", "")
	assert.Empty(t, url)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, ReasonMissingURL, uploadErr.Reason)
}

func TestStorageURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://p.supabase.co/storage/v1", storageURL("https://p.supabase.co"))
	assert.Equal(t, "https://p.supabase.co/storage/v1", storageURL("https://p.supabase.co/"))
	assert.Equal(t, "https://p.supabase.co/storage/v1", storageURL("https://p.supabase.co/storage/v1"))
}
