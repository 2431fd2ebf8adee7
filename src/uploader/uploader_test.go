package uploader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"foliomedia/src/config"
	"foliomedia/src/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	mu       sync.Mutex
	objects  map[string]storage.Object
	fail     map[string]error
	inFlight int32
	maxSeen  int32
	delay    time.Duration
	buckets  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[string]storage.Object),
		fail:    make(map[string]error),
	}
}

func (f *fakeStore) Upload(ctx context.Context, obj storage.Object) error {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[obj.Key]; ok {
		return err
	}
	f.objects[obj.Bucket+"/"+obj.Key] = obj
	return nil
}

func (f *fakeStore) PublicURL(bucket, key string) string {
	return "https://x.supabase.co/storage/v1/object/public/" + bucket + "/" + key
}

func (f *fakeStore) EnsureBucket(ctx context.Context, name string, public bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets = append(f.buckets, name)
	return nil
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type memLedger struct {
	mu      sync.Mutex
	entries map[string]storage.Entry
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string]storage.Entry)}
}

func (l *memLedger) Unchanged(ctx context.Context, bucket, key, sum string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[bucket+"/"+key]
	return ok && e.SHA256 == sum, nil
}

func (l *memLedger) Record(ctx context.Context, e storage.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.Bucket+"/"+e.Key] = e
	return nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// setupSite creates the optimized/ layout the portfolio site uses
func setupSite(t *testing.T) (string, *config.Config) {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "optimized/images/fun1.webp"), "webp-1")
	writeFile(t, filepath.Join(root, "optimized/images/fun1.jpg"), "jpg-1")
	writeFile(t, filepath.Join(root, "optimized/images/.DS_Store"), "junk")
	writeFile(t, filepath.Join(root, "optimized/project-images/project2/brand.webp"), "brand")
	writeFile(t, filepath.Join(root, "optimized/videos/header-video.mp4"), "mp4")

	cfg, err := config.Parse([]byte("supabase:\n  url: https://x.supabase.co\n  anon_key: k\nsite:\n  root: " + root + "\n"))
	require.NoError(t, err)
	return root, cfg
}

func TestUploadAll(t *testing.T) {
	_, cfg := setupSite(t)
	store := newFakeStore()

	u := New(cfg, store, zap.NewNop().Sugar())
	report, err := u.UploadAll(context.Background())
	require.NoError(t, err)

	want := []string{
		"portfolio-images/images/fun1.jpg",
		"portfolio-images/images/fun1.webp",
		"portfolio-images/project-images/project2/brand.webp",
		"portfolio-videos/videos/header-video.mp4",
	}
	if diff := cmp.Diff(want, store.keys()); diff != "" {
		t.Errorf("uploaded keys mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 4, report.Count(StatusUploaded))
	assert.Equal(t, 0, report.Count(StatusFailed))
	assert.Equal(t, uint64(len("webp-1")+len("jpg-1")+len("brand")+len("mp4")), report.Bytes())
	assert.Equal(t, "video/mp4", store.objects["portfolio-videos/videos/header-video.mp4"].ContentType)
	assert.Equal(t,
		"https://x.supabase.co/storage/v1/object/public/portfolio-images/project-images/project2/brand.webp",
		report.Results[2].URL)
}

func TestUploadContinuesAfterFailure(t *testing.T) {
	_, cfg := setupSite(t)
	store := newFakeStore()
	store.fail["images/fun1.jpg"] = errors.New("500 internal error")

	u := New(cfg, store, zap.NewNop().Sugar())
	report, err := u.UploadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Count(StatusFailed))
	assert.Equal(t, 3, report.Count(StatusUploaded))
	assert.Len(t, report.Stored(), 3)
}

func TestUploadExistingObjectIsSkipped(t *testing.T) {
	_, cfg := setupSite(t)
	store := newFakeStore()
	store.fail["videos/header-video.mp4"] = storage.ErrExists

	report, err := New(cfg, store, zap.NewNop().Sugar()).UploadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(StatusSkipped))
	assert.Equal(t, 0, report.Count(StatusFailed))
}

func TestLedgerSkipsUnchangedFiles(t *testing.T) {
	root, cfg := setupSite(t)
	ledger := newMemLedger()

	first := newFakeStore()
	_, err := New(cfg, first, zap.NewNop().Sugar(), WithLedger(ledger)).UploadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.keys(), 4)

	// change one file
	writeFile(t, filepath.Join(root, "optimized/images/fun1.jpg"), "jpg-2")

	second := newFakeStore()
	report, err := New(cfg, second, zap.NewNop().Sugar(), WithLedger(ledger)).UploadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"portfolio-images/images/fun1.jpg"}, second.keys())
	assert.Equal(t, 3, report.Count(StatusSkipped))
	assert.Equal(t, 1, report.Count(StatusUploaded))
}

func TestDryRunSendsNothing(t *testing.T) {
	_, cfg := setupSite(t)
	cfg.Supabase.CreateBuckets = true
	store := newFakeStore()

	report, err := New(cfg, store, zap.NewNop().Sugar(), WithDryRun(true)).UploadAll(context.Background())
	require.NoError(t, err)

	assert.Empty(t, store.keys())
	assert.Empty(t, store.buckets)
	assert.Equal(t, 4, report.Count(StatusPlanned))
	assert.Contains(t, report.Summary(), "4 files planned")
}

func TestCreateBuckets(t *testing.T) {
	_, cfg := setupSite(t)
	cfg.Supabase.CreateBuckets = true
	store := newFakeStore()

	_, err := New(cfg, store, zap.NewNop().Sugar()).UploadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"portfolio-images", "portfolio-videos"}, store.buckets)
}

func TestMissingDirectoryIsNotAnError(t *testing.T) {
	root, cfg := setupSite(t)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "optimized/videos")))

	report, err := New(cfg, newFakeStore(), zap.NewNop().Sugar()).UploadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Count(StatusUploaded))
}

func TestIgnoreFile(t *testing.T) {
	root, cfg := setupSite(t)
	writeFile(t, filepath.Join(root, "optimized/images/.uploadignore"), "*.jpg\n")

	jobs, err := New(cfg, newFakeStore(), zap.NewNop().Sugar()).Plan(cfg.Routes[0])
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "images/fun1.webp", jobs[0].Key)
}

func TestConcurrencyIsBounded(t *testing.T) {
	root, cfg := setupSite(t)
	for i := 0; i < 12; i++ {
		writeFile(t, filepath.Join(root, "optimized/images", "extra", string(rune('a'+i))+".webp"), "x")
	}
	cfg.Upload.Concurrency = 2

	store := newFakeStore()
	store.delay = 5 * time.Millisecond

	_, err := New(cfg, store, zap.NewNop().Sugar()).UploadRoute(context.Background(), cfg.Routes[0])
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&store.maxSeen), int32(2))
	assert.Len(t, store.keys(), 14)
}

func TestCancelledContext(t *testing.T) {
	_, cfg := setupSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg, newFakeStore(), zap.NewNop().Sugar()).UploadRoute(ctx, cfg.Routes[0])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouteForAndUploadFile(t *testing.T) {
	root, cfg := setupSite(t)
	store := newFakeStore()
	u := New(cfg, store, zap.NewNop().Sugar())

	path := filepath.Join(root, "optimized/project-images/project2/brand.webp")
	route, ok := u.RouteFor(path)
	require.True(t, ok)
	assert.Equal(t, "project-images", route.Prefix)

	_, ok = u.RouteFor(filepath.Join(root, "index.html"))
	assert.False(t, ok)

	res := u.UploadFile(context.Background(), route, path)
	assert.Equal(t, StatusUploaded, res.Status)
	assert.Equal(t, "project-images/project2/brand.webp", res.Key)
}
