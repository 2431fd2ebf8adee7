package uploader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	ignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"foliomedia/src/common"
	"foliomedia/src/config"
	"foliomedia/src/storage"
)

// Store is the remote side of an upload
type Store interface {
	Upload(ctx context.Context, obj storage.Object) error
	PublicURL(bucket, key string) string
}

// BucketMaker is implemented by stores that can create buckets
type BucketMaker interface {
	EnsureBucket(ctx context.Context, name string, public bool) error
}

// Ledger remembers what has already been uploaded
type Ledger interface {
	Unchanged(ctx context.Context, bucket, key, sum string) (bool, error)
	Record(ctx context.Context, e storage.Entry) error
}

// Job is one local file and where it goes
type Job struct {
	LocalPath string
	Route     config.Route
	Key       string
}

// Uploader walks route directories and uploads their files
type Uploader struct {
	cfg     *config.Config
	store   Store
	ledger  Ledger
	log     *zap.SugaredLogger
	limiter *rate.Limiter
	runID   string
	dryRun  bool
}

// Option configures an Uploader
type Option func(*Uploader)

// WithDryRun plans uploads without sending anything
func WithDryRun(dryRun bool) Option {
	return func(u *Uploader) { u.dryRun = dryRun }
}

// WithLedger enables checksum-based skipping
func WithLedger(l Ledger) Option {
	return func(u *Uploader) { u.ledger = l }
}

// New creates an uploader
func New(cfg *config.Config, store Store, log *zap.SugaredLogger, opts ...Option) *Uploader {
	u := &Uploader{
		cfg:   cfg,
		store: store,
		log:   log,
		runID: uuid.NewString(),
	}
	if cfg.Upload.RatePerSecond > 0 {
		u.limiter = rate.NewLimiter(rate.Limit(cfg.Upload.RatePerSecond), 1)
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// RunID identifies this run in the ledger
func (u *Uploader) RunID() string {
	return u.runID
}

// UploadAll uploads every configured route in order
func (u *Uploader) UploadAll(ctx context.Context) (*Report, error) {
	report := &Report{RunID: u.runID}

	if u.cfg.Supabase.CreateBuckets && !u.dryRun {
		if err := u.ensureBuckets(ctx); err != nil {
			return report, err
		}
	}

	for _, route := range u.cfg.Routes {
		u.log.Infof("%s Uploading %s → %s/%s", routeIcon(route), route.Source, route.Bucket, route.Prefix)

		results, err := u.UploadRoute(ctx, route)
		report.Results = append(report.Results, results...)
		if err != nil {
			return report, err
		}
	}

	u.log.Infof("✅ Upload complete! %s", report.Summary())
	if !u.dryRun && report.Count(StatusUploaded) > 0 {
		u.log.Infof("📊 Your optimized media is now available at:")
		for _, bucket := range u.cfg.Buckets() {
			u.log.Infof("   %s", u.cfg.PublicURL(bucket, ""))
		}
	}
	return report, nil
}

func (u *Uploader) ensureBuckets(ctx context.Context) error {
	maker, ok := u.store.(BucketMaker)
	if !ok {
		return nil
	}
	for _, bucket := range u.cfg.Buckets() {
		if err := maker.EnsureBucket(ctx, bucket, true); err != nil {
			return err
		}
	}
	return nil
}

// UploadRoute uploads every file under the route's source directory.
// Failed files are reported in the results; only cancellation returns an error.
func (u *Uploader) UploadRoute(ctx context.Context, route config.Route) ([]Result, error) {
	jobs, err := u.Plan(route)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.Upload.Concurrency)

	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = u.process(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return compact(results), err
	}
	return results, nil
}

// UploadFile uploads a single file that lives under route.Source
func (u *Uploader) UploadFile(ctx context.Context, route config.Route, path string) Result {
	rel, err := relTo(u.cfg.SitePath(route.Source), path)
	if err != nil {
		return Result{Job: Job{LocalPath: path, Route: route}, Status: StatusFailed, Err: err}
	}
	return u.process(ctx, Job{
		LocalPath: path,
		Route:     route,
		Key:       common.ObjectKey(route.Prefix, rel),
	})
}

// RouteFor returns the route whose source directory contains path
func (u *Uploader) RouteFor(path string) (config.Route, bool) {
	for _, route := range u.cfg.Routes {
		rel, err := relTo(u.cfg.SitePath(route.Source), path)
		if err != nil {
			continue
		}
		if rel != "." && !strings.HasPrefix(rel, "..") {
			return route, true
		}
	}
	return config.Route{}, false
}

// Plan walks the route's source directory and returns one job per file
func (u *Uploader) Plan(route config.Route) ([]Job, error) {
	root := u.cfg.SitePath(route.Source)

	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		u.log.Warnf("❌ Directory not found: %s", root)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("route source %s is not a directory", root)
	}

	ignores, err := loadIgnores(filepath.Join(root, u.cfg.Upload.IgnoreFile))
	if err != nil {
		return nil, err
	}

	var jobs []Job
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		// Skip dotfiles and dot directories (.DS_Store, .git, the ignore file)
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if ignores != nil && ignores.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		jobs = append(jobs, Job{
			LocalPath: path,
			Route:     route,
			Key:       common.ObjectKey(route.Prefix, rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return jobs, nil
}

func (u *Uploader) process(ctx context.Context, job Job) Result {
	res := Result{
		Job: job,
		URL: u.store.PublicURL(job.Route.Bucket, job.Key),
	}

	data, err := os.ReadFile(job.LocalPath)
	if err != nil {
		u.log.Errorf("❌ Error uploading %s: %v", job.Key, err)
		res.Status, res.Err = StatusFailed, err
		return res
	}
	res.Size = int64(len(data))
	sum := storage.Checksum(data)

	if u.ledger != nil {
		unchanged, err := u.ledger.Unchanged(ctx, job.Route.Bucket, job.Key, sum)
		if err != nil {
			u.log.Warnf("Ledger lookup failed for %s: %v", job.Key, err)
		} else if unchanged {
			u.log.Debugf("⏭️  Unchanged: %s", job.Key)
			res.Status = StatusSkipped
			return res
		}
	}

	if u.dryRun {
		u.log.Infof("📝 Would upload: %s/%s (%s)", job.Route.Bucket, job.Key, common.ContentType(job.LocalPath))
		res.Status = StatusPlanned
		return res
	}

	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			res.Status, res.Err = StatusFailed, err
			return res
		}
	}

	err = u.store.Upload(ctx, storage.Object{
		Bucket:      job.Route.Bucket,
		Key:         job.Key,
		ContentType: common.ContentType(job.LocalPath),
		Data:        data,
	})
	if errors.Is(err, storage.ErrExists) {
		u.log.Infof("⏭️  Already stored: %s", job.Key)
		res.Status = StatusSkipped
		return res
	}
	if err != nil {
		u.log.Errorf("❌ Failed to upload %s: %v", job.Key, err)
		res.Status, res.Err = StatusFailed, err
		return res
	}

	u.log.Infof("✅ Uploaded: %s", job.Key)
	res.Status = StatusUploaded

	if u.ledger != nil {
		if err := u.ledger.Record(ctx, storage.Entry{
			Bucket: job.Route.Bucket,
			Key:    job.Key,
			SHA256: sum,
			Size:   res.Size,
			RunID:  u.runID,
		}); err != nil {
			u.log.Warnf("Failed to record %s in ledger: %v", job.Key, err)
		}
	}
	return res
}

func loadIgnores(path string) (*ignore.GitIgnore, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	ignores, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore file %s: %w", path, err)
	}
	return ignores, nil
}

// relTo is filepath.Rel that also accepts one relative and one absolute path
func relTo(root, path string) (string, error) {
	if filepath.IsAbs(root) != filepath.IsAbs(path) {
		var err error
		if root, err = filepath.Abs(root); err != nil {
			return "", err
		}
		if path, err = filepath.Abs(path); err != nil {
			return "", err
		}
	}
	return filepath.Rel(root, path)
}

func routeIcon(route config.Route) string {
	if strings.Contains(route.Bucket+route.Prefix+route.Source, "video") {
		return "🎥"
	}
	return "📸"
}

// compact drops the zero results of jobs that never started
func compact(results []Result) []Result {
	out := results[:0]
	for _, r := range results {
		if r.Key != "" {
			out = append(out, r)
		}
	}
	return out
}
