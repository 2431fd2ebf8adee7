package migrate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"foliomedia/src/config"
	"foliomedia/src/rewriter"
	"foliomedia/src/uploader"
)

// ErrNothingUploaded stops a migration before any HTML is touched
var ErrNothingUploaded = errors.New("no files were uploaded successfully")

// Uploader uploads every configured route
type Uploader interface {
	UploadAll(ctx context.Context) (*uploader.Report, error)
}

// Notifier is told about finished runs
type Notifier interface {
	SendMigrationSummary(ctx context.Context, summary string, failed int, publicURL string) error
}

// Result is what a migration did
type Result struct {
	Report *uploader.Report
	Pages  rewriter.Summary
	Assets int
}

// Pipeline runs the lazify, relink and upload steps against one site
type Pipeline struct {
	cfg      *config.Config
	site     *rewriter.Site
	uploader Uploader
	notifier Notifier
	log      *zap.SugaredLogger
	dryRun   bool
}

// NewPipeline creates a pipeline. up and notifier may be nil for the
// steps that do not need them.
func NewPipeline(cfg *config.Config, up Uploader, notifier Notifier, log *zap.SugaredLogger, dryRun bool) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		site:     rewriter.NewSite(cfg, log, dryRun),
		uploader: up,
		notifier: notifier,
		log:      log,
		dryRun:   dryRun,
	}
}

// Site returns the site rewriter the pipeline works on
func (p *Pipeline) Site() *rewriter.Site {
	return p.site
}

// Lazify adds lazy loading to the HTML files and the lazy-loading CSS and JS
// to the shared assets.
func (p *Pipeline) Lazify() (rewriter.Summary, int, error) {
	p.log.Infof("🚀 Adding lazy loading...")

	sum := p.site.LazifyAll()
	p.log.Infof("📄 HTML: %s", sum)

	appended, err := p.site.AppendAssets()
	return sum, appended, err
}

// Relink points the HTML files at the public URLs of every route, without
// checking what was uploaded.
func (p *Pipeline) Relink() rewriter.Summary {
	p.log.Infof("🔗 Updating HTML files with Supabase URLs...")

	sum := p.site.RelinkAll(rewriter.NewRouteResolver(p.cfg.Routes))
	p.log.Infof("📄 HTML: %s", sum)
	return sum
}

// Upload uploads every route and sends a notification with the summary
func (p *Pipeline) Upload(ctx context.Context) (*uploader.Report, error) {
	if p.uploader == nil {
		return nil, fmt.Errorf("no uploader configured")
	}
	report, err := p.uploader.UploadAll(ctx)
	if err != nil {
		return report, fmt.Errorf("upload failed: %w", err)
	}
	p.notify(ctx, report, nil)
	return report, nil
}

// Migrate uploads every route, then relinks the HTML files to the objects
// that were stored and appends the lazy-loading assets. When nothing was
// stored it returns ErrNothingUploaded without touching any HTML.
func (p *Pipeline) Migrate(ctx context.Context) (*Result, error) {
	if p.uploader == nil {
		return nil, fmt.Errorf("no uploader configured")
	}
	p.log.Infof("🚀 Starting media migration...")
	res := &Result{}

	// 1. Upload
	report, err := p.uploader.UploadAll(ctx)
	res.Report = report
	if err != nil {
		return res, fmt.Errorf("upload failed: %w", err)
	}

	resolver := rewriter.NewUploadedResolver(rewriter.NewRouteResolver(p.cfg.Routes))
	for _, r := range report.Results {
		if r.Stored() || (p.dryRun && r.Status == uploader.StatusPlanned) {
			resolver.Add(r.Route.Bucket, r.Key)
		}
	}
	if resolver.Len() == 0 {
		p.log.Errorf("❌ No files were uploaded successfully")
		p.notify(ctx, report, nil)
		return res, ErrNothingUploaded
	}

	// 2. Relink
	p.log.Infof("🔗 Updating HTML files with Supabase URLs...")
	res.Pages = p.site.RelinkAll(resolver)
	p.log.Infof("📄 HTML: %s", res.Pages)

	// 3. Lazy-loading assets
	res.Assets, err = p.site.AppendAssets()
	if err != nil {
		return res, fmt.Errorf("failed to append assets: %w", err)
	}

	p.notify(ctx, report, &res.Pages)
	p.log.Infof("✅ Migration complete!")
	return res, nil
}

func (p *Pipeline) notify(ctx context.Context, report *uploader.Report, pages *rewriter.Summary) {
	if p.notifier == nil || p.dryRun {
		return
	}

	summary := report.Summary()
	if pages != nil {
		summary += "\nHTML: " + pages.String()
	}

	var publicURL string
	if buckets := p.cfg.Buckets(); len(buckets) > 0 {
		publicURL = p.cfg.PublicURL(buckets[0], "")
	}

	// a failed notification never fails the run
	if err := p.notifier.SendMigrationSummary(ctx, summary, report.Count(uploader.StatusFailed), publicURL); err != nil {
		p.log.Warnf("Failed to send notification: %v", err)
	}
}
