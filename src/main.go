package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"foliomedia/src/config"
	"foliomedia/src/logging"
	"foliomedia/src/migrate"
	"foliomedia/src/notify"
	"foliomedia/src/preview"
	"foliomedia/src/rewriter"
	"foliomedia/src/setup"
	"foliomedia/src/storage"
	"foliomedia/src/uploader"
	"foliomedia/src/watcher"
)

type cli struct {
	Config  string `arg:"-c,--config" default:"migrate.yaml" help:"path to the YAML config"`
	Verbose bool   `arg:"-v,--verbose" help:"log debug output"`
	DryRun  bool   `arg:"-n,--dry-run" help:"show what would change without uploading or writing"`

	Lazify  *cmdLazify  `arg:"subcommand:lazify" help:"add lazy loading to the HTML files"`
	Relink  *cmdRelink  `arg:"subcommand:relink" help:"point the HTML files at Supabase URLs"`
	Upload  *cmdUpload  `arg:"subcommand:upload" help:"upload optimized media to Supabase Storage"`
	Migrate *cmdMigrate `arg:"subcommand:migrate" help:"upload, then relink the HTML to what was uploaded"`
	Setup   *cmdSetup   `arg:"subcommand:setup" help:"write the Supabase setup guide"`
	Watch   *cmdWatch   `arg:"subcommand:watch" help:"upload files as they appear in the optimized folders"`
	Preview *cmdPreview `arg:"subcommand:preview" help:"serve the site locally"`
	Ledger  *cmdLedger  `arg:"subcommand:ledger" help:"list what the upload ledger has recorded"`
}

type cmdLazify struct{}

type cmdRelink struct{}

type cmdUpload struct {
	Files []string `arg:"positional" help:"upload only these files (default: every route)"`
}

type cmdMigrate struct{}

type cmdSetup struct {
	Output string `arg:"-o,--output" default:"SUPABASE_SETUP.md" help:"where to write the guide"`
}

type cmdWatch struct {
	Preview bool `arg:"--preview" help:"also run the preview server"`
}

type cmdPreview struct {
	Port int `arg:"-p,--port" help:"port to listen on (default from config)"`
}

type cmdLedger struct{}

func (cli) Description() string {
	return "foliomedia moves a portfolio site's optimized media to Supabase Storage and rewrites its HTML to match"
}

func main() {
	var c cli
	p := arg.MustParse(&c)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	log, err := logging.New(c.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, &c, log)
	stop()

	if err != nil {
		log.Errorf("❌ %v", err)
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(ctx context.Context, c *cli, log *zap.SugaredLogger) error {
	switch {
	case c.Lazify != nil:
		cfg, err := config.LoadLocal(c.Config)
		if err != nil {
			return err
		}
		sum, _, err := migrate.NewPipeline(cfg, nil, nil, log, c.DryRun).Lazify()
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return fmt.Errorf("%d HTML files could not be updated", sum.Failed)
		}
		return nil

	case c.Relink != nil:
		cfg, err := config.Load(c.Config)
		if err != nil {
			return err
		}
		sum := migrate.NewPipeline(cfg, nil, nil, log, c.DryRun).Relink()
		if sum.Failed > 0 {
			return fmt.Errorf("%d HTML files could not be updated", sum.Failed)
		}
		return nil

	case c.Upload != nil:
		return runUpload(ctx, c, log)

	case c.Migrate != nil:
		return runMigrate(ctx, c, log)

	case c.Setup != nil:
		cfg, err := config.LoadLocal(c.Config)
		if err != nil {
			return err
		}
		if err := setup.WriteInstructions(cfg, c.Config, c.Setup.Output); err != nil {
			return err
		}
		log.Infof("✅ Created %s with detailed instructions", c.Setup.Output)
		return nil

	case c.Watch != nil:
		return runWatch(ctx, c, log)

	case c.Preview != nil:
		cfg, err := config.LoadLocal(c.Config)
		if err != nil {
			return err
		}
		if c.Preview.Port != 0 {
			cfg.Preview.Port = c.Preview.Port
		}
		return preview.NewServer(cfg, log).Start(ctx)

	case c.Ledger != nil:
		return runLedger(ctx, c, log)
	}
	return nil
}

// newUploader wires the storage client and, outside dry-run, the ledger.
// The returned func closes the ledger.
func newUploader(cfg *config.Config, log *zap.SugaredLogger, dryRun bool) (*uploader.Uploader, func(), error) {
	opts := []uploader.Option{uploader.WithDryRun(dryRun)}
	closeFn := func() {}

	if !dryRun && cfg.Upload.Ledger != "" {
		ledger, err := storage.OpenLedger(cfg.SitePath(cfg.Upload.Ledger))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, uploader.WithLedger(ledger))
		closeFn = func() {
			if err := ledger.Close(); err != nil {
				log.Warnf("Failed to close ledger: %v", err)
			}
		}
	}

	up := uploader.New(cfg, storage.NewClient(cfg, log), log, opts...)
	log.Debugf("Run ID: %s", up.RunID())
	return up, closeFn, nil
}

func runUpload(ctx context.Context, c *cli, log *zap.SugaredLogger) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	up, closeLedger, err := newUploader(cfg, log, c.DryRun)
	if err != nil {
		return err
	}
	defer closeLedger()

	var report *uploader.Report
	if len(c.Upload.Files) > 0 {
		report = &uploader.Report{RunID: up.RunID()}
		for _, f := range c.Upload.Files {
			path, err := filepath.Abs(f)
			if err != nil {
				return err
			}
			route, ok := up.RouteFor(path)
			if !ok {
				return fmt.Errorf("%s is not inside any route folder", f)
			}
			report.Results = append(report.Results, up.UploadFile(ctx, route, path))
		}
		log.Infof("✅ %s", report.Summary())
	} else {
		notifier := notify.NewNtfySender(cfg.Ntfy, log)
		report, err = migrate.NewPipeline(cfg, up, notifier, log, c.DryRun).Upload(ctx)
		if err != nil {
			return err
		}
	}

	if n := report.Count(uploader.StatusFailed); n > 0 {
		return fmt.Errorf("%d uploads failed", n)
	}
	return nil
}

func runMigrate(ctx context.Context, c *cli, log *zap.SugaredLogger) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	up, closeLedger, err := newUploader(cfg, log, c.DryRun)
	if err != nil {
		return err
	}
	defer closeLedger()

	notifier := notify.NewNtfySender(cfg.Ntfy, log)
	res, err := migrate.NewPipeline(cfg, up, notifier, log, c.DryRun).Migrate(ctx)
	if errors.Is(err, migrate.ErrNothingUploaded) {
		return errors.New("check your Supabase credentials and bucket setup")
	}
	if err != nil {
		return err
	}

	log.Infof("📊 %s", res.Report.Summary())
	log.Infof("📄 HTML: %s, %d assets extended", res.Pages, res.Assets)

	if n := res.Report.Count(uploader.StatusFailed); n > 0 {
		return fmt.Errorf("%d uploads failed", n)
	}
	if res.Pages.Failed > 0 {
		return fmt.Errorf("%d HTML files could not be updated", res.Pages.Failed)
	}
	log.Infof("🎉 Your website now uses Supabase-hosted media")
	return nil
}

func runWatch(ctx context.Context, c *cli, log *zap.SugaredLogger) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	up, closeLedger, err := newUploader(cfg, log, c.DryRun)
	if err != nil {
		return err
	}
	defer closeLedger()

	w, err := watcher.NewWatcher(cfg, up, rewriter.NewSite(cfg, log, c.DryRun), log)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return err
	}

	previewErr := make(chan error, 1)
	if c.Watch.Preview {
		go func() { previewErr <- preview.NewServer(cfg, log).Start(ctx) }()
	}

	go func() {
		for event := range w.Events() {
			if event.Result != nil && event.Result.Err != nil {
				log.Warnf("📄 Event: %v - %s (%v)", event.Type, event.FilePath, event.Result.Err)
				continue
			}
			log.Debugf("📄 Event: %v - %s", event.Type, event.FilePath)
		}
	}()

	log.Infof("Watcher started. Press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err = <-previewErr:
	}

	log.Infof("Shutting down...")
	if stopErr := w.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

func runLedger(ctx context.Context, c *cli, log *zap.SugaredLogger) error {
	cfg, err := config.LoadLocal(c.Config)
	if err != nil {
		return err
	}
	ledger, err := storage.OpenLedger(cfg.SitePath(cfg.Upload.Ledger))
	if err != nil {
		return err
	}
	defer ledger.Close()

	entries, err := ledger.Entries(ctx)
	if err != nil {
		return err
	}

	var total uint64
	for _, e := range entries {
		total += uint64(e.Size)
		fmt.Printf("%-20s %-50s %10s  %s\n", e.Bucket, e.Key, humanize.Bytes(uint64(e.Size)), humanize.Time(e.UploadedAt))
	}
	log.Infof("📊 %d objects, %s", len(entries), humanize.Bytes(total))
	return nil
}
