package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"foliomedia/src/config"
	"foliomedia/src/rewriter"
	"foliomedia/src/uploader"
)

const debounceDelay = 500 * time.Millisecond

// Uploader sends single files to their route's bucket
type Uploader interface {
	RouteFor(path string) (config.Route, bool)
	UploadFile(ctx context.Context, route config.Route, path string) uploader.Result
}

// Site relinks the HTML files after new uploads
type Site interface {
	RelinkAll(resolver rewriter.Resolver) rewriter.Summary
}

// Watcher monitors the route source folders and uploads files as they change
type Watcher struct {
	cfg      *config.Config
	uploader Uploader
	site     Site
	log      *zap.SugaredLogger
	watcher  *fsnotify.Watcher
	events   chan Event

	// uploaded restricts relinking to objects stored while watching
	uploaded *rewriter.UploadedResolver

	mu       sync.Mutex
	debounce map[string]*time.Timer
	stopped  bool

	handleMu sync.Mutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// Event represents a handled file system event
type Event struct {
	Type     EventType
	FilePath string

	// Result is set for files that were uploaded
	Result *uploader.Result
}

// EventType represents the type of file event
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleted
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	default:
		return "deleted"
	}
}

// NewWatcher creates a new file watcher. site may be nil to only upload.
func NewWatcher(cfg *config.Config, up Uploader, site Site, log *zap.SugaredLogger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:      cfg,
		uploader: up,
		site:     site,
		log:      log,
		watcher:  fsWatcher,
		events:   make(chan Event, 100),
		uploaded: rewriter.NewUploadedResolver(rewriter.NewRouteResolver(cfg.Routes)),
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Start begins monitoring all route folders that exist
func (w *Watcher) Start(ctx context.Context) error {
	folders, err := MonitoredFolders(w.cfg)
	if err != nil {
		return fmt.Errorf("failed to get monitored folders: %w", err)
	}
	if len(folders) == 0 {
		return fmt.Errorf("none of the route folders exist under %s", w.cfg.Site.Root)
	}

	for _, folder := range folders {
		if err := w.watcher.Add(folder); err != nil {
			return fmt.Errorf("failed to watch folder %s: %w", folder, err)
		}
		w.log.Infof("👀 Watching folder: %s", folder)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.processEvents(ctx)
	}()

	return nil
}

// processEvents debounces fsnotify events per file
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if hidden(event.Name) {
				continue
			}

			// new directories are watched right away so files copied into them are seen
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addTree(ctx, event.Name)
					continue
				}
			}

			w.schedule(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Errorf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if timer, exists := w.debounce[event.Name]; exists {
		timer.Stop()
	}

	w.debounce[event.Name] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		delete(w.debounce, event.Name)
		w.wg.Add(1)
		w.mu.Unlock()

		defer w.wg.Done()
		w.handleEvent(ctx, event)
	})
}

// addTree watches dir and its sub-directories and schedules the files found in them
func (w *Watcher) addTree(ctx context.Context, dir string) {
	dirs, files, err := walkTree(dir)
	if err != nil {
		w.log.Errorf("Failed to scan %s: %v", dir, err)
	}
	for _, d := range dirs {
		if err := w.watcher.Add(d); err != nil {
			w.log.Errorf("Failed to watch folder %s: %v", d, err)
			continue
		}
		w.log.Infof("👀 Watching folder: %s", d)
	}
	for _, f := range files {
		w.schedule(ctx, fsnotify.Event{Name: f, Op: fsnotify.Create})
	}
}

// handleEvent uploads a created or modified file and relinks the site
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	w.handleMu.Lock()
	defer w.handleMu.Unlock()

	var eventType EventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = EventCreated
	case event.Has(fsnotify.Write):
		eventType = EventModified
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		eventType = EventDeleted
	default:
		return
	}
	w.log.Debugf("File %s: %s", eventType, event.Name)

	if eventType == EventDeleted {
		// remote objects are kept; the HTML may still point at them
		w.log.Infof("🗑️  Removed locally: %s", event.Name)
		w.emit(ctx, Event{Type: eventType, FilePath: event.Name})
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	route, ok := w.uploader.RouteFor(event.Name)
	if !ok {
		w.log.Debugf("No route for %s", event.Name)
		return
	}

	result := w.uploader.UploadFile(ctx, route, event.Name)
	if result.Stored() {
		w.uploaded.Add(result.Route.Bucket, result.Key)
		if w.site != nil {
			sum := w.site.RelinkAll(w.uploaded)
			w.log.Infof("🔗 Relinked HTML: %s", sum)
		}
	}

	w.emit(ctx, Event{Type: eventType, FilePath: event.Name, Result: &result})
}

func (w *Watcher) emit(ctx context.Context, event Event) {
	select {
	case w.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the event channel. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher, cancels in-flight uploads and waits for their handlers
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	cancel := w.cancel
	for name, timer := range w.debounce {
		timer.Stop()
		delete(w.debounce, name)
	}
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	close(w.events)
	return err
}

func hidden(path string) bool {
	name := filepath.Base(path)
	return len(name) > 0 && name[0] == '.'
}
