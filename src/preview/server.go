package preview

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"foliomedia/src/config"
)

// Server serves the site root so rewritten pages can be checked in a browser
type Server struct {
	cfg  *config.Config
	log  *zap.SugaredLogger
	tmpl *template.Template
}

// page is one configured HTML file on the index page
type page struct {
	Path   string
	Exists bool
}

// NewServer creates a new preview server
func NewServer(cfg *config.Config, log *zap.SugaredLogger) *Server {
	return &Server{
		cfg:  cfg,
		log:  log,
		tmpl: template.Must(template.New("pages").Parse(pagesTemplate)),
	}
}

// Addr returns the listen address from the config
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Preview.Host, strconv.Itoa(s.cfg.Preview.Port))
}

// Handler returns the HTTP handler: /_pages lists the configured HTML files,
// everything else is served from the site root.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/_pages", s.handlePages)
	mux.Handle("/", noCache(http.FileServer(http.Dir(s.cfg.Site.Root))))
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("🌐 Preview server starting on http://%s/_pages", s.Addr())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("preview server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down preview server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Infof("Preview server stopped")
	return nil
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	pages := make([]page, 0, len(s.cfg.Site.HTMLFiles))
	for _, rel := range s.cfg.Site.HTMLFiles {
		_, err := os.Stat(s.cfg.SitePath(rel))
		pages = append(pages, page{Path: rel, Exists: err == nil})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, pages); err != nil {
		s.log.Errorf("Failed to render pages: %v", err)
	}
}

// noCache makes browsers refetch rewritten files on every reload
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

const pagesTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Site preview</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            max-width: 800px;
            margin: 40px auto;
            padding: 20px;
            line-height: 1.6;
        }
        .missing { color: #dc3545; }
    </style>
</head>
<body>
    <h1>🖼️ Site preview</h1>
    <ul>
    {{- range .}}
        {{- if .Exists}}
        <li><a href="/{{.Path}}">{{.Path}}</a></li>
        {{- else}}
        <li class="missing">{{.Path}} (missing)</li>
        {{- end}}
    {{- end}}
    </ul>
</body>
</html>
`
