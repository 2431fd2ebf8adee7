package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrPlaceholder is returned when credentials still hold the template values.
var ErrPlaceholder = errors.New("supabase credentials are placeholders")

var placeholders = []string{
	"YOUR_SUPABASE_URL",
	"YOUR_SUPABASE_ANON_KEY",
	"https://your-project-ref.supabase.co",
}

// Config represents the migration configuration
type Config struct {
	Supabase SupabaseConfig `yaml:"supabase"`
	Site     SiteConfig     `yaml:"site"`
	Routes   []Route        `yaml:"routes"`
	Upload   UploadConfig   `yaml:"upload"`
	Rewrite  RewriteConfig  `yaml:"rewrite"`
	Ntfy     NtfyConfig     `yaml:"ntfy"`
	Preview  PreviewConfig  `yaml:"preview"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url" env:"SUPABASE_URL"`
	AnonKey    string `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	ServiceKey string `yaml:"service_key" env:"SUPABASE_SERVICE_KEY"`

	// CreateBuckets makes upload create missing public buckets first
	CreateBuckets bool `yaml:"create_buckets"`
}

type SiteConfig struct {
	Root       string   `yaml:"root"`
	HTMLFiles  []string `yaml:"html_files"`
	Stylesheet string   `yaml:"stylesheet"`
	Script     string   `yaml:"script"`
}

// Route maps a local directory of optimized assets to a bucket and key prefix.
type Route struct {
	Source      string `yaml:"source"`       // e.g. optimized/images
	LocalPrefix string `yaml:"local_prefix"` // path used in HTML, e.g. images
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"` // key prefix inside the bucket
}

type UploadConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	Retries       int           `yaml:"retries"`
	Backoff       time.Duration `yaml:"backoff"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Upsert        *bool         `yaml:"upsert"`
	CacheControl  string        `yaml:"cache_control"`
	Ledger        string        `yaml:"ledger"`
	IgnoreFile    string        `yaml:"ignore_file"`
}

type RewriteConfig struct {
	ModernExt   string       `yaml:"modern_ext"`
	FallbackExt string       `yaml:"fallback_ext"`
	InlineLazy  bool         `yaml:"inline_lazy"`
	Minify      MinifyConfig `yaml:"minify"`
}

type MinifyConfig struct {
	HTML bool `yaml:"html"`
	CSS  bool `yaml:"css"`
	JS   bool `yaml:"js"`
}

type NtfyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Server  string `yaml:"server"`
	Topic   string `yaml:"topic" env:"NTFY_TOPIC"`
}

type PreviewConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads and parses the configuration file, then applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadLocal is Load for commands that never talk to Supabase: a missing file
// means defaults and the result is not validated.
func LoadLocal(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and fills in defaults without validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ApplyEnv overlays credentials from environment variables.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(&c.Supabase); err != nil {
		return fmt.Errorf("failed to parse supabase env: %w", err)
	}
	if err := env.Parse(&c.Ntfy); err != nil {
		return fmt.Errorf("failed to parse ntfy env: %w", err)
	}
	c.Supabase.URL = strings.TrimRight(c.Supabase.URL, "/")
	return nil
}

// SetDefaults fills zero values with the layout the portfolio site uses
func (c *Config) SetDefaults() {
	if c.Site.Root == "" {
		c.Site.Root = "."
	}
	if len(c.Site.HTMLFiles) == 0 {
		c.Site.HTMLFiles = []string{
			"index.html",
			"about.html",
			"fun-stuff.html",
			"projects/project1.html",
			"projects/project2.html",
			"projects/project3.html",
		}
	}
	if c.Site.Stylesheet == "" {
		c.Site.Stylesheet = "css/style.css"
	}
	if c.Site.Script == "" {
		c.Site.Script = "js/script.js"
	}

	if len(c.Routes) == 0 {
		c.Routes = []Route{
			{Source: "optimized/images", LocalPrefix: "images", Bucket: "portfolio-images", Prefix: "images"},
			{Source: "optimized/project-images", LocalPrefix: "project-images", Bucket: "portfolio-images", Prefix: "project-images"},
			{Source: "optimized/videos", LocalPrefix: "videos", Bucket: "portfolio-videos", Prefix: "videos"},
		}
	}
	for i := range c.Routes {
		r := &c.Routes[i]
		r.Source = strings.TrimRight(r.Source, "/")
		r.LocalPrefix = strings.Trim(r.LocalPrefix, "/")
		r.Prefix = strings.Trim(r.Prefix, "/")
	}

	if c.Upload.Concurrency == 0 {
		c.Upload.Concurrency = 4
	}
	if c.Upload.Retries == 0 {
		c.Upload.Retries = 3
	}
	if c.Upload.Backoff == 0 {
		c.Upload.Backoff = 500 * time.Millisecond
	}
	if c.Upload.Upsert == nil {
		upsert := true
		c.Upload.Upsert = &upsert
	}
	if c.Upload.Ledger == "" {
		c.Upload.Ledger = ".upload-ledger.db"
	}
	if c.Upload.IgnoreFile == "" {
		c.Upload.IgnoreFile = ".uploadignore"
	}

	if c.Rewrite.ModernExt == "" {
		c.Rewrite.ModernExt = ".webp"
	}
	if c.Rewrite.FallbackExt == "" {
		c.Rewrite.FallbackExt = ".jpg"
	}

	if c.Ntfy.Server == "" {
		c.Ntfy.Server = "https://ntfy.sh"
	}

	if c.Preview.Host == "" {
		c.Preview.Host = "127.0.0.1"
	}
	if c.Preview.Port == 0 {
		c.Preview.Port = 8080
	}
}

// Validate checks if required configuration fields are set
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("supabase.url is required")
	}
	if c.Key() == "" {
		return fmt.Errorf("supabase.anon_key or supabase.service_key is required")
	}
	for _, p := range placeholders {
		if c.Supabase.URL == p || c.Supabase.AnonKey == p {
			return fmt.Errorf("%w: update supabase.url and supabase.anon_key", ErrPlaceholder)
		}
	}
	if !strings.HasPrefix(c.Supabase.URL, "http://") && !strings.HasPrefix(c.Supabase.URL, "https://") {
		return fmt.Errorf("supabase.url must start with http:// or https://")
	}

	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}
	for i, r := range c.Routes {
		if r.Source == "" {
			return fmt.Errorf("routes[%d].source is required", i)
		}
		if r.Bucket == "" {
			return fmt.Errorf("routes[%d].bucket is required", i)
		}
	}

	if c.Upload.Concurrency < 1 {
		return fmt.Errorf("upload.concurrency must be at least 1")
	}
	if c.Upload.Retries < 0 {
		return fmt.Errorf("upload.retries must not be negative")
	}
	if c.Ntfy.Enabled && c.Ntfy.Topic == "" {
		return fmt.Errorf("ntfy.topic is required when ntfy is enabled")
	}
	return nil
}

// SitePath resolves a path relative to the site root
func (c *Config) SitePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Site.Root, p)
}

// Key returns the key used for storage requests; the service key wins when set
func (c *Config) Key() string {
	if c.Supabase.ServiceKey != "" {
		return c.Supabase.ServiceKey
	}
	return c.Supabase.AnonKey
}

// StorageURL returns the base of the storage REST API
func (c *Config) StorageURL() string {
	return c.Supabase.URL + "/storage/v1"
}

// PublicURL returns the public object URL for a key in a bucket
func (c *Config) PublicURL(bucket, key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/object/public/%s/%s", c.StorageURL(), bucket, strings.Join(segments, "/"))
}

// Buckets returns the distinct buckets named by routes, in route order
func (c *Config) Buckets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range c.Routes {
		if !seen[r.Bucket] {
			seen[r.Bucket] = true
			out = append(out, r.Bucket)
		}
	}
	return out
}
