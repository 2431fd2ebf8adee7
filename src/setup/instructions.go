package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"foliomedia/src/common"
	"foliomedia/src/config"
)

// maxFilesPerDir caps how many files of one directory the layout tree lists
const maxFilesPerDir = 5

// WriteInstructions writes a Markdown guide for preparing the Supabase
// project to path, describing the buckets and routes in cfg.
func WriteInstructions(cfg *config.Config, configPath, path string) error {
	tree, err := Layout(cfg)
	if err != nil {
		return fmt.Errorf("failed to scan route folders: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	data := struct {
		SupabaseURL string
		ConfigPath  string
		Buckets     []string
		Routes      []config.Route
		Layout      string
	}{
		SupabaseURL: cfg.Supabase.URL,
		ConfigPath:  configPath,
		Buckets:     cfg.Buckets(),
		Routes:      cfg.Routes,
		Layout:      tree,
	}

	if err := instructionsTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("failed to render instructions: %w", err)
	}
	return f.Close()
}

// dir is one level of the layout tree
type dir struct {
	dirs  map[string]*dir
	files []string
}

func newDir() *dir {
	return &dir{dirs: make(map[string]*dir)}
}

func (d *dir) mkdir(parts []string) *dir {
	cur := d
	for _, p := range parts {
		if p == "" {
			continue
		}
		next, ok := cur.dirs[p]
		if !ok {
			next = newDir()
			cur.dirs[p] = next
		}
		cur = next
	}
	return cur
}

// Layout renders the bucket/key tree the local route folders will produce
func Layout(cfg *config.Config) (string, error) {
	root := newDir()

	for _, route := range cfg.Routes {
		bucket := root.mkdir([]string{route.Bucket})
		bucket.mkdir(strings.Split(route.Prefix, "/"))

		src := cfg.SitePath(route.Source)
		err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p != src && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(src, p)
			if err != nil {
				return err
			}
			parts := strings.Split(common.ObjectKey(route.Prefix, rel), "/")
			parent := bucket.mkdir(parts[:len(parts)-1])
			parent.files = append(parent.files, parts[len(parts)-1])
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}

	var b strings.Builder
	for i, name := range sortedKeys(root.dirs) {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(name + "/\n")
		render(&b, root.dirs[name], "")
	}
	return b.String(), nil
}

func render(b *strings.Builder, d *dir, indent string) {
	type entry struct {
		name string
		sub  *dir
	}

	var entries []entry
	for _, name := range sortedKeys(d.dirs) {
		entries = append(entries, entry{name: name + "/", sub: d.dirs[name]})
	}
	files := append([]string(nil), d.files...)
	sort.Strings(files)
	for i, name := range files {
		if i == maxFilesPerDir {
			entries = append(entries, entry{name: fmt.Sprintf("... (%d more)", len(files)-i)})
			break
		}
		entries = append(entries, entry{name: name})
	}

	for i, e := range entries {
		branch, next := "├── ", "│   "
		if i == len(entries)-1 {
			branch, next = "└── ", "    "
		}
		b.WriteString(indent + branch + e.name + "\n")
		if e.sub != nil {
			render(b, e.sub, indent+next)
		}
	}
}

func sortedKeys(m map[string]*dir) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var instructionsTemplate = template.Must(template.New("setup").Funcs(template.FuncMap{
	"add": func(a, b int) int { return a + b },
}).Parse(`# Supabase Upload Instructions

## 1. Get Your Supabase Credentials
1. Go to https://supabase.com/dashboard
2. Select your project
3. Go to Settings > API
4. Copy your Project URL and Anon Key
5. Put them in ` + "`{{.ConfigPath}}`" + ` (` + "`supabase.url`, `supabase.anon_key`" + `) or export
   ` + "`SUPABASE_URL`" + ` and ` + "`SUPABASE_ANON_KEY`" + ` (a ` + "`.env`" + ` file works too)
{{- if .SupabaseURL}}

Currently configured project: {{.SupabaseURL}}
{{- end}}

## 2. Create Storage Buckets
In your Supabase dashboard:
1. Go to Storage
{{- range $i, $b := .Buckets}}
{{add $i 2}}. Create bucket: ` + "`{{$b}}`" + ` (public)
{{- end}}

Or set ` + "`supabase.create_buckets: true`" + ` and use the service key to let the upload create them.

## 3. Upload Files
| Local folder | Bucket | Folder in bucket |
|---|---|---|
{{- range .Routes}}
| ` + "`{{.Source}}/`" + ` | ` + "`{{.Bucket}}`" + ` | {{if .Prefix}}` + "`{{.Prefix}}/`" + `{{else}}root{{end}} |
{{- end}}

Run:
` + "```bash" + `
foliomedia --config {{.ConfigPath}} upload
` + "```" + `

## 4. Update HTML Files
After uploading, point the pages at the uploaded files:
` + "```bash" + `
foliomedia --config {{.ConfigPath}} relink
` + "```" + `
or do both steps at once with ` + "`foliomedia --config {{.ConfigPath}} migrate`" + `.

## 5. File Structure in Supabase
` + "```" + `
{{.Layout}}` + "```" + `
`))
