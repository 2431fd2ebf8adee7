package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"foliomedia/src/config"
)

// MonitoredFolders returns every existing route source directory and all of
// its sub-directories. Routes whose source does not exist are skipped.
func MonitoredFolders(cfg *config.Config) ([]string, error) {
	var folders []string
	seen := make(map[string]bool)

	for _, route := range cfg.Routes {
		root := cfg.SitePath(route.Source)

		info, err := os.Stat(root)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			continue
		}

		dirs, _, err := walkTree(root)
		if err != nil {
			return nil, err
		}
		for _, d := range dirs {
			if !seen[d] {
				seen[d] = true
				folders = append(folders, d)
			}
		}
	}

	return folders, nil
}

// walkTree lists the directories (root included) and regular files under
// root, skipping hidden entries.
func walkTree(root string) (dirs, files []string, err error) {
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root && hidden(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, p)
		} else if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	return dirs, files, err
}
