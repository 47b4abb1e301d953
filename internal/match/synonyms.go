package match

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"resumatch/internal/errors"
	"resumatch/internal/textproc"
)

// SynonymTable maps a canonical skill to alternative names that earn partial
// credit. All lookups are case and diacritic insensitive. The table is safe
// for concurrent use so it can be reloaded while scoring is in flight.
type SynonymTable struct {
	mu      sync.RWMutex
	entries map[string][]string
}

// NewSynonymTable builds a table from canonical-skill -> aliases. Keys and
// aliases are normalized on insert.
func NewSynonymTable(entries map[string][]string) *SynonymTable {
	t := &SynonymTable{}
	t.Replace(entries)
	return t
}

// Synonyms returns the normalized aliases for a canonical skill, or nil.
func (t *SynonymTable) Synonyms(canonical string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[canonical]
}

// Replace swaps the table contents atomically.
func (t *SynonymTable) Replace(entries map[string][]string) {
	normalized := make(map[string][]string, len(entries))
	for key, aliases := range entries {
		list := make([]string, 0, len(aliases))
		for _, alias := range aliases {
			list = append(list, textproc.NormalizeSkill(alias))
		}
		normalized[textproc.NormalizeSkill(key)] = list
	}

	t.mu.Lock()
	t.entries = normalized
	t.mu.Unlock()
}

// Len returns the number of canonical entries.
func (t *SynonymTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// LoadSynonymFile reads a YAML file of canonical-skill -> alias lists.
func LoadSynonymFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			"cannot read synonym file", err).WithContext("path", path)
	}

	var entries map[string][]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			"invalid synonym file", err).WithContext("path", path)
	}
	return entries, nil
}

// WatchSynonymFile reloads the table whenever the file changes, until the
// context is cancelled. Editors often replace files via rename, so the watch
// is on the parent directory. Reload failures keep the previous table.
func WatchSynonymFile(ctx context.Context, path string, table *SynonymTable, logger *errors.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInvalidConfig,
			"cannot create synonym watcher", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return errors.NewIOError(errors.ErrCodeFileNotReadable,
			"cannot watch synonym directory", err).WithContext("dir", dir)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				entries, err := LoadSynonymFile(path)
				if err != nil {
					logger.LogError(err, "synonym reload failed", "path", path)
					continue
				}
				table.Replace(entries)
				logger.Info("synonym table reloaded", "path", path, "entries", table.Len())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("synonym watcher error", "error", err.Error())
			}
		}
	}()

	return nil
}
