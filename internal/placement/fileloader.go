package placement

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fileMapping is the on-disk shape of one Mapping entry, grounded on the
// teacher's config.yaml field-naming conventions (internal/config).
type fileMapping struct {
	Type    string `yaml:"type"`
	Node    string `yaml:"node"`
	Version string `yaml:"version"`
	BindIdx *int   `yaml:"bindIdx,omitempty"`
}

type fileDocument struct {
	Mappings []fileMapping `yaml:"mappings"`
}

// FileLoader watches a YAML mapping file on disk and reconciles the
// registry's contents with it on every write: entries present in the new
// file but not the registry are added, entries the registry has that the
// new file no longer lists are removed. This is the "addMapping/
// removeMapping fed by a config hot-reload" path spec §4.E leaves to the
// environment.
type FileLoader struct {
	path    string
	reg     *Registry
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	current map[string]Mapping // key() -> Mapping, last applied snapshot
	done    chan struct{}
}

// NewFileLoader creates a loader for path, performs an initial load, and
// starts watching for subsequent writes.
func NewFileLoader(path string, reg *Registry) (*FileLoader, error) {
	fl := &FileLoader{path: path, reg: reg, current: make(map[string]Mapping), done: make(chan struct{})}
	if err := fl.reload(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("placement: fsnotify.NewWatcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("placement: watch %q: %w", path, err)
	}
	fl.watcher = w
	go fl.loop()
	return fl, nil
}

func (fl *FileLoader) loop() {
	for {
		select {
		case ev, ok := <-fl.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				_ = fl.reload()
			}
		case _, ok := <-fl.watcher.Errors:
			if !ok {
				return
			}
		case <-fl.done:
			return
		}
	}
}

func (fl *FileLoader) reload() error {
	data, err := os.ReadFile(fl.path)
	if err != nil {
		return fmt.Errorf("placement: read %q: %w", fl.path, err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("placement: parse %q: %w", fl.path, err)
	}

	next := make(map[string]Mapping, len(doc.Mappings))
	for _, fm := range doc.Mappings {
		m := Mapping{Type: fm.Type, Node: fm.Node, Version: fm.Version, BindIdx: fm.BindIdx}
		next[m.key()] = m
	}

	fl.mu.Lock()
	prev := fl.current
	fl.current = next
	fl.mu.Unlock()

	for k, m := range next {
		if _, existed := prev[k]; !existed {
			fl.reg.AddMapping(m)
		}
	}
	for k, m := range prev {
		if _, still := next[k]; !still {
			fl.reg.removeExact(m)
		}
	}
	return nil
}

// Close stops watching the file.
func (fl *FileLoader) Close() error {
	close(fl.done)
	return fl.watcher.Close()
}
