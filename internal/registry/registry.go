package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/driftstack/driftgate/internal/schema"
)

// ErrUnknownDataset is returned when no constraint pack exists for a dataset.
var ErrUnknownDataset = errors.New("no constraints declared for dataset")

// Pack pairs a dataset name with its declared constraints, one YAML document
// per file.
type Pack struct {
	Dataset     string                     `yaml:"dataset" json:"dataset"`
	Constraints *schema.DatasetConstraints `yaml:"constraints" json:"constraints"`
}

// Registry keeps the constraint packs for all known datasets, loaded from a
// directory of YAML files. Lookups hand out clones, so validations can mutate
// freely and write back through Put.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	packs map[string]*Pack
	files map[string]string
}

// New loads every pack under dir. A missing or empty directory yields an
// empty registry; a malformed pack is a startup error.
func New(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		dir:    dir,
		logger: logger,
		packs:  map[string]*Pack{},
		files:  map[string]string{},
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rescans the directory, replacing the in-memory packs only if every
// file parses.
func (r *Registry) Reload() error {
	if r.dir == "" {
		return nil
	}

	entries, err := listPackFiles(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	packs := make(map[string]*Pack, len(entries))
	files := make(map[string]string, len(entries))
	for _, path := range entries {
		pack, err := readPack(path)
		if err != nil {
			return err
		}
		packs[pack.Dataset] = pack
		files[pack.Dataset] = path
	}

	r.mu.Lock()
	r.packs = packs
	r.files = files
	r.mu.Unlock()
	return nil
}

// Get returns a deep clone of the constraints declared for dataset.
func (r *Registry) Get(dataset string) (*schema.DatasetConstraints, error) {
	r.mu.RLock()
	pack, ok := r.packs[dataset]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownDataset
	}
	dc := pack.Constraints.Clone()
	if dc == nil {
		dc = &schema.DatasetConstraints{}
	}
	return dc, nil
}

// Put persists the constraints for dataset to its YAML file and replaces the
// in-memory pack.
func (r *Registry) Put(dataset string, dc *schema.DatasetConstraints) error {
	if dataset == "" {
		return errors.New("registry: dataset name required")
	}
	if strings.ContainsAny(dataset, "/\\") {
		return fmt.Errorf("registry: dataset name %q must not contain path separators", dataset)
	}
	if r.dir == "" {
		return errors.New("registry: no schema directory configured")
	}
	if err := dc.Validate(); err != nil {
		return fmt.Errorf("registry: %s: %w", dataset, err)
	}

	pack := &Pack{Dataset: dataset, Constraints: dc.Clone()}

	r.mu.Lock()
	defer r.mu.Unlock()

	path, ok := r.files[dataset]
	if !ok {
		path = filepath.Join(r.dir, dataset+".yaml")
	}
	if err := writePack(path, pack); err != nil {
		return err
	}
	r.packs[dataset] = pack
	r.files[dataset] = path
	return nil
}

// Datasets lists the known dataset names, sorted.
func (r *Registry) Datasets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.packs))
	for name := range r.packs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of loaded packs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.packs)
}

func listPackFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	var out []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

func readPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	if pack.Dataset == "" {
		return nil, fmt.Errorf("registry: %s: dataset name required", path)
	}
	if err := pack.Constraints.Validate(); err != nil {
		return nil, fmt.Errorf("registry: %s: %w", path, err)
	}
	if pack.Constraints == nil {
		pack.Constraints = &schema.DatasetConstraints{}
	}
	return &pack, nil
}

// writePack writes atomically so a watcher never observes a half-written
// file.
func writePack(path string, pack *Pack) error {
	data, err := yaml.Marshal(pack)
	if err != nil {
		return fmt.Errorf("registry: encode %s: %w", pack.Dataset, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("registry: create schema directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("registry: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("registry: replace %s: %w", path, err)
	}
	return nil
}
