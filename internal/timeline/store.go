package timeline

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrNoEntries = errors.New("timeline has no entries")

// Document is the persisted timeline file.
type Document struct {
	RunID   string   `yaml:"run_id"`
	Entries []*Entry `yaml:"entries"`
}

func (d *Document) Total() float64 {
	total := 0.0
	for _, e := range d.Entries {
		total += e.Duration
	}
	return total
}

// Store is the append-only timeline of one run. Every append rewrites the whole file.
type Store struct {
	path string
	doc  Document
}

func NewStore(path, runID string) *Store {
	return &Store{path: path, doc: Document{RunID: runID}}
}

func (s *Store) Path() string { return s.path }

// Append validates e, assigns its index and persists the timeline.
func (s *Store) Append(e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	e.Index = len(s.doc.Entries)
	s.doc.Entries = append(s.doc.Entries, e)
	return s.Save()
}

func (s *Store) Entries() []*Entry {
	return s.doc.Entries
}

func (s *Store) Len() int {
	return len(s.doc.Entries)
}

func (s *Store) Document() *Document {
	return &s.doc
}

// Save rewrites the timeline file through a temp file and rename.
func (s *Store) Save() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal timeline")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.WithStack(err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", s.path)
	}
	return nil
}

// Load reads a persisted timeline.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read timeline %s", path)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse timeline %s", path)
	}
	return &doc, nil
}

// Open resumes the store at path, keeping its entries.
func Open(path string) (*Store, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, doc: *doc}, nil
}
