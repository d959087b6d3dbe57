package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	kindWorkflows = "workflows"
	kindItems     = "items"
	kindProjects  = "projects"
	kindUsers     = "users"
	kindGroups    = "groups"
)

// documents is the JSON document space the repositories read and write.
type documents interface {
	read(kind, id string) ([]byte, error) // fs.ErrNotExist when missing
	write(kind, id string, data []byte) error
	remove(kind, id string) error
	list(kind string) ([]string, error)
}

// disk stores one JSON file per document under root/<kind>/<id>.json.
type disk struct {
	root string
}

func (d *disk) path(kind, id string) string {
	return filepath.Clean(filepath.Join(d.root, kind, id+".json"))
}

func (d *disk) read(kind, id string) ([]byte, error) {
	return os.ReadFile(d.path(kind, id))
}

// write replaces the document through a temp file and rename so readers never
// see a partially written file.
func (d *disk) write(kind, id string, data []byte) error {
	if err := os.MkdirAll(filepath.Join(d.root, kind), 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	tmp, err := d.stage(kind, id, data)
	if err != nil {
		return err
	}

	return d.promote(tmp, kind, id)
}

func (d *disk) stage(kind, id string, data []byte) (string, error) {
	tmp := d.path(kind, id) + ".tmp"

	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return tmp, nil
}

func (d *disk) promote(tmp, kind, id string) error {
	if err := os.Rename(tmp, d.path(kind, id)); err != nil {
		return fmt.Errorf("failed to commit %s %s: %w", kind, id, err)
	}

	return nil
}

func (d *disk) remove(kind, id string) error {
	err := os.Remove(d.path(kind, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}

	return nil
}

func (d *disk) list(kind string) ([]string, error) {
	names, err := fs.Glob(os.DirFS(d.root), kind+"/*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		ids = append(ids, strings.TrimSuffix(filepath.Base(name), ".json"))
	}

	return ids, nil
}

type stagedKey struct {
	kind string
	id   string
}

// staged buffers writes over a disk until commit. A nil entry marks a removal.
type staged struct {
	base    *disk
	changes map[stagedKey][]byte
	order   []stagedKey
}

func newStaged(base *disk) *staged {
	return &staged{base: base, changes: make(map[stagedKey][]byte)}
}

func (s *staged) read(kind, id string) ([]byte, error) {
	if data, ok := s.changes[stagedKey{kind, id}]; ok {
		if data == nil {
			return nil, fs.ErrNotExist
		}

		return data, nil
	}

	return s.base.read(kind, id)
}

func (s *staged) set(kind, id string, data []byte) {
	key := stagedKey{kind, id}
	if _, ok := s.changes[key]; !ok {
		s.order = append(s.order, key)
	}

	s.changes[key] = data
}

func (s *staged) write(kind, id string, data []byte) error {
	s.set(kind, id, data)

	return nil
}

func (s *staged) remove(kind, id string) error {
	s.set(kind, id, nil)

	return nil
}

func (s *staged) list(kind string) ([]string, error) {
	ids, err := s.base.list(kind)
	if err != nil {
		return nil, err
	}

	for _, key := range s.order {
		if key.kind != kind {
			continue
		}

		present := slices.Contains(ids, key.id)

		switch {
		case s.changes[key] == nil && present:
			ids = slices.DeleteFunc(ids, func(id string) bool { return id == key.id })
		case s.changes[key] != nil && !present:
			ids = append(ids, key.id)
		}
	}

	return ids, nil
}

// commit writes every staged document to a temp file first and only then
// renames them into place, so a failed write leaves the store untouched.
func (s *staged) commit() error {
	type pending struct {
		key stagedKey
		tmp string
	}

	var written []pending

	for _, key := range s.order {
		data := s.changes[key]
		if data == nil {
			continue
		}

		if err := os.MkdirAll(filepath.Join(s.base.root, key.kind), 0750); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", key.kind, err)
		}

		tmp, err := s.base.stage(key.kind, key.id, data)
		if err != nil {
			for _, p := range written {
				_ = os.Remove(p.tmp)
			}

			return err
		}

		written = append(written, pending{key: key, tmp: tmp})
	}

	for _, p := range written {
		if err := s.base.promote(p.tmp, p.key.kind, p.key.id); err != nil {
			return err
		}
	}

	for _, key := range s.order {
		if s.changes[key] != nil {
			continue
		}

		if err := s.base.remove(key.kind, key.id); err != nil {
			return err
		}
	}

	return nil
}

func load[T any](docs documents, kind, id string) (*T, error) {
	body, err := docs.read(kind, id)
	if err != nil {
		return nil, err
	}

	var value T
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return &value, nil
}

func store(docs documents, kind, id string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	return docs.write(kind, id, data)
}

func loadAll[T any](docs documents, kind string) ([]*T, error) {
	ids, err := docs.list(kind)
	if err != nil {
		return nil, err
	}

	values := make([]*T, 0, len(ids))

	for _, id := range ids {
		value, err := load[T](docs, kind, id)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, err
		}

		values = append(values, value)
	}

	return values, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
