// Package artifacts persists the per-case result bundle. Every artifact is
// an independent file named <caseID>_<name>.<ext> so a report renderer can
// load any subset of them.
package artifacts

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	apperr "roiquant/pkg/errors"
)

// Artifact names
const (
	Subject              = "subject"
	Reference            = "reference"
	WMLSReference        = "wmls_reference"
	Header               = "header"
	ZScoresByID          = "zscores_num"
	ZScoresByName        = "zscores"
	ZScoreDetails        = "zscore_details"
	ROIsByID             = "rois_num"
	ROIsByName           = "rois_name"
	ROIsUnadjusted       = "rois_unadjusted"
	LabelVolumes         = "label_volumes"
	CompositesUnadjusted = "composites_unadjusted"
	Flags                = "flags"
	Manifest             = "manifest"
	Summary              = "summary"
	QCAxial              = "qc_axial"
)

// Store reads and writes named artifacts of a case
type Store interface {
	// Put stores v as JSON
	Put(caseID, name string, v interface{}) error

	// Get decodes a stored artifact into v
	Get(caseID, name string, v interface{}) error

	// PutFile stores a non-JSON artifact produced by write, which is given
	// a temporary path to write to
	PutFile(caseID, name, ext string, write func(path string) error) error

	// Delete removes an artifact. Removing a missing artifact is not an error.
	Delete(caseID, name, ext string) error
}

// FileStore keeps artifacts as files in one directory
type FileStore struct {
	Dir string
}

// NewFileStore creates dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, "create output directory %s", dir)
	}
	return &FileStore{Dir: dir}, nil
}

// Path returns the file an artifact is stored in
func (s *FileStore) Path(caseID, name, ext string) string {
	return filepath.Join(s.Dir, caseID+"_"+name+"."+strings.TrimPrefix(ext, "."))
}

// Put implements Store
func (s *FileStore) Put(caseID, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "encode artifact %s", name)
	}
	return s.PutFile(caseID, name, "json", func(path string) error {
		return os.WriteFile(path, data, 0644)
	})
}

// Get implements Store
func (s *FileStore) Get(caseID, name string, v interface{}) error {
	data, err := os.ReadFile(s.Path(caseID, name, "json"))
	if err != nil {
		return apperr.Wrap(err, apperr.KindIO, "read artifact %s", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Wrap(err, apperr.KindIO, "decode artifact %s", name)
	}
	return nil
}

// PutFile implements Store. The file appears under its final name only
// once write has succeeded.
func (s *FileStore) PutFile(caseID, name, ext string, write func(path string) error) error {
	final := s.Path(caseID, name, ext)
	tmp, err := os.CreateTemp(s.Dir, "."+caseID+"_"+name+"-*."+strings.TrimPrefix(ext, "."))
	if err != nil {
		return apperr.Wrap(err, apperr.KindIO, "create temp file for %s", name)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := write(tmpPath); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(err, apperr.KindIO, "write artifact %s", name)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(err, apperr.KindIO, "rename artifact %s", name)
	}
	return nil
}

// Delete implements Store
func (s *FileStore) Delete(caseID, name, ext string) error {
	if err := os.Remove(s.Path(caseID, name, ext)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Wrap(err, apperr.KindIO, "remove artifact %s", name)
	}
	return nil
}

// List returns the artifact file names stored for a case
func (s *FileStore) List(caseID string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, caseID+"_*"))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindIO, "list artifacts")
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	return names, nil
}
