// Package checkpointer saves and restores models between runs, and
// records which phases of training a run has completed.
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// Serializable is an object that can be saved/serialized
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// Save gob encodes object into the file at path. The file is replaced
// only once the object has been completely written.
func Save(path string, object Serializable) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(object); err != nil {
		tmp.Close()
		return fmt.Errorf("save: could not encode %T: %v", object, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load decodes the file at path into object
func Load(path string, object Serializable) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(object); err != nil {
		return fmt.Errorf("load: could not decode %v: %w", path, err)
	}
	return nil
}
