package checkpointer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Marker records the completed phases of a run in a JSON file, so
// that a later run can resume after them
type Marker struct {
	path string

	RunID     string    `json:"runId"`
	Completed []string  `json:"completed"`
	Updated   time.Time `json:"updated"`
}

// LoadMarker loads the Marker stored at path. If no Marker is stored
// at path, an empty Marker is returned. If the stored Marker cannot be
// read, an empty Marker is returned along with the error. The run ID
// is recorded in the Marker whenever it is written.
func LoadMarker(path string, runID uuid.UUID) (*Marker, error) {
	empty := &Marker{path: path, RunID: runID.String()}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return empty, nil
	} else if err != nil {
		return empty, fmt.Errorf("loadMarker: %v", err)
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return empty, fmt.Errorf("loadMarker: %v: %v", path, err)
	}
	m.path = path
	m.RunID = runID.String()
	return &m, nil
}

// Done returns whether phase has been completed
func (m *Marker) Done(phase string) bool {
	return slices.Contains(m.Completed, phase)
}

// Complete records phase as completed
func (m *Marker) Complete(phase string) error {
	if !m.Done(phase) {
		m.Completed = append(m.Completed, phase)
	}
	return m.write()
}

// Reset records phases as not completed
func (m *Marker) Reset(phases ...string) error {
	m.Completed = slices.DeleteFunc(m.Completed, func(p string) bool {
		return slices.Contains(phases, p)
	})
	return m.write()
}

// write stores the Marker, replacing any previously stored Marker
func (m *Marker) write() error {
	m.Updated = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "\t")
	if err != nil {
		return fmt.Errorf("write: %v", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write: %v", err)
	}
	if err := os.Rename(tmp, filepath.Clean(m.path)); err != nil {
		return fmt.Errorf("write: %v", err)
	}
	return nil
}
