package roster

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const jsonRosterPath = "roster.json"

// JSONRoster reads and writes a Roster as a JSON list of entries in a data
// directory.
type JSONRoster struct {
	l    sync.Mutex
	path string
}

// NewJSONRoster creates a new JSONRoster with reference to a base directory
// where the JSON file resides.
func NewJSONRoster(base string) *JSONRoster {
	return &JSONRoster{
		path: filepath.Join(base, jsonRosterPath),
	}
}

// Path ...
func (j *JSONRoster) Path() string {
	return j.path
}

// Roster parses the underlying JSON file.
func (j *JSONRoster) Roster() (*Roster, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&entries); err != nil {
		return nil, err
	}

	return NewRoster(entries)
}

// Write persists the roster's entries.
func (j *JSONRoster) Write(r *Roster) error {
	j.l.Lock()
	defer j.l.Unlock()

	data, err := json.MarshalIndent(r.Entries, "", "	")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return err
	}

	return os.WriteFile(j.path, data, 0644)
}
