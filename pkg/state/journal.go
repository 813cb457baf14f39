package state

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/twpayne/go-vfs/v4"
	"gopkg.in/yaml.v3"
)

// Journal records the ops that completed so a failed install can be resumed
// without redoing destructive steps.
type Journal struct {
	Device    string    `yaml:"device"`
	Completed []string  `yaml:"completed"`
	Updated   time.Time `yaml:"updated"`

	fs   vfs.FS
	path string
}

func NewJournal(fs vfs.FS, path, device string) *Journal {
	return &Journal{Device: device, fs: fs, path: path}
}

// LoadJournal reads the journal at path. A missing file is an empty journal.
// A journal written for another device is an error.
func LoadJournal(fs vfs.FS, path, device string) (*Journal, error) {
	j := NewJournal(fs, path, device)
	dat, err := fs.ReadFile(path)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(dat, j); err != nil {
		return nil, fmt.Errorf("parsing journal %s: %w", path, err)
	}
	if j.Device != device {
		return nil, fmt.Errorf("journal %s belongs to %s, not %s", path, j.Device, device)
	}
	return j, nil
}

func (j *Journal) Done(op string) bool {
	return slices.Contains(j.Completed, op)
}

// MarkDone records op and persists the journal.
func (j *Journal) MarkDone(op string) error {
	if !j.Done(op) {
		j.Completed = append(j.Completed, op)
	}
	j.Updated = time.Now().UTC()
	return j.save()
}

// Reset forgets every completed op and removes the file.
func (j *Journal) Reset() error {
	j.Completed = nil
	if err := j.fs.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (j *Journal) save() error {
	if j.path == "" {
		return nil
	}
	dat, err := yaml.Marshal(j)
	if err != nil {
		return err
	}
	if err = vfs.MkdirAll(j.fs, filepath.Dir(j.path), 0o700); err != nil {
		return err
	}
	return j.fs.WriteFile(j.path, dat, 0o600)
}
