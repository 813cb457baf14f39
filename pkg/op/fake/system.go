// Package fake provides an op.System that records what it is asked to do.
package fake

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pinebook-tools/pbpinstall/internal/constants"
	"github.com/pinebook-tools/pbpinstall/pkg/op"
)

type System struct {
	mu sync.Mutex

	// Size is returned by DiskSize.
	Size uint64
	// Fail makes Run fail for every command whose String() contains the key.
	// The value is returned as the command output.
	Fail map[string]string
	// OnRun is called before a command is recorded.
	OnRun func(c op.Command)

	Commands    []op.Command
	MountPoints []string
	Syncs       int
}

func NewSystem(size uint64) *System {
	return &System{Size: size, Fail: map[string]string{}}
}

func (s *System) Run(_ context.Context, c op.Command) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OnRun != nil {
		s.OnRun(c)
	}
	s.Commands = append(s.Commands, c)
	for k, out := range s.Fail {
		if strings.Contains(c.String(), k) {
			return out, fmt.Errorf("%s: exit status 1: %s", c.Name, out)
		}
	}
	return "", nil
}

// CommandLines returns the recorded commands as strings.
func (s *System) CommandLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.Commands {
		out = append(out, c.String())
	}
	return out
}

func (s *System) Mount(m op.MountOperation) error {
	if m.PrepareCallback != nil {
		if err := m.PrepareCallback(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.MountPoints, m.Target) {
		return constants.ErrAlreadyMounted
	}
	s.MountPoints = append(s.MountPoints, m.Target)
	return nil
}

func (s *System) Unmount(target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.MountPoints, target)
	if i < 0 {
		return fmt.Errorf("%s: not mounted", target)
	}
	s.MountPoints = slices.Delete(s.MountPoints, i, i+1)
	return nil
}

func (s *System) Mounted(target string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.MountPoints, target), nil
}

// Mounts returns the mountpoints under root, longest path first.
func (s *System) Mounts(root string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.MountPoints {
		if m == root || strings.HasPrefix(m, strings.TrimSuffix(root, "/")+"/") {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b string) int { return strings.Compare(b, a) })
	return out, nil
}

func (s *System) Settle(_ context.Context, _ ...string) error {
	return nil
}

func (s *System) DiskSize(_ string) (uint64, error) {
	return s.Size, nil
}

func (s *System) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Syncs++
}
