package state

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/deniswernert/go-fstab"
	"github.com/hashicorp/go-multierror"
	cnst "github.com/pinebook-tools/pbpinstall/internal/constants"
	internalUtils "github.com/pinebook-tools/pbpinstall/internal/utils"
	"github.com/pinebook-tools/pbpinstall/pkg/op"
	"github.com/pinebook-tools/pbpinstall/pkg/schema"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
)

type State struct {
	Config  *schema.Config
	System  op.System
	FS      vfs.FS // host filesystem, the target is under Config.Mountpoint
	Journal *Journal

	// DetectTimezone resolves the "auto" timezone.
	DetectTimezone func(ctx context.Context, url string) (string, error)
	// RunHooks runs the yip hook stages.
	RunHooks func(stage string, paths ...string) error

	fstabs []*fstab.Mount
}

func NewState(cfg *schema.Config, sys op.System, fs vfs.FS, journal *Journal) *State {
	return &State{
		Config:         cfg,
		System:         sys,
		FS:             fs,
		Journal:        journal,
		DetectTimezone: internalUtils.DetectTimezone,
		RunHooks:       internalUtils.RunStage,
	}
}

// target returns p inside the mounted target root.
func (s *State) target(p ...string) string {
	return filepath.Join(append([]string{s.Config.Mountpoint}, p...)...)
}

func (s *State) run(ctx context.Context, name string, args ...string) error {
	_, err := s.System.Run(ctx, op.Cmd(name, args...))
	return err
}

// step wraps an op callback with the journal: ops completed in a previous run
// are skipped, unless they are re-entrant, and successful ops are recorded.
func (s *State) step(name string, f func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if s.Journal != nil && s.Journal.Done(name) && !slices.Contains(cnst.ReentrantOps(), name) {
			internalUtils.Log.Info().Str("op", name).Msg("Already completed, skipping")
			return nil
		}
		internalUtils.Log.Info().Str("op", name).Msg("Starting")
		if err := f(ctx); err != nil {
			internalUtils.Log.Err(err).Str("op", name).Msg("Failed")
			return err
		}
		if s.Journal == nil {
			return nil
		}
		return s.Journal.MarkDone(name)
	}
}

// WriteDAG writes the dag.
func (s *State) WriteDAG(g *herd.Graph) (out string) {
	for i, layer := range g.Analyze() {
		out += fmt.Sprintf("%d.\n", i+1)
		for _, entry := range layer {
			if entry.Error != nil {
				out += fmt.Sprintf(" <%s> (error: %s) (background: %t) (weak: %t) (run: %t)\n", entry.Name, entry.Error.Error(), entry.Background, entry.WeakDeps, entry.Executed)
			} else {
				out += fmt.Sprintf(" <%s> (background: %t) (weak: %t) (run: %t)\n", entry.Name, entry.Background, entry.WeakDeps, entry.Executed)
			}
		}
	}
	return
}

// DAGErrors returns the errors of the ops that failed in the last run.
func (s *State) DAGErrors(g *herd.Graph) error {
	var result *multierror.Error
	for _, layer := range g.Analyze() {
		for _, entry := range layer {
			if entry.Error != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", entry.Name, entry.Error))
			}
		}
	}
	return result.ErrorOrNil()
}

// LogIfErrorAndReturn will log if there is an error with the given context as message
// Context can be empty
// Will also return the error.
func (s *State) LogIfErrorAndReturn(e error, msgContext string) error {
	if e != nil {
		internalUtils.Log.Err(e).Msg(msgContext)
	}
	return e
}

// AddToFstab will try to add an entry to the fstab list
// Will check if the entry exists before adding it to avoid duplicates.
func (s *State) AddToFstab(tmpFstab *fstab.Mount) {
	for _, f := range s.fstabs {
		if f.Spec == tmpFstab.Spec {
			internalUtils.Log.Debug().Interface("existing", f).Interface("duplicated", tmpFstab).Msg("Duplicated fstab entry found, not adding")
			return
		}
	}
	s.fstabs = append(s.fstabs, tmpFstab)
}

// Fstabs returns the entries collected from the mounts so far.
func (s *State) Fstabs() []*fstab.Mount {
	return s.fstabs
}
