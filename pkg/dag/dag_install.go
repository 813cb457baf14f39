package dag

import (
	cnst "github.com/pinebook-tools/pbpinstall/internal/constants"
	internalUtils "github.com/pinebook-tools/pbpinstall/internal/utils"
	"github.com/pinebook-tools/pbpinstall/pkg/state"
	"github.com/spectrocloud-labs/herd"
)

type dagStep struct {
	name string
	add  func(g *herd.Graph, opts ...herd.OpOption) error
}

// installSteps returns the install ops in execution order. Optional ops are
// left out when their feature is disabled.
func installSteps(s *state.State) []dagStep {
	steps := []dagStep{
		{cnst.OpClockSync, s.ClockSyncDagStep},
		{cnst.OpPartition, s.PartitionDagStep},
	}
	if s.Config.Encryption.Wipe {
		steps = append(steps, dagStep{cnst.OpWipeRoot, s.WipeRootDagStep})
	}
	steps = append(steps,
		dagStep{cnst.OpEncryptRoot, s.EncryptRootDagStep},
		dagStep{cnst.OpOpenRoot, s.OpenRootDagStep},
		dagStep{cnst.OpFormat, s.FormatDagStep},
		dagStep{cnst.OpMountTarget, s.MountTargetDagStep},
		dagStep{cnst.OpInstallKeyfile, s.InstallKeyfileDagStep},
		dagStep{cnst.OpWriteCrypttab, s.WriteCrypttabDagStep},
		dagStep{cnst.OpWriteFstab, s.WriteFstabDagStep},
		dagStep{cnst.OpInstallPackages, s.InstallPackagesDagStep},
		dagStep{cnst.OpConfigureSystem, s.ConfigureSystemDagStep},
		dagStep{cnst.OpGenerateLocale, s.GenerateLocaleDagStep},
		dagStep{cnst.OpSetRootPassword, s.SetRootPasswordDagStep},
		dagStep{cnst.OpWriteHosts, s.WriteHostsDagStep},
		dagStep{cnst.OpWriteMkinitcpio, s.WriteMkinitcpioDagStep},
		dagStep{cnst.OpBuildInitramfs, s.BuildInitramfsDagStep},
		dagStep{cnst.OpWriteBootloader, s.WriteBootloaderDagStep},
		dagStep{cnst.OpWriteExtlinux, s.WriteExtlinuxDagStep},
	)
	if len(s.Config.HookPaths) > 0 {
		steps = append(steps, dagStep{cnst.OpRunHooks, s.RunHooksDagStep})
	}
	return append(steps, dagStep{cnst.OpCleanup, s.CleanupDagStep})
}

// RegisterInstall registers the install as a single chain: every op strongly
// depends on the one before it, so the first failure stops the rest.
func RegisterInstall(s *state.State, g *herd.Graph) error {
	var prev string
	for _, step := range installSteps(s) {
		var opts []herd.OpOption
		if prev != "" {
			opts = append(opts, herd.WithDeps(prev))
		}
		if err := s.LogIfErrorAndReturn(step.add(g, opts...), step.name); err != nil {
			return err
		}
		prev = step.name
	}
	internalUtils.Log.Debug().Str("dag", s.WriteDAG(g)).Msg("Install dag registered")
	return nil
}
