package state

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	cnst "github.com/pinebook-tools/pbpinstall/internal/constants"
	internalUtils "github.com/pinebook-tools/pbpinstall/internal/utils"
	"github.com/pinebook-tools/pbpinstall/pkg/layout"
	"github.com/pinebook-tools/pbpinstall/pkg/render"
	"github.com/spectrocloud-labs/herd"
)

// ClockSyncDagStep enables NTP so package signatures and certificates verify.
func (s *State) ClockSyncDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpClockSync, append(opts, herd.WithCallback(s.step(cnst.OpClockSync, func(ctx context.Context) error {
		return s.run(ctx, "timedatectl", "set-ntp", "true")
	})))...)
}

// WriteBootloaderDagStep writes the u-boot images shipped in the target's
// /boot to their raw offsets on the device, lowest sector first.
func (s *State) WriteBootloaderDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpWriteBootloader, append(opts, herd.WithCallback(s.step(cnst.OpWriteBootloader, func(ctx context.Context) error {
		c := s.Config
		images := layout.SortedImages(c.Bootloader)
		for _, img := range images {
			src := s.target(img.Path)
			info, err := s.FS.Stat(src)
			if err != nil {
				return fmt.Errorf("bootloader image: %w", err)
			}
			if err = c.Layout.CheckImageFits(images, img, info.Size()); err != nil {
				return err
			}
			internalUtils.Log.Info().Str("image", img.Path).Uint64("sector", img.Sector).Msg("Writing bootloader image")
			err = s.run(ctx, "dd", "if="+src, "of="+c.Device, fmt.Sprintf("seek=%d", img.Sector), "conv=notrunc,fsync")
			if err != nil {
				return err
			}
		}
		s.System.Sync()
		return nil
	})))...)
}

func (s *State) WriteExtlinuxDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpWriteExtlinux, append(opts, herd.WithCallback(s.step(cnst.OpWriteExtlinux, func(_ context.Context) error {
		content := render.Extlinux(s.Config.Extlinux, s.Config.Cmdline())
		return render.WriteFile(s.FS, s.target(cnst.ExtlinuxConfigPath), content, 0o644)
	})))...)
}

// RunHooksDagStep runs the user provided yip stages against the installed system.
func (s *State) RunHooksDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpRunHooks, append(opts, herd.WithCallback(s.step(cnst.OpRunHooks, func(_ context.Context) error {
		return s.RunHooks(cnst.HookStage, s.Config.HookPaths...)
	})))...)
}

// CleanupDagStep flushes, unmounts the target deepest first and closes the
// root volume.
func (s *State) CleanupDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpCleanup, append(opts, herd.WithCallback(s.step(cnst.OpCleanup, func(ctx context.Context) error {
		s.System.Sync()
		mounts, err := s.System.Mounts(s.Config.Mountpoint)
		if err != nil {
			return err
		}
		for _, m := range mounts {
			internalUtils.Log.Debug().Str("where", m).Msg("Unmounting")
			if err = s.System.Unmount(m); err != nil {
				return err
			}
		}
		return s.run(ctx, "cryptsetup", "close", s.Config.Encryption.MapperName)
	})))...)
}

// ForceCleanup tears down whatever a failed run left behind. It keeps going on
// errors and returns all of them.
func (s *State) ForceCleanup(ctx context.Context) error {
	var result *multierror.Error
	s.System.Sync()

	mounts, err := s.System.Mounts(s.Config.Mountpoint)
	if err != nil {
		result = multierror.Append(result, err)
	}
	for _, m := range mounts {
		if err = s.System.Unmount(m); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, name := range []string{s.Config.Encryption.MapperName, cnst.WipeMapperName} {
		if _, err = s.FS.Stat("/dev/mapper/" + name); err != nil {
			continue
		}
		if err = s.run(ctx, "cryptsetup", "close", name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
