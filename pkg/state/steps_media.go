package state

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	cnst "github.com/pinebook-tools/pbpinstall/internal/constants"
	internalUtils "github.com/pinebook-tools/pbpinstall/internal/utils"
	"github.com/pinebook-tools/pbpinstall/pkg/op"
	"github.com/pinebook-tools/pbpinstall/pkg/render"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
)

// Media preparation steps: partition table, LUKS root, filesystems, mounts and
// the files that describe them.

// PartitionDagStep writes the GPT with the boot and root partitions and waits
// for their device nodes.
func (s *State) PartitionDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpPartition, append(opts, herd.WithCallback(s.step(cnst.OpPartition, func(ctx context.Context) error {
		c := s.Config
		size, err := s.System.DiskSize(c.Device)
		if err != nil {
			return err
		}
		if err = c.Layout.CheckDisk(size); err != nil {
			return err
		}
		internalUtils.Log.Info().Str("device", c.Device).Str("size", humanize.IBytes(size)).Str("layout", c.Layout.String()).Msg("Partitioning")

		if err = s.run(ctx, "parted", c.Layout.PartedArgs(c.Device)...); err != nil {
			return err
		}
		if err = s.run(ctx, "partprobe", c.Device); err != nil {
			return err
		}
		return s.System.Settle(ctx, c.BootPartition(), c.RootPartition())
	})))...)
}

// WipeRootDagStep fills the root partition with encrypted zeros through a
// throwaway plain dm-crypt mapping, so used and free blocks look alike.
func (s *State) WipeRootDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpWipeRoot, append(opts, herd.WithCallback(s.step(cnst.OpWipeRoot, func(ctx context.Context) error {
		wipeDevice := "/dev/mapper/" + cnst.WipeMapperName
		err := s.run(ctx, "cryptsetup", "open", "--type", "plain", "--key-file", "/dev/urandom", s.Config.RootPartition(), cnst.WipeMapperName)
		if err != nil {
			return err
		}
		// dd stops when the mapping is full and reports it as an error.
		out, err := s.System.Run(ctx, op.Cmd("dd", "if=/dev/zero", "of="+wipeDevice, "bs=1M", "status=progress"))
		if err != nil && !strings.Contains(out, "No space left on device") {
			return err
		}
		return s.run(ctx, "cryptsetup", "close", cnst.WipeMapperName)
	})))...)
}

// EncryptRootDagStep generates the key file and formats the root partition as
// LUKS2 with it, then adds the passphrase to a second slot.
func (s *State) EncryptRootDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpEncryptRoot, append(opts, herd.WithCallback(s.step(cnst.OpEncryptRoot, func(ctx context.Context) error {
		enc := s.Config.Encryption
		if enc.Passphrase == "" {
			return errors.New("no passphrase configured for the root volume")
		}
		if err := s.writeKeyFile(enc.KeyFile); err != nil {
			return fmt.Errorf("writing key file: %w", err)
		}
		err := s.run(ctx, "cryptsetup", "luksFormat", "--type", "luks2", "--batch-mode", s.Config.RootPartition(), enc.KeyFile)
		if err != nil {
			return err
		}
		_, err = s.System.Run(ctx, op.Cmd("cryptsetup", "luksAddKey", "--key-file", enc.KeyFile, "--batch-mode", s.Config.RootPartition()).WithStdin(enc.Passphrase+"\n"))
		return err
	})))...)
}

func (s *State) writeKeyFile(path string) error {
	key := make([]byte, cnst.KeyFileSize)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	if err := vfs.MkdirAll(s.FS, filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := s.FS.WriteFile(path, key, 0o400); err != nil {
		return err
	}
	return s.FS.Chmod(path, 0o400)
}

// OpenRootDagStep opens the LUKS volume with the key file, or with the
// passphrase when the key file is gone (resuming after a reboot) and its copy
// on the boot partition is already in place.
func (s *State) OpenRootDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpOpenRoot, append(opts, herd.WithCallback(s.step(cnst.OpOpenRoot, func(ctx context.Context) error {
		c := s.Config
		if _, err := s.FS.Stat(c.MapperDevice()); err == nil {
			internalUtils.Log.Info().Str("what", c.MapperDevice()).Msg("Already open")
			return nil
		}
		if _, err := s.FS.Stat(c.Encryption.KeyFile); err == nil {
			return s.run(ctx, "cryptsetup", "open", "--key-file", c.Encryption.KeyFile, c.RootPartition(), c.Encryption.MapperName)
		}
		// install-keyfile copies the host key, it cannot run once the key is lost
		if s.Journal == nil || !s.Journal.Done(cnst.OpInstallKeyfile) {
			return fmt.Errorf("key file %s is gone before %s completed, start the install again without --resume",
				c.Encryption.KeyFile, cnst.OpInstallKeyfile)
		}
		internalUtils.Log.Warn().Str("keyfile", c.Encryption.KeyFile).Msg("Key file not found, opening with the passphrase")
		_, err := s.System.Run(ctx, op.Cmd("cryptsetup", "open", c.RootPartition(), c.Encryption.MapperName).WithStdin(c.Encryption.Passphrase+"\n"))
		return err
	})))...)
}

func (s *State) FormatDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpFormat, append(opts, herd.WithCallback(s.step(cnst.OpFormat, func(ctx context.Context) error {
		if err := s.run(ctx, "mkfs.ext4", "-F", s.Config.MapperDevice()); err != nil {
			return err
		}
		return s.run(ctx, "mkfs.ext4", "-F", s.Config.BootPartition())
	})))...)
}

// MountTargetDagStep mounts the root volume on the mountpoint and the boot
// partition under it, collecting the fstab entries.
func (s *State) MountTargetDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpMountTarget, append(opts, herd.WithCallback(s.step(cnst.OpMountTarget, func(_ context.Context) error {
		c := s.Config
		root := op.NewMountOperation(c.MapperDevice(), c.Mountpoint, "ext4", c.Mountpoint, 1)
		root.PrepareCallback = func() error {
			return vfs.MkdirAll(s.FS, c.Mountpoint, 0o755)
		}
		boot := op.NewMountOperation(c.BootPartition(), s.target("/boot"), "ext4", c.Mountpoint, 2)
		boot.PrepareCallback = func() error {
			return vfs.MkdirAll(s.FS, s.target("/boot"), 0o755)
		}

		for _, m := range []op.MountOperation{root, boot} {
			err := s.System.Mount(m)
			if err != nil && !errors.Is(err, cnst.ErrAlreadyMounted) {
				return err
			}
			s.AddToFstab(&m.FstabEntry)
		}
		return nil
	})))...)
}

// InstallKeyfileDagStep copies the key file to the plain boot partition, where
// the initramfs reads it to unlock root unattended.
func (s *State) InstallKeyfileDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpInstallKeyfile, append(opts, herd.WithCallback(s.step(cnst.OpInstallKeyfile, func(_ context.Context) error {
		enc := s.Config.Encryption
		key, err := s.FS.ReadFile(enc.KeyFile)
		if err != nil {
			return err
		}
		dst := s.target("/boot", enc.BootKeyFile)
		if err = s.FS.WriteFile(dst, key, 0o400); err != nil {
			return err
		}
		return s.FS.Chmod(dst, 0o400)
	})))...)
}

func (s *State) WriteCrypttabDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpWriteCrypttab, append(opts, herd.WithCallback(s.step(cnst.OpWriteCrypttab, func(_ context.Context) error {
		c := s.Config
		line := render.Crypttab(c.Encryption.MapperName, c.RootPartition(), filepath.Join("/boot", c.Encryption.BootKeyFile))
		return render.WriteFile(s.FS, s.target("/etc/crypttab"), line, 0o600)
	})))...)
}

func (s *State) WriteFstabDagStep(g *herd.Graph, opts ...herd.OpOption) error {
	return g.Add(cnst.OpWriteFstab, append(opts, herd.WithCallback(s.step(cnst.OpWriteFstab, func(_ context.Context) error {
		entries := s.Fstabs()
		if len(entries) == 0 {
			return errors.New("no mounts recorded for fstab")
		}
		for _, f := range entries {
			internalUtils.Log.Debug().Str("what", f.String()).Msg("Adding line to fstab")
		}
		return render.WriteFile(s.FS, s.target("/etc/fstab"), render.Fstab(entries), 0o644)
	})))...)
}
