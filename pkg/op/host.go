package op

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/containerd/containerd/mount"
	"github.com/moby/sys/mountinfo"
	"github.com/pinebook-tools/pbpinstall/internal/constants"
	internalUtils "github.com/pinebook-tools/pbpinstall/internal/utils"
	"github.com/twpayne/go-vfs/v4"
	"golang.org/x/sys/unix"
)

// Host runs commands and mounts on the machine we are running on.
type Host struct {
	// Output, when set, also receives the tools' output as it is produced.
	Output io.Writer
}

func (h Host) Run(ctx context.Context, c Command) (string, error) {
	var buf bytes.Buffer
	internalUtils.Log.Info().Msg("+ " + c.String())

	run := func() error {
		cmd := exec.CommandContext(ctx, c.Name, c.Args...)
		var w io.Writer = &buf
		if h.Output != nil {
			w = io.MultiWriter(&buf, h.Output)
		}
		cmd.Stdout = w
		cmd.Stderr = w
		if c.Stdin != "" {
			cmd.Stdin = strings.NewReader(c.Stdin)
		}
		return cmd.Run()
	}

	var err error
	if c.Chroot != "" {
		err = internalUtils.NewChroot(c.Chroot).RunCallback(run)
	} else {
		err = run()
	}
	out := buf.String()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", c.Name, err, strings.TrimSpace(out))
	}
	return out, nil
}

func (h Host) Mount(m MountOperation) error {
	l := internalUtils.Log.With().Str("what", m.MountOption.Source).Str("where", m.Target).Str("type", m.MountOption.Type).Strs("options", m.MountOption.Options).Logger()

	if m.PrepareCallback != nil {
		if err := m.PrepareCallback(); err != nil {
			l.Warn().Err(err).Msg("executing mount callback")
			return err
		}
	}
	mounted, err := mountinfo.Mounted(m.Target)
	if err != nil {
		l.Warn().Err(err).Msg("checking mount status")
		return err
	}
	if mounted {
		l.Debug().Msg("Already mounted")
		return constants.ErrAlreadyMounted
	}
	l.Info().Msg("mounting")
	return mount.All([]mount.Mount{m.MountOption}, m.Target)
}

func (h Host) Unmount(target string) error {
	internalUtils.Log.Info().Str("what", target).Msg("unmounting")
	return mount.UnmountAll(target, 0)
}

func (h Host) Mounted(target string) (bool, error) {
	return mountinfo.Mounted(target)
}

func (h Host) Mounts(root string) ([]string, error) {
	return internalUtils.MountsUnder(root)
}

func (h Host) Settle(ctx context.Context, devices ...string) error {
	if _, err := h.Run(ctx, Cmd("udevadm", "settle")); err != nil {
		internalUtils.Log.Warn().Err(err).Msg("udevadm settle")
	}
	return internalUtils.WaitForPaths(ctx, vfs.OSFS, 10, time.Second, devices...)
}

func (h Host) DiskSize(device string) (uint64, error) {
	return internalUtils.DiskSize(device)
}

func (h Host) Sync() {
	unix.Sync()
}
