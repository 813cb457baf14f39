package op

import (
	"context"
	"strings"
)

// Command is a single invocation of an external tool.
type Command struct {
	Name string
	Args []string
	// Stdin is fed to the tool and never logged, use it for secrets.
	Stdin string
	// Chroot runs the command with this directory as root when set.
	Chroot string
}

func Cmd(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// InChroot returns a copy of c that runs inside root.
func (c Command) InChroot(root string) Command {
	c.Chroot = root
	return c
}

// WithStdin returns a copy of c that reads stdin from s.
func (c Command) WithStdin(s string) Command {
	c.Stdin = s
	return c
}

func (c Command) String() string {
	cmd := strings.Join(append([]string{c.Name}, c.Args...), " ")
	if c.Chroot != "" {
		return "chroot " + c.Chroot + " " + cmd
	}
	return cmd
}

// System is everything the installer does to the host besides writing files.
type System interface {
	Run(ctx context.Context, c Command) (string, error)
	Mount(m MountOperation) error
	Unmount(target string) error
	Mounted(target string) (bool, error)
	// Mounts lists mountpoints at or below root, deepest first.
	Mounts(root string) ([]string, error)
	// Settle waits for udev to create the given device nodes.
	Settle(ctx context.Context, devices ...string) error
	DiskSize(device string) (uint64, error)
	Sync()
}
