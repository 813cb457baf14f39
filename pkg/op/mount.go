package op

import (
	"strings"

	"github.com/containerd/containerd/mount"
	"github.com/deniswernert/go-fstab"
)

type MountOperation struct {
	FstabEntry      fstab.Mount
	MountOption     mount.Mount
	Target          string
	PrepareCallback func() error
}

// NewMountOperation mounts what on where. The fstab entry is relative to root,
// so /mnt/boot becomes /boot.
func NewMountOperation(what, where, fsType, root string, passNo int, options ...string) MountOperation {
	m := mount.Mount{Type: fsType, Source: what, Options: options}
	tab := MountToFstab(m)
	tab.File = TargetRelative(root, where)
	tab.PassNo = passNo
	return MountOperation{
		MountOption: m,
		FstabEntry:  *tab,
		Target:      where,
	}
}

// MountToFstab converts a mount into an fstab entry. No options means defaults.
func MountToFstab(m mount.Mount) *fstab.Mount {
	opts := map[string]string{}
	for _, o := range m.Options {
		if k, v, found := strings.Cut(o, "="); found {
			opts[k] = v
		} else {
			opts[o] = ""
		}
	}
	if len(opts) == 0 {
		opts["defaults"] = ""
	}
	return &fstab.Mount{
		Spec:    m.Source,
		VfsType: m.Type,
		MntOps:  opts,
		Freq:    0,
		PassNo:  0,
	}
}

// TargetRelative strips root from path: /mnt/boot under /mnt is /boot.
func TargetRelative(root, path string) string {
	root = strings.TrimSuffix(root, "/")
	if root == "" || !strings.HasPrefix(path, root) {
		return path
	}
	rel := strings.TrimPrefix(path, root)
	if rel == "" {
		return "/"
	}
	if !strings.HasPrefix(rel, "/") {
		return path
	}
	return rel
}
