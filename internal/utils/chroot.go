/*
Copyright © 2022 SUSE LLC
Copyright © 2023 Kairos authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Chroot runs callbacks with the installed system as root, the way arch-chroot
// does: the API filesystems are bind mounted in first and removed afterwards.
type Chroot struct {
	path          string
	defaultMounts []string
	activeMounts  []string
}

func NewChroot(path string) *Chroot {
	return &Chroot{
		path:          path,
		defaultMounts: []string{"/dev", "/proc", "/sys", "/run"},
		activeMounts:  []string{},
	}
}

// Prepare bind mounts defaultMounts under the chroot path.
func (c *Chroot) Prepare() (err error) {
	if len(c.activeMounts) > 0 {
		return errors.New("there are already active mountpoints for this instance")
	}

	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	for _, mnt := range c.defaultMounts {
		mountPoint := filepath.Join(c.path, mnt)
		if err = os.MkdirAll(mountPoint, 0755); err != nil {
			Log.Err(err).Str("what", mountPoint).Msg("Creating dir")
			return err
		}
		if err = unix.Mount(mnt, mountPoint, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			Log.Err(err).Str("where", mountPoint).Str("what", mnt).Msg("Mounting chroot bind")
			return err
		}
		c.activeMounts = append(c.activeMounts, mountPoint)
	}
	return nil
}

// Close unmounts everything Prepare mounted, in reverse order.
func (c *Chroot) Close() error {
	var failures []string
	for len(c.activeMounts) > 0 {
		curr := c.activeMounts[len(c.activeMounts)-1]
		c.activeMounts = c.activeMounts[:len(c.activeMounts)-1]
		Log.Debug().Str("what", curr).Msg("Unmounting from chroot")
		if err := unix.Unmount(curr, unix.MNT_DETACH); err != nil {
			Log.Err(err).Str("what", curr).Msg("Error unmounting")
			failures = append(failures, curr)
		}
	}
	if len(failures) > 0 {
		c.activeMounts = failures
		return fmt.Errorf("failed closing chroot environment. Unmount failures: %v", failures)
	}
	return nil
}

// RunCallback chroots into the path, runs callback and restores the old root.
func (c *Chroot) RunCallback(callback func() error) (err error) {
	currentPath, err := os.Getwd()
	if err != nil {
		return err
	}
	defer func() {
		if tmpErr := os.Chdir(currentPath); err == nil {
			err = tmpErr
		}
	}()

	oldRoot, err := os.Open("/")
	if err != nil {
		return err
	}
	defer oldRoot.Close()

	if err = c.Prepare(); err != nil {
		return err
	}
	defer func() {
		if tmpErr := c.Close(); err == nil {
			err = tmpErr
		}
	}()

	if err = unix.Chdir(c.path); err != nil {
		Log.Err(err).Str("path", c.path).Msg("Can't chdir")
		return err
	}
	if err = unix.Chroot(c.path); err != nil {
		Log.Err(err).Str("path", c.path).Msg("Can't chroot")
		return err
	}

	// The old root has to be back before Close runs, its paths are host paths.
	defer func() {
		if tmpErr := oldRoot.Chdir(); tmpErr != nil {
			Log.Err(tmpErr).Msg("Can't change to old root dir")
			if err == nil {
				err = tmpErr
			}
			return
		}
		if tmpErr := unix.Chroot("."); tmpErr != nil {
			Log.Err(tmpErr).Msg("Can't chroot back to old root")
			if err == nil {
				err = tmpErr
			}
		}
	}()

	return callback()
}
