package utils

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/jaypipes/ghw"
)

// DiskSize returns the size in bytes of a whole disk such as /dev/mmcblk2.
func DiskSize(device string) (uint64, error) {
	blk, err := ghw.Block()
	if err != nil {
		return 0, err
	}
	name := filepath.Base(device)
	for _, disk := range blk.Disks {
		if disk.Name == name {
			Log.Debug().Str("dev", device).Str("size", humanize.IBytes(disk.SizeBytes)).Str("model", disk.Model).Msg("found target disk")
			return disk.SizeBytes, nil
		}
	}
	return 0, fmt.Errorf("disk %s not found", device)
}
