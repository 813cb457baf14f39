package utils

import (
	"sort"

	"github.com/moby/sys/mountinfo"
)

// MountsUnder lists the mountpoints at or below root, deepest first, which is
// the order they have to be unmounted in.
func MountsUnder(root string) ([]string, error) {
	infos, err := mountinfo.GetMounts(mountinfo.PrefixFilter(root))
	if err != nil {
		return nil, err
	}
	var points []string
	for _, i := range infos {
		points = append(points, i.Mountpoint)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(points)))
	return points, nil
}
