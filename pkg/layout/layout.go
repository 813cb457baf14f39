// Package layout holds the fixed eMMC geometry of the Pinebook Pro: where the
// Rockchip boot ROM expects the bootloader stages and where the two GPT
// partitions live. All values are in sectors.
package layout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pinebook-tools/pbpinstall/internal/constants"
)

// gptReservedSectors is the protective MBR plus the primary GPT header and
// entries. Nothing raw may be written below it.
const gptReservedSectors = 34

// Image is a bootloader blob written verbatim at an absolute sector.
type Image struct {
	Path   string `yaml:"path"`
	Sector uint64 `yaml:"sector"`
}

type Geometry struct {
	SectorSize uint64 `yaml:"sector_size"`
	BootStart  uint64 `yaml:"boot_start"`
	BootSize   uint64 `yaml:"boot_size"`
	RootGap    uint64 `yaml:"root_gap"`
}

// Default is a 128MiB boot partition at 16MiB with the root partition 1MiB after it.
func Default() Geometry {
	return Geometry{
		SectorSize: constants.SectorSize,
		BootStart:  32768,
		BootSize:   262144,
		RootGap:    2048,
	}
}

// DefaultImages are the idbloader (TPL+SPL) and u-boot FIT image locations
// the RK3399 boot ROM reads.
func DefaultImages() []Image {
	return []Image{
		{Path: "/boot/idbloader.img", Sector: 64},
		{Path: "/boot/u-boot.itb", Sector: 16384},
	}
}

// BootEnd is the first sector after the boot partition.
func (g Geometry) BootEnd() uint64 {
	return g.BootStart + g.BootSize
}

func (g Geometry) RootStart() uint64 {
	return g.BootEnd() + g.RootGap
}

func (g Geometry) Bytes(sectors uint64) uint64 {
	return sectors * g.SectorSize
}

// PartedArgs returns the parted arguments creating the GPT table and both
// partitions. parted takes inclusive end sectors.
func (g Geometry) PartedArgs(device string) []string {
	return []string{
		"-s", device,
		"mklabel", "gpt",
		"mkpart", "primary", "ext4", sectors(g.BootStart), sectors(g.BootEnd() - 1),
		"mkpart", "primary", "ext4", sectors(g.RootStart()), "100%",
	}
}

// Validate checks that the boot partition clears the GPT and that every image
// starts after the GPT, before the boot partition, on a sector of its own.
func (g Geometry) Validate(images []Image) error {
	if g.SectorSize == 0 {
		return fmt.Errorf("%w: sector size is 0", constants.ErrInvalidLayout)
	}
	if g.BootSize == 0 {
		return fmt.Errorf("%w: boot partition is empty", constants.ErrInvalidLayout)
	}
	if g.BootStart < gptReservedSectors {
		return fmt.Errorf("%w: boot partition starts at %d, inside the GPT", constants.ErrInvalidLayout, g.BootStart)
	}

	sorted := SortedImages(images)
	for i, img := range sorted {
		if img.Sector < gptReservedSectors {
			return fmt.Errorf("%w: %s at sector %d overwrites the GPT", constants.ErrInvalidLayout, img.Path, img.Sector)
		}
		if img.Sector >= g.BootStart {
			return fmt.Errorf("%w: %s at sector %d is past the boot partition start %d", constants.ErrInvalidLayout, img.Path, img.Sector, g.BootStart)
		}
		if i > 0 && sorted[i-1].Sector == img.Sector {
			return fmt.Errorf("%w: %s and %s share sector %d", constants.ErrInvalidLayout, sorted[i-1].Path, img.Path, img.Sector)
		}
	}
	return nil
}

// CheckImageFits checks that an image of the given size written at img.Sector
// ends before the next image or the boot partition.
func (g Geometry) CheckImageFits(images []Image, img Image, size int64) error {
	limit := g.BootStart
	for _, other := range images {
		if other.Sector > img.Sector && other.Sector < limit {
			limit = other.Sector
		}
	}
	needed := (uint64(size) + g.SectorSize - 1) / g.SectorSize
	if img.Sector+needed > limit {
		return fmt.Errorf("%w: %s is %s and does not fit between sector %d and %d",
			constants.ErrInvalidLayout, img.Path, humanize.IBytes(uint64(size)), img.Sector, limit)
	}
	return nil
}

// CheckDisk makes sure a disk of the given size leaves room for the root partition.
func (g Geometry) CheckDisk(sizeBytes uint64) error {
	if sizeBytes <= g.Bytes(g.RootStart()) {
		return fmt.Errorf("%w: disk of %s is too small, root partition starts at %s",
			constants.ErrInvalidLayout, humanize.IBytes(sizeBytes), humanize.IBytes(g.Bytes(g.RootStart())))
	}
	return nil
}

// String describes the layout for logs and plans.
func (g Geometry) String() string {
	return fmt.Sprintf("boot=[%d,%d) (%s) root=[%d,end)",
		g.BootStart, g.BootEnd(), humanize.IBytes(g.Bytes(g.BootSize)), g.RootStart())
}

// SortedImages returns a copy of images ordered by sector.
func SortedImages(images []Image) []Image {
	sorted := make([]Image, len(images))
	copy(sorted, images)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Sector < sorted[j].Sector
	})
	return sorted
}

// PartitionPath returns the device node of partition n on device.
// mmcblk, nvme and loop devices use a "p" separator.
func PartitionPath(device string, n int) string {
	base := device[strings.LastIndex(device, "/")+1:]
	if len(base) > 0 && base[len(base)-1] >= '0' && base[len(base)-1] <= '9' {
		return fmt.Sprintf("%sp%d", device, n)
	}
	return device + strconv.Itoa(n)
}

func sectors(n uint64) string {
	return strconv.FormatUint(n, 10) + "s"
}
