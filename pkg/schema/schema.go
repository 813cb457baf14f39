package schema

import "github.com/deniswernert/go-fstab"

type FsTabs []*fstab.Mount

// Initramfs is what ends up in mkinitcpio.conf.
type Initramfs struct {
	Modules     []string `yaml:"modules"`
	Hooks       []string `yaml:"hooks"`
	Compression string   `yaml:"compression"`
}

// Extlinux is the u-boot distro boot entry.
type Extlinux struct {
	Label   string   `yaml:"label"`
	Kernel  string   `yaml:"kernel"`
	FDT     string   `yaml:"fdt"`
	Initrd  string   `yaml:"initrd"`
	Cmdline []string `yaml:"cmdline"`
}

// System is the identity of the installed machine.
type System struct {
	Hostname     string `yaml:"hostname"`
	Locale       string `yaml:"locale"`
	Keymap       string `yaml:"keymap"`
	Timezone     string `yaml:"timezone"` // "auto" resolves it from TimezoneURL
	TimezoneURL  string `yaml:"timezone_url"`
	RootPassword string `yaml:"root_password"`
}

// Encryption describes the LUKS2 root volume.
type Encryption struct {
	MapperName  string `yaml:"mapper_name"`
	KeyFile     string `yaml:"key_file"`      // where the key is generated on the host
	BootKeyFile string `yaml:"boot_key_file"` // where it lives relative to the boot partition
	Passphrase  string `yaml:"passphrase"`
	Wipe        bool   `yaml:"wipe"`
}
