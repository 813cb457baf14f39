package schema

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pinebook-tools/pbpinstall/internal/constants"
	"github.com/pinebook-tools/pbpinstall/pkg/layout"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Device     string          `yaml:"device"`
	Mountpoint string          `yaml:"mountpoint"`
	Layout     layout.Geometry `yaml:"layout"`
	Bootloader []layout.Image  `yaml:"bootloader"`
	Encryption Encryption      `yaml:"encryption"`
	Packages   []string        `yaml:"packages"`
	System     System          `yaml:"system"`
	Initramfs  Initramfs       `yaml:"initramfs"`
	Extlinux   Extlinux        `yaml:"extlinux"`
	// HookPaths are yip cloud-config files or dirs run before cleanup.
	HookPaths   []string `yaml:"hook_paths"`
	JournalPath string   `yaml:"journal_path"`
}

func DefaultConfig() *Config {
	return &Config{
		Device:     constants.DefaultDevice,
		Mountpoint: constants.DefaultMountpoint,
		Layout:     layout.Default(),
		Bootloader: layout.DefaultImages(),
		Encryption: Encryption{
			MapperName:  constants.DefaultMapperName,
			KeyFile:     constants.DefaultHostKeyFile,
			BootKeyFile: constants.DefaultBootKeyFile,
		},
		Packages: constants.DefaultPackages(),
		System: System{
			Hostname:    "pinebook",
			Locale:      "en_US.UTF-8",
			Keymap:      "us",
			Timezone:    constants.TimezoneAutoDetect,
			TimezoneURL: constants.DefaultTimezoneURL,
		},
		Initramfs: Initramfs{
			Modules:     constants.DefaultInitramfsModules(),
			Hooks:       constants.DefaultInitramfsHooks(),
			Compression: "lz4",
		},
		Extlinux: Extlinux{
			Label:   "Arch Linux ARM",
			Kernel:  "/Image",
			FDT:     "/dtbs/rockchip/rk3399-pinebook-pro.dtb",
			Initrd:  "/initramfs-linux.img",
			Cmdline: constants.DefaultCmdline(),
		},
		JournalPath: constants.DefaultJournalPath,
	}
}

// LoadConfig returns the defaults overlaid with the yaml file at path, if any.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}
	dat, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(dat, c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}

// ApplyEnvFile overlays PBP_* keys from a dotenv file. A missing file is not an error.
func (c *Config) ApplyEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return c.ApplyEnv(env)
}

func (c *Config) ApplyEnv(env map[string]string) error {
	set := func(key string, dst *string) {
		if v, ok := env[key]; ok && v != "" {
			*dst = v
		}
	}
	set("PBP_DEVICE", &c.Device)
	set("PBP_MOUNTPOINT", &c.Mountpoint)
	set("PBP_HOSTNAME", &c.System.Hostname)
	set("PBP_LOCALE", &c.System.Locale)
	set("PBP_KEYMAP", &c.System.Keymap)
	set("PBP_TIMEZONE", &c.System.Timezone)
	if v, ok := env["PBP_PACKAGES"]; ok && strings.TrimSpace(v) != "" {
		c.Packages = strings.Fields(v)
	}
	if v, ok := env["PBP_WIPE"]; ok && v != "" {
		wipe, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PBP_WIPE: %w", err)
		}
		c.Encryption.Wipe = wipe
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("no target device")
	}
	return c.Layout.Validate(c.Bootloader)
}

// BootPartition is partition 1 of the target device.
func (c *Config) BootPartition() string {
	return layout.PartitionPath(c.Device, 1)
}

func (c *Config) RootPartition() string {
	return layout.PartitionPath(c.Device, 2)
}

func (c *Config) MapperDevice() string {
	return "/dev/mapper/" + c.Encryption.MapperName
}

// Cmdline expands the placeholders in the extlinux command line tokens.
func (c *Config) Cmdline() []string {
	r := strings.NewReplacer(
		"{root}", c.RootPartition(),
		"{boot}", c.BootPartition(),
		"{mapper}", c.Encryption.MapperName,
		"{bootkey}", c.Encryption.BootKeyFile,
	)
	out := make([]string, 0, len(c.Extlinux.Cmdline))
	for _, t := range c.Extlinux.Cmdline {
		out = append(out, r.Replace(t))
	}
	return out
}
