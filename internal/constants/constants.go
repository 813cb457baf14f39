package constants

import "errors"

var (
	ErrAlreadyMounted = errors.New("already mounted")
	ErrInvalidLayout  = errors.New("invalid partition layout")
)

const (
	OpClockSync         = "clock-sync"
	OpPartition         = "partition"
	OpWipeRoot          = "wipe-root"
	OpEncryptRoot       = "encrypt-root"
	OpOpenRoot          = "open-root"
	OpFormat            = "format-filesystems"
	OpMountTarget       = "mount-target"
	OpInstallKeyfile    = "install-keyfile"
	OpWriteCrypttab     = "write-crypttab"
	OpWriteFstab        = "write-fstab"
	OpInstallPackages   = "install-packages"
	OpConfigureSystem   = "configure-system"
	OpGenerateLocale    = "generate-locale"
	OpSetRootPassword   = "set-root-password"
	OpWriteHosts        = "write-hosts"
	OpWriteMkinitcpio   = "write-mkinitcpio"
	OpBuildInitramfs    = "build-initramfs"
	OpWriteBootloader   = "write-bootloader"
	OpWriteExtlinux     = "write-extlinux"
	OpRunHooks          = "run-hooks"
	OpCleanup           = "cleanup"
	OpInit              = "init"
	HookStage           = "pbpinstall"
	LogDir              = "/var/log/pbpinstall"
	DefaultJournalPath  = "/var/lib/pbpinstall/journal.yaml"
	DefaultTimezoneURL  = "https://ipapi.co/timezone"
	WipeMapperName      = "to_be_wiped"
	SectorSize          = 512
	DefaultConfigPath   = "/etc/pbpinstall/config.yaml"
	DefaultEnvFilePath  = "/etc/pbpinstall/pbpinstall.env"
	DefaultMountpoint   = "/mnt"
	DefaultDevice       = "/dev/mmcblk2"
	DefaultMapperName   = "root"
	DefaultHostKeyFile  = "/tmp/pbpinstall/root.key"
	DefaultBootKeyFile  = "/root.key"
	KeyFileSize         = 2048
	TimezoneAutoDetect  = "auto"
	ExtlinuxConfigPath  = "/boot/extlinux/extlinux.conf"
	MkinitcpioConfPath  = "/etc/mkinitcpio.conf"
)

// ReentrantOps are always executed, even when the journal says they completed,
// as they only (re)establish host state that does not survive a new session.
func ReentrantOps() []string {
	return []string{OpClockSync, OpOpenRoot, OpMountTarget, OpCleanup}
}

// DefaultPackages is the package set bootstrapped into the target root.
func DefaultPackages() []string {
	return []string{
		"base",
		"linux-aarch64",
		"linux-firmware",
		"uboot-pinebookpro",
		"ap6256-firmware",
		"cryptsetup",
		"networkmanager",
	}
}

func DefaultInitramfsModules() []string {
	return []string{"rockchipdrm", "panfrost", "pwm_bl"}
}

func DefaultInitramfsHooks() []string {
	return []string{"base", "udev", "autodetect", "modconf", "block", "keyboard", "keymap", "encrypt", "filesystems", "fsck"}
}

// DefaultCmdline is the kernel command line. Placeholders are expanded once the
// partition devices are known.
func DefaultCmdline() []string {
	return []string{
		"console=ttyS2,1500000",
		"console=tty1",
		"cryptdevice={root}:{mapper}",
		"cryptkey={boot}:ext4:{bootkey}",
		"root=/dev/mapper/{mapper}",
		"rw",
		"rootwait",
	}
}
