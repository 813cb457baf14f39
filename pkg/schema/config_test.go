package schema_test

import (
	"os"
	"path/filepath"

	"github.com/pinebook-tools/pbpinstall/internal/constants"
	"github.com/pinebook-tools/pbpinstall/pkg/schema"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "pbpinstall")
		Expect(err).ToNot(HaveOccurred())
	})
	AfterEach(func() {
		_ = os.RemoveAll(tmpDir)
	})

	Context("defaults", func() {
		It("targets the Pinebook Pro eMMC", func() {
			c := schema.DefaultConfig()
			Expect(c.Device).To(Equal("/dev/mmcblk2"))
			Expect(c.BootPartition()).To(Equal("/dev/mmcblk2p1"))
			Expect(c.RootPartition()).To(Equal("/dev/mmcblk2p2"))
			Expect(c.MapperDevice()).To(Equal("/dev/mapper/root"))
			Expect(c.Encryption.Wipe).To(BeFalse())
			Expect(c.Validate()).To(Succeed())
		})
		It("expands the kernel command line", func() {
			c := schema.DefaultConfig()
			Expect(c.Cmdline()).To(Equal([]string{
				"console=ttyS2,1500000",
				"console=tty1",
				"cryptdevice=/dev/mmcblk2p2:root",
				"cryptkey=/dev/mmcblk2p1:ext4:/root.key",
				"root=/dev/mapper/root",
				"rw",
				"rootwait",
			}))
		})
	})

	Context("LoadConfig", func() {
		It("returns defaults when the file does not exist", func() {
			c, err := schema.LoadConfig(filepath.Join(tmpDir, "missing.yaml"))
			Expect(err).ToNot(HaveOccurred())
			Expect(c).To(Equal(schema.DefaultConfig()))
		})
		It("overlays the yaml values on the defaults", func() {
			path := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(path, []byte(`device: /dev/sda
packages: [base, linux-aarch64]
encryption:
  wipe: true
system:
  hostname: pbp
initramfs:
  compression: zstd
`), 0644)
			Expect(err).ToNot(HaveOccurred())
			c, err := schema.LoadConfig(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(c.Device).To(Equal("/dev/sda"))
			Expect(c.Packages).To(Equal([]string{"base", "linux-aarch64"}))
			Expect(c.Encryption.Wipe).To(BeTrue())
			Expect(c.Encryption.MapperName).To(Equal(constants.DefaultMapperName))
			Expect(c.System.Hostname).To(Equal("pbp"))
			Expect(c.System.Locale).To(Equal("en_US.UTF-8"))
			Expect(c.Initramfs.Compression).To(Equal("zstd"))
			Expect(c.Initramfs.Hooks).To(Equal(constants.DefaultInitramfsHooks()))
			Expect(c.RootPartition()).To(Equal("/dev/sda2"))
		})
		It("fails on invalid yaml", func() {
			path := filepath.Join(tmpDir, "config.yaml")
			Expect(os.WriteFile(path, []byte("device: ["), 0644)).To(Succeed())
			_, err := schema.LoadConfig(path)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("ApplyEnvFile", func() {
		It("overrides values from the env file", func() {
			path := filepath.Join(tmpDir, "pbpinstall.env")
			err := os.WriteFile(path, []byte("PBP_HOSTNAME=\"laptop\"\nPBP_WIPE=true\nPBP_PACKAGES=\"base vim\"\nPBP_TIMEZONE=Europe/Madrid\n"), 0644)
			Expect(err).ToNot(HaveOccurred())
			c := schema.DefaultConfig()
			Expect(c.ApplyEnvFile(path)).To(Succeed())
			Expect(c.System.Hostname).To(Equal("laptop"))
			Expect(c.Encryption.Wipe).To(BeTrue())
			Expect(c.Packages).To(Equal([]string{"base", "vim"}))
			Expect(c.System.Timezone).To(Equal("Europe/Madrid"))
			Expect(c.Device).To(Equal("/dev/mmcblk2"))
		})
		It("ignores a missing env file", func() {
			c := schema.DefaultConfig()
			Expect(c.ApplyEnvFile(filepath.Join(tmpDir, "nope.env"))).To(Succeed())
			Expect(c).To(Equal(schema.DefaultConfig()))
		})
		It("rejects a wipe toggle that is not a boolean", func() {
			c := schema.DefaultConfig()
			Expect(c.ApplyEnv(map[string]string{"PBP_WIPE": "maybe"})).ToNot(Succeed())
		})
	})

	Context("Validate", func() {
		It("requires a device", func() {
			c := schema.DefaultConfig()
			c.Device = ""
			Expect(c.Validate()).ToNot(Succeed())
		})
		It("propagates layout errors", func() {
			c := schema.DefaultConfig()
			c.Bootloader[1].Sector = 40000
			Expect(c.Validate()).To(MatchError(constants.ErrInvalidLayout))
		})
	})
})
