package render_test

import (
	"strings"

	"github.com/pinebook-tools/pbpinstall/pkg/render"
	"github.com/pinebook-tools/pbpinstall/pkg/schema"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/twpayne/go-vfs/v4/vfst"
)

var _ = Describe("rendered files", func() {
	Context("Mkinitcpio", func() {
		It("contains modules, hooks and compression once and in order", func() {
			conf := render.Mkinitcpio(schema.DefaultConfig().Initramfs)
			Expect(conf).To(Equal("MODULES=(rockchipdrm panfrost pwm_bl)\n" +
				"BINARIES=()\n" +
				"FILES=()\n" +
				"HOOKS=(base udev autodetect modconf block keyboard keymap encrypt filesystems fsck)\n" +
				"COMPRESSION=\"lz4\"\n"))
			for _, key := range []string{"MODULES=", "HOOKS=", "COMPRESSION="} {
				Expect(strings.Count(conf, key)).To(Equal(1), key)
			}
			Expect(strings.Index(conf, "MODULES=")).To(BeNumerically("<", strings.Index(conf, "HOOKS=")))
			Expect(strings.Index(conf, "HOOKS=")).To(BeNumerically("<", strings.Index(conf, "COMPRESSION=")))
		})
	})

	Context("Extlinux", func() {
		It("references kernel, device tree and the literal command line", func() {
			c := schema.DefaultConfig()
			conf := render.Extlinux(c.Extlinux, c.Cmdline())
			Expect(conf).To(ContainSubstring("    KERNEL /Image\n"))
			Expect(conf).To(ContainSubstring("    FDT /dtbs/rockchip/rk3399-pinebook-pro.dtb\n"))
			Expect(conf).To(ContainSubstring("    INITRD /initramfs-linux.img\n"))
			Expect(conf).To(ContainSubstring("    APPEND console=ttyS2,1500000 console=tty1 cryptdevice=/dev/mmcblk2p2:root " +
				"cryptkey=/dev/mmcblk2p1:ext4:/root.key root=/dev/mapper/root rw rootwait\n"))
			Expect(conf).To(HavePrefix("DEFAULT Arch Linux ARM\n"))
		})
		It("renders the whole file", func() {
			c := schema.DefaultConfig()
			Expect(render.Extlinux(c.Extlinux, c.Cmdline())).To(Equal("DEFAULT Arch Linux ARM\n" +
				"MENU TITLE Boot Menu\n" +
				"LABEL Arch Linux ARM\n" +
				"    KERNEL /Image\n" +
				"    FDT /dtbs/rockchip/rk3399-pinebook-pro.dtb\n" +
				"    INITRD /initramfs-linux.img\n" +
				"    APPEND console=ttyS2,1500000 console=tty1 cryptdevice=/dev/mmcblk2p2:root " +
				"cryptkey=/dev/mmcblk2p1:ext4:/root.key root=/dev/mapper/root rw rootwait\n"))
		})
		It("does not reorder tokens", func() {
			e := schema.Extlinux{Label: "l", Kernel: "/k", FDT: "/f"}
			conf := render.Extlinux(e, []string{"z", "a", "m"})
			Expect(conf).To(ContainSubstring("APPEND z a m\n"))
			Expect(conf).ToNot(ContainSubstring("INITRD"))
		})
	})

	Context("Crypttab", func() {
		It("references the root partition and the key file", func() {
			Expect(render.Crypttab("root", "/dev/mmcblk2p2", "/boot/root.key")).To(Equal("root\t/dev/mmcblk2p2\t/boot/root.key\tluks\n"))
		})
	})

	Context("Fstab", func() {
		It("renders one line per entry", func() {
			out := render.Fstab(schema.FsTabs{
				{Spec: "/dev/mapper/root", File: "/", VfsType: "ext4", MntOps: map[string]string{"defaults": ""}, PassNo: 1},
				{Spec: "/dev/mmcblk2p1", File: "/boot", VfsType: "ext4", MntOps: map[string]string{"defaults": ""}, PassNo: 2},
			})
			Expect(out).To(Equal("/dev/mapper/root / ext4 defaults 0 1\n/dev/mmcblk2p1 /boot ext4 defaults 0 2\n"))
		})
	})

	Context("Hosts", func() {
		It("maps the hostname to the loopback", func() {
			Expect(render.Hosts("pbp")).To(ContainSubstring("127.0.1.1\tpbp.localdomain\tpbp\n"))
			Expect(render.Hosts("pbp")).To(HavePrefix("127.0.0.1\tlocalhost\n"))
		})
	})

	Context("LocaleGen", func() {
		It("derives the charset from the locale", func() {
			Expect(render.LocaleGen("en_US.UTF-8")).To(Equal("en_US.UTF-8 UTF-8\n"))
			Expect(render.LocaleGen("de_DE")).To(Equal("de_DE ISO-8859-1\n"))
		})
	})

	Context("WriteFile", func() {
		It("creates parent directories", func() {
			fs, cleanup, err := vfst.NewTestFS(map[string]interface{}{"/mnt": &vfst.Dir{Perm: 0o755}})
			Expect(err).ToNot(HaveOccurred())
			defer cleanup()
			Expect(render.WriteFile(fs, "/mnt/boot/extlinux/extlinux.conf", "x", 0o644)).To(Succeed())
			dat, err := fs.ReadFile("/mnt/boot/extlinux/extlinux.conf")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(dat)).To(Equal("x"))
		})
	})
})
