package state_test

import (
	"context"
	"strings"

	cnst "github.com/pinebook-tools/pbpinstall/internal/constants"
	"github.com/pinebook-tools/pbpinstall/pkg/op"
	"github.com/pinebook-tools/pbpinstall/pkg/op/fake"
	"github.com/pinebook-tools/pbpinstall/pkg/schema"
	"github.com/pinebook-tools/pbpinstall/pkg/state"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"
)

var _ = Describe("install steps", func() {
	var g *herd.Graph
	var fs vfs.FS
	var cleanup func()
	var sys *fake.System
	var s *state.State

	setup := func(files map[string]interface{}) {
		var err error
		fs, cleanup, err = vfst.NewTestFS(files)
		Expect(err).ToNot(HaveOccurred())
		cfg := schema.DefaultConfig()
		cfg.Encryption.Passphrase = "pass"
		s = state.NewState(cfg, sys, fs, nil)
	}
	run := func() error {
		_ = g.Run(context.Background())
		return s.DAGErrors(g)
	}
	executed := func(name string) bool {
		for _, layer := range g.Analyze() {
			for _, entry := range layer {
				if entry.Name == name {
					return entry.Executed
				}
			}
		}
		return false
	}

	BeforeEach(func() {
		g = herd.DAG(herd.EnableInit)
		sys = fake.NewSystem(16 << 30)
	})
	AfterEach(func() {
		cleanup()
	})

	Context("open-root", func() {
		It("does nothing when the mapper already exists", func() {
			setup(map[string]interface{}{"/dev/mapper/root": ""})
			Expect(s.OpenRootDagStep(g)).To(Succeed())
			Expect(run()).To(Succeed())
			Expect(executed(cnst.OpOpenRoot)).To(BeTrue())
			Expect(sys.Commands).To(BeEmpty())
		})
		It("falls back to the passphrase without a key file once the boot copy exists", func() {
			setup(map[string]interface{}{"/dev": &vfst.Dir{Perm: 0o755}})
			s.Journal = state.NewJournal(fs, cnst.DefaultJournalPath, s.Config.Device)
			Expect(s.Journal.MarkDone(cnst.OpInstallKeyfile)).To(Succeed())
			Expect(s.OpenRootDagStep(g)).To(Succeed())
			Expect(run()).To(Succeed())
			Expect(executed(cnst.OpOpenRoot)).To(BeTrue())
			Expect(sys.Commands).To(HaveLen(1))
			Expect(sys.Commands[0].String()).To(Equal("cryptsetup open /dev/mmcblk2p2 root"))
			Expect(sys.Commands[0].Stdin).To(Equal("pass\n"))
		})
		It("stops early when the key file is gone before the boot copy was made", func() {
			setup(map[string]interface{}{"/dev": &vfst.Dir{Perm: 0o755}})
			s.Journal = state.NewJournal(fs, cnst.DefaultJournalPath, s.Config.Device)
			Expect(s.Journal.MarkDone(cnst.OpEncryptRoot)).To(Succeed())
			Expect(s.OpenRootDagStep(g)).To(Succeed())
			Expect(run()).To(MatchError(ContainSubstring("without --resume")))
			Expect(sys.Commands).To(BeEmpty())
		})
	})

	Context("encrypt-root", func() {
		It("requires a passphrase", func() {
			setup(map[string]interface{}{})
			s.Config.Encryption.Passphrase = ""
			Expect(s.EncryptRootDagStep(g)).To(Succeed())
			Expect(run()).To(MatchError(ContainSubstring("passphrase")))
			Expect(sys.Commands).To(BeEmpty())
		})
		It("writes a private random key file", func() {
			setup(map[string]interface{}{})
			Expect(s.EncryptRootDagStep(g)).To(Succeed())
			Expect(run()).To(Succeed())
			info, err := fs.Stat(cnst.DefaultHostKeyFile)
			Expect(err).ToNot(HaveOccurred())
			Expect(info.Size()).To(BeEquivalentTo(cnst.KeyFileSize))
			Expect(info.Mode().Perm()).To(BeEquivalentTo(0o400))
		})
	})

	Context("write-bootloader", func() {
		It("refuses an image that runs into the next one", func() {
			setup(map[string]interface{}{
				"/mnt/boot/idbloader.img": strings.Repeat("i", 16384*512),
				"/mnt/boot/u-boot.itb":    "u",
			})
			Expect(s.WriteBootloaderDagStep(g)).To(Succeed())
			Expect(run()).To(MatchError(ContainSubstring("does not fit")))
			Expect(sys.Commands).To(BeEmpty())
		})
		It("fails when an image is missing", func() {
			setup(map[string]interface{}{"/mnt/boot/u-boot.itb": "u"})
			Expect(s.WriteBootloaderDagStep(g)).To(Succeed())
			Expect(run()).To(MatchError(ContainSubstring("bootloader image")))
		})
	})

	Context("write-fstab", func() {
		It("refuses to write an empty fstab", func() {
			setup(map[string]interface{}{})
			Expect(s.WriteFstabDagStep(g)).To(Succeed())
			Expect(run()).To(MatchError(ContainSubstring("no mounts recorded")))
			_, err := fs.Stat("/mnt/etc/fstab")
			Expect(err).To(HaveOccurred())
		})
		It("writes the entries collected while mounting", func() {
			setup(map[string]interface{}{})
			Expect(s.MountTargetDagStep(g)).To(Succeed())
			Expect(s.WriteFstabDagStep(g, herd.WithDeps(cnst.OpMountTarget))).To(Succeed())
			Expect(run()).To(Succeed())
			Expect(s.Fstabs()).To(HaveLen(2))
			dat, err := fs.ReadFile("/mnt/etc/fstab")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(dat)).To(Equal("/dev/mapper/root / ext4 defaults 0 1\n/dev/mmcblk2p1 /boot ext4 defaults 0 2\n"))
		})
	})

	Context("set-root-password", func() {
		It("leaves root locked without a password", func() {
			setup(map[string]interface{}{})
			Expect(s.SetRootPasswordDagStep(g)).To(Succeed())
			Expect(run()).To(Succeed())
			Expect(executed(cnst.OpSetRootPassword)).To(BeTrue())
			Expect(sys.Commands).To(BeEmpty())
		})
	})

	Context("run-hooks", func() {
		It("runs the install stage over the hook paths", func() {
			setup(map[string]interface{}{})
			s.Config.HookPaths = []string{"/etc/pbpinstall/hooks"}
			var stage string
			var paths []string
			s.RunHooks = func(st string, p ...string) error {
				stage, paths = st, p
				return nil
			}
			Expect(s.RunHooksDagStep(g)).To(Succeed())
			Expect(run()).To(Succeed())
			Expect(stage).To(Equal(cnst.HookStage))
			Expect(paths).To(Equal([]string{"/etc/pbpinstall/hooks"}))
		})
	})

	Context("ForceCleanup", func() {
		It("unmounts deepest first and closes open mappings", func() {
			setup(map[string]interface{}{
				"/dev/mapper/root":        "",
				"/dev/mapper/to_be_wiped": "",
			})
			sys.MountPoints = []string{"/mnt", "/mnt/boot", "/media"}
			Expect(s.ForceCleanup(context.Background())).To(Succeed())
			Expect(sys.MountPoints).To(Equal([]string{"/media"}))
			Expect(sys.CommandLines()).To(Equal([]string{"cryptsetup close root", "cryptsetup close to_be_wiped"}))
		})
		It("keeps going and reports every failure", func() {
			setup(map[string]interface{}{"/dev/mapper/root": ""})
			sys.Fail["close"] = "Device root is still in use."
			Expect(sys.Mount(op.NewMountOperation("/dev/mmcblk2p1", "/mnt/boot", "ext4", "/mnt", 2))).To(Succeed())
			err := s.ForceCleanup(context.Background())
			Expect(err).To(MatchError(ContainSubstring("still in use")))
			Expect(sys.MountPoints).To(BeEmpty())
		})
	})
})
