package cmd

import (
	"flag"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pinebook-tools/pbpinstall/pkg/schema"
	"github.com/urfave/cli/v2"
)

func newContext(args ...string) *cli.Context {
	set := flag.NewFlagSet("pbpinstall", flag.ContinueOnError)
	for _, f := range Flags {
		Expect(f.Apply(set)).To(Succeed())
	}
	Expect(set.Parse(args)).To(Succeed())
	return cli.NewContext(cli.NewApp(), set, nil)
}

var _ = Describe("commands", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "pbpinstall")
		Expect(err).ToNot(HaveOccurred())
	})
	AfterEach(func() {
		_ = os.RemoveAll(tmpDir)
	})

	Context("loadConfig", func() {
		It("layers yaml, dotenv and flags", func() {
			conf := filepath.Join(tmpDir, "config.yaml")
			env := filepath.Join(tmpDir, "pbpinstall.env")
			Expect(os.WriteFile(conf, []byte("device: /dev/sda\nsystem:\n  hostname: fromyaml\n  locale: de_DE.UTF-8\n"), 0o600)).To(Succeed())
			Expect(os.WriteFile(env, []byte("PBP_HOSTNAME=fromenv\nPBP_WIPE=true\n"), 0o600)).To(Succeed())

			cfg, err := loadConfig(newContext("--config", conf, "--env-file", env, "--device", "/dev/mmcblk1"))
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Device).To(Equal("/dev/mmcblk1"))
			Expect(cfg.System.Hostname).To(Equal("fromenv"))
			Expect(cfg.System.Locale).To(Equal("de_DE.UTF-8"))
			Expect(cfg.Encryption.Wipe).To(BeTrue())
		})
		It("lets the wipe flag turn wiping off", func() {
			env := filepath.Join(tmpDir, "pbpinstall.env")
			Expect(os.WriteFile(env, []byte("PBP_WIPE=true\n"), 0o600)).To(Succeed())
			cfg, err := loadConfig(newContext("--config", filepath.Join(tmpDir, "missing.yaml"), "--env-file", env, "--wipe=false"))
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Encryption.Wipe).To(BeFalse())
		})
	})

	Context("askSecrets", func() {
		var saved func() bool

		BeforeEach(func() {
			saved = stdinIsTerminal
			stdinIsTerminal = func() bool { return false }
		})
		AfterEach(func() {
			stdinIsTerminal = saved
		})

		It("leaves root locked when nobody can be asked", func() {
			cfg := schema.DefaultConfig()
			cfg.Encryption.Passphrase = "secret"
			Expect(askSecrets(cfg, false)).To(Succeed())
			Expect(cfg.System.RootPassword).To(BeEmpty())
			Expect(cfg.Encryption.Passphrase).To(Equal("secret"))
		})
		It("still needs the passphrase", func() {
			cfg := schema.DefaultConfig()
			Expect(askSecrets(cfg, false)).To(MatchError(ContainSubstring("stdin is not a terminal")))
		})
	})

	Context("redacted", func() {
		It("hides secrets on a copy", func() {
			cfg := schema.DefaultConfig()
			cfg.Encryption.Passphrase = "secret"
			cfg.System.RootPassword = "secret"
			r := redacted(*cfg)
			Expect(r.Encryption.Passphrase).To(Equal("***"))
			Expect(r.System.RootPassword).To(Equal("***"))
			Expect(cfg.Encryption.Passphrase).To(Equal("secret"))
		})
	})
})
