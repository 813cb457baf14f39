package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	cnst "github.com/pinebook-tools/pbpinstall/internal/constants"
	"github.com/pinebook-tools/pbpinstall/internal/utils"
	"github.com/pinebook-tools/pbpinstall/internal/version"
	"github.com/pinebook-tools/pbpinstall/pkg/dag"
	"github.com/pinebook-tools/pbpinstall/pkg/op"
	"github.com/pinebook-tools/pbpinstall/pkg/schema"
	"github.com/pinebook-tools/pbpinstall/pkg/state"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var Flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "yaml configuration file",
		Value:   cnst.DefaultConfigPath,
		EnvVars: []string{"PBPINSTALL_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "env-file",
		Usage:   "dotenv file with PBP_* overrides",
		Value:   cnst.DefaultEnvFilePath,
		EnvVars: []string{"PBPINSTALL_ENV_FILE"},
	},
	&cli.StringFlag{
		Name:  "device",
		Usage: "target block device, overrides the configuration",
	},
	&cli.BoolFlag{
		Name:  "wipe",
		Usage: "overwrite the root partition with random data before encrypting it",
	},
	&cli.BoolFlag{
		Name:    "dry-run",
		Usage:   "print the install dag and exit",
		EnvVars: []string{"PBPINSTALL_DRY_RUN"},
	},
	&cli.BoolFlag{
		Name:    "debug",
		EnvVars: []string{"PBPINSTALL_DEBUG"},
	},
	&cli.BoolFlag{
		Name:  "resume",
		Usage: "skip the ops a previous run completed",
	},
}

var Commands = []*cli.Command{
	{
		Name:  "version",
		Usage: "version",
		Action: func(c *cli.Context) error {
			v := version.Get()
			utils.Log.Info().Str("commit", v.GitCommit).Str("compiled with", v.GoVersion).Str("version", v.Version).Msg("pbpinstall")
			return nil
		},
	},
	{
		Name:      "cleanup",
		Usage:     "cleanup",
		UsageText: "unmounts the target and closes the encrypted volumes",
		Description: `
Tears down what a failed install left behind: every mount under the mountpoint,
the root mapping and the wipe mapping. Errors do not stop the teardown.
`,
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			s := state.NewState(cfg, op.Host{Output: os.Stdout}, vfs.OSFS, nil)
			return s.ForceCleanup(c.Context)
		},
	},
}

// Install is the root action: it builds the install dag and runs it.
func Install(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	journal, err := openJournal(c, cfg)
	if err != nil {
		return err
	}

	s := state.NewState(cfg, op.Host{Output: os.Stdout}, vfs.OSFS, journal)
	g := herd.DAG(herd.EnableInit)
	if err = dag.RegisterInstall(s, g); err != nil {
		return err
	}

	utils.Log.Info().Msg(s.WriteDAG(g))

	// Once we print the dag we can exit already
	if c.Bool("dry-run") {
		return nil
	}

	if err = askSecrets(cfg, c.Bool("resume")); err != nil {
		return err
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	err = g.Run(ctx)
	utils.Log.Info().Msg(s.WriteDAG(g))
	if err == nil {
		err = s.DAGErrors(g)
	}
	if err != nil {
		utils.Log.Warn().Msg("Install failed. Fix the cause, then run again with --resume, or run the cleanup command")
		return err
	}
	utils.Log.Info().Str("device", cfg.Device).Msg("Install finished")
	return nil
}

// loadConfig layers the yaml file, the dotenv file and the flags over the defaults.
func loadConfig(c *cli.Context) (*schema.Config, error) {
	cfg, err := schema.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err = cfg.ApplyEnvFile(c.String("env-file")); err != nil {
		return nil, err
	}
	if c.IsSet("device") {
		cfg.Device = c.String("device")
	}
	if c.IsSet("wipe") {
		cfg.Encryption.Wipe = c.Bool("wipe")
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	utils.Log.Debug().Interface("config", redacted(*cfg)).Msg("Configuration")
	return cfg, nil
}

func redacted(cfg schema.Config) schema.Config {
	if cfg.Encryption.Passphrase != "" {
		cfg.Encryption.Passphrase = "***"
	}
	if cfg.System.RootPassword != "" {
		cfg.System.RootPassword = "***"
	}
	return cfg
}

func openJournal(c *cli.Context, cfg *schema.Config) (*state.Journal, error) {
	if !c.Bool("resume") {
		j := state.NewJournal(vfs.OSFS, cfg.JournalPath, cfg.Device)
		if c.Bool("dry-run") {
			return j, nil
		}
		return j, j.Reset()
	}
	j, err := state.LoadJournal(vfs.OSFS, cfg.JournalPath, cfg.Device)
	if err != nil {
		return nil, err
	}
	utils.Log.Info().Strs("completed", j.Completed).Msg("Resuming install")
	return j, nil
}

// askSecrets prompts for the secrets missing from the configuration. The
// passphrase is asked twice. The root password is optional.
func askSecrets(cfg *schema.Config, resume bool) error {
	if cfg.Encryption.Passphrase == "" {
		pass, err := readPassword("Passphrase for the root volume: ")
		if err != nil {
			return err
		}
		if !resume {
			again, err := readPassword("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if again != pass {
				return errors.New("passphrases do not match")
			}
		}
		cfg.Encryption.Passphrase = pass
	}
	if cfg.System.RootPassword == "" {
		if !stdinIsTerminal() {
			utils.Log.Warn().Msg("No root password configured and stdin is not a terminal, root login stays locked")
			return nil
		}
		pw, err := readPassword("Root password (empty leaves root locked): ")
		if err != nil {
			return err
		}
		cfg.System.RootPassword = pw
	}
	return nil
}

var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func readPassword(prompt string) (string, error) {
	if !stdinIsTerminal() {
		return "", fmt.Errorf("%s: stdin is not a terminal, set it in the configuration", strings.TrimSuffix(prompt, ": "))
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(pw), "\r\n"), nil
}
