package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pinebook-tools/pbpinstall/internal/cmd"
	"github.com/pinebook-tools/pbpinstall/internal/utils"
	"github.com/pinebook-tools/pbpinstall/internal/version"
	"github.com/urfave/cli/v2"
)

// Install Arch Linux ARM on the Pinebook Pro eMMC.
func main() {
	app := cli.NewApp()
	app.Name = "pbpinstall"
	app.Usage = "install Arch Linux ARM with an encrypted root on a Pinebook Pro"
	app.Version = version.GetVersion()
	app.Authors = []*cli.Author{{Name: "pbpinstall authors"}}
	app.Flags = cmd.Flags
	app.Before = func(c *cli.Context) error {
		utils.SetLogger(c.Bool("debug"))
		v := version.Get()
		utils.Log.Info().Str("commit", v.GitCommit).Str("compiled with", v.GoVersion).Str("version", v.Version).Msg("pbpinstall")
		return nil
	}
	app.Action = cmd.Install
	app.Commands = cmd.Commands

	// Interrupting cancels the tool that is running and fails the current op.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
