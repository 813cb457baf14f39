package utils

import (
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-multierror"
)

// InstallerConsole is the yip console. Commands are logged like every other
// tool we run.
type InstallerConsole struct{}

func (s InstallerConsole) Run(cmd string, opts ...func(cmd *exec.Cmd)) (string, error) {
	c := exec.Command("/bin/sh", "-c", cmd)
	for _, o := range opts {
		o(c)
	}
	Log.Info().Msg("+ " + cmd)
	out, err := c.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("failed to run %s: %v", cmd, err)
	}
	return string(out), nil
}

func (s InstallerConsole) Start(cmd *exec.Cmd, opts ...func(cmd *exec.Cmd)) error {
	for _, o := range opts {
		o(cmd)
	}
	return cmd.Run()
}

func (s InstallerConsole) RunTemplate(st []string, template string) error {
	var errs error

	for _, svc := range st {
		out, err := s.Run(fmt.Sprintf(template, svc))
		if err != nil {
			Log.Debug().Str("output", out).Msg("Run template")
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}
