package utils

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/mudler/yip/pkg/executor"
	"github.com/twpayne/go-vfs/v4"
)

// RunStage runs the <stage>.before, <stage> and <stage>.after yip stages found
// in paths. Every stage runs even if a previous one failed.
func RunStage(stage string, paths ...string) error {
	var allErrors error

	yip := executor.NewExecutor(executor.WithLogger(KLog))
	c := InstallerConsole{}

	for _, s := range []string{fmt.Sprintf("%s.before", stage), stage, fmt.Sprintf("%s.after", stage)} {
		Log.Info().Str("stage", s).Strs("paths", paths).Msg("Running hook stage")
		if err := yip.Run(s, vfs.OSFS, c, paths...); err != nil {
			allErrors = multierror.Append(allErrors, err)
		}
	}
	return allErrors
}
