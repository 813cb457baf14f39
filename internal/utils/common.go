package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/gofrs/uuid"
	"github.com/twpayne/go-vfs/v4"
)

// MachineID returns a random 128bit id in /etc/machine-id format.
func MachineID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// WaitForPaths waits until every path exists, e.g. partition nodes udev has
// yet to create after partprobe.
func WaitForPaths(ctx context.Context, fs vfs.FS, attempts uint, delay time.Duration, paths ...string) error {
	return retry.Do(
		func() error {
			for _, p := range paths {
				if _, err := fs.Stat(p); err != nil {
					return fmt.Errorf("waiting for %s: %w", p, err)
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			Log.Debug().Uint("attempt", n).Err(err).Msg("device nodes not ready")
		}),
	)
}
