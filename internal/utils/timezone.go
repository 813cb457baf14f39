package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DetectTimezone asks an IP geolocation endpoint that answers with a bare tz
// database name, e.g. https://ipapi.co/timezone.
func DetectTimezone(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("timezone lookup %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	tz := strings.TrimSpace(string(body))
	if tz == "" || strings.ContainsAny(tz, " \n<") {
		return "", fmt.Errorf("timezone lookup %s: unexpected answer %q", url, tz)
	}
	return tz, nil
}
