// Package httpfetch is the ambient HTTP collaborator used by the outer
// update controller (never the signed core) to download a package or
// a full-install recovery archive, adapted from the teacher's own
// update-main.go download helpers (downloadReleaseURL, getUserAgent).
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

// UserAgent builds a "Name (OS; ARCH[; MODE])" style User-Agent string,
// the same shape the teacher's getUserAgent produces, so release
// servers can distinguish client platforms without the core depending
// on any particular release-server protocol.
func UserAgent(product, version, mode string) string {
	ua := fmt.Sprintf("%s (%s; %s", product, runtime.GOOS, runtime.GOARCH)
	if mode != "" {
		ua += "; " + mode
	}
	return ua + fmt.Sprintf(") %s/%s", product, version)
}

// Client is a small wrapper around *http.Client that attaches a fixed
// User-Agent and disables keep-alives, matching the teacher's
// one-shot-download client in downloadReleaseURL.
type Client struct {
	UserAgent string
	Timeout   time.Duration
}

// New returns a Client configured for one-shot downloads.
func New(userAgent string, timeout time.Duration) *Client {
	return &Client{UserAgent: userAgent, Timeout: timeout}
}

// Fetch downloads url and returns its body in full.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, updateerr.New(updateerr.KindIO, url, err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	client := &http.Client{
		Timeout: c.Timeout,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, updateerr.New(updateerr.KindIO, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, updateerr.New(updateerr.KindIO, url, fmt.Errorf("unexpected status %s", resp.Status))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, updateerr.New(updateerr.KindIO, url, err)
	}
	return data, nil
}
