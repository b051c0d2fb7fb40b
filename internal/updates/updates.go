// Package updates checks GitHub releases for a newer build of the
// application and surfaces download metadata when one exists.
package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout is the default timeout for release lookups.
const DefaultTimeout = 10 * time.Second

const releaseURLFormat = "https://api.github.com/repos/%s/%s/releases/latest"

// Opts holds checker configuration options.
type Opts struct {
	Owner          string
	Repo           string
	CurrentVersion string
	HTTPClient     *http.Client
	Timeout        time.Duration
}

// Option configures checker options.
type Option func(*Opts)

// WithRepo sets the GitHub repository to poll for releases.
func WithRepo(owner, repo string) Option {
	return func(o *Opts) { o.Owner = owner; o.Repo = repo }
}

// WithCurrentVersion sets the running build's version string.
func WithCurrentVersion(v string) Option {
	return func(o *Opts) { o.CurrentVersion = v }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithTimeout sets the release lookup timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Info describes the outcome of an update check.
type Info struct {
	Available      bool   `json:"available"`
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version"`
	ReleaseNotes   string `json:"release_notes,omitempty"`
	DownloadURL    string `json:"download_url,omitempty"`
}

type releaseAsset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

type release struct {
	TagName string         `json:"tag_name"`
	Body    string         `json:"body"`
	Assets  []releaseAsset `json:"assets"`
	HTMLURL string         `json:"html_url"`
}

// Checker queries the GitHub releases API.
type Checker struct {
	opts    Opts
	baseURL string
}

// NewChecker creates an update checker. Owner, repo and current version are
// required.
func NewChecker(opts ...Option) (*Checker, error) {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("release repository must be provided")
	}
	if cfg.CurrentVersion == "" {
		return nil, fmt.Errorf("current version must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Checker{
		opts:    cfg,
		baseURL: fmt.Sprintf(releaseURLFormat, cfg.Owner, cfg.Repo),
	}, nil
}

// Check fetches the latest release and compares it to the running version.
func (c *Checker) Check(ctx context.Context) (Info, error) {
	info := Info{CurrentVersion: c.opts.CurrentVersion}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return info, fmt.Errorf("failed to create release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return info, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return info, fmt.Errorf("release lookup returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return info, fmt.Errorf("failed to decode release: %w", err)
	}
	if rel.TagName == "" {
		return info, fmt.Errorf("release has no tag name")
	}

	info.LatestVersion = strings.TrimPrefix(rel.TagName, "v")
	info.Available = IsNewer(info.LatestVersion, c.opts.CurrentVersion)
	if info.Available {
		info.ReleaseNotes = rel.Body
		info.DownloadURL = rel.HTMLURL
		for _, asset := range rel.Assets {
			if asset.DownloadURL != "" {
				info.DownloadURL = asset.DownloadURL
				break
			}
		}
		slog.Info("Update available", "current", info.CurrentVersion, "latest", info.LatestVersion)
	} else {
		slog.Debug("No update available", "current", info.CurrentVersion, "latest", info.LatestVersion)
	}
	return info, nil
}

// IsNewer reports whether candidate is a strictly newer version than
// current. Versions compare component-wise numerically; a missing component
// counts as zero, so "1.2" and "1.2.0" are equal. Non-numeric components
// fall back to string comparison.
func IsNewer(candidate, current string) bool {
	cand := strings.Split(strings.TrimPrefix(candidate, "v"), ".")
	curr := strings.Split(strings.TrimPrefix(current, "v"), ".")
	n := len(cand)
	if len(curr) > n {
		n = len(curr)
	}
	for i := 0; i < n; i++ {
		a, b := component(cand, i), component(curr, i)
		an, aerr := strconv.Atoi(a)
		bn, berr := strconv.Atoi(b)
		if aerr == nil && berr == nil {
			if an != bn {
				return an > bn
			}
			continue
		}
		if a != b {
			return a > b
		}
	}
	return false
}

func component(parts []string, i int) string {
	if i >= len(parts) {
		return "0"
	}
	return parts[i]
}
