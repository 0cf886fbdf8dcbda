package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/types"
	"github.com/oszuidwest/zwfm-gapmeter/internal/util"
	"golang.org/x/mod/semver"
)

const (
	githubRepo           = "oszuidwest/zwfm-gapmeter"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30 * time.Second
	versionCheckTimeout  = 30 * time.Second
	versionMaxAttempts   = 3
)

// errRetryLater marks a check that should be repeated within the same cycle.
var errRetryLater = errors.New("retry later")

// githubRelease is the part of the releases/latest response we read.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// VersionChecker polls GitHub for the latest gapmeter release. It is safe
// for concurrent use.
type VersionChecker struct {
	apiURL string
	client *http.Client

	mu     sync.RWMutex
	latest string
	etag   string

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewVersionChecker returns a checker for the latest release. Call Start to
// begin polling.
func NewVersionChecker() *VersionChecker {
	return &VersionChecker{
		apiURL: "https://api.github.com/repos/" + githubRepo + "/releases/latest",
		client: http.DefaultClient,
		stopCh: make(chan struct{}),
	}
}

// Start begins polling in the background.
func (vc *VersionChecker) Start() {
	go vc.run()
}

// Stop stops the version checker. It is safe to call more than once.
func (vc *VersionChecker) Stop() {
	vc.stopOnce.Do(func() { close(vc.stopCh) })
}

func (vc *VersionChecker) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-vc.stopCh
		cancel()
	}()

	delay := versionCheckDelay
	for {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		vc.checkWithRetry(ctx)
		delay = versionCheckInterval
	}
}

// checkWithRetry repeats a failed check with backoff, up to versionMaxAttempts.
func (vc *VersionChecker) checkWithRetry(ctx context.Context) {
	backoff := util.NewBackoff(time.Minute, 4*time.Minute)
	for attempt := 1; ; attempt++ {
		err := vc.refresh(ctx)
		if err == nil {
			return
		}
		slog.Debug("version check failed", "attempt", attempt, "error", err)
		if attempt == versionMaxAttempts || backoff.Wait(ctx) != nil {
			return
		}
	}
}

// check runs one check and reports whether the cycle is done.
func (vc *VersionChecker) check() bool {
	return vc.refresh(context.Background()) == nil
}

// refresh fetches the latest release and stores it. Responses that will not
// improve on retry return nil.
func (vc *VersionChecker) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeoutCause(ctx, versionCheckTimeout, errors.New("github API request timeout"))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vc.apiURL, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-gapmeter/"+Version)

	vc.mu.RLock()
	if vc.etag != "" {
		req.Header.Set("If-None-Match", vc.etag)
	}
	vc.mu.RUnlock()

	resp, err := vc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errRetryLater, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only response

	if err := classifyStatus(resp.StatusCode); err != nil || resp.StatusCode != http.StatusOK {
		return err
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return fmt.Errorf("%w: decode release: %v", errRetryLater, err)
	}
	if release.Draft || release.Prerelease {
		return nil
	}
	if release.TagName == "" {
		return fmt.Errorf("%w: release without tag", errRetryLater)
	}

	vc.mu.Lock()
	vc.latest = normalizeVersion(release.TagName)
	if etag := resp.Header.Get("ETag"); etag != "" {
		vc.etag = etag
	}
	vc.mu.Unlock()
	return nil
}

// classifyStatus returns errRetryLater for rate limits and server errors.
// Not Modified, Not Found and other client errors end the cycle.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusForbidden, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: status %d", errRetryLater, code)
	default:
		return nil
	}
}

// Info returns the version info reported in the status message.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	latest := vc.latest
	vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}
	if latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = isNewerVersion(latest, current)
	}
	return info
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewerVersion reports whether latest is a valid semver newer than current.
func isNewerVersion(latest, current string) bool {
	l, c := "v"+normalizeVersion(latest), "v"+normalizeVersion(current)
	return semver.IsValid(l) && semver.Compare(l, c) > 0
}
