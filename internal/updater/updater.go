// Package updater checks GitHub releases for a newer openproject-mcp and
// replaces the running binary in place.
//
// The check is best-effort: "serve" runs it in the background and ignores
// failures. Replacing the binary goes through a temp file and a rename, so
// an interrupted download never leaves a broken executable behind.
package updater

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

const (
	// Repo is the GitHub repository releases are published to.
	Repo = "HendryAvila/openproject-mcp"

	// BinaryName is the executable inside every release archive.
	BinaryName = "openproject-mcp"

	checkTimeout = 10 * time.Second

	// maxArchiveSize bounds how much of a release asset is read.
	maxArchiveSize = 100 << 20
)

// ErrUpToDate is returned by Update when no newer release exists.
var ErrUpToDate = errors.New("already at the latest version")

// ReleaseInfo holds the relevant fields from a GitHub release.
type ReleaseInfo struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// Asset is a downloadable file in a GitHub release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Result describes how the running version compares to the latest release.
type Result struct {
	CurrentVersion  string `json:"current_version"`
	LatestVersion   string `json:"latest_version,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
	ReleaseURL      string `json:"release_url,omitempty"`
}

// Checker talks to the GitHub releases API. The zero value is not usable;
// call New.
type Checker struct {
	// Endpoint is the "latest release" API URL.
	Endpoint string
	// HTTPClient performs every request.
	HTTPClient *http.Client
	// ExecPath returns the binary to replace. Defaults to os.Executable.
	ExecPath func() (string, error)
	// GOOS and GOARCH select the release asset.
	GOOS, GOARCH string
}

// New returns a Checker for the public openproject-mcp releases.
func New() *Checker {
	return &Checker{
		Endpoint:   "https://api.github.com/repos/" + Repo + "/releases/latest",
		HTTPClient: &http.Client{Timeout: checkTimeout},
		ExecPath:   os.Executable,
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
	}
}

// Latest fetches the latest release.
func (c *Checker) Latest(ctx context.Context, currentVersion string) (ReleaseInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return ReleaseInfo{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", BinaryName+"/"+currentVersion)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ReleaseInfo{}, fmt.Errorf("checking latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ReleaseInfo{}, fmt.Errorf("GitHub API returned %d", resp.StatusCode)
	}

	var release ReleaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return ReleaseInfo{}, fmt.Errorf("parsing release info: %w", err)
	}
	return release, nil
}

// Check compares currentVersion with the latest release. Network and API
// failures yield a result with UpdateAvailable false.
func (c *Checker) Check(ctx context.Context, currentVersion string) Result {
	result := Result{CurrentVersion: normalizeVersion(currentVersion)}
	release, err := c.Latest(ctx, currentVersion)
	if err != nil {
		return result
	}
	return compare(currentVersion, release)
}

func compare(currentVersion string, release ReleaseInfo) Result {
	r := Result{
		CurrentVersion: normalizeVersion(currentVersion),
		LatestVersion:  normalizeVersion(release.TagName),
		ReleaseURL:     release.HTMLURL,
	}
	r.UpdateAvailable = isNewer(r.CurrentVersion, r.LatestVersion)
	return r
}

// Update downloads the release asset for this platform and replaces the
// running binary. It returns ErrUpToDate when there is nothing to do.
func (c *Checker) Update(ctx context.Context, currentVersion string) (Result, error) {
	release, err := c.Latest(ctx, currentVersion)
	if err != nil {
		return Result{CurrentVersion: normalizeVersion(currentVersion)}, err
	}
	result := compare(currentVersion, release)
	if !result.UpdateAvailable {
		return result, fmt.Errorf("%w (%s)", ErrUpToDate, currentVersion)
	}

	assetName := c.assetName(result.LatestVersion)
	var downloadURL string
	for _, a := range release.Assets {
		if a.Name == assetName {
			downloadURL = a.BrowserDownloadURL
			break
		}
	}
	if downloadURL == "" {
		return result, fmt.Errorf("no release asset for %s/%s (looking for %s)", c.GOOS, c.GOARCH, assetName)
	}

	archive, err := c.download(ctx, downloadURL)
	if err != nil {
		return result, err
	}
	binary, err := extractBinary(archive, assetName)
	if err != nil {
		return result, fmt.Errorf("extracting binary: %w", err)
	}

	execPath, err := c.ExecPath()
	if err != nil {
		return result, fmt.Errorf("finding current executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}
	if err := c.replace(execPath, binary); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Checker) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize))
	if err != nil {
		return nil, fmt.Errorf("reading release archive: %w", err)
	}
	return data, nil
}

// replace swaps the binary at path. Windows cannot overwrite a running
// executable, so the old one is moved aside first.
func (c *Checker) replace(path string, binary []byte) error {
	if c.GOOS == "windows" {
		old := path + ".old"
		_ = os.Remove(old)
		if err := os.Rename(path, old); err != nil {
			return fmt.Errorf("backing up current binary: %w", err)
		}
	}
	if err := atomic.WriteFile(path, bytes.NewReader(binary)); err != nil {
		return fmt.Errorf("replacing binary: %w", err)
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return fmt.Errorf("setting binary permissions: %w", err)
	}
	return nil
}

// assetName matches the GoReleaser name_template.
func (c *Checker) assetName(version string) string {
	ext := "tar.gz"
	if c.GOOS == "windows" {
		ext = "zip"
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", BinaryName, version, c.GOOS, c.GOARCH, ext)
}

func extractBinary(archive []byte, assetName string) ([]byte, error) {
	if strings.HasSuffix(assetName, ".zip") {
		return extractFromZip(archive)
	}
	return extractFromTarGz(archive)
}

func isBinary(name string) bool {
	base := filepath.Base(name)
	return base == BinaryName || base == BinaryName+".exe"
}

func extractFromTarGz(archive []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, fmt.Errorf("opening gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar: %w", err)
		}
		if header.Typeflag == tar.TypeReg && isBinary(header.Name) {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("%s not found in archive", BinaryName)
}

func extractFromZip(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isBinary(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		return data, err
	}
	return nil, fmt.Errorf("%s not found in archive", BinaryName)
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isNewer reports whether latest is a higher major.minor.patch than
// current. Pre-release suffixes are ignored; "dev" never updates.
func isNewer(current, latest string) bool {
	if current == "" || latest == "" || current == "dev" {
		return false
	}
	c, l := semverParts(current), semverParts(latest)
	for i := range c {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

func semverParts(v string) [3]int {
	var out [3]int
	for i, p := range strings.SplitN(v, ".", 3) {
		end := strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' })
		if end >= 0 {
			p = p[:end]
		}
		out[i], _ = strconv.Atoi(p)
	}
	return out
}
