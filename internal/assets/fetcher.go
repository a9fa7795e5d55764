// Package assets materializes clip sources (remote URLs and inline data
// URIs) as local files inside a job's temp directory.
package assets

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"videoproc/internal/pkg/errors"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/tempstore"
)

// DefaultRemoteExt is used when a URL path carries no extension.
const DefaultRemoteExt = ".mp4"

type Config struct {
	// Timeout bounds one HTTP download. Zero means no timeout.
	Timeout time.Duration
	// MaxBytes caps one asset. Zero means unlimited.
	MaxBytes int64
}

type Fetcher struct {
	temp     *tempstore.Manager
	client   *http.Client
	maxBytes int64
	log      *logger.Logger
}

func NewFetcher(temp *tempstore.Manager, cfg Config, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Fetcher{
		temp:     temp,
		client:   &http.Client{Timeout: cfg.Timeout},
		maxBytes: cfg.MaxBytes,
		log:      log.WithComponent("assets"),
	}
}

// Fetch stores src under the job dir and returns the local path.
func (f *Fetcher) Fetch(ctx context.Context, jobID, src string) (string, error) {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "data:") {
		mime, data, err := DecodeDataURI(src)
		if err != nil {
			return "", err
		}
		return f.write(jobID, ExtForMime(mime), data)
	}
	return f.download(ctx, jobID, src)
}

// SaveBackground stores the timeline background snapshot, given either as
// a data URI or as a bare base64 payload, as a PNG file.
func (f *Fetcher) SaveBackground(jobID, payload string) (string, error) {
	payload = strings.TrimSpace(payload)

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(payload, "data:") {
		_, data, err = DecodeDataURI(payload)
	} else {
		data, err = decodeBase64(payload)
	}
	if err != nil {
		return "", errors.Wrap(err, "assets.background", "decode background image")
	}
	return f.write(jobID, ".png", data)
}

func (f *Fetcher) write(jobID, ext string, data []byte) (string, error) {
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return "", errors.Newf(errors.CodeAsset, "asset exceeds %d bytes", f.maxBytes)
	}
	dst, err := f.temp.AssetPath(jobID, ext)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		_ = os.Remove(dst)
		return "", errors.WrapWithCode(err, errors.CodeAsset, "assets.write", "write asset")
	}
	return dst, nil
}

func (f *Fetcher) download(ctx context.Context, jobID, src string) (string, error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.Newf(errors.CodeAsset, "unsupported asset source %q", truncate(src, 120))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeAsset, "assets.download", "build request")
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeAsset, "assets.download", "download asset").WithField("url", src)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Newf(errors.CodeAsset, "download %s: unexpected status %d", src, resp.StatusCode).
			WithField("status", resp.StatusCode)
	}

	dst, err := f.temp.AssetPath(jobID, RemoteExt(u))
	if err != nil {
		return "", err
	}
	n, err := f.stream(dst, resp.Body)
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}

	f.log.Debug("asset downloaded",
		"job_id", jobID,
		"host", u.Host,
		"bytes", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return dst, nil
}

func (f *Fetcher) stream(dst string, body io.Reader) (int64, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeAsset, "assets.write", "create asset file")
	}

	r := body
	if f.maxBytes > 0 {
		r = io.LimitReader(body, f.maxBytes+1)
	}
	n, copyErr := io.Copy(out, r)
	closeErr := out.Close()

	switch {
	case copyErr != nil:
		return n, errors.WrapWithCode(copyErr, errors.CodeAsset, "assets.download", "read asset body")
	case closeErr != nil:
		return n, errors.WrapWithCode(closeErr, errors.CodeAsset, "assets.write", "close asset file")
	case f.maxBytes > 0 && n > f.maxBytes:
		return n, errors.Newf(errors.CodeAsset, "asset exceeds %d bytes", f.maxBytes)
	}
	return n, nil
}

// RemoteExt returns the lower-cased extension of the URL path, or
// DefaultRemoteExt when there is none.
func RemoteExt(u *url.URL) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || ext == "." || len(ext) > 6 {
		return DefaultRemoteExt
	}
	return ext
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
