package archive

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"heliodata/pkg/config"
	herrors "heliodata/pkg/errors"
	"heliodata/pkg/logger"
)

// Client fetches samples of one mission over HTTP
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	mission    Mission
	tempDir    string
	logger     logger.Logger
}

// NewClient creates a client for mission. Downloads are staged in a
// private temporary directory removed by Close.
func NewClient(mission Mission, cfg config.ArchiveConfig, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}

	tempDir, err := os.MkdirTemp("", "heliodata-")
	if err != nil {
		return nil, herrors.Wrap(herrors.ErrorTypeIO, err, "create staging directory")
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "heliodata"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "*/*",
		},
		mission: mission,
		tempDir: tempDir,
		logger:  log.WithField("mission", mission.Name),
	}, nil
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Mission returns the mission this client serves
func (c *Client) Mission() Mission {
	return c.mission
}

// Close removes the staging directory and anything left in it
func (c *Client) Close() error {
	return os.RemoveAll(c.tempDir)
}

// Fetch downloads the sample closest to req.Time within req.Margin
func (c *Client) Fetch(ctx context.Context, req Request) (string, error) {
	if !c.mission.IsAvailable(req.Product, req.Time) {
		return "", herrors.NotAvailable("%s %s has no data at %s", c.mission.Name, req.Product, req.Time.UTC().Format(time.RFC3339))
	}
	if c.mission.URLTemplate == "" {
		return "", herrors.New(herrors.ErrorTypeConfig, "mission %s has no url_template configured", c.mission.Name)
	}

	for _, t := range candidates(req.Time, c.mission.Step, req.Margin) {
		rawURL, err := RenderURL(c.mission.URLTemplate, req.Product, req.Identity, t)
		if err != nil {
			return "", herrors.Wrap(herrors.ErrorTypeConfig, err, "mission %s", c.mission.Name)
		}

		path, err := c.download(ctx, rawURL)
		if err == nil {
			return path, nil
		}
		if !stderrors.Is(err, herrors.ErrNotAvailable) {
			return "", err
		}
	}

	return "", herrors.NotAvailable("no %s %s sample within %s of %s",
		c.mission.Name, req.Product, req.Margin, req.Time.UTC().Format(time.RFC3339))
}

// download streams rawURL into the staging directory under the URL's base
// name. The file only gets that name once the body has been fully read.
func (c *Client) download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", herrors.Wrap(herrors.ErrorTypeConfig, err, "failed to create request")
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, rawURL); err != nil {
		return "", err
	}

	dest := filepath.Join(c.tempDir, baseName(req.URL))
	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return "", herrors.Wrap(herrors.ErrorTypeIO, err, "create staging file")
	}

	n, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil && resp.ContentLength >= 0 && n != resp.ContentLength {
		err = fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}
	if err != nil {
		os.Remove(part)
		return "", herrors.Wrap(herrors.ErrorTypeNetwork, err, "read %s", rawURL)
	}
	if closeErr != nil {
		os.Remove(part)
		return "", herrors.Wrap(herrors.ErrorTypeIO, closeErr, "close staging file")
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return "", herrors.Wrap(herrors.ErrorTypeIO, err, "rename staging file")
	}

	c.logger.DebugWithFields("sample downloaded", map[string]interface{}{
		"url":   rawURL,
		"bytes": n,
	})
	return dest, nil
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, herrors.Wrap(herrors.ErrorTypeNetwork, err, "request %s", req.URL.String())
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// checkResponseStatus maps non-2xx responses to typed errors
func (c *Client) checkResponseStatus(resp *http.Response, u string) error {
	if resp.StatusCode == http.StatusOK || (resp.StatusCode > 200 && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent) {
		return nil
	}

	err := herrors.FromStatusCode(resp.StatusCode, u)
	err.RetryAfter = retryAfter(resp.Header.Get("Retry-After"), time.Now())
	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    u,
	}
	if err.RetryAfter > 0 {
		fields["retry_after"] = err.RetryAfter.String()
	}

	switch err.Type {
	case herrors.ErrorTypeNotAvailable:
		c.logger.DebugWithFields("sample not in archive", fields)
	case herrors.ErrorTypeRateLimit:
		c.logger.WarnWithFields("rate limit exceeded", fields)
	case herrors.ErrorTypeAuth:
		c.logger.WarnWithFields("archive rejected identity", fields)
	default:
		c.logger.ErrorWithFields("unexpected archive response", fields)
	}
	return err
}

func baseName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}

// retryAfter parses a Retry-After header given as delta-seconds or an HTTP
// date. Empty, negative, past and malformed values yield 0.
func retryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}
