// Package drive implements the calling contract of the remote storage
// provider: folder listing, content streaming, and the embed surface.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ApenasGabs/queroAulas/internal/errs"
	"github.com/ApenasGabs/queroAulas/internal/logging"
	"github.com/ApenasGabs/queroAulas/internal/metrics"
	"github.com/ApenasGabs/queroAulas/internal/retry"
)

// listFields is the field set requested from the listing API.
const listFields = "files(id, name, mimeType, webViewLink, webContentLink, thumbnailLink, size, modifiedTime)"

// pageSize bounds a single folder listing. Pagination beyond this is
// not handled; folders larger than one page are truncated.
const pageSize = 1000

// Client talks to the remote storage provider with retry, rate limiting,
// and a bearer token.
type Client struct {
	apiBase      string
	embedBase    string
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	retryConfig  retry.Config

	mu        sync.RWMutex
	authToken string
}

// Config holds client configuration.
type Config struct {
	APIBase        string
	EmbedBase      string
	Timeout        time.Duration
	RequestsPerSec float64
	RetryConfig    retry.Config
	AuthToken      string
}

// New creates a new provider client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 8
	}

	streamTransport := newTransport()
	streamTransport.ResponseHeaderTimeout = cfg.Timeout

	return &Client{
		apiBase:   cfg.APIBase,
		embedBase: cfg.EmbedBase,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newTransport(),
		},
		// Content streams carry no whole-request timeout: reading a
		// large video body legitimately outlives any fixed deadline.
		// Headers stay bounded; a hung stream falls to ctx cancellation.
		streamClient: &http.Client{
			Transport: streamTransport,
		},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), int(cfg.RequestsPerSec)+1),
		retryConfig: cfg.RetryConfig,
		authToken:   cfg.AuthToken,
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// applyAuth adds the auth header to a request if a token is set.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// ListChildren returns the non-trashed children of a folder, in the
// provider's folder-then-name order, bounded at one page.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Item, error) {
	const op = "drive.ListChildren"
	if folderID == "" {
		return nil, errs.New(errs.KindInvalidInput, op, "folder id is required")
	}

	q := url.Values{}
	q.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", folderID))
	q.Set("fields", listFields)
	q.Set("orderBy", "folder,name")
	q.Set("pageSize", strconv.Itoa(pageSize))
	reqURL := c.apiBase + "/files?" + q.Encode()

	items, err := retry.DoWithResult(ctx, c.retryConfig, func() ([]Item, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, errs.Wrap(errs.KindUnknown, op, err)
		}
		req.Header.Set("Accept", "application/json")
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, statusError(op, resp)
		}

		var list listResponse
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			return nil, errs.Wrap(errs.KindTransient, op, err)
		}

		// Drop entries missing required fields, matching the provider
		// proxy's sanitization.
		out := list.Files[:0]
		for _, f := range list.Files {
			if f.ID == "" || f.Name == "" || f.MimeType == "" {
				continue
			}
			out = append(out, f)
		}
		return out, nil
	})

	metrics.RecordListing(err == nil)
	if err != nil {
		logging.Debug("folder listing failed",
			zap.String("folder_id", folderID),
			zap.Error(err))
	}
	return items, err
}

// OpenContent opens a streaming read of the file's raw bytes.
// The returned size is the declared content length, or -1 if unknown.
// The caller owns the reader and must close it.
func (c *Client) OpenContent(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	const op = "drive.OpenContent"
	if fileID == "" {
		return nil, 0, errs.New(errs.KindInvalidInput, op, "file id is required")
	}

	reqURL := c.apiBase + "/files/" + url.PathEscape(fileID) + "?alt=media"

	type opened struct {
		body io.ReadCloser
		size int64
	}

	res, err := retry.DoWithResult(ctx, c.retryConfig, func() (opened, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return opened{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return opened{}, errs.Wrap(errs.KindUnknown, op, err)
		}
		c.applyAuth(req)

		resp, err := c.streamClient.Do(req)
		if err != nil {
			return opened{}, errs.Wrap(errs.KindTransient, op, err)
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			defer resp.Body.Close()
			return opened{}, statusError(op, resp)
		}

		size := int64(-1)
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				size = n
			}
		}
		return opened{body: resp.Body, size: size}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return res.body, res.size, nil
}

// FileMetadata fetches a single item's metadata.
func (c *Client) FileMetadata(ctx context.Context, fileID string) (*Item, error) {
	const op = "drive.FileMetadata"
	if fileID == "" {
		return nil, errs.New(errs.KindInvalidInput, op, "file id is required")
	}

	q := url.Values{}
	q.Set("fields", "id, name, mimeType, webViewLink, webContentLink, thumbnailLink, size, modifiedTime")
	reqURL := c.apiBase + "/files/" + url.PathEscape(fileID) + "?" + q.Encode()

	return retry.DoWithResult(ctx, c.retryConfig, func() (*Item, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, errs.Wrap(errs.KindUnknown, op, err)
		}
		req.Header.Set("Accept", "application/json")
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, statusError(op, resp)
		}

		var item Item
		if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
			return nil, errs.Wrap(errs.KindTransient, op, err)
		}
		return &item, nil
	})
}

// EmbedURL returns the provider-hosted preview surface for a file.
func (c *Client) EmbedURL(fileID string) string {
	return c.embedBase + "/file/d/" + url.PathEscape(fileID) + "/preview"
}

// statusError maps a non-OK provider response to a classified error,
// decoding the provider's error envelope when present.
func statusError(op string, resp *http.Response) error {
	var apiErr apiError
	msg := resp.Status
	if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return errs.Newf(errs.KindInvalidInput, op, "%s", msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errs.Newf(errs.KindUnauthorized, op, "%s", msg)
	case resp.StatusCode == http.StatusNotFound:
		return errs.Newf(errs.KindNotFound, op, "%s", msg)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errs.Newf(errs.KindTransient, op, "%s", msg)
	default:
		return errs.Newf(errs.KindTransient, op, "unexpected status %d: %s", resp.StatusCode, msg)
	}
}
