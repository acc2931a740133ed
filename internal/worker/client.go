// Package worker talks to the remote job worker API: it submits jobs and
// queries their status.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/veranemoloko/video-tracker/internal/domain"
	errpkg "github.com/veranemoloko/video-tracker/internal/errors"
	"github.com/veranemoloko/video-tracker/internal/poller"
)

// JobKind identifies a job type and the worker endpoints that serve it.
type JobKind string

const (
	JobCollection     JobKind = "collection"
	JobDownload       JobKind = "download"
	JobSceneDetection JobKind = "scene-detection"
)

var statusPaths = map[JobKind]string{
	JobCollection:     "/api/v1/collect/status/",
	JobDownload:       "/api/v1/download/status/",
	JobSceneDetection: "/scene-detection/status/",
}

const (
	collectPath          = "/api/v1/collect/youtube"
	downloadPath         = "/api/v1/download/video"
	multipleDownloadPath = "/api/v1/download/multiple"
	sceneDetectPath      = "/scene-detection/detect"

	maxStatusBody = 16 << 20

	defaultSubmitMaxElapsed = 15 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL          string
	Timeout          time.Duration
	RateLimit        float64
	RateBurst        int
	SubmitMaxElapsed time.Duration
	DefaultFormat    string
}

// Client is an HTTP client for the worker API. It is safe for concurrent use.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	limiter       *rate.Limiter
	maxElapsed    time.Duration
	defaultFormat string
	logger        *slog.Logger
}

// NewClient creates a Client. Requests share one token-bucket limiter.
func NewClient(opts Options, logger *slog.Logger) *Client {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	format := opts.DefaultFormat
	if format == "" {
		format = "best"
	}
	maxElapsed := opts.SubmitMaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = defaultSubmitMaxElapsed
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter:       rate.NewLimiter(limit, burst),
		maxElapsed:    maxElapsed,
		defaultFormat: format,
		logger:        logger,
	}
}

// TransportError is a failure of the HTTP exchange itself, as opposed to a
// job reported as failed by the worker.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether the request may succeed if sent again.
func (e *TransportError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

// StatusQuery returns the status query for jobs of kind.
func (c *Client) StatusQuery(kind JobKind) poller.StatusQuery {
	return poller.StatusQueryFunc(func(ctx context.Context, handle domain.TaskHandle) ([]byte, error) {
		return c.QueryStatus(ctx, kind, handle)
	})
}

// QueryStatus fetches the raw status payload of a job.
func (c *Client) QueryStatus(ctx context.Context, kind JobKind, handle domain.TaskHandle) ([]byte, error) {
	path, ok := statusPaths[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errpkg.ErrUnknownSurface, kind)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+url.PathEscape(handle.String()), nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}

	body, err := c.do(req, "query status")
	if err != nil {
		return nil, err
	}

	c.logger.Debug("status received", "kind", kind, "task_id", handle, "bytes", len(body))
	return body, nil
}

// SubmitCollection starts a video search/collection job.
func (c *Client) SubmitCollection(ctx context.Context, req domain.CollectRequest) (domain.TaskHandle, error) {
	req.Normalize()
	return c.submitJSON(ctx, collectPath, req)
}

// SubmitDownload starts a single video download job.
func (c *Client) SubmitDownload(ctx context.Context, req domain.DownloadRequest) (domain.TaskHandle, error) {
	if req.FormatChoice == "" {
		req.FormatChoice = c.defaultFormat
	}
	return c.submitJSON(ctx, downloadPath, req)
}

// SubmitMultipleDownload starts a batch download job.
func (c *Client) SubmitMultipleDownload(ctx context.Context, req domain.MultipleDownloadRequest) (domain.TaskHandle, error) {
	if req.FormatChoice == "" {
		req.FormatChoice = c.defaultFormat
	}
	return c.submitJSON(ctx, multipleDownloadPath, req)
}

// SubmitSceneDetection uploads video and starts a scene-detection job. The
// upload is only retried when video implements io.Seeker.
func (c *Client) SubmitSceneDetection(ctx context.Context, req domain.SceneDetectionRequest, video io.Reader) (domain.TaskHandle, error) {
	req.Normalize()

	query := url.Values{}
	query.Set("method", req.Method)
	query.Set("adaptive_threshold", strconv.FormatFloat(req.AdaptiveThreshold, 'f', -1, 64))
	query.Set("content_threshold", strconv.FormatFloat(req.ContentThreshold, 'f', -1, 64))
	endpoint := c.baseURL + sceneDetectPath + "?" + query.Encode()

	seeker, rewindable := video.(io.Seeker)

	// the previous attempt's writer must stop reading video before it is rewound
	var prevReader *io.PipeReader
	var prevDone chan struct{}
	defer func() {
		if prevReader != nil {
			prevReader.Close()
			<-prevDone
		}
	}()

	build := func() (*http.Request, error) {
		if prevReader != nil {
			prevReader.Close()
			<-prevDone
			prevReader, prevDone = nil, nil
		}

		if rewindable {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return nil, backoff.Permanent(fmt.Errorf("rewind upload: %w", err))
			}
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		done := make(chan struct{})
		prevReader, prevDone = pr, done
		go func() {
			defer close(done)
			part, err := mw.CreateFormFile("file", req.FileName)
			if err == nil {
				_, err = io.Copy(part, video)
			}
			if err == nil {
				err = mw.Close()
			}
			pw.CloseWithError(err)
		}()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
		if err != nil {
			pr.Close()
			return nil, backoff.Permanent(fmt.Errorf("create upload request: %w", err))
		}
		httpReq.Header.Set("Content-Type", mw.FormDataContentType())
		return httpReq, nil
	}

	var policy backoff.BackOff = c.newBackOff(ctx)
	if !rewindable {
		policy = backoff.WithMaxRetries(policy, 0)
	}
	return c.submit(policy, "submit scene detection", build)
}

func (c *Client) submitJSON(ctx context.Context, path string, payload interface{}) (domain.TaskHandle, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	return c.submit(c.newBackOff(ctx), "submit "+path, build)
}

// submit sends the request produced by build, retrying transport failures and
// 5xx responses with policy. 4xx responses are not retried.
func (c *Client) submit(policy backoff.BackOff, op string, build func() (*http.Request, error)) (domain.TaskHandle, error) {
	var created domain.CreateTaskResponse
	attempt := 0

	operation := func() error {
		attempt++
		req, err := build()
		if err != nil {
			return err
		}

		body, err := c.do(req, op)
		if err != nil {
			var te *TransportError
			if errors.As(err, &te) && !te.Retryable() {
				return backoff.Permanent(err)
			}
			if req.Context().Err() != nil {
				return backoff.Permanent(err)
			}
			c.logger.Warn("worker request failed, retrying", "op", op, "attempt", attempt, "error", err)
			return err
		}

		if err := json.Unmarshal(body, &created); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: decode response: %w", op, err))
		}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	if created.TaskID == "" {
		return "", errpkg.ErrEmptyTaskHandle
	}

	c.logger.Info("job submitted", "op", op, "task_id", created.TaskID, "attempts", attempt)
	return domain.TaskHandle(created.TaskID), nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = c.maxElapsed
	return backoff.WithContext(b, ctx)
}

// do waits for the limiter, sends req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, &TransportError{Op: op, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return body, nil
}
