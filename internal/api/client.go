package api

import (
	"context"
	stderrors "errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dl-alexandre/batfiles/internal/errors"
	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const defaultCallTimeout = 30 * time.Second

// Invalidator drops a cached credential so the next request re-authorizes
type Invalidator interface {
	Invalidate()
}

// ClientOptions configures a Client
type ClientOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	// Timeout bounds each attempt; for downloads it bounds time to response headers
	Timeout time.Duration
	// Limiter smooths outgoing calls; nil means unlimited
	Limiter     *rate.Limiter
	Invalidator Invalidator
	Logger      logging.Logger
}

// Client wraps the Drive API with retry logic, rate limiting and error classification
type Client struct {
	service     *drive.Service
	maxRetries  int
	retryDelay  time.Duration
	timeout     time.Duration
	limiter     *rate.Limiter
	invalidator Invalidator
	logger      logging.Logger
}

// NewClient creates a new Drive API client
func NewClient(service *drive.Service, opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCallTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Duration(utils.DefaultRetryDelayMs) * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		service:     service,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		timeout:     opts.Timeout,
		limiter:     opts.Limiter,
		invalidator: opts.Invalidator,
		logger:      opts.Logger,
	}
}

// NewRequestContext creates a request context. The trace ID is taken from ctx
// when the HTTP layer put one there, otherwise a new one is generated.
func NewRequestContext(ctx context.Context, rootFolderID string, requestType types.RequestType) *types.RequestContext {
	traceID := logging.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return &types.RequestContext{
		RootFolderID:      rootFolderID,
		InvolvedFileIDs:   []string{},
		InvolvedParentIDs: []string{},
		RequestType:       requestType,
		TraceID:           traceID,
	}
}

// WithFileIDs adds file IDs to the request context
func (c *Client) WithFileIDs(ctx *types.RequestContext, fileIDs ...string) *types.RequestContext {
	ctx.InvolvedFileIDs = append(ctx.InvolvedFileIDs, fileIDs...)
	return ctx
}

// WithParentIDs adds parent IDs to the request context
func (c *Client) WithParentIDs(ctx *types.RequestContext, parentIDs ...string) *types.RequestContext {
	ctx.InvolvedParentIDs = append(ctx.InvolvedParentIDs, parentIDs...)
	return ctx
}

// ExecuteWithRetry executes an API call with retry logic. Each attempt gets its
// own timeout; fn must not hold on to its context after returning.
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func(ctx context.Context) (T, error)) (T, error) {
	return retryLoop(ctx, client, reqCtx, func(ctx context.Context) (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, client.timeout)
		defer cancel()
		return fn(callCtx)
	})
}

// OpenWithRetry opens a streaming response. The timeout only covers the wait
// for response headers; the returned body lives as long as ctx.
func OpenWithRetry(ctx context.Context, client *Client, reqCtx *types.RequestContext, open func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	return retryLoop(ctx, client, reqCtx, func(ctx context.Context) (*http.Response, error) {
		callCtx, cancel := context.WithCancel(ctx)
		var timedOut atomic.Bool
		timer := time.AfterFunc(client.timeout, func() {
			timedOut.Store(true)
			cancel()
		})

		resp, err := open(callCtx)
		stopped := timer.Stop()
		if err != nil {
			cancel()
			if timedOut.Load() {
				return nil, context.DeadlineExceeded
			}
			return nil, err
		}
		if !stopped {
			resp.Body.Close()
			cancel()
			return nil, context.DeadlineExceeded
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	})
}

func retryLoop[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, attemptFn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("fileIds", reqCtx.InvolvedFileIDs),
		logging.F("parentIds", reqCtx.InvolvedParentIDs),
	)

	start := time.Now()
	authRetried := false

	for attempt := 0; attempt <= client.maxRetries; attempt++ {
		if err := client.wait(ctx); err != nil {
			return result, classifyError(err, reqCtx, logger)
		}

		result, lastErr = attemptFn(ctx)
		if lastErr == nil {
			logger.Debug("API operation completed",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if isUnauthorized(lastErr) && !authRetried && client.invalidator != nil {
			authRetried = true
			client.invalidator.Invalidate()
			logger.Warn("Drive rejected credentials, retrying with a fresh token")
			attempt--
			continue
		}

		if !isRetryable(ctx, lastErr) {
			logger.Warn("API operation failed (non-retryable)",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("error", lastErr.Error()),
				logging.F("attempts", attempt+1),
			)
			return result, classifyError(lastErr, reqCtx, logger)
		}

		if attempt < client.maxRetries {
			delay := calculateBackoff(client.retryDelay, attempt, lastErr)
			logger.Warn("API operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, classifyError(ctx.Err(), reqCtx, logger)
			case <-timer.C:
			}
		}
	}

	logger.Error("API operation failed after max retries",
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("attempts", client.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)

	return result, classifyError(lastErr, reqCtx, logger)
}

// wait blocks on the outgoing rate limiter
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// the limiter refuses to wait past the deadline
		return context.DeadlineExceeded
	}
	return nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func isUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return stderrors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

// isRetryable reports whether another attempt may succeed. Context expiry and
// already-classified errors are final.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		switch apiErr.Code {
		case 408, 409, 423, 425, 429, 500, 502, 503, 504:
			return true
		case 403:
			for _, e := range apiErr.Errors {
				switch e.Reason {
				case "userRateLimitExceeded", "rateLimitExceeded", "sharingRateLimitExceeded", "backendError":
					return true
				}
			}
		}
		return false
	}
	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}

// calculateBackoff calculates the retry delay with exponential backoff
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		if seconds := errors.RetryAfterSeconds(apiErr.Header); seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > maxDelay {
				return maxDelay
			}
			return delay
		}
	}

	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}

	// ±25% jitter
	jitterRange := delay / 4
	if jitterRange > 0 {
		delay += time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
	}
	if delay < 0 {
		delay = baseDelay
	}

	return delay
}

// classifyError converts API errors to service errors
func classifyError(err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	return errors.ClassifyGoogleAPIError("drive", err, reqCtx, logger)
}

// Service returns the underlying Drive service
func (c *Client) Service() *drive.Service {
	return c.service
}
