package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
)

// HTTPClient is the default Generator transport: it POSTs a prompt to a
// configured code-generation endpoint and writes the response body into
// a per-invocation workspace directory.
type HTTPClient struct {
	cfg       config.GeneratorConfig
	http      *http.Client
	limiter   *rate.Limiter
	workspace *WorkspaceManager
	log       *logger.Logger
	policy    backoffPolicy
}

// NewHTTPClient constructs the default HTTP-backed generator client.
func NewHTTPClient(cfg config.GeneratorConfig, workspace *WorkspaceManager, log *logger.Logger) *HTTPClient {
	ratePerMinute := cfg.RatePerMinute
	if ratePerMinute <= 0 {
		ratePerMinute = 50
	}
	baseMillis := cfg.RetryBaseMillis
	if baseMillis <= 0 {
		baseMillis = 100
	}
	capSeconds := cfg.RetryCapSeconds
	if capSeconds <= 0 {
		capSeconds = 30
	}

	return &HTTPClient{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.TimeoutDuration()},
		limiter:   rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute),
		workspace: workspace,
		log:       log,
		policy: backoffPolicy{
			base: time.Duration(baseMillis) * time.Millisecond,
			cap:  time.Duration(capSeconds) * time.Second,
		},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Output string `json:"output"`
}

// Execute implements Generator.
func (c *HTTPClient) Execute(ctx context.Context, prompt string) (*Artifact, error) {
	maxAttempts := c.cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return withRetry(ctx, c.policy, maxAttempts, func(attempt int) (*Artifact, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Failure{Kind: FailureTimeout, Err: err}
		}

		dir, err := c.workspace.Create()
		if err != nil {
			return nil, &Failure{Kind: FailureNetworkError, Err: err}
		}

		body, err := c.call(ctx, prompt)
		if err != nil {
			c.workspace.Release(dir)
			c.log.Warn("generator invocation failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, err
		}

		outPath := filepath.Join(dir, "artifact.txt")
		if err := os.WriteFile(outPath, []byte(body.Output), 0o644); err != nil {
			c.workspace.Release(dir)
			return nil, &Failure{Kind: FailureNetworkError, Err: err}
		}

		return &Artifact{Content: body.Output, Workspace: dir}, nil
	})
}

func (c *HTTPClient) call(ctx context.Context, prompt string) (*generateResponse, error) {
	payload, err := json.Marshal(generateRequest{Model: c.cfg.Model, Prompt: prompt})
	if err != nil {
		return nil, &Failure{Kind: FailureNetworkError, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, &Failure{Kind: FailureNetworkError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Failure{Kind: FailureTimeout, Err: err}
		}
		return nil, &Failure{Kind: FailureNetworkError, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Failure{Kind: FailureRateLimited, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Failure{Kind: FailureUnauthorized, Status: resp.StatusCode, Body: string(raw)}
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusForbidden:
		return nil, &Failure{Kind: FailureQuotaExceeded, Status: resp.StatusCode, Body: string(raw)}
	case resp.StatusCode >= 300:
		return nil, &Failure{Kind: FailureUpstream, Status: resp.StatusCode, Body: string(raw)}
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &Failure{Kind: FailureUpstream, Status: resp.StatusCode, Body: string(raw), Err: err}
	}
	return &decoded, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		return time.Until(when)
	}
	return 0
}

// Available implements Generator without consuming a rate-limit token.
func (c *HTTPClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// RateStatus implements Generator.
func (c *HTTPClient) RateStatus() RateStatus {
	return RateStatus{
		RequestsPerMinute: int(c.limiter.Limit() * 60),
		TokensAvailable:   c.limiter.Tokens(),
	}
}
