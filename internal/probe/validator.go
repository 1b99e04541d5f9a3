// Package probe talks to the external LLM service. It validates user
// API keys with a minimal generation request and relays supervisor
// chat prompts on behalf of authenticated users.
package probe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/cache"
	"github.com/prn-tf/workroom/internal/config"
	"github.com/prn-tf/workroom/internal/domain"
)

// Validator checks whether an external API key is usable.
type Validator interface {
	// Validate returns nil if the key is accepted by the upstream
	// service, domain.ErrInvalidAPIKey if the upstream rejected it,
	// and domain.ErrExternalService if the upstream could not be
	// reached (or the circuit is open).
	Validate(ctx context.Context, apiKey string) error
}

// generateRequest is the minimal request body the upstream accepts.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse carries the pieces of the upstream reply we use.
type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// HTTPValidator validates API keys by sending a minimal generation
// request upstream. Successful verdicts are cached, and consecutive
// transport failures open a circuit breaker so logins fail fast while
// the upstream is down.
type HTTPValidator struct {
	client  *http.Client
	baseURL string
	model   string
	logger  zerolog.Logger

	cache    *cache.Memory
	cacheTTL time.Duration

	mu        sync.Mutex
	failures  int
	threshold int
	cooldown  time.Duration
	openUntil time.Time
}

// NewHTTPValidator creates a validator from probe configuration.
func NewHTTPValidator(cfg config.ProbeConfig, verdicts *cache.Memory, logger zerolog.Logger) *HTTPValidator {
	return &HTTPValidator{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		logger:    logger.With().Str("component", "probe").Logger(),
		cache:     verdicts,
		cacheTTL:  cfg.CacheTTL,
		threshold: cfg.BreakerThreshold,
		cooldown:  cfg.BreakerCooldown,
	}
}

// Validate implements Validator.
func (v *HTTPValidator) Validate(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return domain.ErrInvalidAPIKey
	}

	cacheKey := verdictCacheKey(apiKey)
	if v.cache != nil {
		if _, ok := v.cache.Get(cacheKey); ok {
			return nil
		}
	}

	if v.circuitOpen() {
		v.logger.Warn().Msg("probe circuit open, failing fast")
		return fmt.Errorf("%w: validation service unavailable", domain.ErrExternalService)
	}

	status, err := v.send(ctx, apiKey, "ping", nil)
	if err != nil {
		v.recordFailure()
		v.logger.Warn().Err(err).Msg("probe request failed")
		return fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}

	switch {
	case status >= 200 && status < 300:
		v.recordSuccess()
		if v.cache != nil {
			v.cache.Set(cacheKey, []byte("valid"), v.cacheTTL)
		}
		return nil
	case status >= 400 && status < 500:
		// The upstream answered; the key itself is bad. Not a
		// transport failure, so the breaker stays closed.
		v.recordSuccess()
		return domain.ErrInvalidAPIKey
	default:
		v.recordFailure()
		return fmt.Errorf("%w: upstream returned status %d", domain.ErrExternalService, status)
	}
}

// Send relays a chat prompt upstream using the caller's API key and
// returns the first candidate's text.
func (v *HTTPValidator) Send(ctx context.Context, apiKey, prompt string) (string, error) {
	if apiKey == "" {
		return "", domain.ErrInvalidAPIKey
	}

	if v.circuitOpen() {
		return "", fmt.Errorf("%w: validation service unavailable", domain.ErrExternalService)
	}

	var resp generateResponse
	status, err := v.send(ctx, apiKey, prompt, &resp)
	if err != nil {
		v.recordFailure()
		return "", fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}

	switch {
	case status >= 200 && status < 300:
		v.recordSuccess()
	case status >= 400 && status < 500:
		v.recordSuccess()
		return "", domain.ErrInvalidAPIKey
	default:
		v.recordFailure()
		return "", fmt.Errorf("%w: upstream returned status %d", domain.ErrExternalService, status)
	}

	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", fmt.Errorf("%w: empty response from upstream", domain.ErrExternalService)
}

// send posts a generation request and decodes the reply into out when
// out is non-nil. It returns the HTTP status code.
func (v *HTTPValidator) send(ctx context.Context, apiKey, prompt string, out *generateResponse) (int, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", v.baseURL, v.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (v *HTTPValidator) circuitOpen() bool {
	if v.threshold <= 0 {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return time.Now().Before(v.openUntil)
}

func (v *HTTPValidator) recordFailure() {
	if v.threshold <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures++
	if v.failures >= v.threshold {
		v.openUntil = time.Now().Add(v.cooldown)
		v.failures = 0
		v.logger.Warn().
			Dur("cooldown", v.cooldown).
			Msg("probe circuit opened after consecutive failures")
	}
}

func (v *HTTPValidator) recordSuccess() {
	if v.threshold <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures = 0
	v.openUntil = time.Time{}
}

// verdictCacheKey hashes the API key so raw keys never sit in cache
// memory keyed by their own value.
func verdictCacheKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "probe:verdict:" + hex.EncodeToString(sum[:])
}

var _ Validator = (*HTTPValidator)(nil)
