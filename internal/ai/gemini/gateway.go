package gemini

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ecodeclub/ekit/retry"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resume-matcher/internal/ai"
	"github.com/spigell/resume-matcher/internal/fields"
	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/utils"
)

const (
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = time.Second
	DefaultMaxDelay     = 30 * time.Second
	defaultMaxLogLength = 200
)

// wait and jitter are replaced in tests.
var (
	wait   = utils.WaitFor
	jitter = func() float64 { return 0.5 + rand.Float64()*0.5 }
)

var (
	statusRe        = regexp.MustCompile(`(?i)\b(?:status(?:\s+code)?|error|http)[\s:=]+([45]\d\d)\b`)
	transientMarker = []string{"overloaded", "unavailable", "timeout", "timed out", "rate limit", "resource_exhausted", "try again"}
)

// Config controls the gateway. DefaultAPIKey is the process-wide credential
// used when a request carries none.
type Config struct {
	DefaultAPIKey string
	Model         string
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxLogLength  int
}

// Gateway implements ai.Gateway on top of the Gemini API.
type Gateway struct {
	cfg     Config
	clients *clients
	logger  *zap.Logger
}

// New creates a gateway. No network call is made until the first Call.
func New(cfg Config, log *zap.Logger) *Gateway {
	return newGateway(cfg, newGenAIModel, log)
}

func newGateway(cfg Config, factory modelFactory, log *zap.Logger) *Gateway {
	cfg.DefaultAPIKey = strings.TrimSpace(cfg.DefaultAPIKey)
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = max(DefaultMaxDelay, cfg.BaseDelay)
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}

	return &Gateway{
		cfg:     cfg,
		clients: &clients{factory: factory},
		logger:  logger.WithCommonFields(log, Provider, cfg.Model),
	}
}

// Model returns the default model of the gateway.
func (g *Gateway) Model() string {
	return g.cfg.Model
}

// Call sends the prompt and parses the reply as a JSON object. Transient
// failures are retried with jittered exponential backoff. Every error is an
// *ai.Error.
func (g *Gateway) Call(ctx context.Context, req ai.Request) (*fields.Map, error) {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = g.cfg.DefaultAPIKey
	}
	if apiKey == "" {
		return nil, ai.NewError(ai.MsgNoCredential, nil)
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ai.NewError("prompt must not be empty", nil)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = g.cfg.Model
	}

	client, err := g.clients.get(ctx, apiKey)
	if err != nil {
		return nil, ai.NewError("gemini client unavailable", err)
	}

	log := g.logger.With(zap.String(logger.FieldModel, model))
	log.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.cfg.MaxLogLength)),
	)

	raw, err := g.generateWithRetry(ctx, log, client, model, prompt)
	if err != nil {
		return nil, err
	}

	log.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, g.cfg.MaxLogLength)),
	)

	return decodeResponse(raw)
}

func (g *Gateway) generateWithRetry(ctx context.Context, log *zap.Logger, client contentModel, model, prompt string) (string, error) {
	strategy, err := retry.NewExponentialBackoffRetryStrategy(g.cfg.BaseDelay, g.cfg.MaxDelay, int32(g.cfg.MaxRetries))
	if err != nil {
		return "", ai.NewError("invalid retry configuration", err)
	}

	attempts := g.cfg.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		raw, err := generateContent(ctx, client, model, prompt)
		if err == nil {
			return raw, nil
		}

		llmErr := toError(err)
		if ctx.Err() != nil || !isTransient(err) || attempt >= attempts {
			log.Warn("gemini call failed",
				zap.Int("attempt", attempt),
				zap.Int("status_code", llmErr.StatusCode),
				zap.Error(err),
			)
			return "", llmErr
		}

		delay, _ := strategy.Next()
		delay = time.Duration(float64(delay) * jitter())

		log.Warn("retrying gemini call after transient error",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Int("status_code", llmErr.StatusCode),
			zap.Error(err),
		)

		if err := wait(ctx, delay); err != nil {
			return "", ai.NewError("gemini call cancelled", err)
		}
	}
}

// isTransient reports whether err is worth retrying: timeouts, rate limits,
// upstream 5xx and overload messages.
func isTransient(err error) bool {
	if errors.Is(err, errEmptyResponse) || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if code := statusCode(err); code != 0 {
		return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarker {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

// statusCode extracts an HTTP status from err, falling back to an explicit
// "status 503" or "error 429" in its message. Bare numbers such as ports
// are not statuses.
func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return apiErr.Code
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Code != 0 {
		return apiErrPtr.Code
	}

	if m := statusRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}

	return 0
}

func toError(err error) *ai.Error {
	msg := err.Error()

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}

	return &ai.Error{
		Type:       ai.ErrorType,
		Message:    msg,
		StatusCode: statusCode(err),
		Err:        err,
	}
}

func decodeResponse(raw string) (*fields.Map, error) {
	cleaned := utils.CollapseWhitespace(extractJSON(raw))

	doc, err := fields.Parse([]byte(cleaned))
	if err != nil {
		return nil, &ai.Error{
			Type:    ai.ErrorType,
			Message: ai.MsgNonJSON,
			Raw:     raw,
			Err:     fmt.Errorf("parse gemini response: %w", err),
		}
	}

	return doc, nil
}

// extractJSON strips a surrounding markdown code fence, if any.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```")
		if len(raw) >= 4 && strings.EqualFold(raw[:4], "json") {
			raw = raw[4:]
		}
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
