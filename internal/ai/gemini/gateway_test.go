package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/genai"

	"github.com/spigell/resume-matcher/internal/ai"
)

type fakeResponse struct {
	text string
	err  error
}

type fakeModel struct {
	mu      sync.Mutex
	queue   []fakeResponse
	models  []string
	prompts []string
}

func (f *fakeModel) enqueue(text string, err error) *fakeModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{text: text, err: err})
	return f
}

func (f *fakeModel) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.models = append(f.models, model)
	for _, c := range contents {
		for _, p := range c.Parts {
			f.prompts = append(f.prompts, p.Text)
		}
	}

	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	if res.err != nil {
		return nil, res.err
	}

	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: res.text}}},
		}},
	}, nil
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.models)
}

type fakeFactory struct {
	mu    sync.Mutex
	model *fakeModel
	keys  []string
}

func (f *fakeFactory) create(_ context.Context, apiKey string) (contentModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, apiKey)
	return f.model, nil
}

// stubWait records backoff delays without sleeping. Tests using it must not
// run in parallel.
func stubWait(t *testing.T) *[]time.Duration {
	t.Helper()

	originalWait, originalJitter := wait, jitter
	t.Cleanup(func() { wait, jitter = originalWait, originalJitter })

	var delays []time.Duration
	wait = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	jitter = func() float64 { return 1 }

	return &delays
}

func newTestGateway(model *fakeModel, cfg Config) (*Gateway, *fakeFactory) {
	factory := &fakeFactory{model: model}
	return newGateway(cfg, factory.create, zap.NewNop()), factory
}

func unavailable() error {
	return genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE", Message: "The model is overloaded"}
}

func TestCallWithoutCredentialFailsImmediately(t *testing.T) {
	t.Parallel()

	model := &fakeModel{}
	g, factory := newTestGateway(model, Config{MaxRetries: 3})

	_, err := g.Call(context.Background(), ai.Request{Prompt: "hello"})

	llmErr, ok := ai.AsError(err)
	if !ok {
		t.Fatalf("expected *ai.Error, got %T (%v)", err, err)
	}
	if llmErr.Type != ai.ErrorType || llmErr.Message != ai.MsgNoCredential {
		t.Fatalf("unexpected error: %+v", llmErr)
	}
	if model.calls() != 0 || len(factory.keys) != 0 {
		t.Fatalf("expected no client activity, got %d calls and keys %v", model.calls(), factory.keys)
	}
}

func TestCallParsesFencedAndPlainResponsesIdentically(t *testing.T) {
	t.Parallel()

	plain := `{"name": "Jane", "skills": ["Go", "SQL"]}`
	fenced := "```json\n{\n  \"name\": \"Jane\",\n  \"skills\": [\"Go\", \"SQL\"]\n}\n```"
	bareFence := "```\n" + plain + "\n```"

	model := (&fakeModel{}).enqueue(plain, nil).enqueue(fenced, nil).enqueue(bareFence, nil)
	g, _ := newTestGateway(model, Config{DefaultAPIKey: "key"})

	var docs [][]string
	for i := 0; i < 3; i++ {
		doc, err := g.Call(context.Background(), ai.Request{Prompt: "parse"})
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		skills, _ := doc.Get("skills")
		name, _ := doc.Get("name")
		summary := append(doc.Keys(), name.(string))
		docs = append(docs, append(summary, toStrings(skills)...))
	}

	if !reflect.DeepEqual(docs[0], docs[1]) || !reflect.DeepEqual(docs[0], docs[2]) {
		t.Fatalf("expected identical documents, got %v", docs)
	}
}

func toStrings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, _ := item.(string)
		out = append(out, s)
	}
	return out
}

func TestCallCollapsesWhitespaceInsideResponse(t *testing.T) {
	t.Parallel()

	model := (&fakeModel{}).enqueue("{\"summary\": \"line one\nline two\"}", nil)
	g, _ := newTestGateway(model, Config{DefaultAPIKey: "key"})

	doc, err := g.Call(context.Background(), ai.Request{Prompt: "parse"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := doc.Get("summary"); got != "line one line two" {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestCallRetriesTransientFailures(t *testing.T) {
	delays := stubWait(t)

	model := (&fakeModel{}).
		enqueue("", unavailable()).
		enqueue("", unavailable()).
		enqueue("", unavailable()).
		enqueue(`{"ok": true}`, nil)
	g, _ := newTestGateway(model, Config{DefaultAPIKey: "key", MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute})

	doc, err := g.Call(context.Background(), ai.Request{Prompt: "retry me"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if v, _ := doc.Get("ok"); v != true {
		t.Fatalf("unexpected document %v", doc.Keys())
	}
	if model.calls() != 4 {
		t.Fatalf("expected 4 calls, got %d", model.calls())
	}

	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if !reflect.DeepEqual(*delays, expected) {
		t.Fatalf("expected backoff %v, got %v", expected, *delays)
	}
}

func TestCallSurfacesErrorAfterRetriesExhausted(t *testing.T) {
	delays := stubWait(t)

	model := &fakeModel{}
	for i := 0; i < 5; i++ {
		model.enqueue("", unavailable())
	}
	g, _ := newTestGateway(model, Config{DefaultAPIKey: "key", MaxRetries: 3})

	_, err := g.Call(context.Background(), ai.Request{Prompt: "retry me"})

	llmErr, ok := ai.AsError(err)
	if !ok {
		t.Fatalf("expected *ai.Error, got %v", err)
	}
	if llmErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", llmErr.StatusCode)
	}
	if llmErr.Message != "The model is overloaded" {
		t.Fatalf("unexpected message %q", llmErr.Message)
	}
	if model.calls() != 4 {
		t.Fatalf("expected 4 calls, got %d", model.calls())
	}
	if len(*delays) != 3 {
		t.Fatalf("expected 3 backoff waits, got %d", len(*delays))
	}
}

func TestCallDoesNotRetryPermanentErrors(t *testing.T) {
	delays := stubWait(t)

	model := (&fakeModel{}).enqueue("", genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT", Message: "API key not valid"})
	g, _ := newTestGateway(model, Config{DefaultAPIKey: "key", MaxRetries: 3})

	_, err := g.Call(context.Background(), ai.Request{Prompt: "hello"})

	llmErr, ok := ai.AsError(err)
	if !ok || llmErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 llm error, got %v", err)
	}
	if model.calls() != 1 || len(*delays) != 0 {
		t.Fatalf("expected a single attempt, got %d calls and %d waits", model.calls(), len(*delays))
	}
}

func TestCallReportsNonJSON(t *testing.T) {
	t.Parallel()

	raw := "Sorry, I cannot help with that."
	model := (&fakeModel{}).enqueue(raw, nil)
	g, _ := newTestGateway(model, Config{DefaultAPIKey: "key"})

	_, err := g.Call(context.Background(), ai.Request{Prompt: "hello"})

	llmErr, ok := ai.AsError(err)
	if !ok {
		t.Fatalf("expected *ai.Error, got %v", err)
	}
	if llmErr.Message != ai.MsgNonJSON || llmErr.Raw != raw {
		t.Fatalf("unexpected error: %+v", llmErr)
	}
}

func TestCallUsesPerCallCredentialAndModel(t *testing.T) {
	t.Parallel()

	model := (&fakeModel{}).enqueue(`{}`, nil).enqueue(`{}`, nil).enqueue(`{}`, nil)
	g, factory := newTestGateway(model, Config{DefaultAPIKey: "default-key", Model: "gemini-default"})

	requests := []ai.Request{
		{Prompt: "a", APIKey: "caller-key", Model: "gemini-custom"},
		{Prompt: "b", APIKey: "caller-key"},
		{Prompt: "c"},
	}
	for _, req := range requests {
		if _, err := g.Call(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if !reflect.DeepEqual(factory.keys, []string{"caller-key", "default-key"}) {
		t.Fatalf("expected one client per key, got %v", factory.keys)
	}
	if !reflect.DeepEqual(model.models, []string{"gemini-custom", "gemini-default", "gemini-default"}) {
		t.Fatalf("unexpected models %v", model.models)
	}
	if !reflect.DeepEqual(model.prompts, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected prompts %v", model.prompts)
	}
}

func TestCallStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	originalWait := wait
	t.Cleanup(func() { wait = originalWait })

	ctx, cancel := context.WithCancel(context.Background())
	wait = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	model := (&fakeModel{}).enqueue("", unavailable()).enqueue(`{}`, nil)
	g, _ := newTestGateway(model, Config{DefaultAPIKey: "key", MaxRetries: 3})

	_, err := g.Call(ctx, ai.Request{Prompt: "hello"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if model.calls() != 1 {
		t.Fatalf("expected 1 call, got %d", model.calls())
	}
}

func TestCallLogsRetries(t *testing.T) {
	stubWait(t)

	core, observed := observer.New(zapcore.WarnLevel)
	model := (&fakeModel{}).enqueue("", errors.New("dial tcp: i/o timeout")).enqueue(`{}`, nil)
	g := newGateway(Config{DefaultAPIKey: "key", Model: "gemini-test", MaxRetries: 1}, (&fakeFactory{model: model}).create, zap.New(core))

	if _, err := g.Call(context.Background(), ai.Request{Prompt: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := observed.FilterMessage("retrying gemini call after transient error").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 retry log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["ai_provider"] != Provider || fields["attempt"] != int64(1) {
		t.Fatalf("unexpected log fields %v", fields)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		expect bool
	}{
		{name: "rate limit", err: genai.APIError{Code: http.StatusTooManyRequests}, expect: true},
		{name: "server error", err: genai.APIError{Code: http.StatusInternalServerError}, expect: true},
		{name: "bad gateway in text", err: errors.New("upstream returned status 502"), expect: true},
		{name: "network timeout on port 443", err: dialTimeout(), expect: true},
		{name: "wrapped network timeout", err: fmt.Errorf("generate content: %w", dialTimeout()), expect: true},
		{name: "overloaded", err: errors.New("model overloaded, please retry"), expect: true},
		{name: "deadline", err: context.DeadlineExceeded, expect: true},
		{name: "forbidden", err: genai.APIError{Code: http.StatusForbidden}, expect: false},
		{name: "cancelled", err: context.Canceled, expect: false},
		{name: "empty response", err: errEmptyResponse, expect: false},
		{name: "unknown", err: errors.New("boom"), expect: false},
		{name: "bare number is not a status", err: errors.New("dial tcp 10.0.0.1:500: connection refused"), expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isTransient(tt.err); got != tt.expect {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

// dialTimeout mimics the error net/http returns when the Gemini endpoint
// does not answer in time.
func dialTimeout() error {
	return &url.Error{
		Op:  "Post",
		URL: "https://generativelanguage.googleapis.com:443/v1beta/models/gemini-2.5-flash:generateContent",
		Err: &net.OpError{
			Op:   "dial",
			Net:  "tcp",
			Addr: &net.TCPAddr{IP: net.ParseIP("142.250.74.10"), Port: 443},
			Err:  os.ErrDeadlineExceeded,
		},
	}
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		expect int
	}{
		{name: "api error value", err: genai.APIError{Code: http.StatusServiceUnavailable}, expect: 503},
		{name: "api error pointer", err: fmt.Errorf("wrap: %w", &genai.APIError{Code: http.StatusTooManyRequests}), expect: 429},
		{name: "status phrase", err: errors.New("request failed with status code 500"), expect: 500},
		{name: "error phrase", err: errors.New("Error 404, Message: model not found"), expect: 404},
		{name: "port is not a status", err: dialTimeout(), expect: 0},
		{name: "no number", err: errors.New("boom"), expect: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := statusCode(tt.err); got != tt.expect {
				t.Fatalf("expected %d, got %d", tt.expect, got)
			}
		})
	}
}

func TestNetworkTimeoutIsRetried(t *testing.T) {
	delays := stubWait(t)

	model := (&fakeModel{}).
		enqueue("", dialTimeout()).
		enqueue(`{"name":"Jane"}`, nil)
	g, _ := newTestGateway(model, Config{DefaultAPIKey: "key", MaxRetries: 2})

	doc, err := g.Call(context.Background(), ai.Request{Prompt: "parse"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name, _ := doc.Get("name"); name != "Jane" {
		t.Fatalf("unexpected document: %v", doc.Plain())
	}
	if len(*delays) != 1 || model.calls() != 2 {
		t.Fatalf("expected one backoff and two calls, got %v and %d", *delays, model.calls())
	}
}

func TestJitterRange(t *testing.T) {
	t.Parallel()

	for i := 0; i < 1000; i++ {
		if j := jitter(); j < 0.5 || j > 1 {
			t.Fatalf("jitter out of range: %v", j)
		}
	}
}
