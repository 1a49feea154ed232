package llm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// MockProvider is a test provider that records calls and returns canned responses.
type MockProvider struct {
	mu        sync.Mutex
	Calls     []CompletionRequest
	Response  *CompletionResponse
	Err       error
	ProvName  string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// --- Tests ---

func TestMockProviderRecordsCalls(t *testing.T) {
	mock := NewMockProvider("test")
	ctx := context.Background()

	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	resp, err := mock.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}

	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}

	if mock.Calls[0].Model != "test-model" {
		t.Errorf("expected model 'test-model', got %q", mock.Calls[0].Model)
	}
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	// Ensure env vars are not set for this test.
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	providers := []string{"anthropic", "openai", "google"}
	for _, p := range providers {
		_, err := NewProvider(p, "some-model")
		if err == nil {
			t.Errorf("expected error for provider %q with missing API key", p)
		}
	}
}

func TestFactoryReturnsErrorForUnknownProvider(t *testing.T) {
	_, err := NewProvider("unknown", "some-model")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFactoryCreatesOllamaWithoutAPIKey(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://localhost:11434")
	provider, err := NewProvider("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "ollama" {
		t.Errorf("expected name 'ollama', got %q", provider.Name())
	}
}

func TestFactoryCreatesOllamaWithDefaultHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	provider, err := NewProvider("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ollamaP, ok := provider.(*OllamaProvider)
	if !ok {
		t.Fatal("expected *OllamaProvider")
	}
	if ollamaP.baseURL != "http://localhost:11434" {
		t.Errorf("expected default host, got %q", ollamaP.baseURL)
	}
}

func TestFactoryCreatesAnthropicProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	provider, err := NewProvider("anthropic", "claude-sonnet-4-5-20250929")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", provider.Name())
	}
}

func TestFactoryCreatesOpenAIProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	provider, err := NewProvider("openai", "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", provider.Name())
	}
}

func TestFactoryCreatesGoogleProvider(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "test-key")
	provider, err := NewProvider("google", "gemini-2.0-flash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "google" {
		t.Errorf("expected name 'google', got %q", provider.Name())
	}
}

func TestRateLimiterPassesThrough(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 60)

	ctx := context.Background()
	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	resp, err := rl.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if rl.Name() != "test" {
		t.Errorf("expected name 'test', got %q", rl.Name())
	}
}

func TestRateLimiterLimitsRequests(t *testing.T) {
	mock := NewMockProvider("test")
	// Allow only 2 requests per minute.
	rl := NewRateLimitedProvider(mock, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	// First two should succeed immediately.
	for i := 0; i < 2; i++ {
		_, err := rl.Complete(ctx, req)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	// Third should block and eventually fail due to context timeout.
	_, err := rl.Complete(ctx, req)
	if err == nil {
		t.Error("expected error due to rate limiting + context timeout")
	}
}

func TestEstimateCostKnownModels(t *testing.T) {
	tests := []struct {
		model        string
		inputTokens  int
		outputTokens int
		wantMin      float64
	}{
		{"claude-sonnet-4-5-20250929", 1000, 500, 0.0},
		{"gpt-4o", 1000, 500, 0.0},
		{"gemini-2.0-flash", 1000, 500, 0.0},
	}

	for _, tt := range tests {
		cost := EstimateCost(tt.model, tt.inputTokens, tt.outputTokens)
		if cost <= tt.wantMin {
			t.Errorf("EstimateCost(%q, %d, %d) = %f, expected > %f",
				tt.model, tt.inputTokens, tt.outputTokens, cost, tt.wantMin)
		}
	}
}

func TestEstimateCostUnknownModel(t *testing.T) {
	cost := EstimateCost("unknown-model", 1000, 500)
	if cost != 0 {
		t.Errorf("expected 0 for unknown model, got %f", cost)
	}
}

func TestEstimateCostAccuracy(t *testing.T) {
	// claude-sonnet-4-5: $3/1M input, $15/1M output
	// 1M input + 1M output = $3 + $15 = $18
	cost := EstimateCost("claude-sonnet-4-5-20250929", 1_000_000, 1_000_000)
	expected := 18.0
	if cost < expected-0.01 || cost > expected+0.01 {
		t.Errorf("expected cost ~$%.2f, got $%.2f", expected, cost)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hi", 1},
		{"hello world!!", 3},
		{"a longer piece of text that has more characters", 11},
	}

	for _, tt := range tests {
		got := EstimateTokens(tt.text)
		if got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

type flakyProvider struct {
	failures int
	err      error
	resp     *CompletionResponse
	calls    int
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.resp, nil
}

func TestRetryingProviderRetriesTransient(t *testing.T) {
	flaky := &flakyProvider{
		failures: 2,
		err:      &TransientError{Err: fmt.Errorf("rate limited")},
		resp:     &CompletionResponse{Content: "ok"},
	}
	rp := NewRetryingProvider(flaky, 3)
	rp.(*RetryingProvider).backoff = time.Millisecond

	resp, err := rp.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected ok, got %q", resp.Content)
	}
	if flaky.calls != 3 {
		t.Errorf("expected 3 calls, got %d", flaky.calls)
	}
}

func TestRetryingProviderStopsOnPermanentError(t *testing.T) {
	flaky := &flakyProvider{
		failures: 1,
		err:      fmt.Errorf("bad request"),
		resp:     &CompletionResponse{Content: "ok"},
	}
	rp := NewRetryingProvider(flaky, 3)
	rp.(*RetryingProvider).backoff = time.Millisecond

	_, err := rp.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected permanent error to propagate without retry")
	}
	if flaky.calls != 1 {
		t.Errorf("expected 1 call for a permanent error, got %d", flaky.calls)
	}
}

func TestRetryingProviderExhaustsCeiling(t *testing.T) {
	flaky := &flakyProvider{
		failures: 10,
		err:      &TransientError{Err: fmt.Errorf("rate limited")},
		resp:     &CompletionResponse{Content: "ok"},
	}
	rp := NewRetryingProvider(flaky, 2)
	rp.(*RetryingProvider).backoff = time.Millisecond

	_, err := rp.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error after exhausting retry ceiling")
	}
	if flaky.calls != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", flaky.calls)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Sure, here you go:\n{\"a\":1}\nLet me know if that helps.", `{"a":1}`},
	}
	for _, tt := range tests {
		got := ExtractJSON(tt.input)
		if got != tt.want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCompleteSchemaRepairsOnce(t *testing.T) {
	mock := &sequencedProvider{
		responses: []*CompletionResponse{
			{Content: "not json"},
			{Content: `{"confirmed":[1,2]}`},
		},
	}

	var target struct {
		Confirmed []int `json:"confirmed"`
	}
	err := CompleteSchema(context.Background(), mock, CompletionRequest{}, "{confirmed: []int}", &target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(target.Confirmed) != 2 {
		t.Errorf("expected 2 confirmed entries, got %d", len(target.Confirmed))
	}
	if mock.calls != 2 {
		t.Errorf("expected 2 calls (original + repair), got %d", mock.calls)
	}
}

func TestCompleteSchemaFailsAfterRepair(t *testing.T) {
	mock := &sequencedProvider{
		responses: []*CompletionResponse{
			{Content: "not json"},
			{Content: "still not json"},
		},
	}

	var target struct{ Confirmed []int }
	err := CompleteSchema(context.Background(), mock, CompletionRequest{}, "{confirmed: []int}", &target)
	if err == nil {
		t.Fatal("expected error when repair also fails to parse")
	}
}

type sequencedProvider struct {
	responses []*CompletionResponse
	calls     int
}

func (s *sequencedProvider) Name() string { return "sequenced" }

func (s *sequencedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if s.calls >= len(s.responses) {
		return nil, fmt.Errorf("no more responses")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func TestRoles(t *testing.T) {
	if RoleSystem != "system" {
		t.Errorf("RoleSystem = %q, want 'system'", RoleSystem)
	}
	if RoleUser != "user" {
		t.Errorf("RoleUser = %q, want 'user'", RoleUser)
	}
	if RoleAssistant != "assistant" {
		t.Errorf("RoleAssistant = %q, want 'assistant'", RoleAssistant)
	}
}
