package solver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"llm-quiz-solver/pkg/bundle"
)

// fakeModel replays canned replies, one per GenerateContent call.
type fakeModel struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: reply}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, nil)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func testResolver(model llms.Model) *Resolver {
	r := NewResolver(model, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Limiter = NewRateLimiter(0)
	r.BaseDelay = time.Millisecond
	return r
}

func TestResolveStrictJSON(t *testing.T) {
	r := testResolver(&fakeModel{replies: []string{`{"answer": 42}`}})

	cand, err := r.Resolve(context.Background(), "What is the answer?", &bundle.Bundle{}, "ctx")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if cand.Provenance != ProvenanceReasoned {
		t.Errorf("provenance = %q, want %q", cand.Provenance, ProvenanceReasoned)
	}
	if cand.Value.Kind != ValueNumber || cand.Value.Number != 42 {
		t.Errorf("value = %+v, want number 42", cand.Value)
	}
}

func TestResolveNumericRescue(t *testing.T) {
	r := testResolver(&fakeModel{replies: []string{"The answer is 17."}})

	cand, err := r.Resolve(context.Background(), "Count the widgets", &bundle.Bundle{}, "ctx")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if cand.Provenance != ProvenancePatternMatch {
		t.Errorf("provenance = %q, want %q", cand.Provenance, ProvenancePatternMatch)
	}
	if cand.Value.Number != 17 {
		t.Errorf("number = %v, want 17", cand.Value.Number)
	}
}

func TestResolvePlaceholderRetriesThenAccepts(t *testing.T) {
	model := &fakeModel{replies: []string{
		`{"answer": "anything you want"}`,
		`{"answer": "Paris"}`,
	}}
	r := testResolver(model)

	cand, err := r.Resolve(context.Background(), "Capital of France?", &bundle.Bundle{}, "ctx")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if model.calls != 2 {
		t.Errorf("model calls = %d, want 2", model.calls)
	}
	if cand.Value.Text != "Paris" || cand.Provenance != ProvenanceReasoned {
		t.Errorf("candidate = %+v", cand)
	}
}

func TestResolvePlaceholderFallsBackToQuestionNumber(t *testing.T) {
	model := &fakeModel{replies: []string{
		`{"answer": "placeholder"}`,
		`{"answer": "your secret here"}`,
	}}
	r := testResolver(model)

	cand, err := r.Resolve(context.Background(), "Multiply 7 by the hidden factor", &bundle.Bundle{}, "ctx")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if cand.Provenance != ProvenanceFallback {
		t.Errorf("provenance = %q, want %q", cand.Provenance, ProvenanceFallback)
	}
	if cand.Value.Number != 7 {
		t.Errorf("number = %v, want 7 from question text", cand.Value.Number)
	}
}

func TestResolveNullAnswerFallsBack(t *testing.T) {
	model := &fakeModel{replies: []string{
		`{"answer": null}`,
		`{"answer": null}`,
	}}
	r := testResolver(model)

	cand, err := r.Resolve(context.Background(), "Echo the template back", &bundle.Bundle{}, "ctx")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if model.calls != 2 {
		t.Errorf("model calls = %d, want 2 (null answer burns the pass)", model.calls)
	}
	if cand.Provenance != ProvenanceFallback {
		t.Errorf("provenance = %q, want %q", cand.Provenance, ProvenanceFallback)
	}
	if cand.Value.Kind != ValueNumber || cand.Value.Number != 0 {
		t.Errorf("value = %+v, want sentinel 0, never the echoed template", cand.Value)
	}
}

func TestResolveRejectsEchoedAnswerObject(t *testing.T) {
	// Not valid {"answer": ...} JSON, no digits to rescue; the cleanup path
	// must still refuse to submit a structure carrying an answer key.
	model := &fakeModel{replies: []string{
		`[{"answer": "template"}]`,
		`[{"answer": "template"}]`,
	}}
	r := testResolver(model)

	cand, err := r.Resolve(context.Background(), "Name the shape", &bundle.Bundle{}, "ctx")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if cand.Provenance != ProvenanceFallback {
		t.Errorf("provenance = %q, want %q", cand.Provenance, ProvenanceFallback)
	}
	if cand.Value.Kind == ValueStructured {
		t.Errorf("value = %+v, echoed answer object must not survive", cand.Value)
	}
}

func TestResolveSentinelWithoutAnyNumber(t *testing.T) {
	model := &fakeModel{
		errs: []error{
			errors.New("boom"), errors.New("boom"), errors.New("boom"), errors.New("boom"),
			errors.New("boom"), errors.New("boom"), errors.New("boom"), errors.New("boom"),
		},
	}
	r := testResolver(model)
	r.MaxRetries = 1

	cand, err := r.Resolve(context.Background(), "Name the color", &bundle.Bundle{}, "ctx")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if cand.Provenance != ProvenanceFallback {
		t.Errorf("provenance = %q, want %q", cand.Provenance, ProvenanceFallback)
	}
	if cand.Value.Kind != ValueNumber || cand.Value.Number != 0 {
		t.Errorf("value = %+v, want sentinel number 0", cand.Value)
	}
}

func TestResolveAggregateBypassesLLM(t *testing.T) {
	model := &fakeModel{replies: []string{`{"answer": "should not be used"}`}}
	r := testResolver(model)

	b := &bundle.Bundle{Documents: []bundle.Document{{
		URL:     "https://files.example.com/data.csv",
		Kind:    bundle.KindTable,
		Columns: []string{"city", "value"},
		Rows:    [][]string{{"a", "10"}, {"b", "20"}, {"c", "30"}},
	}}}

	cand, err := r.Resolve(context.Background(), "What is the sum of the value column?", b, "ctx")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if model.calls != 0 {
		t.Errorf("model calls = %d, want 0 for deterministic aggregation", model.calls)
	}
	if cand.Provenance != ProvenanceNumericAuto || cand.Value.Number != 60 {
		t.Errorf("candidate = %+v, want numeric-auto 60", cand)
	}
}

func TestResolveRetriesOnError(t *testing.T) {
	model := &fakeModel{
		errs:    []error{errors.New("429 rate limit"), nil},
		replies: []string{"", `{"answer": true}`},
	}
	r := testResolver(model)

	cand, err := r.Resolve(context.Background(), "Is it prime?", &bundle.Bundle{}, "ctx")
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if cand.Value.Kind != ValueBool || !cand.Value.Bool {
		t.Errorf("value = %+v, want bool true", cand.Value)
	}
	if model.calls != 2 {
		t.Errorf("model calls = %d, want 2", model.calls)
	}
}

func TestResolveHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := testResolver(&fakeModel{replies: []string{`{"answer": 1}`}})
	if _, err := r.Resolve(ctx, "q", &bundle.Bundle{}, "ctx"); err == nil {
		t.Error("Resolve() should fail on a cancelled context")
	}
}

func TestAggregateOperations(t *testing.T) {
	values := []float64{4, 8, 2}
	tests := []struct {
		question string
		want     float64
		ok       bool
	}{
		{"what is the sum of value", 14, true},
		{"what is the average value", 14.0 / 3.0, true},
		{"how many value entries", 3, true},
		{"what is the maximum value", 8, true},
		{"what is the minimum value", 2, true},
		{"describe the value column", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, ok := aggregate(tt.question, values)
			if ok != tt.ok || (ok && got != tt.want) {
				t.Errorf("aggregate(%q) = %v, %v; want %v, %v", tt.question, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseRetryDelay(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
		ok   bool
	}{
		{"retry after", errors.New("429: retry after 7s"), 7 * time.Second, true},
		{"retryDelay field", errors.New(`rate limited, retryDelay: 2.5s`), 2500 * time.Millisecond, true},
		{"no hint", errors.New("internal error"), 0, false},
		{"nil", nil, 0, false},
		{"absurd", errors.New("retry after 9999s"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryDelay(tt.err)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseRetryDelay() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
