package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractQuestion(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		fallback string
		want     string
	}{
		{
			name: "heading with indicator",
			html: `<html><body><h1>Question 3</h1><p>What is the sum of the value column?</p></body></html>`,
			want: "Question 3\nWhat is the sum of the value column?",
		},
		{
			name:     "no indicators falls back",
			html:     `<html><body><p>Lorem ipsum dolor sit amet consectetur.</p></body></html>`,
			fallback: "fallback text",
			want:     "fallback text",
		},
		{
			name: "short elements skipped",
			html: `<html><body><p>What?</p><p>Calculate the average age from the attached file.</p></body></html>`,
			want: "Calculate the average age from the attached file.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractQuestion(tt.html, tt.fallback)
			if got != tt.want {
				t.Errorf("ExtractQuestion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVisibleTextPrefersResultElement(t *testing.T) {
	html := `<html><body>
		<div id="result">What is 2 + 2?</div>
		<div>unrelated chrome</div>
	</body></html>`

	got := VisibleText("https://quiz.example.com/q1", html)
	if got != "What is 2 + 2?" {
		t.Errorf("VisibleText() = %q, want question text from #result", got)
	}
}

func TestVisibleTextBodyFallback(t *testing.T) {
	html := `<html><body><p>plain page text</p></body></html>`
	got := VisibleText("https://quiz.example.com/q1", html)
	if !strings.Contains(got, "plain page text") {
		t.Errorf("VisibleText() = %q, want body text", got)
	}
}

func TestStaticRender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div id="result">Question 1: what is the total?</div></body></html>`))
	}))
	defer srv.Close()

	r := NewStatic(5 * time.Second)
	html, text, err := r.Render(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if !strings.Contains(html, "Question 1") {
		t.Errorf("Render() html missing question: %q", html)
	}
	if text != "Question 1: what is the total?" {
		t.Errorf("Render() text = %q", text)
	}
}

func TestStaticRenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewStatic(5 * time.Second)
	if _, _, err := r.Render(context.Background(), srv.URL); err == nil {
		t.Error("Render() should fail on non-200 status")
	}
}

func TestStaticRenderContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := NewStatic(5 * time.Second)
	if _, _, err := r.Render(ctx, srv.URL); err == nil {
		t.Error("Render() should fail when context expires")
	}
}
