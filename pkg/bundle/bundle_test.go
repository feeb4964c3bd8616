package bundle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBuildGathersEverything(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/data.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("value\n10\n20\n"))
	})
	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/broken.csv", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pageURL := srv.URL + "/q1"
	html := fmt.Sprintf(`<html><body>
		<a href="/data.csv">download</a>
		<a href="%s/broken.csv">broken</a>
		<a href="https://elsewhere.example.com/ref">ref</a>
	</body></html>`, srv.URL)
	text := fmt.Sprintf("Fetch GET %s/api/info first.\nPost your answer to %s/submit", srv.URL, srv.URL)

	b := testBuilder()
	got := b.Build(context.Background(), pageURL, html, text)

	if got.SubmitURL != srv.URL+"/submit" {
		t.Errorf("SubmitURL = %q", got.SubmitURL)
	}

	if len(got.Documents) != 2 {
		t.Fatalf("len(Documents) = %d, want 2", len(got.Documents))
	}
	if got.Documents[0].Kind != KindTable {
		t.Errorf("Documents[0].Kind = %q, want table (err %s)", got.Documents[0].Kind, got.Documents[0].Err)
	}
	if got.Documents[1].Kind != KindError {
		t.Errorf("Documents[1].Kind = %q, want error entry for broken fetch", got.Documents[1].Kind)
	}

	if len(got.APIResponses) != 1 {
		t.Fatalf("len(APIResponses) = %d, want 1", len(got.APIResponses))
	}
	if got.APIResponses[0].Method != "GET" || !strings.Contains(got.APIResponses[0].Body, `"ok":true`) {
		t.Errorf("APIResponses[0] = %+v", got.APIResponses[0])
	}

	found := false
	for _, u := range got.OtherURLs {
		if u == "https://elsewhere.example.com/ref" {
			found = true
		}
		if u == got.SubmitURL {
			t.Error("OtherURLs must not contain the submit URL")
		}
	}
	if !found {
		t.Errorf("OtherURLs = %v, want cross-link included", got.OtherURLs)
	}

	if got.TotalErrors() != 1 {
		t.Errorf("TotalErrors() = %d, want 1", got.TotalErrors())
	}
}

func TestBuildNoSubmitURL(t *testing.T) {
	b := testBuilder()
	got := b.Build(context.Background(), "https://quiz.example.com/q1",
		"<html><body><p>nothing here</p></body></html>", "no instructions")
	if got.SubmitURL != "" {
		t.Errorf("SubmitURL = %q, want empty", got.SubmitURL)
	}
	if len(got.Documents) != 0 || len(got.APIResponses) != 0 {
		t.Errorf("expected empty bundle, got %+v", got)
	}
}

func TestBuildDocumentCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("a\n1\n"))
	}))
	defer srv.Close()

	var links strings.Builder
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&links, `<a href="%s/f%d.csv">f</a>`, srv.URL, i)
	}
	html := "<html><body>" + links.String() + "</body></html>"

	b := testBuilder()
	got := b.Build(context.Background(), srv.URL+"/q1", html, "")
	if len(got.Documents) != b.MaxDocuments {
		t.Errorf("len(Documents) = %d, want cap %d", len(got.Documents), b.MaxDocuments)
	}
}

func TestBuildProcessesImages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ocr", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"image_url"`) {
			t.Errorf("OCR request should carry an image document: %s", body)
		}
		w.Write([]byte(`{"pages":[{"index":0,"markdown":"chart total 60"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	html := `<html><body><img src="/chart.png"></body></html>`

	b := testBuilder()
	b.MistralApiKey = "test-key"
	b.ocrURL = srv.URL + "/ocr"

	got := b.Build(context.Background(), "https://quiz.example.com/q1", html, "")

	if len(got.Documents) != 1 {
		t.Fatalf("len(Documents) = %d, want 1", len(got.Documents))
	}
	img := got.Documents[0]
	if img.Kind != KindImage {
		t.Fatalf("Kind = %q, want image (err %s)", img.Kind, img.Err)
	}
	if !strings.Contains(img.Excerpt, "chart total 60") {
		t.Errorf("Excerpt = %q, want OCR text", img.Excerpt)
	}
	for _, u := range got.OtherURLs {
		if u == "https://quiz.example.com/chart.png" {
			t.Error("processed image must not reappear in OtherURLs")
		}
	}
}

func TestBuildImageCap(t *testing.T) {
	var imgs strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&imgs, `<img src="https://quiz.example.com/img%d.png">`, i)
	}
	html := "<html><body>" + imgs.String() + "</body></html>"

	// No OCR key: every image degrades to an error entry but still counts.
	b := testBuilder()
	got := b.Build(context.Background(), "https://quiz.example.com/q1", html, "")

	if len(got.Documents) != b.MaxImages {
		t.Fatalf("len(Documents) = %d, want image cap %d", len(got.Documents), b.MaxImages)
	}
	for _, doc := range got.Documents {
		if doc.Kind != KindError {
			t.Errorf("Kind = %q, want error without an OCR key", doc.Kind)
		}
	}
}

func TestBuildRespectsContextDeadline(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer slow.Close()

	html := fmt.Sprintf(`<html><body><a href="%s/slow.csv">slow</a></body></html>`, slow.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := testBuilder()
	got := b.Build(ctx, slow.URL+"/q1", html, "")
	if len(got.Documents) != 1 || got.Documents[0].Kind != KindError {
		t.Errorf("expected error document under cancelled context, got %+v", got.Documents)
	}
}
