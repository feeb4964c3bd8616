// Package bundle gathers the auxiliary evidence referenced by a quiz page:
// the submission endpoint, downloadable data files, embedded API calls, and
// remaining cross-links. A build never fails as a whole; each sub-fetch
// failure degrades to an error entry inside the bundle.
package bundle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	KindTable = "table"
	KindPDF   = "pdf"
	KindImage = "image"
	KindText  = "text"
	KindError = "error"
)

// Document is one loaded data file. Kind "error" carries the failure note in
// Err; tables retain parsed rows so aggregates can be computed exactly.
type Document struct {
	URL     string
	Kind    string
	Columns []string
	Rows    [][]string
	Summary string
	Excerpt string
	Err     string
}

// APIResponse records one embedded API invocation and its outcome.
type APIResponse struct {
	URL    string
	Method string
	Body   string
	Err    string
}

// Bundle is the aggregated evidence from one question page. It is rebuilt on
// every attempt and never persisted.
type Bundle struct {
	SubmitURL    string
	Documents    []Document
	APIResponses []APIResponse
	APIHeaders   map[string]string
	OtherURLs    []string
}

// Builder fetches and parses page sub-resources under per-fetch timeouts and
// a bounded fan-out.
type Builder struct {
	client *http.Client
	logger *slog.Logger
	ocrURL string

	FetchTimeout  time.Duration
	MaxDocuments  int
	MaxImages     int
	MaxAPICalls   int
	MaxOtherURLs  int
	MaxRows       int
	MaxExcerpt    int
	MaxAPIBody    int
	Concurrency   int
	MistralApiKey string
}

func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		ocrURL:       ocrEndpoint,
		FetchTimeout: 15 * time.Second,
		MaxDocuments: 4,
		MaxImages:    3,
		MaxAPICalls:  3,
		MaxOtherURLs: 10,
		MaxRows:      10000,
		MaxExcerpt:   3000,
		MaxAPIBody:   1000,
		Concurrency:  3,
	}
}

// Build assembles the resource bundle for one rendered page. Sub-fetches run
// concurrently, each bounded by FetchTimeout; a failed sub-fetch becomes an
// error entry and processing continues.
func (b *Builder) Build(ctx context.Context, pageURL, html, text string) *Bundle {
	bundle := &Bundle{
		SubmitURL:  FindSubmitURL(text),
		APIHeaders: ExtractAPIHeaders(text),
	}
	if bundle.SubmitURL == "" {
		bundle.SubmitURL = FindSubmitURLInHTML(pageURL, html)
	}

	links := FindDownloadLinks(html)
	if len(links) > b.MaxDocuments {
		links = links[:b.MaxDocuments]
	}
	for i, link := range links {
		links[i] = NormalizeURL(pageURL, link)
	}

	images := FindImageLinks(pageURL, html)
	if len(images) > b.MaxImages {
		images = images[:b.MaxImages]
	}

	calls := ExtractAPICalls(text)
	// The submit endpoint is not an evidence source.
	calls = filterCalls(calls, bundle.SubmitURL)
	if len(calls) > b.MaxAPICalls {
		calls = calls[:b.MaxAPICalls]
	}

	bundle.Documents = make([]Document, len(links)+len(images))
	bundle.APIResponses = make([]APIResponse, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Concurrency)

	for i, link := range links {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, b.FetchTimeout)
			defer cancel()

			if strings.HasSuffix(strings.ToLower(link), ".pdf") {
				bundle.Documents[i] = b.loadPDF(fetchCtx, link)
			} else {
				bundle.Documents[i] = b.loadDocument(fetchCtx, link, bundle.APIHeaders)
			}
			if bundle.Documents[i].Kind == KindError {
				b.logger.Warn("Failed to load document", "url", link, "error", bundle.Documents[i].Err)
			}
			return nil
		})
	}

	for i, img := range images {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, b.FetchTimeout)
			defer cancel()

			slot := len(links) + i
			bundle.Documents[slot] = b.loadImage(fetchCtx, img)
			if bundle.Documents[slot].Kind == KindError {
				b.logger.Warn("Failed to process image", "url", img, "error", bundle.Documents[slot].Err)
			}
			return nil
		})
	}

	for i, call := range calls {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, b.FetchTimeout)
			defer cancel()

			bundle.APIResponses[i] = b.callAPI(fetchCtx, call, bundle.APIHeaders)
			if bundle.APIResponses[i].Err != "" {
				b.logger.Warn("API call failed", "url", call.URL, "error", bundle.APIResponses[i].Err)
			}
			return nil
		})
	}

	_ = g.Wait()

	exclude := map[string]bool{bundle.SubmitURL: true}
	for _, link := range links {
		exclude[link] = true
	}
	for _, img := range images {
		exclude[img] = true
	}
	for _, call := range calls {
		exclude[call.URL] = true
	}
	bundle.OtherURLs = CollectOtherURLs(pageURL, html, text, exclude, b.MaxOtherURLs)

	b.logger.Info("Resource bundle built",
		"submit_url", bundle.SubmitURL,
		"documents", len(bundle.Documents),
		"api_calls", len(bundle.APIResponses),
		"other_urls", len(bundle.OtherURLs))

	return bundle
}

func filterCalls(calls []APICall, submitURL string) []APICall {
	filtered := calls[:0]
	for _, c := range calls {
		if c.URL == submitURL {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

// callAPI invokes one embedded API endpoint and records the truncated body.
func (b *Builder) callAPI(ctx context.Context, call APICall, headers map[string]string) APIResponse {
	resp := APIResponse{URL: call.URL, Method: call.Method}

	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, nil)
	if err != nil {
		resp.Err = fmt.Sprintf("failed to build request: %s", err)
		return resp
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	httpResp, err := b.client.Do(req)
	if err != nil {
		resp.Err = fmt.Sprintf("request failed: %s", err)
		return resp
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, int64(b.MaxAPIBody)+1))
	if err != nil {
		resp.Err = fmt.Sprintf("failed to read body: %s", err)
		return resp
	}
	if httpResp.StatusCode != http.StatusOK {
		resp.Err = fmt.Sprintf("unexpected status code %d: %s", httpResp.StatusCode, truncate(string(body), 200))
		return resp
	}

	resp.Body = truncate(string(body), b.MaxAPIBody)
	return resp
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// TotalErrors counts degraded entries, useful for reporting.
func (bd *Bundle) TotalErrors() int {
	n := 0
	for _, d := range bd.Documents {
		if d.Kind == KindError {
			n++
		}
	}
	for _, r := range bd.APIResponses {
		if r.Err != "" {
			n++
		}
	}
	return n
}
