package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Renderer turns a question URL into raw HTML plus the visible page text.
// Implementations must apply their own internal timeout; a transport error is
// returned as-is and handled by the caller.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (html string, visibleText string, err error)
}

// Static fetches pages over plain HTTP and extracts visible text with
// go-readability. Quiz pages that require client-side JS need a headless
// browser behind the same interface.
type Static struct {
	client *http.Client
}

func NewStatic(timeout time.Duration) *Static {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Static{
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Static) Render(ctx context.Context, pageURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "quiz-solver/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("failed to fetch page, status code: %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", "", fmt.Errorf("failed to read response body: %w", err)
	}

	html := string(bodyBytes)
	return html, VisibleText(pageURL, html), nil
}

// VisibleText extracts the readable text of a page. The #result element wins
// when present (quiz pages put the rendered question there), then the
// readability extraction, then the raw body text.
func VisibleText(pageURL, html string) string {
	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(html))
	if docErr == nil {
		if result := doc.Find("#result"); result.Length() > 0 {
			if text := normalizeText(result.Text()); text != "" {
				return text
			}
		}
	}

	if parsedURL, err := url.Parse(pageURL); err == nil {
		parser := readability.NewParser()
		if article, err := parser.Parse(strings.NewReader(html), parsedURL); err == nil {
			if text := normalizeText(article.TextContent); text != "" {
				return text
			}
		}
	}

	if docErr == nil {
		return normalizeText(doc.Find("body").Text())
	}
	return ""
}

// questionIndicators mark elements likely to carry the actual question.
var questionIndicators = []string{"question", "q.", "what", "how", "calculate", "find", "download"}

// ExtractQuestion pulls the main question out of the page. It scans heading
// and paragraph elements for question indicators and joins the first few
// candidates; the visible page text is the fallback.
func ExtractQuestion(html, fallbackText string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fallbackText
	}

	var candidates []string
	doc.Find("h1,h2,h3,p,div").Each(func(i int, s *goquery.Selection) {
		if len(candidates) >= 5 {
			return
		}
		// Skip container divs; only leaf-ish text matters.
		if goquery.NodeName(s) == "div" && s.ChildrenFiltered("div,p,h1,h2,h3").Length() > 0 {
			return
		}
		text := normalizeText(s.Text())
		if len(text) < 10 {
			return
		}
		lower := strings.ToLower(text)
		for _, indicator := range questionIndicators {
			if strings.Contains(lower, indicator) {
				candidates = append(candidates, text)
				return
			}
		}
	})

	if len(candidates) == 0 {
		return fallbackText
	}
	return strings.Join(candidates, "\n")
}

// normalizeText trims each line and collapses runs of whitespace.
func normalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			b.WriteString(line)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}
