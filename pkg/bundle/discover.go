package bundle

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var submitURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)post.*?to\s+(https?://[^\s"'<>]+)`),
	regexp.MustCompile(`(?i)submit.*?to\s+(https?://[^\s"'<>]+)`),
	regexp.MustCompile(`POST\s+(https?://[^\s"'<>]+)`),
}

// FindSubmitURL extracts the grading endpoint from page text. First match wins.
func FindSubmitURL(text string) string {
	for _, pattern := range submitURLPatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			return strings.TrimRight(match[1], ".,;:")
		}
	}
	return ""
}

// FindSubmitURLInHTML falls back to form actions when the text carries no
// explicit submit instruction.
func FindSubmitURLInHTML(pageURL, html string) string {
	if u := FindSubmitURL(html); u != "" {
		return u
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("form[action]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		action, _ := s.Attr("action")
		action = strings.TrimSpace(action)
		if action == "" {
			return true
		}
		found = NormalizeURL(pageURL, action)
		return false
	})
	return found
}

var downloadExtensions = []string{".csv", ".xlsx", ".xls", ".json", ".pdf", ".txt", ".parquet"}

// FindDownloadLinks returns hrefs pointing at downloadable data files.
func FindDownloadLinks(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		lower := strings.ToLower(href)
		for _, ext := range downloadExtensions {
			if strings.HasSuffix(lower, ext) {
				if !seen[href] {
					seen[href] = true
					links = append(links, href)
				}
				return
			}
		}
	})
	return links
}

// FindImageLinks returns absolute URLs of the images embedded on the page.
func FindImageLinks(pageURL, html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("img[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		u := NormalizeURL(pageURL, src)
		if !strings.HasPrefix(u, "http") || seen[u] {
			return
		}
		seen[u] = true
		links = append(links, u)
	})
	return links
}

var headerPattern = regexp.MustCompile(`([A-Z][a-zA-Z-]+):\s*([^\n\r]+)`)

var authHeaderNames = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"api-key":       true,
	"token":         true,
}

// ExtractAPIHeaders picks auth-style headers mentioned verbatim in page text,
// e.g. "X-API-Key: abc123".
func ExtractAPIHeaders(text string) map[string]string {
	headers := make(map[string]string)
	for _, match := range headerPattern.FindAllStringSubmatch(text, -1) {
		if authHeaderNames[strings.ToLower(match[1])] {
			headers[match[1]] = strings.TrimSpace(match[2])
		}
	}
	return headers
}

// APICall is an embedded API invocation described on the page.
type APICall struct {
	Method string
	URL    string
}

var (
	apiCallPattern = regexp.MustCompile(`(?i)(GET|POST|PUT|DELETE)\s+(https?://[^\s"'<>]+)`)
	apiHintPattern = regexp.MustCompile(`(?i)API[^\n]*?(https?://[^\s"'<>]+)`)
)

// ExtractAPICalls finds "METHOD url" descriptions plus plain URLs introduced
// with "API" wording, deduplicated by URL.
func ExtractAPICalls(text string) []APICall {
	var calls []APICall
	seen := make(map[string]bool)

	for _, match := range apiCallPattern.FindAllStringSubmatch(text, -1) {
		u := strings.TrimRight(match[2], ".,;:")
		if !seen[u] {
			seen[u] = true
			calls = append(calls, APICall{Method: strings.ToUpper(match[1]), URL: u})
		}
	}
	for _, match := range apiHintPattern.FindAllStringSubmatch(text, -1) {
		u := strings.TrimRight(match[1], ".,;:")
		if !seen[u] {
			seen[u] = true
			calls = append(calls, APICall{Method: "GET", URL: u})
		}
	}
	return calls
}

// NormalizeURL resolves a possibly relative link against the page URL.
func NormalizeURL(baseURL, link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// CollectOtherURLs gathers the remaining URLs referenced by the page as
// low-priority context, excluding already-claimed ones, capped at limit.
func CollectOtherURLs(pageURL, html, text string, exclude map[string]bool, limit int) []string {
	all := make(map[string]bool)
	for _, u := range urlPattern.FindAllString(text, -1) {
		all[strings.TrimRight(u, ".,;:")] = true
	}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("a[href], img[src]").Each(func(i int, s *goquery.Selection) {
			attr := "href"
			if goquery.NodeName(s) == "img" {
				attr = "src"
			}
			if v, ok := s.Attr(attr); ok {
				u := NormalizeURL(pageURL, v)
				if strings.HasPrefix(u, "http") {
					all[u] = true
				}
			}
		})
	}

	var urls []string
	for u := range all {
		if u == pageURL || exclude[u] {
			continue
		}
		urls = append(urls, u)
	}
	sort.Strings(urls)
	if len(urls) > limit {
		urls = urls[:limit]
	}
	return urls
}
