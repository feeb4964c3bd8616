package solver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"llm-quiz-solver/pkg/bundle"
)

const (
	// TruncationMarker closes a context that hit the hard size cap.
	TruncationMarker = "\n... [truncated]"

	pageTextLimit   = 2000
	previewRowLimit = 10
)

var (
	submitTailPattern = regexp.MustCompile(`(?is)post your answer[\s\S]*`)
	codeFencePattern  = regexp.MustCompile("```[\\s\\S]*?```")
	// Example-submission templates embed an "answer" key; they are bait and
	// must never leak into the context the resolver reasons over.
	answerObjectPattern = regexp.MustCompile(`\{[^{}]*"answer"[^{}]*\}`)
	inlineJSONPattern   = regexp.MustCompile(`\{[^}]{20,}\}`)
)

// SanitizeQuestionText strips submission instructions and example payload
// blocks out of question or page text. They describe how to answer, not what
// is being asked.
func SanitizeQuestionText(text string) string {
	text = submitTailPattern.ReplaceAllString(text, "")
	text = codeFencePattern.ReplaceAllString(text, "")
	text = answerObjectPattern.ReplaceAllString(text, "")
	text = inlineJSONPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// AssembleContext serializes the question, page text and resource bundle
// into a single bounded context for the reasoning collaborator. Pure and
// deterministic given its inputs; overflow truncates with a marker rather
// than failing.
func AssembleContext(question, pageText string, b *bundle.Bundle, limit int) string {
	var parts []string

	parts = append(parts, "=== QUESTION ===", SanitizeQuestionText(question))
	parts = append(parts, "\n=== PAGE CONTENT ===", truncateRunes(SanitizeQuestionText(pageText), pageTextLimit))

	var tables, pdfs, images, texts, failures []bundle.Document
	for _, doc := range b.Documents {
		switch doc.Kind {
		case bundle.KindTable:
			tables = append(tables, doc)
		case bundle.KindPDF:
			pdfs = append(pdfs, doc)
		case bundle.KindImage:
			images = append(images, doc)
		case bundle.KindText:
			texts = append(texts, doc)
		default:
			failures = append(failures, doc)
		}
	}

	if len(tables) > 0 || len(texts) > 0 {
		parts = append(parts, "\n=== DATA FILES ===")
		for _, doc := range tables {
			parts = append(parts, fmt.Sprintf("\nFile: %s\n%s", doc.URL, doc.Summary))
			parts = append(parts, renderPreview(doc))
			if stats := describeNumericColumns(doc); stats != "" {
				parts = append(parts, "Numeric column statistics:\n"+stats)
			}
		}
		for _, doc := range texts {
			parts = append(parts, fmt.Sprintf("\nFile: %s\n%s\n%s", doc.URL, doc.Summary, doc.Excerpt))
		}
	}

	if len(pdfs) > 0 {
		parts = append(parts, "\n=== PDF CONTENT ===")
		for _, doc := range pdfs {
			parts = append(parts, fmt.Sprintf("PDF: %s\n%s", doc.URL, doc.Excerpt))
		}
	}

	if len(images) > 0 {
		parts = append(parts, "\n=== IMAGES ===")
		for _, doc := range images {
			parts = append(parts, fmt.Sprintf("Image: %s\n%s\n%s", doc.URL, doc.Summary, doc.Excerpt))
		}
	}

	if len(b.APIResponses) > 0 {
		parts = append(parts, "\n=== API RESPONSES ===")
		for _, resp := range b.APIResponses {
			if resp.Err != "" {
				parts = append(parts, fmt.Sprintf("\n%s %s\nError: %s", resp.Method, resp.URL, resp.Err))
			} else {
				parts = append(parts, fmt.Sprintf("\n%s %s\nResponse: %s", resp.Method, resp.URL, resp.Body))
			}
		}
	}

	if len(failures) > 0 {
		parts = append(parts, "\n=== FAILED RESOURCES ===")
		for _, doc := range failures {
			parts = append(parts, fmt.Sprintf("%s: %s", doc.URL, doc.Err))
		}
	}

	if len(b.OtherURLs) > 0 {
		parts = append(parts, "\n=== OTHER URLS FOUND ===")
		parts = append(parts, b.OtherURLs...)
	}

	context := strings.Join(parts, "\n")
	if limit > 0 {
		runes := []rune(context)
		if len(runes) > limit {
			// The marker counts against the cap so the result never
			// exceeds it.
			keep := limit - len([]rune(TruncationMarker))
			if keep < 0 {
				keep = 0
			}
			context = string(runes[:keep]) + TruncationMarker
		}
	}
	return context
}

// renderPreview formats the first rows of a table, pipe-separated.
func renderPreview(doc bundle.Document) string {
	var sb strings.Builder
	sb.WriteString("First rows:\n")
	sb.WriteString(strings.Join(doc.Columns, " | "))
	sb.WriteString("\n")
	for i, row := range doc.Rows {
		if i >= previewRowLimit {
			break
		}
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// describeNumericColumns emits count/min/max/mean for columns where most
// cells parse as numbers.
func describeNumericColumns(doc bundle.Document) string {
	var lines []string
	for idx, col := range doc.Columns {
		values := columnValues(doc, idx)
		if len(values) == 0 || len(values)*2 < len(doc.Rows) {
			continue
		}
		min, max, sum := values[0], values[0], 0.0
		for _, v := range values {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += v
		}
		mean := sum / float64(len(values))
		lines = append(lines, fmt.Sprintf("%s: count=%d min=%s max=%s mean=%s",
			col, len(values), formatFloat(min), formatFloat(max), formatFloat(mean)))
	}
	return strings.Join(lines, "\n")
}

func columnValues(doc bundle.Document, idx int) []float64 {
	var values []float64
	for _, row := range doc.Rows {
		if idx >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}
		if v, err := strconv.ParseFloat(cell, 64); err == nil {
			values = append(values, v)
		}
	}
	return values
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
