package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const ocrEndpoint = "https://api.mistral.ai/v1/ocr"

type ocrResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type ocrResponse struct {
	Pages []ocrResponsePage `json:"pages"`
}

// extractText runs one Mistral OCR call over a remote document or image.
// The API only accepts https URLs.
func (b *Builder) extractText(ctx context.Context, document map[string]string) (string, error) {
	if b.MistralApiKey == "" {
		return "", fmt.Errorf("MISTRAL_API_KEY is not set")
	}

	reqBody := map[string]interface{}{
		"model":    "mistral-ocr-latest",
		"document": document,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.ocrURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.MistralApiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make OCR request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read OCR response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR request failed with status %s", resp.Status)
	}

	var parsed ocrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var sb strings.Builder
	for _, page := range parsed.Pages {
		fmt.Fprintf(&sb, "- Page %d -\n%s\n\n", page.Index, page.Markdown)
	}
	return sb.String(), nil
}

func (b *Builder) extractPDFText(ctx context.Context, url string) (string, error) {
	return b.extractText(ctx, map[string]string{
		"type":         "document_url",
		"document_url": strings.Replace(url, "http://", "https://", 1),
	})
}

func (b *Builder) extractImageText(ctx context.Context, url string) (string, error) {
	return b.extractText(ctx, map[string]string{
		"type":      "image_url",
		"image_url": strings.Replace(url, "http://", "https://", 1),
	})
}

// loadPDF wraps OCR extraction into a Document.
func (b *Builder) loadPDF(ctx context.Context, url string) Document {
	text, err := b.extractPDFText(ctx, url)
	if err != nil {
		return Document{URL: url, Kind: KindError, Err: fmt.Sprintf("failed to extract PDF text: %s", err)}
	}
	return Document{
		URL:     url,
		Kind:    KindPDF,
		Excerpt: b.excerpt(text),
		Summary: fmt.Sprintf("PDF, %d chars extracted", len(text)),
	}
}

// loadImage OCRs a page image into a Document so charts and screenshots of
// text still reach the resolver.
func (b *Builder) loadImage(ctx context.Context, url string) Document {
	text, err := b.extractImageText(ctx, url)
	if err != nil {
		return Document{URL: url, Kind: KindError, Err: fmt.Sprintf("failed to process image: %s", err)}
	}
	return Document{
		URL:     url,
		Kind:    KindImage,
		Excerpt: b.excerpt(text),
		Summary: fmt.Sprintf("Image, %d chars extracted", len(text)),
	}
}

func (b *Builder) excerpt(text string) string {
	runes := []rune(text)
	if len(runes) > b.MaxExcerpt {
		return string(runes[:b.MaxExcerpt])
	}
	return text
}
