package bundle

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

const maxDownloadBytes = 8 << 20

// fetchBytes downloads a sub-resource with the extracted API headers attached.
func (b *Builder) fetchBytes(ctx context.Context, url string, headers map[string]string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// loadDocument downloads and parses one data file into a Document. Failures
// come back as an error-kind Document, never as a raised error.
func (b *Builder) loadDocument(ctx context.Context, url string, headers map[string]string) Document {
	data, contentType, err := b.fetchBytes(ctx, url, headers)
	if err != nil {
		return Document{URL: url, Kind: KindError, Err: err.Error()}
	}

	lower := strings.ToLower(url)
	contentType = strings.ToLower(contentType)

	switch {
	case strings.HasSuffix(lower, ".csv") || strings.Contains(contentType, "csv"):
		return b.parseCSV(url, data)
	case strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls") || strings.Contains(contentType, "spreadsheet"):
		return b.parseXLSX(url, data)
	case strings.HasSuffix(lower, ".json") || strings.Contains(contentType, "json"):
		return b.parseJSON(url, data)
	case strings.HasSuffix(lower, ".parquet"):
		return Document{URL: url, Kind: KindError, Err: "parquet files are not supported"}
	case strings.HasSuffix(lower, ".txt") || strings.Contains(contentType, "text/plain"):
		return b.textDocument(url, string(data))
	default:
		// Unknown payloads most often turn out to be CSV.
		if doc := b.parseCSV(url, data); doc.Kind == KindTable {
			return doc
		}
		return b.textDocument(url, string(data))
	}
}

func (b *Builder) parseCSV(url string, data []byte) Document {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		msg := "empty file"
		if err != nil {
			msg = err.Error()
		}
		return Document{URL: url, Kind: KindError, Err: fmt.Sprintf("failed to parse CSV: %s", msg)}
	}

	return b.tableDocument(url, records[0], records[1:])
}

func (b *Builder) parseXLSX(url string, data []byte) Document {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Document{URL: url, Kind: KindError, Err: fmt.Sprintf("failed to open spreadsheet: %s", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Document{URL: url, Kind: KindError, Err: "spreadsheet has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil || len(rows) == 0 {
		msg := "empty sheet"
		if err != nil {
			msg = err.Error()
		}
		return Document{URL: url, Kind: KindError, Err: fmt.Sprintf("failed to read sheet: %s", msg)}
	}

	return b.tableDocument(url, rows[0], rows[1:])
}

func (b *Builder) parseJSON(url string, data []byte) Document {
	var objects []map[string]any
	if err := json.Unmarshal(data, &objects); err != nil || len(objects) == 0 {
		// Non-tabular JSON is still useful as a text excerpt.
		return b.textDocument(url, string(data))
	}

	columns := make([]string, 0, len(objects[0]))
	for k := range objects[0] {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	rows := make([][]string, 0, len(objects))
	for _, obj := range objects {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = stringifyCell(obj[col])
		}
		rows = append(rows, row)
	}

	return b.tableDocument(url, columns, rows)
}

func stringifyCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

func (b *Builder) tableDocument(url string, columns []string, rows [][]string) Document {
	if len(rows) > b.MaxRows {
		rows = rows[:b.MaxRows]
	}
	return Document{
		URL:     url,
		Kind:    KindTable,
		Columns: columns,
		Rows:    rows,
		Summary: fmt.Sprintf("Shape: (%d, %d)\nColumns: %v", len(rows), len(columns), columns),
	}
}

func (b *Builder) textDocument(url, text string) Document {
	excerpt := text
	runes := []rune(excerpt)
	if len(runes) > b.MaxExcerpt {
		excerpt = string(runes[:b.MaxExcerpt])
	}
	return Document{
		URL:     url,
		Kind:    KindText,
		Excerpt: excerpt,
		Summary: fmt.Sprintf("Text file, %d bytes", len(text)),
	}
}
