package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct {
	quoteAll bool
}

// NewCSVExporter builds a CSV exporter. With quoteAll every cell is wrapped in
// double quotes, which spreadsheet imports of student numbers rely on.
func NewCSVExporter(quoteAll bool) *CSVExporter {
	return &CSVExporter{quoteAll: quoteAll}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	if e.quoteAll {
		return renderQuoted(data), nil
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		if err := writer.Write(record(data.Headers, row)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderQuoted(data Dataset) []byte {
	var b strings.Builder
	writeQuoted(&b, data.Headers)
	for _, row := range data.Rows {
		b.WriteByte('\n')
		writeQuoted(&b, record(data.Headers, row))
	}
	return []byte(b.String())
}

func writeQuoted(b *strings.Builder, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		b.WriteByte('"')
	}
}

func record(headers []string, row map[string]string) []string {
	out := make([]string, len(headers))
	for i, header := range headers {
		out[i] = row[header]
	}
	return out
}
