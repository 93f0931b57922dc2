package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/invigilo/exam-duty-api/pkg/export"
)

// readTabular reads a CSV or XLSX upload into header-keyed rows. The first
// row is the header; fully empty rows are skipped.
func readTabular(filename string, r io.Reader) ([]map[string]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		return rowsFromRecords(records), nil
	case ".xlsx":
		records, err := export.NewXLSXExporter().ParseFirstSheet(r)
		if err != nil {
			return nil, fmt.Errorf("read xlsx: %w", err)
		}
		return rowsFromRecords(records), nil
	default:
		return nil, fmt.Errorf("unsupported file format %q, only .csv and .xlsx are supported", filepath.Ext(filename))
	}
}

func rowsFromRecords(records [][]string) []map[string]string {
	if len(records) == 0 {
		return nil
	}
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		empty := true
		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			if value != "" {
				empty = false
			}
			row[header] = value
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows
}
