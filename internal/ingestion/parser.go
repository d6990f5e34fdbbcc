package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/foreko/ingest/internal/domain"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when the upload has no parsable rows.
	ErrEmptyFile = errors.New("file has no data rows")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"01/02/2006",
		"02/01/2006",
		"01-02-2006",
		"Jan 2, 2006",
	}
)

// ColumnProfile summarizes one source column for mapping analysis.
type ColumnProfile struct {
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	SampleValues []string `json:"sample_values"`
	NullFraction float64  `json:"null_fraction"`
	DistinctRate float64  `json:"distinct_rate"`
	DetectedType string   `json:"detected_type"`
}

// ParsedTable is the normalized form of an uploaded file: sanitized headers,
// padded data rows and per-column profiles.
type ParsedTable struct {
	Headers    []string
	RawHeaders []string
	Rows       [][]string
	Profiles   []ColumnProfile
}

// ParseTable dispatches on the file extension and normalizes the result.
func ParseTable(fileName string, payload []byte) (ParsedTable, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	switch ext {
	case "csv":
		return parseCSV(payload)
	case "xlsx", "xlsm":
		return parseExcel(payload)
	default:
		return ParsedTable{}, fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (ParsedTable, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return ParsedTable{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records)
}

func parseExcel(payload []byte) (ParsedTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return ParsedTable{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ParsedTable{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ParsedTable{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(rows)
}

func normalizeTable(records [][]string) (ParsedTable, error) {
	if len(records) == 0 {
		return ParsedTable{}, ErrEmptyFile
	}

	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if len(cleanRow(row)) == 0 {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}

	if headerRow == nil {
		return ParsedTable{}, errors.New("header row could not be detected")
	}

	headers := sanitizeHeaders(headerRow)
	rawHeaders := make([]string, len(headerRow))
	for i, value := range headerRow {
		rawHeaders[i] = strings.TrimSpace(value)
	}

	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}
	dataRows = filterEmptyRows(dataRows)

	if len(dataRows) == 0 {
		return ParsedTable{}, ErrEmptyFile
	}

	table := ParsedTable{
		Headers:    headers,
		RawHeaders: rawHeaders,
		Rows:       dataRows,
	}
	table.Profiles = profileColumns(table)
	return table, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := domain.Slugify(value)
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func filterEmptyRows(rows [][]string) [][]string {
	var filtered [][]string
	for _, row := range rows {
		if len(cleanRow(row)) > 0 {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

const maxSampleValues = 5

func profileColumns(table ParsedTable) []ColumnProfile {
	profiles := make([]ColumnProfile, len(table.Headers))
	for idx, header := range table.Headers {
		label := header
		if idx < len(table.RawHeaders) && table.RawHeaders[idx] != "" {
			label = table.RawHeaders[idx]
		}
		profiles[idx] = profileColumn(idx, header, label, table.Rows)
	}
	return profiles
}

func profileColumn(col int, name, label string, rows [][]string) ColumnProfile {
	profile := ColumnProfile{Name: name, Label: label}

	distinct := make(map[string]struct{})
	nulls := 0
	isBool, isInt, isFloat, isTimestamp := true, true, true, true
	hasValue := false

	for _, row := range rows {
		var value string
		if col < len(row) {
			value = strings.TrimSpace(row[col])
		}
		if value == "" {
			nulls++
			continue
		}

		hasValue = true
		if _, ok := distinct[value]; !ok {
			distinct[value] = struct{}{}
			if len(profile.SampleValues) < maxSampleValues {
				profile.SampleValues = append(profile.SampleValues, value)
			}
		}

		if !looksLikeBool(value) {
			isBool = false
		}
		if !looksLikeInt(value) {
			isInt = false
		}
		if !looksLikeFloat(value) {
			isFloat = false
		}
		if !looksLikeTimestamp(value) {
			isTimestamp = false
		}
	}

	if len(rows) > 0 {
		profile.NullFraction = float64(nulls) / float64(len(rows))
	}
	if nonNull := len(rows) - nulls; nonNull > 0 {
		profile.DistinctRate = float64(len(distinct)) / float64(nonNull)
	}

	switch {
	case isBool && hasValue:
		profile.DetectedType = string(domain.FieldTypeBoolean)
	case isInt && hasValue:
		profile.DetectedType = string(domain.FieldTypeInteger)
	case isFloat && hasValue:
		profile.DetectedType = string(domain.FieldTypeFloat)
	case isTimestamp && hasValue:
		profile.DetectedType = string(domain.FieldTypeTimestamp)
	default:
		profile.DetectedType = string(domain.FieldTypeString)
	}
	return profile
}

func looksLikeBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func looksLikeInt(value string) bool {
	_, err := strconv.ParseInt(value, 10, 64)
	return err == nil
}

func looksLikeFloat(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func looksLikeTimestamp(value string) bool {
	_, err := ParseTimestamp(value)
	return err == nil
}

// ProfilesFromRows rebuilds column profiles from persisted raw rows so the
// analyze phase does not need the original file bytes. Column order is not
// recoverable from the stored maps; profiles come back sorted by name.
func ProfilesFromRows(rows []domain.RawRow) []ColumnProfile {
	if len(rows) == 0 {
		return nil
	}

	nameSet := make(map[string]struct{})
	for _, row := range rows {
		for name := range row.Values {
			nameSet[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	table := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(names))
		for j, name := range names {
			cells[j] = row.Values[name]
		}
		table[i] = cells
	}

	profiles := make([]ColumnProfile, len(names))
	for idx, name := range names {
		profiles[idx] = profileColumn(idx, name, name, table)
	}
	return profiles
}

// ParseTimestamp attempts the supported date layouts in order.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", raw)
}
