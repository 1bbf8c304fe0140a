// Package ingest reads POS checkout exports and member lists from CSV.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"relationship-metrics/internal/models"
)

// Header aliases, tried in order. Matching ignores case, spaces, "_" and "-".
var (
	countryCodeHeaders = []string{"國碼", "country_code", "countrycode", "cc"}
	phoneHeaders       = []string{"電話號碼", "手機號碼", "phone_number", "phone", "mobile"}
	locationHeaders    = []string{"分店", "location", "store", "branch"}
	providerHeaders    = []string{"設計師", "師傅", "provider", "designer", "stylist"}
	checkoutHeaders    = []string{"結帳操作時間", "結帳時間", "checkout_at", "checkout_time", "checkout"}
	itemHeaders        = []string{"項目", "service_item", "item", "service"}
	kindHeaders        = []string{"結帳類型", "checkout_kind", "kind", "type"}
	requestedHeaders   = []string{"指定", "requested", "is_requested"}
	memberNameHeaders  = []string{"會員姓名", "name", "member_name"}
	visitCountHeaders  = []string{"來店次數", "visit_count", "visits"}
)

var (
	ErrMissingIdentity = errors.New("missing country code or phone number column")
	ErrMissingCheckout = errors.New("missing checkout time column")
)

// CheckoutFile is one parsed export.
type CheckoutFile struct {
	Rows    []models.RawTransaction
	Columns models.ColumnSet
}

// ReadCheckouts parses one export. Rows without a location fall back to
// storeName, so the location column is always present in the result.
// Timestamps are left as text for the engine to parse.
func ReadCheckouts(r io.Reader, sourceName, storeName string) (*CheckoutFile, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read header: %w", err)
	}
	colMap := normalizeHeaders(headers)

	ccIdx, okCC := findColumn(colMap, countryCodeHeaders)
	phoneIdx, okPhone := findColumn(colMap, phoneHeaders)
	if !okCC || !okPhone {
		return nil, fmt.Errorf("%s: %w", sourceName, ErrMissingIdentity)
	}
	atIdx, ok := findColumn(colMap, checkoutHeaders)
	if !ok {
		return nil, fmt.Errorf("%s: %w", sourceName, ErrMissingCheckout)
	}
	locIdx, _ := findColumn(colMap, locationHeaders)
	provIdx, hasProvider := findColumn(colMap, providerHeaders)
	itemIdx, hasItem := findColumn(colMap, itemHeaders)
	kindIdx, _ := findColumn(colMap, kindHeaders)
	reqIdx, hasRequested := findColumn(colMap, requestedHeaders)

	out := &CheckoutFile{
		Columns: models.ColumnSet{
			Location:    true,
			Provider:    hasProvider,
			ServiceItem: hasItem,
			Requested:   hasRequested,
		},
	}
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("unable to read CSV: %w", err)
		}
		if isBlank(record) {
			continue
		}

		location := getValue(record, locIdx)
		if location == "" {
			location = storeName
		}
		out.Rows = append(out.Rows, models.RawTransaction{
			CountryCode:  getValue(record, ccIdx),
			PhoneNumber:  getValue(record, phoneIdx),
			Location:     location,
			Provider:     getValue(record, provIdx),
			CheckoutText: getValue(record, atIdx),
			ServiceItem:  getValue(record, itemIdx),
			CheckoutKind: getValue(record, kindIdx),
			Requested:    parseRequested(getValue(record, reqIdx)),
			SourceFile:   sourceName,
		})
	}
	return out, nil
}

// LoadSnapshot reads every checkout file and the optional member file into
// one snapshot. An optional column counts as present only if every file
// has it.
func LoadSnapshot(checkoutPaths []string, memberPath string) (*models.Snapshot, error) {
	if len(checkoutPaths) == 0 {
		return nil, errors.New("no checkout files given")
	}
	snap := &models.Snapshot{
		Columns: models.ColumnSet{Location: true, Provider: true, ServiceItem: true, Requested: true},
	}
	for _, path := range checkoutPaths {
		f, err := readCheckoutFile(path)
		if err != nil {
			return nil, err
		}
		snap.Rows = append(snap.Rows, f.Rows...)
		snap.Columns.Provider = snap.Columns.Provider && f.Columns.Provider
		snap.Columns.ServiceItem = snap.Columns.ServiceItem && f.Columns.ServiceItem
		snap.Columns.Requested = snap.Columns.Requested && f.Columns.Requested
	}

	if memberPath != "" {
		file, err := os.Open(memberPath)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		members, err := ReadMembers(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", memberPath, err)
		}
		snap.Members = members
	}
	return snap, nil
}

func readCheckoutFile(path string) (*CheckoutFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	name := filepath.Base(path)
	return ReadCheckouts(file, name, InferStoreName(name))
}

var (
	billWords     = regexp.MustCompile(`帳單紀錄|帳單|紀錄`)
	isoDate       = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	longDigits    = regexp.MustCompile(`\d{8,}`)
	separators    = regexp.MustCompile(`[_\-]+`)
	multipleSpace = regexp.MustCompile(`\s+`)
)

// InferStoreName strips export boilerplate (bill words, dates, long digit
// runs) from a file name, e.g. "信義店_帳單紀錄_2024-05-01.csv" is "信義店".
func InferStoreName(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name := billWords.ReplaceAllString(stem, "")
	name = isoDate.ReplaceAllString(name, "")
	name = longDigits.ReplaceAllString(name, "")
	name = separators.ReplaceAllString(name, " ")
	name = strings.TrimSpace(multipleSpace.ReplaceAllString(name, " "))
	if name == "" {
		return stem
	}
	return name
}

func parseRequested(v string) *bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "是", "指定", "y", "yes", "true", "1":
		t := true
		return &t
	case "否", "n", "no", "false", "0":
		f := false
		return &f
	}
	return nil
}

func normalizeHeaders(headers []string) map[string]int {
	result := make(map[string]int, len(headers))
	for idx, header := range headers {
		normalized := normalizeHeader(header)
		if _, exists := result[normalized]; !exists {
			result[normalized] = idx
		}
	}
	return result
}

func normalizeHeader(value string) string {
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}

func findColumn(headers map[string]int, names []string) (int, bool) {
	for _, name := range names {
		if idx, ok := headers[normalizeHeader(name)]; ok {
			return idx, true
		}
	}
	return -1, false
}

func getValue(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
