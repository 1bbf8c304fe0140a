package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"relationship-metrics/internal/models"
)

// ReadMembers parses a member list. Visit counts that are blank or not
// numeric are left unset.
func ReadMembers(r io.Reader) ([]models.Member, error) {
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
		return nil, ErrMissingIdentity
	}
	nameIdx, _ := findColumn(colMap, memberNameHeaders)
	visitsIdx, _ := findColumn(colMap, visitCountHeaders)

	var members []models.Member
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
		m := models.Member{
			CountryCode: getValue(record, ccIdx),
			PhoneNumber: getValue(record, phoneIdx),
			Name:        getValue(record, nameIdx),
		}
		if v, err := strconv.ParseFloat(getValue(record, visitsIdx), 64); err == nil && v >= 0 {
			n := int(v)
			m.VisitCount = &n
		}
		members = append(members, m)
	}
	return members, nil
}
