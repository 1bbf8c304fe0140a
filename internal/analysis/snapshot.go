package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"relationship-metrics/internal/models"
)

// MissingDimensionError is returned when a dataset lacks a column the
// engine cannot run without. It is the only fatal data condition.
type MissingDimensionError struct {
	Dimension string
}

func (e *MissingDimensionError) Error() string {
	return fmt.Sprintf("required dimension %q is missing from the dataset", e.Dimension)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ParseTimestamp accepts the layouts POS exports commonly use. Zone-less
// values are read as UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Normalize resolves identities and timestamps and returns the surviving
// transactions ordered by (checkout time, ingestion order).
func Normalize(s *models.Snapshot, p Params) ([]models.Transaction, models.IngestStats, error) {
	stats := models.IngestStats{TotalRows: len(s.Rows)}
	if !s.Columns.Provider {
		return nil, stats, &MissingDimensionError{Dimension: "provider"}
	}

	kinds := make(map[string]struct{}, len(p.CheckoutKinds))
	for _, k := range p.CheckoutKinds {
		kinds[strings.TrimSpace(k)] = struct{}{}
	}

	txs := make([]models.Transaction, 0, len(s.Rows))
	for i, r := range s.Rows {
		if kind := strings.TrimSpace(r.CheckoutKind); kind != "" && len(kinds) > 0 {
			if _, ok := kinds[kind]; !ok {
				stats.ExcludedKind++
				continue
			}
		}

		key, ok := NormalizeIdentity(r.CountryCode, r.PhoneNumber)
		if !ok {
			stats.UnresolvedIdentity++
			continue
		}

		at := r.CheckoutAt
		if at.IsZero() {
			parsed, ok := ParseTimestamp(r.CheckoutText)
			if !ok {
				stats.BadTimestamp++
				continue
			}
			at = parsed
		}

		location := ""
		if s.Columns.Location {
			location = strings.TrimSpace(r.Location)
		}
		item := ""
		if s.Columns.ServiceItem {
			item = r.ServiceItem
		}
		var requested *bool
		if s.Columns.Requested {
			requested = r.Requested
		}

		provider := strings.TrimSpace(r.Provider)
		if provider == "" {
			stats.BlankProvider++
		}

		txs = append(txs, models.Transaction{
			Seq:         i,
			Customer:    key,
			Location:    location,
			Provider:    provider,
			CheckoutAt:  at,
			ServiceItem: item,
			Requested:   requested,
		})
	}

	sortTransactions(txs)
	stats.Accepted = len(txs)
	return txs, stats, nil
}

func sortTransactions(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].CheckoutAt.Equal(txs[j].CheckoutAt) {
			return txs[i].CheckoutAt.Before(txs[j].CheckoutAt)
		}
		return txs[i].Seq < txs[j].Seq
	})
}
