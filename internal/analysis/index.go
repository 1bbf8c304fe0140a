package analysis

import (
	"time"

	"relationship-metrics/internal/models"
)

type locationKey struct {
	customer models.CustomerKey
	location string
}

type relationshipKey struct {
	customer models.CustomerKey
	location string
	provider string
}

// Index holds time-sorted checkout timestamps per (customer, location) and
// per (customer, location, provider). It is read-only after BuildIndex.
type Index struct {
	byLocation     map[locationKey][]time.Time
	byRelationship map[relationshipKey][]time.Time
}

// BuildIndex groups txs, which must be ordered by checkout time.
func BuildIndex(txs []models.Transaction) *Index {
	ix := &Index{
		byLocation:     make(map[locationKey][]time.Time),
		byRelationship: make(map[relationshipKey][]time.Time),
	}
	for _, tx := range txs {
		lk := locationKey{customer: tx.Customer, location: tx.Location}
		ix.byLocation[lk] = append(ix.byLocation[lk], tx.CheckoutAt)

		rk := relationshipKey{customer: tx.Customer, location: tx.Location, provider: tx.Provider}
		ix.byRelationship[rk] = append(ix.byRelationship[rk], tx.CheckoutAt)
	}
	return ix
}

func (ix *Index) CustomerLocation(customer models.CustomerKey, location string) []time.Time {
	return ix.byLocation[locationKey{customer: customer, location: location}]
}

func (ix *Index) CustomerLocationProvider(customer models.CustomerKey, location, provider string) []time.Time {
	return ix.byRelationship[relationshipKey{customer: customer, location: location, provider: provider}]
}

// Len reports the number of (customer, location) and relationship keys.
func (ix *Index) Len() (locations, relationships int) {
	return len(ix.byLocation), len(ix.byRelationship)
}
