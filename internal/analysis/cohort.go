package analysis

import (
	"time"

	"relationship-metrics/internal/common/config"
	"relationship-metrics/internal/models"
)

// MemberIndex resolves optional member records by customer key.
type MemberIndex map[models.CustomerKey]models.Member

// BuildMemberIndex keys members by normalized identity; the first record
// for a key wins and unresolvable rows are skipped.
func BuildMemberIndex(members []models.Member) MemberIndex {
	idx := make(MemberIndex, len(members))
	for _, m := range members {
		key, ok := NormalizeIdentity(m.CountryCode, m.PhoneNumber)
		if !ok {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = m
		}
	}
	return idx
}

// NewCustomerCohort takes the brand-wide first transaction of every
// customer from all (the full, unfiltered set) and keeps those whose first
// visit lies at a location inside scope. In member mode, a customer whose
// recorded visit count exceeds the visits in the snapshot is not new.
func NewCustomerCohort(all []models.Transaction, scope models.AnalysisScope, members MemberIndex, mode string) []models.CohortEntry {
	first := make(map[models.CustomerKey]int, len(all))
	visits := make(map[models.CustomerKey]int, len(all))
	order := make([]models.CustomerKey, 0)
	for i, tx := range all {
		visits[tx.Customer]++
		if _, ok := first[tx.Customer]; !ok {
			first[tx.Customer] = i
			order = append(order, tx.Customer)
		}
	}

	entries := make([]models.CohortEntry, 0, len(order))
	for _, c := range order {
		tx := all[first[c]]
		if !scope.IncludesLocation(tx.Location) {
			continue
		}
		m, hasMember := members[c]
		if mode == config.NewCustomerModeMember && hasMember && m.VisitCount != nil && *m.VisitCount > visits[c] {
			continue
		}
		entries = append(entries, models.CohortEntry{
			Kind:       models.CohortNewCustomer,
			Customer:   c,
			MemberName: m.Name,
			Location:   tx.Location,
			Provider:   tx.Provider,
			Baseline:   tx.CheckoutAt,
		})
	}
	return entries
}

// RelationshipCohort emits one entry per (customer, location, provider)
// anchored at its first transaction. txs must be time ordered.
func RelationshipCohort(txs []models.Transaction, members MemberIndex) []models.CohortEntry {
	seen := make(map[relationshipKey]struct{})
	entries := make([]models.CohortEntry, 0)
	for _, tx := range txs {
		k := relationshipKey{customer: tx.Customer, location: tx.Location, provider: tx.Provider}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		entries = append(entries, models.CohortEntry{
			Kind:       models.CohortRelationship,
			Customer:   tx.Customer,
			MemberName: members[tx.Customer].Name,
			Location:   tx.Location,
			Provider:   tx.Provider,
			Baseline:   tx.CheckoutAt,
		})
	}
	return entries
}

// FamiliarCohort selects customers with at least minVisits transactions at
// a location before windowStart and anchors one entry per provider at
// their first visit on or after windowStart.
func FamiliarCohort(txs []models.Transaction, windowStart time.Time, minVisits int, members MemberIndex) []models.CohortEntry {
	before := make(map[locationKey]int)
	for _, tx := range txs {
		if tx.CheckoutAt.Before(windowStart) {
			before[locationKey{customer: tx.Customer, location: tx.Location}]++
		}
	}

	seen := make(map[relationshipKey]struct{})
	entries := make([]models.CohortEntry, 0)
	for _, tx := range txs {
		if tx.CheckoutAt.Before(windowStart) {
			continue
		}
		if before[locationKey{customer: tx.Customer, location: tx.Location}] < minVisits {
			continue
		}
		k := relationshipKey{customer: tx.Customer, location: tx.Location, provider: tx.Provider}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		entries = append(entries, models.CohortEntry{
			Kind:       models.CohortFamiliar,
			Customer:   tx.Customer,
			MemberName: members[tx.Customer].Name,
			Location:   tx.Location,
			Provider:   tx.Provider,
			Baseline:   tx.CheckoutAt,
		})
	}
	return entries
}
