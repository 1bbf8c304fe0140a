// internal/models/transaction.go
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// CustomerKey is the canonical "{country}-{number}" identity.
type CustomerKey string

// RawTransaction is one checkout row as supplied by a loader.
type RawTransaction struct {
	CountryCode  string    `json:"countryCode"`
	PhoneNumber  string    `json:"phoneNumber"`
	Location     string    `json:"location,omitempty"`
	Provider     string    `json:"provider"`
	CheckoutAt   time.Time `json:"checkoutAt"`
	CheckoutText string    `json:"checkoutText,omitempty"`
	ServiceItem  string    `json:"serviceItem,omitempty"`
	CheckoutKind string    `json:"checkoutKind,omitempty"`
	Requested    *bool     `json:"requested,omitempty"`
	SourceFile   string    `json:"sourceFile,omitempty"`
}

// ColumnSet records which optional dimensions the dataset carries at all.
type ColumnSet struct {
	Location    bool `json:"location"`
	Provider    bool `json:"provider"`
	ServiceItem bool `json:"serviceItem"`
	Requested   bool `json:"requested"`
}

type Member struct {
	CountryCode string `json:"countryCode"`
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name,omitempty"`
	VisitCount  *int   `json:"visitCount,omitempty"`
}

// Snapshot is the full, immutable input of one analysis run.
type Snapshot struct {
	Rows    []RawTransaction `json:"rows"`
	Columns ColumnSet        `json:"columns"`
	Members []Member         `json:"members,omitempty"`
}

// Fingerprint hashes every field that can influence a result.
func (s *Snapshot) Fingerprint() string {
	h := sha256.New()
	write := func(v string) {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	write(strconv.FormatBool(s.Columns.Location))
	write(strconv.FormatBool(s.Columns.Provider))
	write(strconv.FormatBool(s.Columns.ServiceItem))
	write(strconv.FormatBool(s.Columns.Requested))
	for _, r := range s.Rows {
		write(r.CountryCode)
		write(r.PhoneNumber)
		write(r.Location)
		write(r.Provider)
		// The offset is kept: calendar dates are taken in the stamp's own zone.
		write(r.CheckoutAt.Format(time.RFC3339Nano))
		write(r.CheckoutText)
		write(r.ServiceItem)
		write(r.CheckoutKind)
		switch {
		case r.Requested == nil:
			write("-")
		default:
			write(strconv.FormatBool(*r.Requested))
		}
	}
	for _, m := range s.Members {
		write(m.CountryCode)
		write(m.PhoneNumber)
		write(m.Name)
		if m.VisitCount != nil {
			write(strconv.Itoa(*m.VisitCount))
		} else {
			write("-")
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Transaction is a row that survived identity and timestamp normalization.
type Transaction struct {
	Seq         int         `json:"seq"`
	Customer    CustomerKey `json:"customer"`
	Location    string      `json:"location"`
	Provider    string      `json:"provider"`
	CheckoutAt  time.Time   `json:"checkoutAt"`
	ServiceItem string      `json:"serviceItem,omitempty"`
	Requested   *bool       `json:"requested,omitempty"`
}

// IngestStats counts rows dropped before classification. BlankProvider
// rows are accepted but never attributed to a provider.
type IngestStats struct {
	TotalRows          int `json:"totalRows"`
	Accepted           int `json:"accepted"`
	UnresolvedIdentity int `json:"unresolvedIdentity"`
	BadTimestamp       int `json:"badTimestamp"`
	ExcludedKind       int `json:"excludedKind"`
	BlankProvider      int `json:"blankProvider"`
}
