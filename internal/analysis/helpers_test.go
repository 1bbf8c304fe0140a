package analysis

import (
	"time"

	"relationship-metrics/internal/models"
)

var epoch = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func dayN(n int) time.Time { return epoch.AddDate(0, 0, n) }

func stampsAt(daysOffsets ...int) []time.Time {
	out := make([]time.Time, len(daysOffsets))
	for i, d := range daysOffsets {
		out[i] = dayN(d)
	}
	return out
}

func raw(phone, location, provider string, at time.Time, item string) models.RawTransaction {
	return models.RawTransaction{
		CountryCode: "886",
		PhoneNumber: phone,
		Location:    location,
		Provider:    provider,
		CheckoutAt:  at,
		ServiceItem: item,
	}
}

func fullColumns() models.ColumnSet {
	return models.ColumnSet{Location: true, Provider: true, ServiceItem: true}
}

func tx(seq int, customer, location, provider string, at time.Time) models.Transaction {
	return models.Transaction{
		Seq:        seq,
		Customer:   models.CustomerKey(customer),
		Location:   location,
		Provider:   provider,
		CheckoutAt: at,
	}
}
