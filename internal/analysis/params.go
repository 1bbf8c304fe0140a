package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"relationship-metrics/internal/common/config"
	"relationship-metrics/pkg/registry"
)

// Params are the engine's window lengths and thresholds.
type Params struct {
	ChurnDays           int
	RepeatT2Days        int
	RepeatT3Days        int
	RegularWindowDays   int
	RegularVisits       int
	RetentionWindowDays int
	RetentionVisits     int

	MonthlyCapacityHours float64
	RecentMonths         int
	LookbackMonths       int
	StabilityMonths      int
	FamiliarMinVisits    int

	NewCustomerMode string
	CheckoutKinds   []string
	Parallelism     int
}

func ParamsFromConfig(c config.AnalysisConfig) Params {
	return Params{
		ChurnDays:            c.ChurnDays,
		RepeatT2Days:         c.RepeatT2Days,
		RepeatT3Days:         c.RepeatT3Days,
		RegularWindowDays:    c.RegularWindowDays,
		RegularVisits:        c.RegularVisits,
		RetentionWindowDays:  c.RetentionWindowDays,
		RetentionVisits:      c.RetentionVisits,
		MonthlyCapacityHours: c.MonthlyCapacityHours,
		RecentMonths:         c.RecentMonths,
		LookbackMonths:       c.LookbackMonths,
		StabilityMonths:      c.StabilityMonths,
		FamiliarMinVisits:    c.FamiliarMinVisits,
		NewCustomerMode:      c.NewCustomerMode,
		CheckoutKinds:        append([]string(nil), c.CheckoutKinds...),
		Parallelism:          c.Parallelism,
	}
}

// DefaultParams mirrors config.DefaultAnalysis.
func DefaultParams() Params {
	return ParamsFromConfig(config.DefaultAnalysis())
}

// windows extracts the classifier's view of p.
func (p Params) windows() Windows {
	return Windows{
		ChurnDays:           p.ChurnDays,
		RepeatT2Days:        p.RepeatT2Days,
		RepeatT3Days:        p.RepeatT3Days,
		RegularWindowDays:   p.RegularWindowDays,
		RegularVisits:       p.RegularVisits,
		RetentionWindowDays: p.RetentionWindowDays,
		RetentionVisits:     p.RetentionVisits,
	}
}

// Validate rejects parameter sets that would produce meaningless rates.
func (p Params) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"churn days", p.ChurnDays},
		{"repeat T2 days", p.RepeatT2Days},
		{"repeat T3 days", p.RepeatT3Days},
		{"regular window days", p.RegularWindowDays},
		{"regular visits", p.RegularVisits},
		{"retention window days", p.RetentionWindowDays},
		{"retention visits", p.RetentionVisits},
		{"recent months", p.RecentMonths},
		{"stability months", p.StabilityMonths},
	}
	for _, f := range positive {
		if f.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", f.name, f.value)
		}
	}
	if p.MonthlyCapacityHours <= 0 {
		return fmt.Errorf("monthly capacity hours must be positive, got %v", p.MonthlyCapacityHours)
	}
	if p.LookbackMonths < 0 {
		return fmt.Errorf("lookback months cannot be negative, got %d", p.LookbackMonths)
	}
	return nil
}

// fingerprintInput is every setting that can change a result. Parallelism
// only changes scheduling and is left out.
type fingerprintInput struct {
	ChurnDays            int                `json:"churnDays"`
	RepeatT2Days         int                `json:"repeatT2Days"`
	RepeatT3Days         int                `json:"repeatT3Days"`
	RegularWindowDays    int                `json:"regularWindowDays"`
	RegularVisits        int                `json:"regularVisits"`
	RetentionWindowDays  int                `json:"retentionWindowDays"`
	RetentionVisits      int                `json:"retentionVisits"`
	MonthlyCapacityHours float64            `json:"monthlyCapacityHours"`
	RecentMonths         int                `json:"recentMonths"`
	LookbackMonths       int                `json:"lookbackMonths"`
	StabilityMonths      int                `json:"stabilityMonths"`
	FamiliarMinVisits    int                `json:"familiarMinVisits"`
	NewCustomerMode      string             `json:"newCustomerMode"`
	CheckoutKinds        []string           `json:"checkoutKinds"`
	ReliabilityN0        map[string]float64 `json:"reliabilityN0"`
	Blocks               []registry.Block   `json:"blocks"`
}

// paramsFingerprint hashes p, n0 and the catalog's blocks. Catalog version
// and edit timestamp are ignored; only weights and goals matter.
func paramsFingerprint(p Params, catalog *registry.Catalog, n0 map[string]float64) (string, error) {
	kinds := make([]string, 0, len(p.CheckoutKinds))
	for _, k := range p.CheckoutKinds {
		kinds = append(kinds, strings.TrimSpace(k))
	}
	sort.Strings(kinds)

	in := fingerprintInput{
		ChurnDays:            p.ChurnDays,
		RepeatT2Days:         p.RepeatT2Days,
		RepeatT3Days:         p.RepeatT3Days,
		RegularWindowDays:    p.RegularWindowDays,
		RegularVisits:        p.RegularVisits,
		RetentionWindowDays:  p.RetentionWindowDays,
		RetentionVisits:      p.RetentionVisits,
		MonthlyCapacityHours: p.MonthlyCapacityHours,
		RecentMonths:         p.RecentMonths,
		LookbackMonths:       p.LookbackMonths,
		StabilityMonths:      p.StabilityMonths,
		FamiliarMinVisits:    p.FamiliarMinVisits,
		NewCustomerMode:      p.NewCustomerMode,
		CheckoutKinds:        kinds,
		ReliabilityN0:        n0,
		Blocks:               catalog.Blocks,
	}
	// encoding/json sorts map keys, so equal inputs hash equally.
	data, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("fingerprint params: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}
