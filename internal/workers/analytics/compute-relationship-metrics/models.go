package computerelationshipmetrics

import "time"

const (
	SourcePostgres = "postgres"
	SourceMySQL    = "mysql"
	SourceCSV      = "csv"
)

type Input struct {
	Source     string   `json:"source"`
	CSVPaths   []string `json:"csvPaths,omitempty"`
	MemberPath string   `json:"memberPath,omitempty"`
	// From and To bound SQL sources; either a date or RFC3339.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	Locations        []string `json:"locations,omitempty"`
	Providers        []string `json:"providers,omitempty"`
	ExcludeProviders []string `json:"excludeProviders,omitempty"`

	IndexDetail bool `json:"indexDetail,omitempty"`
	// Refresh bypasses the cached result for this snapshot and scope.
	Refresh bool `json:"refresh,omitempty"`
}

type ProviderScore struct {
	Provider string   `json:"provider"`
	Overall  *float64 `json:"overall"`
}

type Output struct {
	RunID       string `json:"runId"`
	Fingerprint string `json:"fingerprint"`
	CacheKey    string `json:"cacheKey"`
	Cached      bool   `json:"cached"`
	Cutoff      string `json:"cutoff"`

	AcceptedRows  int `json:"acceptedRows"`
	DroppedRows   int `json:"droppedRows"`
	Providers     int `json:"providers"`
	NewCustomers  int `json:"newCustomers"`
	Relationships int `json:"relationships"`
	Familiar      int `json:"familiar"`
	Churned       int `json:"churned"`

	Index            string `json:"index,omitempty"`
	IndexedDocuments int    `json:"indexedDocuments,omitempty"`

	TopProviders []ProviderScore `json:"topProviders"`
	ProcessedAt  time.Time       `json:"processedAt"`
}
