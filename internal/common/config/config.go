// internal/common/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Source   SourceConfig            `mapstructure:"source"`
	AWS      AWSConfig               `mapstructure:"aws"`
	Server   ServerConfig            `mapstructure:"server"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Analysis AnalysisConfig          `mapstructure:"analysis"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	MySQL         MySQLConfig         `mapstructure:"mysql"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// MySQLConfig accepts either a go-sql-driver DSN or a mysql:// / mariadb:// URL.
type MySQLConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
}

type ElasticsearchConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	URL         string   `mapstructure:"url"`
	IndexPrefix string   `mapstructure:"index_prefix"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl"` // seconds
}

// SourceConfig tells the SQL loaders where checkouts live.
type SourceConfig struct {
	Driver       string `mapstructure:"driver"` // postgres | mysql
	Table        string `mapstructure:"table"`
	MembersTable string `mapstructure:"members_table"` // optional
	QueryTimeout int    `mapstructure:"query_timeout"` // milliseconds
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
	SES    struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"ses"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sns"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AnalysisConfig carries every window and threshold of the metric engine.
// Day counts are calendar days.
type AnalysisConfig struct {
	ChurnDays            int     `mapstructure:"churn_days"`
	RepeatT2Days         int     `mapstructure:"repeat_t2_days"`
	RepeatT3Days         int     `mapstructure:"repeat_t3_days"`
	RegularWindowDays    int     `mapstructure:"regular_window_days"`
	RegularVisits        int     `mapstructure:"regular_visits"`
	RetentionWindowDays  int     `mapstructure:"retention_window_days"`
	RetentionVisits      int     `mapstructure:"retention_visits"`
	MonthlyCapacityHours float64 `mapstructure:"monthly_capacity_hours"`

	// RecentMonths bounds the vacancy average. LookbackMonths bounds the
	// new-customer and familiar cohorts on provider rows; negative disables it.
	RecentMonths      int `mapstructure:"recent_months"`
	LookbackMonths    int `mapstructure:"lookback_months"`
	StabilityMonths   int `mapstructure:"stability_months"`
	FamiliarMinVisits int `mapstructure:"familiar_min_visits"`

	NewCustomerMode string   `mapstructure:"new_customer_mode"` // brand | member
	CheckoutKinds   []string `mapstructure:"checkout_kinds"`
	Parallelism     int      `mapstructure:"parallelism"`

	ReliabilityN0 map[string]float64 `mapstructure:"reliability_n0"`
	CatalogPath   string             `mapstructure:"catalog_path"`
}

const (
	NewCustomerModeBrand  = "brand"
	NewCustomerModeMember = "member"
)

// DefaultAnalysis returns the stock engine parameters.
func DefaultAnalysis() AnalysisConfig {
	a := AnalysisConfig{}
	applyAnalysisDefaults(&a)
	return a
}

func applyAnalysisDefaults(a *AnalysisConfig) {
	if a.ChurnDays == 0 {
		a.ChurnDays = 60
	}
	if a.RepeatT2Days == 0 {
		a.RepeatT2Days = 30
	}
	if a.RepeatT3Days == 0 {
		a.RepeatT3Days = 60
	}
	if a.RegularWindowDays == 0 {
		a.RegularWindowDays = 180
	}
	if a.RegularVisits == 0 {
		a.RegularVisits = 5
	}
	if a.RetentionWindowDays == 0 {
		a.RetentionWindowDays = 180
	}
	if a.RetentionVisits == 0 {
		a.RetentionVisits = 3
	}
	if a.MonthlyCapacityHours == 0 {
		a.MonthlyCapacityHours = 168
	}
	if a.RecentMonths == 0 {
		a.RecentMonths = 3
	}
	if a.LookbackMonths == 0 {
		a.LookbackMonths = 3
	}
	if a.StabilityMonths == 0 {
		a.StabilityMonths = 6
	}
	if a.FamiliarMinVisits == 0 {
		a.FamiliarMinVisits = 2
	}
	if a.NewCustomerMode == "" {
		a.NewCustomerMode = NewCustomerModeBrand
	}
	if len(a.CheckoutKinds) == 0 {
		a.CheckoutKinds = []string{"服務", "票券", "service", "ticket"}
	}
	if a.Parallelism == 0 {
		a.Parallelism = 4
	}
	if a.ReliabilityN0 == nil {
		a.ReliabilityN0 = map[string]float64{}
	}
	if _, ok := a.ReliabilityN0["orders"]; !ok {
		a.ReliabilityN0["orders"] = 30
	}
	if _, ok := a.ReliabilityN0["months"]; !ok {
		a.ReliabilityN0["months"] = 6
	}
}

// Validate checks the analysis section on its own so the CLI can run
// without broker or database settings.
func (a AnalysisConfig) Validate() error {
	positive := map[string]int{
		"churn_days":            a.ChurnDays,
		"repeat_t2_days":        a.RepeatT2Days,
		"repeat_t3_days":        a.RepeatT3Days,
		"regular_window_days":   a.RegularWindowDays,
		"regular_visits":        a.RegularVisits,
		"retention_window_days": a.RetentionWindowDays,
		"retention_visits":      a.RetentionVisits,
		"recent_months":         a.RecentMonths,
		"stability_months":      a.StabilityMonths,
		"familiar_min_visits":   a.FamiliarMinVisits,
		"parallelism":           a.Parallelism,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("analysis.%s must be positive, got %d", name, v)
		}
	}
	if a.RepeatT2Days >= a.RepeatT3Days {
		return fmt.Errorf("analysis.repeat_t2_days (%d) must be shorter than repeat_t3_days (%d)", a.RepeatT2Days, a.RepeatT3Days)
	}
	if a.MonthlyCapacityHours <= 0 {
		return fmt.Errorf("analysis.monthly_capacity_hours must be positive")
	}
	switch a.NewCustomerMode {
	case NewCustomerModeBrand, NewCustomerModeMember:
	default:
		return fmt.Errorf("analysis.new_customer_mode must be %q or %q", NewCustomerModeBrand, NewCustomerModeMember)
	}
	for family, n0 := range a.ReliabilityN0 {
		if n0 <= 0 {
			return fmt.Errorf("analysis.reliability_n0.%s must be positive", family)
		}
	}
	return nil
}

// toMySQLDSN converts mysql:// and mariadb:// URLs into the driver's DSN
// form; anything else is returned unchanged.
func toMySQLDSN(raw string) (string, error) {
	if !strings.HasPrefix(raw, "mysql://") && !strings.HasPrefix(raw, "mariadb://") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql url: %w", err)
	}
	user := u.User.Username()
	pass, _ := u.User.Password()
	host := u.Host
	db := strings.TrimPrefix(u.Path, "/")
	if user == "" || host == "" || db == "" {
		return "", fmt.Errorf("mysql url needs user, host and database")
	}
	if !strings.Contains(host, ":") {
		host += ":3306"
	}
	q := u.Query()
	if q.Get("parseTime") == "" {
		q.Set("parseTime", "true")
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?%s", user, pass, host, db, q.Encode()), nil
}

// DriverDSN returns the go-sql-driver form of the configured DSN.
func (m MySQLConfig) DriverDSN() (string, error) {
	return toMySQLDSN(m.DSN)
}
