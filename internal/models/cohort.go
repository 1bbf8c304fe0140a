// internal/models/cohort.go
package models

import "time"

type CohortKind string

const (
	CohortNewCustomer  CohortKind = "new_customer"
	CohortRelationship CohortKind = "relationship"
	CohortFamiliar     CohortKind = "familiar"
)

// Maturity holds one gate result per observation window.
type Maturity struct {
	Churn     bool `json:"churn"`
	RepeatT2  bool `json:"repeatT2"`
	RepeatT3  bool `json:"repeatT3"`
	Regular   bool `json:"regular"`
	Retention bool `json:"retention"`
}

// CohortEntry is one tracked relationship anchored at a baseline visit.
// Dates are calendar days at UTC midnight.
type CohortEntry struct {
	Kind       CohortKind  `json:"kind"`
	Customer   CustomerKey `json:"customer"`
	MemberName string      `json:"memberName,omitempty"`
	Location   string      `json:"location"`
	Provider   string      `json:"provider"`
	Baseline   time.Time   `json:"baseline"`
	// Subsequent visit dates strictly after the baseline date, ascending.
	Subsequent []time.Time `json:"subsequent"`

	Maturity Maturity `json:"maturity"`

	Churn      bool `json:"churn"`
	ReturnDays *int `json:"returnDays,omitempty"`
	RepeatT2   bool `json:"repeatT2"`
	RepeatT3   bool `json:"repeatT3"`

	RegularAchieved bool       `json:"regularAchieved"`
	AchievementDate *time.Time `json:"achievementDate,omitempty"`
	RegularCount    int        `json:"regularCount"`

	// Retained and PostVisitCount are nil until the retention window
	// after achievement has fully elapsed.
	Retained       *bool `json:"retained,omitempty"`
	PostVisitCount *int  `json:"postVisitCount,omitempty"`
}
