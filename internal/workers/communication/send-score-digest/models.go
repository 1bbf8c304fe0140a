package sendscoredigest

import "time"

type Input struct {
	CacheKey   string   `json:"cacheKey"`
	Recipients []string `json:"recipients,omitempty"`
	Phones     []string `json:"phones,omitempty"`
	TopN       int      `json:"topN,omitempty"`
	Subject    string   `json:"subject,omitempty"`
}

type Output struct {
	RunID         string    `json:"runId"`
	EmailID       string    `json:"emailId,omitempty"`
	SMSIDs        []string  `json:"smsIds,omitempty"`
	ProvidersSent int       `json:"providersSent"`
	SentAt        time.Time `json:"sentAt"`
}
