package model

import "time"

// Status tracks a product record through the enrichment state machine.
type Status string

const (
	StatusPending     Status = "pending"
	StatusClassifying Status = "classifying"
	StatusBrandLookup Status = "brand_lookup"
	StatusSearching   Status = "searching"
	StatusExtracting  Status = "extracting"
	StatusGapFilling  Status = "gap_filling"
	StatusValidating  Status = "validating"
	StatusDone        Status = "done"
	StatusNeedsReview Status = "needs_review"
	StatusFailed      Status = "failed"
)

// Terminal reports whether no further stage will run for this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusNeedsReview, StatusFailed:
		return true
	}
	return false
}

// LogEntry is one line of a product's enrichment audit trail.
type LogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Phase       string    `json:"phase"`
	Step        string    `json:"step,omitempty"`
	Status      string    `json:"status"`
	Details     string    `json:"details,omitempty"`
	CreditsUsed float64   `json:"credits_used,omitempty"`
}

// Product is the persisted record for one enrichment subject. Stage outputs
// land in the result columns as JSON; Enriched is full-overwritten on every
// mutation.
type Product struct {
	ID             string                 `json:"id"`
	EAN            string                 `json:"ean"`
	Name           string                 `json:"name"`
	Brand          string                 `json:"brand,omitempty"`
	Status         Status                 `json:"status"`
	Classification *ProductClassification `json:"classification,omitempty"`
	SearchResults  []SearchResult         `json:"search_results,omitempty"`
	Enriched       *EnrichedProduct       `json:"enriched,omitempty"`
	Validation     *ValidationReport      `json:"validation,omitempty"`
	Log            []LogEntry             `json:"log,omitempty"`
	Error          string                 `json:"error,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// AppendLog records one enrichment step in the product's audit trail.
func (p *Product) AppendLog(phase, step, status, details string, credits float64) {
	p.Log = append(p.Log, LogEntry{
		Timestamp:   time.Now().UTC(),
		Phase:       phase,
		Step:        step,
		Status:      status,
		Details:     details,
		CreditsUsed: credits,
	})
}

// ValidationIssue is one problem flagged by the plausibility check.
type ValidationIssue struct {
	Field    string `json:"field"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
}

// ValidationReport is the terminal verdict for an enrichment run.
type ValidationReport struct {
	OverallQuality string            `json:"overall_quality"` // "good", "acceptable", "needs_review"
	Issues         []ValidationIssue `json:"issues,omitempty"`
	ReviewReason   string            `json:"review_reason,omitempty"`
}

// NeedsReview reports whether the verdict routes the run to human review:
// a needs_review quality or any error-severity issue.
func (r *ValidationReport) NeedsReview() bool {
	if r == nil {
		return false
	}
	if r.OverallQuality == "needs_review" {
		return true
	}
	for _, issue := range r.Issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}
