package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Observation is one resolved daily value as it was seen by a check run.
type Observation struct {
	Symbol    string
	Date      time.Time
	Value     decimal.Decimal
	Source    string
	Imputed   bool
	FetchedAt time.Time
}

// Decisions recorded on a check run.
const (
	DecisionAlert   = "alert"
	DecisionNoAlert = "no_alert"
	DecisionFailed  = "failed"
)

// CheckRun audits one evaluation. It is never read back by the detector.
type CheckRun struct {
	RunID       uuid.UUID
	Symbol      string
	Source      string
	Decision    string
	Reason      string
	WindowStart *time.Time
	WindowEnd   *time.Time
	Failures    []string
	Notified    bool
	Error       *string
	CreatedAt   time.Time
}
