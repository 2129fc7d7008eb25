package model

import "time"

// CommitStatus is the server's verdict on an analyzed commit.
type CommitStatus string

const (
	CommitStatusAccepted CommitStatus = "Accepted"
	CommitStatusRejected CommitStatus = "Rejected"
)

// RiskLevel buckets a risk score for display.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// LogRecord is one audit record of an analyzed commit. Records are immutable
// once received.
type LogRecord struct {
	CommitID   string
	CommitHash string
	Timestamp  time.Time
	Status     CommitStatus
	RiskScore  float64 // 0..100
	UserID     string
	DLTTxHash  string
}

// RiskLevel classifies the record's risk score: below 50 is low, below 75 is
// medium, anything else is high.
func (r LogRecord) RiskLevel() RiskLevel {
	return ClassifyRisk(r.RiskScore)
}

// ClassifyRisk maps a risk score in [0,100] to a RiskLevel.
func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score < 50:
		return RiskLevelLow
	case score < 75:
		return RiskLevelMedium
	default:
		return RiskLevelHigh
	}
}

// LogSnapshot is the published state of the log sync loop.
type LogSnapshot struct {
	Records   []LogRecord
	FetchedAt time.Time // zero until the first successful fetch of this epoch
	Epoch     uint64
	Armed     bool
	// LastError is the transient failure of the most recent attempt, cleared
	// on the next success. Soft authorization failures never set it.
	LastError string
}
