// Package viewmodel defines presentation types consumed by the web components.
// View models carry pre-formatted strings so components stay logic-free.
package viewmodel

// LogRowViewModel is one row of the audit log table.
type LogRowViewModel struct {
	CommitID    string
	ShortHash   string
	Timestamp   string
	Status      string
	StatusClass string // status-accepted, status-rejected or status-other
	RiskScore   string
	RiskClass   string // risk-low, risk-medium or risk-high
	DLTTxHash   string
}

// DashboardViewModel is the full dashboard page.
type DashboardViewModel struct {
	Username   string
	Email      string
	Rows       []LogRowViewModel
	ReportHTML string // sanitized HTML

	FetchedAt string
	Armed     bool
	LastError string

	// Notice and Error carry the result of the last form submission.
	Notice string
	Error  string
	Code   string // echoed back when a submission fails

	CSRFToken string
}

// LoginViewModel is the login and registration page.
type LoginViewModel struct {
	Email     string
	Notice    string
	Error     string
	CSRFToken string
}
