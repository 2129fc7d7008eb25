package model

// AnalysisResult is the server's response to a commit submission. The same
// commit appears in the log list on the next poll.
type AnalysisResult struct {
	Message string
	Commit  LogRecord
}
