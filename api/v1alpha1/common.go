package v1alpha1

// StringToJobStatus returns the typed status for s, or the empty status when
// s names no known one. Callers decide whether an unknown status is an error.
func StringToJobStatus(s string) JobStatus {
	switch s {
	case string(JobStatusPending):
		return JobStatusPending
	case string(JobStatusAcquiring):
		return JobStatusAcquiring
	case string(JobStatusAnalyzing):
		return JobStatusAnalyzing
	case string(JobStatusAggregating):
		return JobStatusAggregating
	case string(JobStatusCompleted):
		return JobStatusCompleted
	case string(JobStatusFailed):
		return JobStatusFailed
	case string(JobStatusCancelled):
		return JobStatusCancelled
	default:
		return JobStatus("")
	}
}
