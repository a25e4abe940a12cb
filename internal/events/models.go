package events

// JobEvent reports one job lifecycle transition.
type JobEvent struct {
	JobID      string `json:"job_id"`
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// ImageEvent reports a completed memory capture.
type ImageEvent struct {
	ImageID    string `json:"image_id"`
	InstanceID string `json:"instance_id"`
	Domain     string `json:"domain"`
	SizeBytes  int64  `json:"size_bytes"`
	Sha256     string `json:"sha256"`
}
