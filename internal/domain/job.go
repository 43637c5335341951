package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusGenerating JobStatus = "generating"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// Job is one independent video-generation workflow.
type Job struct {
	ID        string
	Name      string
	Status    JobStatus
	AudioRef  *ResultRef
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scene is one numbered narrative unit within a job.
type Scene struct {
	Number      int
	Description string
}
