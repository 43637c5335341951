package domain

import "time"

// RenderRef is the retrievable result of assembling a completed job.
type RenderRef struct {
	JobID       string    `json:"job_id"`
	Revision    uint64    `json:"revision"`
	StorageKey  string    `json:"storage_key"`
	URL         string    `json:"url"`
	ManifestURL string    `json:"manifest_url"`
	Items       int       `json:"items"`
	CreatedAt   time.Time `json:"created_at"`
}
