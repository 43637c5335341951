package domain

import (
	"fmt"
	"strings"
	"time"
)

// MediaType enumerates the media an artifact can hold.
type MediaType string

const (
	MediaTypeImage  MediaType = "image"
	MediaTypeVideo  MediaType = "video"
	MediaTypeSpeech MediaType = "speech"
)

// MediaTypes lists media types in assembly order.
var MediaTypes = []MediaType{MediaTypeImage, MediaTypeVideo, MediaTypeSpeech}

// ParseMediaType normalizes free-form input into a supported media type.
func ParseMediaType(v string) (MediaType, error) {
	switch MediaType(strings.ToLower(strings.TrimSpace(v))) {
	case MediaTypeImage:
		return MediaTypeImage, nil
	case MediaTypeVideo:
		return MediaTypeVideo, nil
	case MediaTypeSpeech, "audio", "voice":
		return MediaTypeSpeech, nil
	}
	return "", fmt.Errorf("%w: unsupported media type %q", ErrInvalidInput, v)
}

// Capability returns the provider capability that produces this media type.
func (m MediaType) Capability() Capability {
	return Capability(m)
}

// Rank orders media types for assembly.
func (m MediaType) Rank() int {
	for i, mt := range MediaTypes {
		if mt == m {
			return i
		}
	}
	return len(MediaTypes)
}

// ArtifactStatus enumerates artifact lifecycle states.
type ArtifactStatus string

const (
	ArtifactStatusGenerating ArtifactStatus = "generating"
	ArtifactStatusComplete   ArtifactStatus = "complete"
	ArtifactStatusFailed     ArtifactStatus = "failed"
)

// IsTerminal reports whether the status is final for the current attempt.
func (s ArtifactStatus) IsTerminal() bool {
	return s == ArtifactStatusComplete || s == ArtifactStatusFailed
}

// ResultRef points at produced media. StorageKey is set when bytes live in
// the local store; URL is always resolvable by clients.
type ResultRef struct {
	StorageKey string `json:"storage_key,omitempty"`
	URL        string `json:"url"`
	MIME       string `json:"mime,omitempty"`
	AssetID    string `json:"asset_id,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

// Artifact is one generated media unit for a (scene, media type) pair.
type Artifact struct {
	ID          string
	SceneNumber int
	MediaType   MediaType
	Status      ArtifactStatus
	Progress    int
	Result      *ResultRef
	Error       *ProviderError
	AttemptID   string
	Attempts    int
	Provider    string
	Abandoned   bool
	StartedAt   time.Time
	UpdatedAt   time.Time
}
