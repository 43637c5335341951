package domain

import "time"

// CustomAsset is a user-uploaded media file that can override generation for
// one scene.
type CustomAsset struct {
	ID         string
	JobID      string
	Name       string
	MediaType  MediaType
	MIME       string
	StorageKey string
	URL        string
	Bytes      int64
	BoundScene *int
	CreatedAt  time.Time
}

// Ref converts the asset into an artifact result reference.
func (a CustomAsset) Ref() ResultRef {
	return ResultRef{
		StorageKey: a.StorageKey,
		URL:        a.URL,
		MIME:       a.MIME,
		AssetID:    a.ID,
	}
}
