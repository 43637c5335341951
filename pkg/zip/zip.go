package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"
)

type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets packs assets into a zip archive in the given order. Media is
// already compressed, so entries other than JSON and text are stored.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		if _, dup := seen[asset.Filename]; dup {
			return nil, fmt.Errorf("zip: duplicate entry %q", asset.Filename)
		}
		seen[asset.Filename] = struct{}{}
		header := &zip.FileHeader{Name: asset.Filename, Method: methodFor(asset.MIME), Modified: time.Unix(0, 0).UTC()}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", asset.Filename, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", asset.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}

func methodFor(mime string) uint16 {
	switch {
	case mime == "application/json", len(mime) >= 5 && mime[:5] == "text/":
		return zip.Deflate
	}
	return zip.Store
}
