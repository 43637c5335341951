package binding

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"mourne/internal/domain"
)

// MaxUploadBytes bounds a single uploaded file.
const MaxUploadBytes = 64 << 20

// Media describes sniffed upload content.
type Media struct {
	Type      domain.MediaType
	MIME      string
	Extension string
}

// Sniff detects the media type of an upload from its magic bytes, falling
// back to the file name extension.
func Sniff(name string, data []byte) (Media, error) {
	if len(data) == 0 {
		return Media{}, fmt.Errorf("%w: empty upload", domain.ErrInvalidInput)
	}
	if len(data) > MaxUploadBytes {
		return Media{}, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrInvalidInput, MaxUploadBytes)
	}

	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		if mt, ok := mediaFor(kind.MIME.Type); ok {
			return Media{Type: mt, MIME: kind.MIME.Value, Extension: "." + kind.Extension}, nil
		}
		return Media{}, fmt.Errorf("%w: unsupported upload type %s", domain.ErrInvalidInput, kind.MIME.Value)
	}

	ext := strings.ToLower(filepath.Ext(name))
	byExt := mime.TypeByExtension(ext)
	if byExt != "" {
		base, _, _ := strings.Cut(byExt, ";")
		major, _, _ := strings.Cut(base, "/")
		if mt, ok := mediaFor(major); ok {
			return Media{Type: mt, MIME: base, Extension: ext}, nil
		}
	}
	return Media{}, fmt.Errorf("%w: cannot detect media type of %q", domain.ErrInvalidInput, name)
}

func mediaFor(major string) (domain.MediaType, bool) {
	switch major {
	case "image":
		return domain.MediaTypeImage, true
	case "video":
		return domain.MediaTypeVideo, true
	case "audio":
		return domain.MediaTypeSpeech, true
	}
	return "", false
}
