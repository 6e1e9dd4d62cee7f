package media

import (
	"strings"

	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/google/uuid"
)

// Descriptor is the normalized form of a raw upload acknowledgement. Exactly
// one normalization step turns the transport's loose shape into this record;
// everything downstream works from typed fields.
type Descriptor struct {
	URL        string
	StorageKey string
	EmbeddedID *uuid.UUID
}

// HasLookupKey reports whether the descriptor carries anything a resolver
// could search by.
func (d Descriptor) HasLookupKey() bool {
	return d.URL != "" || d.StorageKey != ""
}

// Field aliases observed across upload transports. Order matters: the first
// populated alias wins.
var (
	urlFields = []string{"url", "publicUrl", "public_url", "fileUrl", "file_url", "downloadUrl", "download_url"}
	keyFields = []string{"storageKey", "storage_key", "key", "objectKey", "object_key", "path"}
	idFields  = []string{"mediaId", "media_id", "recordId", "record_id", "id"}
)

// NormalizeUploadResult decodes a raw upload result into a Descriptor. A shape
// that yields neither a URL, a storage key, nor an embedded record id is a
// decode failure, never a silent empty descriptor.
func NormalizeUploadResult(raw map[string]any) (Descriptor, error) {
	if len(raw) == 0 {
		return Descriptor{}, pkgerrors.New(pkgerrors.CodeValidation, "empty upload result")
	}

	d := Descriptor{
		URL:        firstString(raw, urlFields),
		StorageKey: firstString(raw, keyFields),
	}

	if idStr := firstString(raw, idFields); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			return Descriptor{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "upload result carries a malformed record id")
		}
		d.EmbeddedID = &id
	}

	// Some transports tuck the interesting fields one level down.
	if d.URL == "" && d.StorageKey == "" && d.EmbeddedID == nil {
		for _, nested := range []string{"data", "result", "file"} {
			inner, ok := raw[nested].(map[string]any)
			if !ok {
				continue
			}
			return NormalizeUploadResult(inner)
		}
		return Descriptor{}, pkgerrors.New(pkgerrors.CodeValidation, "unrecognized upload result shape")
	}

	return d, nil
}

func firstString(raw map[string]any, fields []string) string {
	for _, f := range fields {
		if v, ok := raw[f].(string); ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
