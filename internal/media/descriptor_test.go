package media

import (
	"testing"

	"github.com/google/uuid"
)

func TestNormalizeUploadResult(t *testing.T) {
	embedded := uuid.New()

	tests := []struct {
		name    string
		raw     map[string]any
		want    Descriptor
		wantErr bool
	}{
		{
			name: "plain url and key",
			raw:  map[string]any{"url": "https://cdn.example.com/a.png", "key": "uploads/a.png"},
			want: Descriptor{URL: "https://cdn.example.com/a.png", StorageKey: "uploads/a.png"},
		},
		{
			name: "alias fields",
			raw:  map[string]any{"downloadUrl": "https://cdn.example.com/b.png", "objectKey": "uploads/b.png"},
			want: Descriptor{URL: "https://cdn.example.com/b.png", StorageKey: "uploads/b.png"},
		},
		{
			name: "first alias wins",
			raw:  map[string]any{"url": "https://one.example.com", "fileUrl": "https://two.example.com"},
			want: Descriptor{URL: "https://one.example.com"},
		},
		{
			name: "embedded record id",
			raw:  map[string]any{"mediaId": embedded.String()},
			want: Descriptor{EmbeddedID: &embedded},
		},
		{
			name: "nested data object",
			raw:  map[string]any{"data": map[string]any{"url": "https://cdn.example.com/c.png"}},
			want: Descriptor{URL: "https://cdn.example.com/c.png"},
		},
		{
			name:    "malformed record id",
			raw:     map[string]any{"id": "not-a-uuid"},
			wantErr: true,
		},
		{
			name:    "unrecognized shape",
			raw:     map[string]any{"status": "done", "bytes": float64(10)},
			wantErr: true,
		},
		{
			name:    "empty result",
			raw:     map[string]any{},
			wantErr: true,
		},
		{
			name:    "whitespace only values",
			raw:     map[string]any{"url": "   ", "key": ""},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeUploadResult(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.URL != tc.want.URL || got.StorageKey != tc.want.StorageKey {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
			switch {
			case tc.want.EmbeddedID == nil && got.EmbeddedID != nil:
				t.Fatalf("unexpected embedded id %s", got.EmbeddedID)
			case tc.want.EmbeddedID != nil && (got.EmbeddedID == nil || *got.EmbeddedID != *tc.want.EmbeddedID):
				t.Fatalf("embedded id mismatch: got %v want %v", got.EmbeddedID, tc.want.EmbeddedID)
			}
		})
	}
}
