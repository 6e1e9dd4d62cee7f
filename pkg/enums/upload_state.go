package enums

import "fmt"

// UploadState tracks one upload interaction from first byte to resolved metadata.
type UploadState string

const (
	UploadStateIdle      UploadState = "idle"
	UploadStateUploading UploadState = "uploading"
	UploadStateResolving UploadState = "resolving"
	UploadStateResolved  UploadState = "resolved"
	UploadStateFailed    UploadState = "failed"
)

var validUploadStates = []UploadState{
	UploadStateIdle,
	UploadStateUploading,
	UploadStateResolving,
	UploadStateResolved,
	UploadStateFailed,
}

func (s UploadState) String() string {
	return string(s)
}

// IsValid reports whether the state is known.
func (s UploadState) IsValid() bool {
	for _, candidate := range validUploadStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseUploadState converts raw input into an UploadState.
func ParseUploadState(value string) (UploadState, error) {
	for _, candidate := range validUploadStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid upload state %q", value)
}
