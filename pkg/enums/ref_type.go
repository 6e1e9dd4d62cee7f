package enums

import "fmt"

// RefType names the dashboard entity kinds a media row can be owned by.
type RefType string

const (
	RefTypeJournalEntry RefType = "journal_entry"
	RefTypeTask         RefType = "task"
	RefTypeProject      RefType = "project"
)

var validRefTypes = []RefType{
	RefTypeJournalEntry,
	RefTypeTask,
	RefTypeProject,
}

func (r RefType) String() string {
	return string(r)
}

// IsValid reports whether the ref type is known.
func (r RefType) IsValid() bool {
	for _, candidate := range validRefTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRefType converts raw input into a RefType.
func ParseRefType(value string) (RefType, error) {
	for _, candidate := range validRefTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ref type %q", value)
}
