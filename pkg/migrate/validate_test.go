package migrate

import "testing"

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations failed validation: %v", err)
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1_bad.sql", "-- +goose Up\n-- +goose Down\n")
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected filename validation error")
	}
}

func TestValidateDirRejectsMissingDownSection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20260101000000_only_up.sql", "-- +goose Up\nSELECT 1;\n")
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected missing-down validation error")
	}
}
