package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := Wrap(CodeDependency, cause, "lookup media")

	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to satisfy errors.Is")
	}
	if err.Code() != CodeDependency {
		t.Fatalf("unexpected code %s", err.Code())
	}
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	t.Parallel()

	inner := New(CodeNotFound, "media not found")
	outer := fmt.Errorf("resolve: %w", inner)

	typed := As(outer)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeNotFound {
		t.Fatalf("unexpected code %s", typed.Code())
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	t.Parallel()

	meta := MetadataFor(Code("NO_SUCH_CODE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", meta.HTTPStatus)
	}
}

func TestWrapNilCauseBehavesLikeNew(t *testing.T) {
	t.Parallel()

	err := Wrap(CodeValidation, nil, "bad input")
	if err.Unwrap() != nil {
		t.Fatal("expected no cause")
	}
	if err.Error() != "VALIDATION_ERROR: bad input" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
