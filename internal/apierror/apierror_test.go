package apierror

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatus_MapsEachKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad input"), http.StatusUnprocessableEntity},
		{NotFound("missing"), http.StatusNotFound},
		{Conflict("exists"), http.StatusConflict},
		{IdempotencyKeyReuse("reused"), http.StatusConflict},
		{QuotaExceeded("over quota"), http.StatusTooManyRequests},
		{UpstreamTransient(errors.New("boom"), "transient"), http.StatusBadGateway},
		{UpstreamPermanent(errors.New("boom"), "permanent"), http.StatusInternalServerError},
		{errors.New("untagged"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := Status(c.err); got != c.want {
			t.Errorf("Status(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestCode_UntaggedErrorIsInternal(t *testing.T) {
	if got := Code(errors.New("oops")); got != "internal_error" {
		t.Errorf("Code() = %q, want %q", got, "internal_error")
	}
	if got := Code(NotFound("missing")); got != string(KindNotFound) {
		t.Errorf("Code() = %q, want %q", got, KindNotFound)
	}
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := UpstreamTransient(cause, "wrapping")

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestAs_ExtractsTaggedError(t *testing.T) {
	err := QuotaExceeded("vcpu quota exceeded (%d)", 128)
	e, ok := As(err)
	if !ok {
		t.Fatal("expected As to succeed on a tagged error")
	}
	if e.Kind != KindQuotaExceeded {
		t.Errorf("Kind = %q, want %q", e.Kind, KindQuotaExceeded)
	}

	if _, ok := As(errors.New("plain")); ok {
		t.Error("expected As to fail on an untagged error")
	}
}
