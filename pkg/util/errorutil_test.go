package util

import (
	"errors"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestPolicyViolationMapsToConflict(t *testing.T) {
	err := NewPolicyViolation("sensitive tickets may only be assigned to SAPS liaison teams", nil)
	if !IsPolicyViolation(err) {
		t.Fatal("expected policy violation predicate to hold")
	}
	domainErr := ToDomainError(err)
	if domainErr.HTTPStatus != http.StatusConflict {
		t.Fatalf("status = %d, want 409", domainErr.HTTPStatus)
	}
	if domainErr.Code != "POLICY_VIOLATION" {
		t.Fatalf("code = %s, want POLICY_VIOLATION", domainErr.Code)
	}
}

func TestIsNotFoundCoversNoRows(t *testing.T) {
	if !IsNotFound(pgx.ErrNoRows) {
		t.Fatal("pgx.ErrNoRows must read as not found")
	}
	if !IsNotFound(NewNotFound("ticket", nil)) {
		t.Fatal("NOT_FOUND domain error must read as not found")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatal("arbitrary errors are not not-found")
	}
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	cause := errors.New("connection reset")
	domainErr := ToDomainError(cause)
	if domainErr.Code != "INTERNAL_ERROR" || domainErr.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("wrapped = %+v, want internal error", domainErr)
	}
	if !errors.Is(domainErr, cause) {
		t.Fatal("wrapped error must unwrap to the cause")
	}
}

func TestToDomainErrorPassesThrough(t *testing.T) {
	original := NewConflict("team inactive", map[string]any{"team_id": "team-1"})
	if got := ToDomainError(original); got != original.(*DomainError) {
		t.Fatalf("got %+v, want identity pass-through", got)
	}
	if ToDomainError(nil) != nil {
		t.Fatal("nil must map to nil")
	}
}
