package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCodeThroughChain(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := fmt.Errorf("fetch feed: %w", Wrap(CodeUpstreamFailure, cause, "twitter search failed"))

	if got := CodeOf(err); got != CodeUpstreamFailure {
		t.Fatalf("unexpected code: %s", got)
	}
	if !RetryableError(err) {
		t.Fatalf("upstream failures should be retryable")
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("cause should be reachable through errors.Is")
	}
	if !stdErrors.Is(err, New(CodeUpstreamFailure, "")) {
		t.Fatalf("errors.Is should match on code")
	}
	if got := MessageOf(err); got != "twitter search failed: connection reset" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestOptionsOverrideRegistry(t *testing.T) {
	err := New(CodeInvalidArgument, "", WithRetryable(true), WithSeverity(SeverityCritical), WithMetadata("field", "text"))
	if err.Message() != "invalid argument" {
		t.Fatalf("default message not applied: %q", err.Message())
	}
	if !err.Retryable() || err.Severity() != SeverityCritical {
		t.Fatalf("options not applied: retryable=%v severity=%s", err.Retryable(), err.Severity())
	}
	if err.Metadata()["field"] != "text" {
		t.Fatalf("metadata missing: %+v", err.Metadata())
	}
}

func TestOutcomeUnknownIsNeverRetried(t *testing.T) {
	inner := New(CodeTimeout, "confirmation timed out")
	err := fmt.Errorf("create token: %w", Wrap(CodeOutcomeUnknown, inner, "transaction abc not confirmed in time", WithMetadata("signature", "abc")))

	if RetryableError(err) {
		t.Fatalf("outcome unknown must not be retryable")
	}
	if !ShouldAlert(err) {
		t.Fatalf("outcome unknown should alert")
	}
	if got := MetadataOf(err)["signature"]; got != "abc" {
		t.Fatalf("metadata not reachable through the chain: %q", got)
	}
	if MetadataOf(stdErrors.New("plain")) != nil {
		t.Fatalf("plain errors carry no metadata")
	}
}

func TestHTTPStatusOf(t *testing.T) {
	cases := map[error]int{
		New(CodeInvalidArgument, "bad"):    http.StatusBadRequest,
		New(CodeRateLimited, "slow down"):  http.StatusTooManyRequests,
		New(CodeCapabilityDisabled, "off"): http.StatusForbidden,
		New(CodeOutcomeUnknown, "sent"):    http.StatusBadGateway,
		stdErrors.New("plain"):             http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := HTTPStatusOf(err); got != want {
			t.Errorf("HTTPStatusOf(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestRegisterCustomCode(t *testing.T) {
	const code Code = "CUSTOM_TEST"
	Register(code, Attributes{Message: "custom", Severity: SeverityWarning, Alert: true})
	if !ShouldAlert(New(code, "")) {
		t.Fatalf("registered alert attribute ignored")
	}
	if SeverityOf(New(code, "")) != SeverityWarning {
		t.Fatalf("registered severity ignored")
	}
	if AttributesOf("NEVER_REGISTERED").Message != "unknown error" {
		t.Fatalf("unregistered code should fall back to UNKNOWN")
	}
}
