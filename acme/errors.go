package acme

import "errors"

// Named error kinds, per spec §7. Callers can match with errors.Is; the
// engine always wraps these with operation-specific context via
// fmt.Errorf("...: %w", ErrX).
var (
	// ErrAgreeToS is returned when the caller's agreeToTerms callback
	// returned a URL that does not match the directory's advertised
	// termsOfService.
	ErrAgreeToS = errors.New("E_AGREE_TOS: account holder did not agree to the advertised terms of service")

	// ErrFailDryChallenge is returned when the self-test (§4.4) can't
	// observe the expected key authorization via HTTP or DNS.
	ErrFailDryChallenge = errors.New("E_FAIL_DRY_CHALLENGE: challenge self-test did not observe the expected key authorization")

	// ErrStateEmpty is returned when a challenge poll response has no
	// status field at all.
	ErrStateEmpty = errors.New("E_STATE_EMPTY: challenge poll response had no status")

	// ErrStateInvalid is returned when a challenge terminates invalid.
	ErrStateInvalid = errors.New("E_STATE_INVALID: challenge reached status invalid")

	// ErrStateUnknown is returned when a challenge reaches a status this
	// engine does not recognize.
	ErrStateUnknown = errors.New("E_STATE_UKN: challenge reached an unrecognized status")

	// ErrPollExhausted is returned when a poll loop exceeds its retry
	// ceiling while the resource is stuck pending/processing.
	ErrPollExhausted = errors.New("stuck in bad pending/processing state")

	// ErrNoAuthorizations is returned when newOrder succeeds but the
	// server's response includes no authorizations to satisfy.
	ErrNoAuthorizations = errors.New("order has no authorizations")

	// ErrFinalizeState is returned when the order's post-finalize status
	// is neither valid nor processing. An order still processing when the
	// poll limit is reached yields ErrPollExhausted instead.
	ErrFinalizeState = errors.New("order did not reach status valid after finalization")

	// ErrNoChallengeChoice is returned when none of the offered
	// challenges match the caller's accepted challenge types (e.g.
	// a wildcard identifier was offered without dns-01).
	ErrNoChallengeChoice = errors.New("no offered challenge matches an acceptable challenge type")

	// ErrPreflight covers configuration problems caught before any
	// network request is made: empty domains, empty challenge types, or
	// a named preferred challenge type missing from the acceptable list.
	ErrPreflight = errors.New("preflight validation failed")
)
