package domain

import "errors"

var (
	// ErrBackendUnavailable reports that the shared store could not be
	// reached or timed out. The core never converts it into an allow or a
	// deny; the adapter chooses the failure policy.
	ErrBackendUnavailable = errors.New("admission backend unavailable")

	// ErrInvalidConfiguration reports a malformed tier table or window
	// length. It is returned at construction time, never per request.
	ErrInvalidConfiguration = errors.New("invalid admission configuration")
)

func IsBackendUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}
