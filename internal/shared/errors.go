package shared

import "errors"

var (
	// ErrInvalidInput indicates a malformed request or token.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates a uniqueness violation such as a duplicate email.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized indicates bad credentials or an invalid/expired token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller is known but not allowed yet.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited indicates too many attempts in the cooldown window.
	ErrRateLimited = errors.New("rate limited")
	// ErrInternal indicates an unexpected store, signing or hashing failure.
	ErrInternal = errors.New("internal error")
)

// Error is a domain failure carrying one of the sentinel kinds above and a
// message that is safe to show to the caller.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// NewError builds an Error of the given kind.
func NewError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Is matches the sentinel kind so callers can use errors.Is(err, ErrConflict).
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserSafeMessage returns a message that can be shown to the caller. Internal
// failures collapse to a generic text.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Kind != ErrInternal && domainErr.Message != "" {
		return domainErr.Message
	}
	for _, kind := range []error{ErrInvalidInput, ErrConflict, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrRateLimited} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal server error"
}
