package errors

var (
	// Domain errors, returned by the services
	ErrEmailTaken         = AlreadyExists("email is already registered")
	ErrAccountNotFound    = NotFound("account not found")
	ErrInvalidEmail       = InvalidArg("a valid email is required")
	ErrWeakPassword       = InvalidArg("password must be at least 6 characters")
	ErrInvalidDisplayName = InvalidArg("display name is too long")
	ErrInvalidCredentials = Unauthorized("invalid unique code or password")
	ErrInvalidToken       = Unauthorized("invalid token")
	ErrMissingToken       = Unauthorized("missing authentication token")
	ErrCodeSpaceExhausted = Internal("could not assign a unique code")
)

func ErrRegistrationFailed(cause error) error {
	return Wrap(CodeInternal, "registration failed", cause)
}
