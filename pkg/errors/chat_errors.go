package errors

var (
	ErrAuthenticationFailed = Unauthorized("Authentication failed")
	ErrInvalidMessage       = InvalidArg("Invalid message")
	ErrInvalidPayload       = InvalidArg("Invalid payload")
	ErrUnknownEvent         = InvalidArg("Unknown event")
	ErrJoinFailed           = Internal("Unable to join the room")
	ErrSendFailed           = Internal("Unable to send the message")

	ErrUserNotFound       = NotFound("User not found")
	ErrUserAlreadyExists  = AlreadyExists("User already exists")
	ErrInvalidCredentials = Unauthorized("Invalid email or password")
	ErrInvalidUserData    = InvalidArg("Invalid user data")
)

// ErrPersistence wraps a storage failure; the cause stays out of client messages.
func ErrPersistence(cause error) error {
	return Wrap(CodeUnavailable, "message store unavailable", cause)
}
