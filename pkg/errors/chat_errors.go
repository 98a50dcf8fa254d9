package errors

var (
	ErrCodeNotFound     = NotFound("no account carries this code")
	ErrEmptyCode        = InvalidArg("code is required")
	ErrSelfChat         = SelfReference("cannot start a chat with yourself")
	ErrChatNotFound     = NotFound("chat not found")
	ErrNotParticipant   = Forbidden("not a participant of this chat")
	ErrEmptyMessage     = InvalidArg("message text cannot be empty")
	ErrMessageTooLong   = InvalidArg("message text is too long")
	ErrChatNameTooLong  = InvalidArg("chat name is too long")
	ErrChatInconsistent = Internal("chat participant set is inconsistent")
	ErrInvalidChatID    = InvalidArg("invalid chat id")
)
