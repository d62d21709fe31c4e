package domain

import "errors"

var (
	// ErrAccessDenied room join or REST call rejected by the server's access check
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound conversation or message does not exist
	ErrNotFound = errors.New("not found")
	// ErrNotConnected transport is down
	ErrNotConnected = errors.New("not connected")
	// ErrNotFailed retry / discard only apply to failed entries
	ErrNotFailed = errors.New("entry is not in failed state")
	// ErrUnknownTempID no local entry with that temp id
	ErrUnknownTempID = errors.New("unknown temp id")
	// ErrNoActiveConversation operation needs a selected conversation
	ErrNoActiveConversation = errors.New("no active conversation")
	// ErrInvalidConversationRef exactly one of channel / dm must be set
	ErrInvalidConversationRef = errors.New("invalid conversation ref")
	// ErrUnknownEvent transport delivered an event outside the closed set
	ErrUnknownEvent = errors.New("unknown event")
	// ErrEmptyBody nothing to send
	ErrEmptyBody = errors.New("message body is empty")
	// ErrStaleAcknowledgment no confirmation arrived within the staleness window
	ErrStaleAcknowledgment = errors.New("no acknowledgment within staleness window")
)
