package protocol

const (
	// Frame could not be parsed or routed.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Payload parsed but violates the message schema.
	ErrBadRequest = "E_BAD_REQUEST"

	// The service produced something it refused to send.
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrorMsg is the reply to any frame the receiver refuses to process.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Message: message, Code: code}
}
