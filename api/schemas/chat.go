// api/schemas/chat.go
package schemas

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether the role is one of the three accepted values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatMessage is a single turn of the conversation, caller supplied and
// immutable once received.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the inbound payload for one proxied chat call. It is created
// once per request and never mutated afterwards.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
}

// ChatResponse is the success payload returned to the caller.
type ChatResponse struct {
	Answer string `json:"answer"`
	Model  string `json:"model"`
	// ProcessingTime is wall-clock duration of the whole request in milliseconds.
	ProcessingTime int64 `json:"processingTime"`
}

// ErrorResponse is the uniform error payload for both client and server faults.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
