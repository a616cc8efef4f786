package domain

// Role is the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn is one question paired with its generated answer.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
