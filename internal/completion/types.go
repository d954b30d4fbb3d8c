// Package completion is the text-completion client: persona system
// instructions plus rolling conversation history in, generated reply out.
package completion

// Message is one turn of a persona's conversation history.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
