package routing

import "strings"

// ParseResource extracts the chat and message IDs from a Graph change
// notification resource path such as
//
//	chats('19:abc@thread.v2')/messages('1724890000000')
//
// Graph quotes IDs with single quotes and wraps them in parentheses; both
// are stripped before splitting. Returns ok=false for anything that does
// not look like a chat message resource.
func ParseResource(resource string) (chatID, messageID string, ok bool) {
	if !strings.Contains(resource, "/messages(") && !strings.Contains(resource, "/messages/") {
		return "", "", false
	}
	cleaned := strings.NewReplacer("'", "", "(", "/", ")", "").Replace(resource)
	parts := strings.Split(cleaned, "/")
	for i, part := range parts {
		if i+1 >= len(parts) || parts[i+1] == "" {
			continue
		}
		switch part {
		case "chats":
			chatID = parts[i+1]
		case "messages":
			messageID = parts[i+1]
		}
	}
	if chatID == "" || messageID == "" {
		return "", "", false
	}
	return chatID, messageID, true
}
