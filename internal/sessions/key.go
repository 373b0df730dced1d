package sessions

import "strings"

// Key builds the canonical "<transport>:<conversation_id>" session key.
func Key(transport, convID string) string {
	return transport + ":" + convID
}

// ParseKey splits a session key back into its transport and conversation
// id parts. The conversation id may itself contain colons (e.g. a
// compound "group|topic" id), so only the first colon is significant.
func ParseKey(key string) (transport, convID string, ok bool) {
	i := strings.IndexByte(key, ':')
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
