package contracts

import "strings"

// MessageType is the semantic tag of an outbound message. Transports are selected by
// matching the tag against configured sender names, ignoring case.
type MessageType string

// Matches reports whether the tag names the given sender.
func (t MessageType) Matches(senderName string) bool {
	return strings.EqualFold(string(t), strings.TrimSpace(senderName))
}

func (t MessageType) String() string {
	return string(t)
}
