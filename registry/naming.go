package registry

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

const receiverSuffix = "RabbitListener"

// ReceiverName builds the deterministic receiver name, e.g. service SCHEDULE,
// profile "default" and listener "booking responses" give
// "scheduleDefaultBookingResponsesRabbitListener".
func ReceiverName(service contracts.Service, profile, listener string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(service)))
	b.WriteString(capitalize(strings.TrimSpace(profile)))
	for _, word := range strings.Fields(listener) {
		b.WriteString(capitalize(word))
	}
	b.WriteString(receiverSuffix)
	return b.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
