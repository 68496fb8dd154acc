package contracts

import (
	"fmt"
	"sort"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	HeaderUserID      = "X-User-Id"
	HeaderUserRoles   = "X-User-Roles"
	HeaderTraceparent = "traceparent"

	traceparentVersion = "00"
	traceparentFlags   = "01"
)

// FormatTraceparent renders the trace header as "00-<trace-id>-<span-id>-01".
func FormatTraceparent(traceID, spanID string) string {
	return fmt.Sprintf("%s-%s-%s-%s", traceparentVersion, traceID, spanID, traceparentFlags)
}

// ParseTraceparent splits a trace header into its trace and span ids. Ids of any
// length are accepted as long as both are present.
func ParseTraceparent(v string) (traceID, spanID string, ok bool) {
	parts := strings.Split(strings.TrimSpace(v), "-")
	if len(parts) != 4 || parts[0] != traceparentVersion {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// JoinRoles renders roles comma-joined with no spaces. The output is sorted so equal
// role sets always produce the same header.
func JoinRoles(roles []string) string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// SplitRoles parses an X-User-Roles header value.
func SplitRoles(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var roles []string
	for _, r := range strings.Split(v, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// HeaderString reads a header as a string. Brokers and client libraries hand back
// text headers as either string or []byte.
func HeaderString(headers amqp.Table, key string) (string, bool) {
	if headers == nil {
		return "", false
	}
	switch v := headers[key].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}
