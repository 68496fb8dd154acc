package notification

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Type is the category of a notification shown to a resident.
type Type string

const (
	Balance         Type = "BALANCE"
	Document        Type = "DOCUMENT"
	KitchenSchedule Type = "KITCHEN_SCHEDULE"
	Role            Type = "ROLE"
	Duty            Type = "DUTY"
	Booking         Type = "BOOKING"
)

var displayNames = map[Type]string{
	Balance:         "Баланс",
	Document:        "Справки",
	KitchenSchedule: "Дежурство на кухне",
	Role:            "Должность",
	Duty:            "Дежурство",
	Booking:         "Запись",
}

// Types returns every notification type in declaration order.
func Types() []Type {
	return []Type{Balance, Document, KitchenSchedule, Role, Duty, Booking}
}

// DisplayName is the human readable name used in default templates.
func (t Type) DisplayName() string {
	return displayNames[t]
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	_, ok := displayNames[t]
	return ok
}

func (t Type) String() string {
	return string(t)
}

// ParseType parses a type name, ignoring case and surrounding blanks.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown notification type %q", s)
	}
	return t, nil
}

// Request is the payload the notification service consumes.
type Request struct {
	UserID  uuid.UUID `json:"userId"`
	Type    Type      `json:"type"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
}

// Complete reports whether every field is set.
func (r *Request) Complete() bool {
	return r != nil &&
		r.UserID != uuid.Nil &&
		r.Type.Valid() &&
		strings.TrimSpace(r.Title) != "" &&
		strings.TrimSpace(r.Message) != ""
}
