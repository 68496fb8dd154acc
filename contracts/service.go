package contracts

import (
	"fmt"
	"strings"
)

// Service identifies a deployed microservice.
type Service string

const (
	User           Service = "USER"
	Booking        Service = "BOOKING"
	Schedule       Service = "SCHEDULE"
	Administration Service = "ADMINISTRATION"
	Notification   Service = "NOTIFICATION"
)

var knownServices = []Service{User, Booking, Schedule, Administration, Notification}

// Services returns every known service in declaration order.
func Services() []Service {
	out := make([]Service, len(knownServices))
	copy(out, knownServices)
	return out
}

// ServiceName returns the deployment name, e.g. "user-service".
func (s Service) ServiceName() string {
	return strings.ToLower(string(s)) + "-service"
}

// Valid reports whether s is one of the known services.
func (s Service) Valid() bool {
	for _, known := range knownServices {
		if s == known {
			return true
		}
	}
	return false
}

func (s Service) String() string {
	return string(s)
}

// ParseService accepts either the identifier in any case ("user", "USER") or the
// deployment name ("user-service").
func ParseService(v string) (Service, error) {
	v = strings.TrimSpace(v)
	for _, s := range knownServices {
		if s.ServiceName() == v || strings.EqualFold(string(s), v) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown service %q", ErrValidation, v)
}
