package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TpaBKa251/Hostel-Internal-Library/registry"
)

// Probe is the view of a broker connection a checker needs.
type Probe interface {
	IsConnected() bool
	Ping(ctx context.Context) error
	PoolSize() int
	Consumers() int
	PendingReplies() int
}

// ConnectionChecker checks one profile's broker connection
type ConnectionChecker struct {
	name  string
	probe Probe
}

// NewConnectionChecker creates a checker named after the connection's profile.
func NewConnectionChecker(service, profile string, probe Probe) *ConnectionChecker {
	return &ConnectionChecker{
		name:  fmt.Sprintf("rabbitmq_%s_%s", strings.ToLower(service), profile),
		probe: probe,
	}
}

func (c *ConnectionChecker) Name() string {
	return c.name
}

// Check reports unhealthy when the connection is down and degraded when it is up
// but no channel can be borrowed.
func (c *ConnectionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]any),
	}

	if !c.probe.IsConnected() {
		result.Status = StatusUnhealthy
		result.Message = "connection is closed"
		result.Duration = time.Since(start)
		return result
	}

	if err := c.probe.Ping(ctx); err != nil {
		result.Status = StatusDegraded
		result.Message = "failed to get channel from pool"
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "connection is healthy"
	}

	result.Duration = time.Since(start)
	result.Details["poolSize"] = c.probe.PoolSize()
	result.Details["consumers"] = c.probe.Consumers()
	result.Details["pendingReplies"] = c.probe.PendingReplies()
	result.Details["responseTimeMs"] = result.Duration.Milliseconds()
	return result
}

// ComponentChecker allows checking custom components
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, error)
}

// NewComponentChecker creates a checker for custom components
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, error)) *ComponentChecker {
	return &ComponentChecker{
		name:    name,
		checker: checker,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	status, message, err := c.checker(ctx)

	result := CheckResult{
		Name:      c.Name(),
		Status:    status,
		Message:   message,
		Timestamp: start,
	}
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}

// ConnectionCheckers returns one checker per connection.
func ConnectionCheckers(conns []registry.Connection) []Checker {
	out := make([]Checker, 0, len(conns))
	for _, c := range conns {
		out = append(out, NewConnectionChecker(string(c.Service), c.Profile, c))
	}
	return out
}
