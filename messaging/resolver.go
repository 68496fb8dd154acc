package messaging

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
	"github.com/TpaBKa251/Hostel-Internal-Library/registry"
)

// TypeMatcher reports whether a transport serves a message type.
type TypeMatcher func(contracts.MessageType) bool

// ServiceMatcher reports whether a transport reaches a service.
type ServiceMatcher func(contracts.Service) bool

// MessagingConfig pairs a transport with the rules that select it.
type MessagingConfig struct {
	Descriptor   *registry.Descriptor
	MatchType    TypeMatcher
	MatchService ServiceMatcher
}

// ConfigFor builds the config of a sender: it serves the tag equal to the sender
// name, ignoring case, and reaches the given services. With no services it reaches
// the descriptor's own service.
func ConfigFor(d *registry.Descriptor, services ...contracts.Service) MessagingConfig {
	if len(services) == 0 {
		services = []contracts.Service{d.Service()}
	}
	sender := d.Sender()
	return MessagingConfig{
		Descriptor: d,
		MatchType: func(tag contracts.MessageType) bool {
			return tag.Matches(sender)
		},
		MatchService: func(s contracts.Service) bool {
			for _, candidate := range services {
				if candidate == s {
					return true
				}
			}
			return false
		},
	}
}

// DescriptorSource lists transports in registration order.
type DescriptorSource interface {
	Descriptors() []*registry.Descriptor
}

type resolverOptions struct {
	strict bool
	extra  []MessagingConfig
	logger *slog.Logger
}

// ResolverOption configures a Resolver
type ResolverOption func(*resolverOptions)

// WithStrictMatching rejects configurations where one type tag names more than one
// sender.
func WithStrictMatching() ResolverOption {
	return func(o *resolverOptions) {
		o.strict = true
	}
}

// WithConfigs appends custom configs after the ones derived from the registry.
func WithConfigs(configs ...MessagingConfig) ResolverOption {
	return func(o *resolverOptions) {
		o.extra = append(o.extra, configs...)
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(o *resolverOptions) {
		o.logger = logger
	}
}

// Resolver selects the transport of an outbound message. The config list is fixed
// at construction; lookups scan it in order and the first match wins.
type Resolver struct {
	configs []MessagingConfig
}

// NewResolver derives one config per descriptor of src, in registration order.
func NewResolver(src DescriptorSource, opts ...ResolverOption) (*Resolver, error) {
	o := &resolverOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	descriptors := src.Descriptors()
	configs := make([]MessagingConfig, 0, len(descriptors)+len(o.extra))
	seen := make(map[string]*registry.Descriptor, len(descriptors))
	for _, d := range descriptors {
		key := strings.ToLower(d.Sender())
		if first, dup := seen[key]; dup {
			if o.strict {
				return nil, fmt.Errorf("%w: type tag %q is served by %s and %s",
					contracts.ErrValidation, d.Sender(), first, d)
			}
			o.logger.Warn("ambiguous type tag, first transport wins",
				"tag", d.Sender(),
				"selected", first.String(),
				"shadowed", d.String(),
			)
		} else {
			seen[key] = d
		}
		configs = append(configs, ConfigFor(d))
	}

	for i, c := range o.extra {
		if c.Descriptor == nil || c.MatchType == nil || c.MatchService == nil {
			return nil, fmt.Errorf("%w: custom config %d is incomplete", contracts.ErrValidation, i)
		}
		configs = append(configs, c)
	}

	return &Resolver{configs: configs}, nil
}

// ResolveByType returns the first transport whose type matcher accepts tag.
func (r *Resolver) ResolveByType(tag contracts.MessageType) (*registry.Descriptor, error) {
	for _, c := range r.configs {
		if c.MatchType(tag) {
			return c.Descriptor, nil
		}
	}
	return nil, fmt.Errorf("%w: no transport for message type %q", contracts.ErrNotConfigured, tag)
}

// ResolveByService returns the first transport whose service matcher accepts
// service.
func (r *Resolver) ResolveByService(service contracts.Service) (*registry.Descriptor, error) {
	for _, c := range r.configs {
		if c.MatchService(service) {
			return c.Descriptor, nil
		}
	}
	return nil, fmt.Errorf("%w: no transport for service %s", contracts.ErrNotConfigured, service)
}

// Configs returns the configs in lookup order.
func (r *Resolver) Configs() []MessagingConfig {
	out := make([]MessagingConfig, len(r.configs))
	copy(out, r.configs)
	return out
}
