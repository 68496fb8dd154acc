// Package config describes the declarative transport map: for every destination
// service and named connection profile, how to connect and which senders and
// listeners exist.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

const (
	DefaultPort         = 5672
	DefaultReplyTimeout = 5 * time.Second
)

// Config is the root of the transport configuration file.
type Config struct {
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
}

// RabbitMQ maps service -> profile name -> service properties.
type RabbitMQ struct {
	Properties      map[string]map[string]ServiceProperties `yaml:"properties"`
	DeclareTopology bool                                    `yaml:"declareTopology"`
}

// ServiceProperties configures one connection profile of one service.
type ServiceProperties struct {
	Connection           ConnectionProperties `yaml:"connectionProperties"`
	Queueing             QueueingProperties   `yaml:"queueingProperties"`
	MessageConverterName string               `yaml:"messageConverterName"`
	DirectRouting        bool                 `yaml:"directRouting"`
}

// ConnectionProperties holds broker connection parameters.
type ConnectionProperties struct {
	Username          string   `yaml:"username"`
	Password          string   `yaml:"password"`
	VirtualHost       string   `yaml:"virtualHost"`
	Addresses         string   `yaml:"addresses"`
	ConnectionTimeout Duration `yaml:"connectionTimeout"`
	CustomizerName    string   `yaml:"customizerName"`
}

// String redacts the password.
func (c ConnectionProperties) String() string {
	password := ""
	if c.Password != "" {
		password = "***"
	}
	return fmt.Sprintf("{username=%s password=%s virtualHost=%s addresses=%s timeout=%s}",
		c.Username, password, c.VirtualHost, c.Addresses, c.ConnectionTimeout.Duration())
}

// Address is one broker endpoint.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// AddressList parses the comma separated address list. Ports default to 5672.
func (c ConnectionProperties) AddressList() ([]Address, error) {
	var out []Address
	for _, raw := range strings.Split(c.Addresses, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		host, port := raw, DefaultPort
		if h, p, err := net.SplitHostPort(raw); err == nil {
			n, err := strconv.Atoi(p)
			if err != nil || n <= 0 || n > 65535 {
				return nil, fmt.Errorf("invalid port in address %q", raw)
			}
			host, port = h, n
		}
		if host == "" {
			return nil, fmt.Errorf("invalid address %q", raw)
		}
		out = append(out, Address{Host: host, Port: port})
	}
	if len(out) == 0 {
		return nil, errors.New("no broker addresses")
	}
	return out, nil
}

// QueueingProperties holds the named listeners and senders of a profile.
type QueueingProperties struct {
	Listeners map[string]ListenerProperties `yaml:"listeners"`
	Senders   map[string]SenderProperties   `yaml:"senders"`
}

// ListenerProperties configures one named listener.
type ListenerProperties struct {
	QueueName      string `yaml:"queueName"`
	CustomizerName string `yaml:"customizerName"`
}

// SenderProperties configures one named sender. The sender name is the message type
// tag it serves.
type SenderProperties struct {
	ExchangeName                 string   `yaml:"exchangeName"`
	QueueName                    string   `yaml:"queueName"`
	RoutingKey                   string   `yaml:"routingKey"`
	ChannelTransacted            *bool    `yaml:"channelTransacted"`
	RabbitTemplateCustomizerName string   `yaml:"rabbitTemplateCustomizerName"`
	MessagePropertiesBeanName    string   `yaml:"messagePropertiesBeanName"`
	ReplyTimeout                 Duration `yaml:"replyTimeout"`
}

// Transacted reports the channel transaction flag.
func (s SenderProperties) Transacted() bool {
	return s.ChannelTransacted != nil && *s.ChannelTransacted
}

// EffectiveReplyTimeout returns the reply timeout or the default.
func (s SenderProperties) EffectiveReplyTimeout() time.Duration {
	if s.ReplyTimeout > 0 {
		return s.ReplyTimeout.Duration()
	}
	return DefaultReplyTimeout
}

// Duration accepts Go duration strings ("5s") or integer milliseconds.
type Duration time.Duration

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if millis, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(millis) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Profile is one (service, profile) entry in registration order.
type Profile struct {
	Service    contracts.Service
	Name       string
	Properties ServiceProperties
}

// Profiles returns every profile ordered by service declaration order, then profile
// name. The order is the registration order of the transports built from it.
func (c *Config) Profiles() ([]Profile, error) {
	byService := make(map[contracts.Service]map[string]ServiceProperties, len(c.RabbitMQ.Properties))
	for key, profiles := range c.RabbitMQ.Properties {
		service, err := contracts.ParseService(key)
		if err != nil {
			return nil, err
		}
		if _, dup := byService[service]; dup {
			return nil, fmt.Errorf("%w: service %s configured twice", contracts.ErrValidation, service)
		}
		byService[service] = profiles
	}

	var out []Profile
	for _, service := range contracts.Services() {
		profiles, ok := byService[service]
		if !ok {
			continue
		}
		for _, name := range SortedKeys(profiles) {
			out = append(out, Profile{Service: service, Name: name, Properties: profiles[name]})
		}
	}
	return out, nil
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse decodes YAML, expanding ${VAR} references from the environment, and
// validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", contracts.ErrValidation, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}
