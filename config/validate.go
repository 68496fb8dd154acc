package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

// Validate checks every required field and reports all problems at once. A
// configuration that fails validation must not be used to build any transport.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", contracts.ErrValidation)
	}

	profiles, err := c.Profiles()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return fmt.Errorf("%w: rabbitmq.properties is empty", contracts.ErrValidation)
	}

	var errs []error
	for _, p := range profiles {
		errs = append(errs, validateProfile(p)...)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", contracts.ErrValidation, errors.Join(errs...))
	}
	return nil
}

func validateProfile(p Profile) []error {
	var errs []error
	path := fmt.Sprintf("%s.%s", p.Service, p.Name)
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s: %s is required", path, field))
		}
	}

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, fmt.Errorf("%s: profile name is blank", p.Service))
	}

	conn := p.Properties.Connection
	required("connectionProperties.username", conn.Username)
	required("connectionProperties.password", conn.Password)
	required("connectionProperties.virtualHost", conn.VirtualHost)
	required("connectionProperties.addresses", conn.Addresses)
	if strings.TrimSpace(conn.Addresses) != "" {
		if _, err := conn.AddressList(); err != nil {
			errs = append(errs, fmt.Errorf("%s: connectionProperties.addresses: %w", path, err))
		}
	}
	if conn.ConnectionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s: connectionProperties.connectionTimeout must be positive", path))
	}

	for _, name := range SortedKeys(p.Properties.Queueing.Senders) {
		s := p.Properties.Queueing.Senders[name]
		sp := fmt.Sprintf("queueingProperties.senders[%s]", name)
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("%s: sender name is blank", path))
		}
		required(sp+".exchangeName", s.ExchangeName)
		required(sp+".queueName", s.QueueName)
		required(sp+".routingKey", s.RoutingKey)
		if s.ChannelTransacted == nil {
			errs = append(errs, fmt.Errorf("%s: %s.channelTransacted is required", path, sp))
		}
		if s.ReplyTimeout < 0 {
			errs = append(errs, fmt.Errorf("%s: %s.replyTimeout must not be negative", path, sp))
		}
	}

	for _, name := range SortedKeys(p.Properties.Queueing.Listeners) {
		l := p.Properties.Queueing.Listeners[name]
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("%s: listener name is blank", path))
		}
		required(fmt.Sprintf("queueingProperties.listeners[%s].queueName", name), l.QueueName)
	}

	return errs
}
