package node

import (
	"errors"
	"fmt"
	"strings"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/conditional"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/notification"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/virtual"
)

// Config is one node of a flow.
type Config struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Service and Path address the bus value of input and output nodes.
	Service string `json:"service,omitempty" yaml:"service,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`

	// Wires lists, per output port, the ids of the nodes receiving it.
	Wires [][]string `json:"wires,omitempty" yaml:"wires,omitempty"`

	// Conditional configures an input node's evaluator.
	Conditional conditional.Config `json:"conditional" yaml:"conditional"`

	// Condition2 addresses the value of the second condition.
	Condition2 bus.Address `json:"condition2,omitempty" yaml:"condition2,omitempty"`

	// DebounceMS overrides the runtime default debounce.
	DebounceMS *int `json:"debounce_ms,omitempty" yaml:"debounce_ms,omitempty"`

	// Disabled makes an output node refuse writes while still showing
	// bus status.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// DeviceType, ProductName and Values configure a virtual device.
	DeviceType  string         `json:"device_type,omitempty" yaml:"device_type,omitempty"`
	ProductName string         `json:"product_name,omitempty" yaml:"product_name,omitempty"`
	Values      map[string]any `json:"values,omitempty" yaml:"values,omitempty"`

	// NotificationType and Title are the defaults of a notification node.
	NotificationType notification.Type `json:"notification_type,omitempty" yaml:"notification_type,omitempty"`
	Title            string            `json:"title,omitempty" yaml:"title,omitempty"`
}

// Address returns the configured bus address with the kind's defaults applied.
func (c *Config) Address(k Kind) bus.Address {
	service, path := c.Service, c.Path
	if service == "" {
		service = k.DefaultService
	}
	if path == "" {
		path = k.DefaultPath
	}
	return bus.NewAddress(service, path)
}

// Validate checks the config against its kind.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrMissingID
	}
	k, ok := LookupKind(c.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}

	var errs []error
	switch k.Role {
	case RoleInput, RoleOutput:
		addr := c.Address(k)
		if err := addr.Validate(); err != nil {
			errs = append(errs, err)
		} else if k.ServiceCategory != "" && bus.ServiceCategory(addr.Service) != k.ServiceCategory {
			errs = append(errs, fmt.Errorf("%w: %s is not a %s service", ErrServiceMismatch, addr.Service, k.ServiceCategory))
		}
		if k.Role == RoleInput {
			errs = append(errs, c.validateConditional())
		}
	case RoleVirtual:
		if t := c.deviceType(k); !virtual.ValidDeviceType(t) {
			errs = append(errs, fmt.Errorf("%w: %q", virtual.ErrInvalidDeviceType, t))
		}
	case RoleNotification:
		if c.NotificationType < notification.Warning || c.NotificationType > notification.Information {
			errs = append(errs, fmt.Errorf("%w: %d", notification.ErrInvalidType, c.NotificationType))
		}
	}
	if c.DebounceMS != nil && *c.DebounceMS < 0 {
		errs = append(errs, conditional.ErrInvalidDebounce)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: node %s: %w", ErrInvalidConfig, c.ID, err)
	}
	return nil
}

func (c *Config) validateConditional() error {
	cc := c.Conditional
	if !cc.ConditionalMode {
		return nil
	}
	if err := cc.Validate(); err != nil {
		return err
	}
	if cc.Condition2Enabled {
		if err := c.Condition2.Validate(); err != nil {
			return fmt.Errorf("condition2: %w", err)
		}
	}
	return nil
}

func (c *Config) deviceType(k Kind) string {
	if c.DeviceType != "" {
		return c.DeviceType
	}
	return k.DeviceType
}

// Outputs returns the number of output ports for this config.
func (c *Config) Outputs() int {
	k, _ := LookupKind(c.Type)
	switch k.Role {
	case RoleInput:
		return c.Conditional.Outputs()
	case RoleVirtual:
		return 1
	default:
		return 0
	}
}

// OutputLabels returns one label per output port.
func (c *Config) OutputLabels() []string {
	k, _ := LookupKind(c.Type)
	switch k.Role {
	case RoleInput:
		return c.Conditional.OutputLabels()
	case RoleVirtual:
		return []string{"bus writes"}
	default:
		return nil
	}
}
