package component

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/c360/datachannel/errors"
)

// Role says what a registered kind produces.
type Role string

const (
	RoleEndpoint   Role = "endpoint"
	RoleMiddleware Role = "middleware"
)

// EndpointFactory parses raw configuration into adapter metadata. Validation
// beyond JSON decoding belongs in EnrichOrValidate.
type EndpointFactory func(rawConfig json.RawMessage) (CommunicationMetadata, error)

// MiddlewareFactory builds a middleware from raw configuration.
type MiddlewareFactory func(rawConfig json.RawMessage, deps Dependencies) (Component, error)

// Registration holds a factory and its descriptive metadata.
type Registration struct {
	Name        string            `json:"name"`
	Role        Role              `json:"role"`
	Protocol    string            `json:"protocol,omitempty"`
	Description string            `json:"description"`
	Version     string            `json:"version"`
	Endpoint    EndpointFactory   `json:"-"`
	Middleware  MiddlewareFactory `json:"-"`
}

// Info is the serializable view of a Registration.
type Info struct {
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	Protocol    string `json:"protocol,omitempty"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Registry maps kind names to factories. It is safe for concurrent use.
type Registry struct {
	factories map[string]*Registration
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]*Registration)}
}

// Register adds a factory. Names are unique across roles.
func (r *Registry) Register(reg Registration) error {
	if err := ValidateComponentName(reg.Name); err != nil {
		return errors.Wrap(err, "Registry", "Register", "name validation")
	}

	switch reg.Role {
	case RoleEndpoint:
		if reg.Endpoint == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "endpoint factory validation")
		}
	case RoleMiddleware:
		if reg.Middleware == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "middleware factory validation")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: role %q", errors.ErrInvalidConfig, reg.Role),
			"Registry", "Register", "role validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reg.Name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("factory '%s' is already registered", reg.Name),
			"Registry", "Register", "duplicate factory check")
	}

	r.factories[reg.Name] = &reg
	return nil
}

func (r *Registry) lookup(kind string, role Role, method string) (*Registration, error) {
	r.mu.RLock()
	reg, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownKind, kind), "Registry", method, "factory lookup")
	}
	if reg.Role != role {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q is a %s, not a %s", errors.ErrUnknownKind, kind, reg.Role, role),
			"Registry", method, "role check")
	}
	return reg, nil
}

// CreateMetadata parses endpoint configuration for kind.
func (r *Registry) CreateMetadata(kind string, rawConfig json.RawMessage) (CommunicationMetadata, error) {
	reg, err := r.lookup(kind, RoleEndpoint, "CreateMetadata")
	if err != nil {
		return nil, err
	}
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateMetadata", "config validation")
	}

	md, err := reg.Endpoint(rawConfig)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateMetadata", fmt.Sprintf("%s factory", kind))
	}
	return md, nil
}

// CreateMiddleware builds a middleware of kind.
func (r *Registry) CreateMiddleware(kind string, rawConfig json.RawMessage, deps Dependencies) (Component, error) {
	reg, err := r.lookup(kind, RoleMiddleware, "CreateMiddleware")
	if err != nil {
		return nil, err
	}
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateMiddleware", "config validation")
	}

	mw, err := reg.Middleware(rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateMiddleware", fmt.Sprintf("%s factory", kind))
	}
	return mw, nil
}

// ListAvailable returns information about every registered kind
func (r *Registry) ListAvailable() map[string]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Info, len(r.factories))
	for name, reg := range r.factories {
		result[name] = Info{
			Name:        reg.Name,
			Role:        reg.Role,
			Protocol:    reg.Protocol,
			Description: reg.Description,
			Version:     reg.Version,
		}
	}
	return result
}

// Kinds returns the sorted names registered for role
func (r *Registry) Kinds(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name, reg := range r.factories {
		if reg.Role == role {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
