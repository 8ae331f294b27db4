package component

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/c360/datachannel/errors"
)

// CommunicationMetadata is the validated configuration of one transport adapter.
// Implementations embed MetadataBase and add transport-specific fields.
type CommunicationMetadata interface {
	CommunicationType() CommunicationType
	ConnectionDirection() Direction

	// EnrichOrValidate fills defaults and rejects inconsistent settings.
	// It runs once while the pipeline is built, before Init.
	EnrichOrValidate() error

	// NewCore constructs the adapter described by this metadata. It must not
	// perform I/O; connections are opened in Init.
	NewCore(deps Dependencies) (CommunicationCore, error)
}

// MetadataBase carries the fields every adapter configuration shares.
type MetadataBase struct {
	Type      CommunicationType `json:"-" yaml:"-"`
	Direction Direction         `json:"direction" yaml:"direction"`
}

// CommunicationType returns the protocol family
func (m *MetadataBase) CommunicationType() CommunicationType { return m.Type }

// ConnectionDirection returns the configured direction
func (m *MetadataBase) ConnectionDirection() Direction { return m.Direction }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct runs `validate` struct tags and returns an Invalid-class error
// listing every failing field.
func ValidateStruct(component string, v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WrapInvalid(err, component, "EnrichOrValidate", "struct validation")
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(fields, ", ")),
		component, "EnrichOrValidate", "struct validation")
}

// RequireTarget fails with ErrMissingConfig when the direction needs a target
// that is empty. Adapters use it for "Output requires a topic" style rules.
func RequireTarget(component string, dir Direction, need Direction, field, value string) error {
	if dir&need == 0 || value != "" {
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s is required for direction %s", errors.ErrMissingConfig, field, dir),
		component, "EnrichOrValidate", "target validation")
}
