// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package lake

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("sourcekind", func(fl validator.FieldLevel) bool {
		return SourceKind(fl.Field().String()).Known()
	})
	_ = v.RegisterValidation("storageclass", func(fl validator.FieldLevel) bool {
		return StorageClass(fl.Field().String()).Known()
	})
	_ = v.RegisterValidation("accesstype", func(fl validator.FieldLevel) bool {
		return AccessType(fl.Field().String()).Known()
	})
	_ = v.RegisterValidation("arnprefix", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(fl.Field().String(), "arn:")
	})
	return v
}

// Validator exposes the package validator so callers share the custom tags.
func Validator() *validator.Validate {
	return validate
}

// Validate checks the data lake properties.
func (p Properties) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid data lake properties: %w", err)
	}
	if err := p.Lifecycle.check(); err != nil {
		return err
	}
	return nil
}

// Validate checks a single log source spec.
func (s LogSourceSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid log source %q: %w", s.Kind, err)
	}
	return nil
}

// Validate checks the principal.
func (p Principal) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid subscriber principal: %w", err)
	}
	return nil
}

// ValidateAccessTypes checks that at least one known access type is given.
func ValidateAccessTypes(types []AccessType) error {
	if len(types) == 0 {
		return fmt.Errorf("at least one access type is required")
	}
	for _, t := range types {
		if !t.Known() {
			return fmt.Errorf("unsupported access type %q", t)
		}
	}
	return nil
}

// Validate checks a lifecycle policy on its own. A nil policy is valid.
func (l *Lifecycle) Validate() error {
	if l == nil {
		return nil
	}
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("invalid lifecycle configuration: %w", err)
	}
	return l.check()
}
