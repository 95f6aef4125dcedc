// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package lake

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Lifecycle is the retention policy of the lake's objects.
type Lifecycle struct {
	Expiration  *Expiration  `json:"expiration,omitempty" yaml:"expiration,omitempty"`
	Transitions []Transition `json:"transitions,omitempty" yaml:"transitions,omitempty" validate:"dive"`
}

// Expiration deletes objects after Days.
type Expiration struct {
	Days int32 `json:"days" yaml:"days" validate:"gt=0"`
}

// Transition moves objects to StorageClass after Days.
type Transition struct {
	Days         int32        `json:"days" yaml:"days" validate:"gt=0"`
	StorageClass StorageClass `json:"storageClass" yaml:"storageClass" validate:"required,storageclass"`
}

type lifecycleAlias Lifecycle

// UnmarshalJSON accepts either a lifecycle object or a JSON string holding one.
func (l *Lifecycle) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := ParseLifecycle(raw)
		if err != nil {
			return err
		}
		*l = *parsed
		return nil
	}
	var alias lifecycleAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return fmt.Errorf("invalid lifecycle configuration: %w", err)
	}
	*l = Lifecycle(alias)
	return nil
}

// ParseLifecycle decodes a lifecycle policy from its JSON document form.
func ParseLifecycle(doc string) (*Lifecycle, error) {
	if doc == "" {
		return nil, nil
	}
	var alias lifecycleAlias
	if err := json.Unmarshal([]byte(doc), &alias); err != nil {
		return nil, fmt.Errorf("invalid lifecycle configuration: %w", err)
	}
	l := Lifecycle(alias)
	return &l, nil
}

// check enforces ordering rules the struct tags cannot express.
func (l *Lifecycle) check() error {
	if l == nil {
		return nil
	}
	var last int32
	for i, t := range l.Transitions {
		if t.Days <= last {
			return fmt.Errorf("lifecycle transition %d: days must be greater than %d", i, last)
		}
		last = t.Days
	}
	if l.Expiration != nil && l.Expiration.Days <= last {
		return fmt.Errorf("lifecycle expiration (%d days) must come after the last transition (%d days)",
			l.Expiration.Days, last)
	}
	return nil
}
