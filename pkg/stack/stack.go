// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package stack reads the lakectl stack file: one data lake, the log sources
// attached to it in order, and its subscribers.
package stack

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
)

// Stack is a complete Security Lake deployment.
type Stack struct {
	Name                    string `yaml:"name" validate:"required"`
	Account                 string `yaml:"account,omitempty" validate:"omitempty,numeric,len=12"`
	Region                  string `yaml:"region,omitempty"`
	MetaStoreManagerRoleArn string `yaml:"metaStoreManagerRoleArn,omitempty" validate:"omitempty,arnprefix"`

	Lake        LakeSpec             `yaml:"lake"`
	Sources     []lake.LogSourceSpec `yaml:"sources,omitempty" validate:"dive"`
	Subscribers []SubscriberSpec     `yaml:"subscribers,omitempty" validate:"dive"`
}

// LakeSpec configures the data lake itself.
type LakeSpec struct {
	EncryptionKeyID string          `yaml:"encryptionKeyId,omitempty"`
	Lifecycle       *lake.Lifecycle `yaml:"lifecycle,omitempty"`
}

// SubscriberSpec grants one principal access to the lake.
type SubscriberSpec struct {
	Name        string               `yaml:"name" validate:"required"`
	Description string               `yaml:"description,omitempty"`
	Principal   string               `yaml:"principal" validate:"required,numeric,len=12"`
	ExternalID  string               `yaml:"externalId,omitempty"`
	AccessTypes []lake.AccessType    `yaml:"accessTypes" validate:"min=1,dive,accesstype"`
	Sources     []lake.LogSourceSpec `yaml:"sources,omitempty" validate:"dive"`
}

// Default returns the reference deployment: a five year lake with two
// storage transitions, four native sources and one LakeFormation subscriber.
func Default(analystAccount, externalID string) *Stack {
	sources := []lake.LogSourceSpec{
		{Kind: lake.SourceVPCFlow, Version: lake.DefaultSourceVersion},
		{Kind: lake.SourceRoute53, Version: lake.DefaultSourceVersion},
		{Kind: lake.SourceSecurityHub, Version: lake.DefaultSourceVersion},
		{Kind: lake.SourceCloudTrailMgmt, Version: lake.DefaultSourceVersion},
	}
	return &Stack{
		Name: "security-lake",
		Lake: LakeSpec{
			Lifecycle: &lake.Lifecycle{
				Expiration: &lake.Expiration{Days: 1825},
				Transitions: []lake.Transition{
					{Days: 30, StorageClass: lake.StorageIntelligentTiering},
					{Days: 365, StorageClass: lake.StorageGlacier},
				},
			},
		},
		Sources: sources,
		Subscribers: []SubscriberSpec{
			{
				Name:        "AIanalyst",
				Description: "Bedrock AI analysis of logs",
				Principal:   analystAccount,
				ExternalID:  externalID,
				AccessTypes: []lake.AccessType{lake.AccessLakeFormation},
				Sources: []lake.LogSourceSpec{
					{Kind: lake.SourceCloudTrailMgmt},
					{Kind: lake.SourceRoute53},
					{Kind: lake.SourceSecurityHub},
					{Kind: lake.SourceVPCFlow},
				},
			},
		},
	}
}

// Load reads and validates a stack file.
func Load(path string) (*Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a stack document. Unknown keys are rejected.
func Parse(data []byte) (*Stack, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var s Stack
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode stack: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the stack without contacting AWS.
func (s *Stack) Validate() error {
	if err := lake.Validator().Struct(s); err != nil {
		return fmt.Errorf("invalid stack: %w", err)
	}
	if err := s.Lake.Lifecycle.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(s.Subscribers))
	for i, sub := range s.Subscribers {
		if seen[sub.Name] {
			return fmt.Errorf("subscribers[%d].name must be unique: %s", i, sub.Name)
		}
		seen[sub.Name] = true
	}
	return nil
}

// Encode writes the stack as YAML.
func (s *Stack) Encode(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(s); err != nil {
		_ = encoder.Close()
		return fmt.Errorf("encode stack: %w", err)
	}
	return encoder.Close()
}

// Target resolves the stack's account, region and meta-store role against
// the configuration; values in the stack win.
func (s *Stack) Target(cfg *config.Config) *config.Config {
	out := *cfg
	if s.Account != "" {
		out.Account = s.Account
	}
	if s.Region != "" {
		out.Region = s.Region
	}
	if s.MetaStoreManagerRoleArn != "" {
		out.MetaStoreManagerRoleArn = s.MetaStoreManagerRoleArn
	}
	return &out
}

// LakeProperties returns the data lake properties for the resolved target.
func (s *Stack) LakeProperties(cfg *config.Config) lake.Properties {
	return lake.Properties{
		Account:                 cfg.Account,
		Region:                  cfg.Region,
		EncryptionKeyID:         s.Lake.EncryptionKeyID,
		Lifecycle:               s.Lake.Lifecycle,
		MetaStoreManagerRoleArn: cfg.MetaStoreManagerRoleArn,
	}
}
