// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package lake

import (
	"fmt"
	"strings"
)

// DefaultSourceVersion is applied to log sources that do not pin a version.
const DefaultSourceVersion = "2.0"

// SourceKind is a Security Lake native log source name.
type SourceKind string

const (
	SourceRoute53        SourceKind = "ROUTE53"
	SourceVPCFlow        SourceKind = "VPC_FLOW"
	SourceSecurityHub    SourceKind = "SH_FINDINGS"
	SourceCloudTrailMgmt SourceKind = "CLOUD_TRAIL_MGMT"
	SourceLambda         SourceKind = "LAMBDA_EXECUTION"
	SourceS3Data         SourceKind = "S3_DATA"
	SourceEKSAudit       SourceKind = "EKS_AUDIT"
	SourceWAF            SourceKind = "WAF"
)

var sourceCatalog = map[SourceKind]bool{
	SourceRoute53:        true,
	SourceVPCFlow:        true,
	SourceSecurityHub:    true,
	SourceCloudTrailMgmt: true,
	SourceLambda:         true,
	SourceS3Data:         true,
	SourceEKSAudit:       true,
	SourceWAF:            true,
}

// Known reports whether k is in the supported source catalog.
func (k SourceKind) Known() bool {
	return sourceCatalog[k]
}

// StorageClass is an S3 storage class a lifecycle transition moves data to.
type StorageClass string

const (
	StorageStandardIA         StorageClass = "STANDARD_IA"
	StorageOneZoneIA          StorageClass = "ONEZONE_IA"
	StorageIntelligentTiering StorageClass = "INTELLIGENT_TIERING"
	StorageGlacierIR          StorageClass = "GLACIER_IR"
	StorageGlacier            StorageClass = "GLACIER"
	StorageDeepArchive        StorageClass = "DEEP_ARCHIVE"
	StorageExpire             StorageClass = "EXPIRE"
)

var storageCatalog = map[StorageClass]bool{
	StorageStandardIA:         true,
	StorageOneZoneIA:          true,
	StorageIntelligentTiering: true,
	StorageGlacierIR:          true,
	StorageGlacier:            true,
	StorageDeepArchive:        true,
	StorageExpire:             true,
}

// Known reports whether c is a supported storage class.
func (c StorageClass) Known() bool {
	return storageCatalog[c]
}

// AccessType is how a subscriber consumes shared data.
type AccessType string

const (
	AccessLakeFormation AccessType = "LAKEFORMATION"
	AccessS3            AccessType = "S3"
)

// Known reports whether a is a supported access type.
func (a AccessType) Known() bool {
	return a == AccessLakeFormation || a == AccessS3
}

// Properties is the property bag of a data lake provisioning request.
type Properties struct {
	Account                 string     `json:"account" validate:"required,numeric,len=12"`
	Region                  string     `json:"region" validate:"required"`
	EncryptionKeyID         string     `json:"encryptionKeyId,omitempty"`
	Lifecycle               *Lifecycle `json:"lifecycle,omitempty"`
	MetaStoreManagerRoleArn string     `json:"metaStoreManagerRoleArn" validate:"required,arnprefix"`
}

// LogSourceSpec is one entry of an ordered log source chain.
type LogSourceSpec struct {
	Kind     SourceKind `json:"sourceName" yaml:"source" validate:"required,sourcekind"`
	Version  string     `json:"sourceVersion,omitempty" yaml:"version,omitempty"`
	Accounts []string   `json:"accounts,omitempty" yaml:"accounts,omitempty" validate:"omitempty,dive,numeric,len=12"`
}

// WithDefaultVersion returns a copy of s with version filled in when absent.
func (s LogSourceSpec) WithDefaultVersion(version string) LogSourceSpec {
	if s.Version == "" {
		if version == "" {
			version = DefaultSourceVersion
		}
		s.Version = version
	}
	return s
}

// Identity is the idempotency key of a spec: source kind plus version.
func (s LogSourceSpec) Identity() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.Version)
}

// ParseIdentity is the inverse of Identity.
func ParseIdentity(id string) (LogSourceSpec, error) {
	kind, version, ok := strings.Cut(id, ":")
	if !ok || kind == "" || version == "" {
		return LogSourceSpec{}, fmt.Errorf("invalid log source identity: %q", id)
	}
	return LogSourceSpec{Kind: SourceKind(kind), Version: version}, nil
}

// Ref renders s for a native id: the identity, then "@" and the target
// accounts joined by "+" when s names any.
func (s LogSourceSpec) Ref() string {
	if len(s.Accounts) == 0 {
		return s.Identity()
	}
	return s.Identity() + "@" + strings.Join(s.Accounts, "+")
}

// ParseRef is the inverse of Ref.
func ParseRef(ref string) (LogSourceSpec, error) {
	identity, accounts, hasAccounts := strings.Cut(ref, "@")
	spec, err := ParseIdentity(identity)
	if err != nil {
		return LogSourceSpec{}, err
	}
	if hasAccounts {
		if accounts == "" {
			return LogSourceSpec{}, fmt.Errorf("invalid log source reference: %q", ref)
		}
		spec.Accounts = strings.Split(accounts, "+")
	}
	return spec, nil
}

// Principal is an external account granted access through a subscriber.
type Principal struct {
	Account    string `json:"principal" validate:"required,numeric,len=12"`
	// ExternalID is passed through to the provider unchecked.
	ExternalID string `json:"externalId"`
}
