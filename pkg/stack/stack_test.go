// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package stack

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/lake"
)

const sampleStack = `
name: security-lake
region: ap-southeast-2
metaStoreManagerRoleArn: arn:aws:iam::123456789012:role/AmazonSecurityLakeMetaStoreManager
lake:
  lifecycle:
    expiration:
      days: 1825
    transitions:
      - days: 30
        storageClass: INTELLIGENT_TIERING
      - days: 365
        storageClass: GLACIER
sources:
  - source: VPC_FLOW
    version: "2.0"
  - source: ROUTE53
subscribers:
  - name: AIanalyst
    principal: "111122223333"
    externalId: shared-secret
    accessTypes: [LAKEFORMATION]
    sources:
      - source: VPC_FLOW
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleStack))
	require.NoError(t, err)

	assert.Equal(t, "security-lake", s.Name)
	require.NotNil(t, s.Lake.Lifecycle)
	assert.Equal(t, int32(1825), s.Lake.Lifecycle.Expiration.Days)
	require.Len(t, s.Lake.Lifecycle.Transitions, 2)
	assert.Equal(t, lake.StorageGlacier, s.Lake.Lifecycle.Transitions[1].StorageClass)
	require.Len(t, s.Sources, 2)
	assert.Equal(t, "", s.Sources[1].Version, "versions are defaulted at submission time")
	require.Len(t, s.Subscribers, 1)
	assert.Equal(t, []lake.AccessType{lake.AccessLakeFormation}, s.Subscribers[0].AccessTypes)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "name: x\nbucket: y\n"},
		{"missing name", "region: us-east-1\n"},
		{"unknown source", "name: x\nsources:\n  - source: SYSLOG\n"},
		{"bad storage class", "name: x\nlake:\n  lifecycle:\n    transitions:\n      - days: 30\n        storageClass: TAPE\n"},
		{"expiration before transition", "name: x\nlake:\n  lifecycle:\n    expiration: {days: 10}\n    transitions:\n      - days: 30\n        storageClass: GLACIER\n"},
		{"bad principal", "name: x\nsubscribers:\n  - name: a\n    principal: abc\n    accessTypes: [S3]\n"},
		{"no access types", "name: x\nsubscribers:\n  - name: a\n    principal: \"111122223333\"\n"},
		{"duplicate subscriber", "name: x\nsubscribers:\n  - name: a\n    principal: \"111122223333\"\n    accessTypes: [S3]\n  - name: a\n    principal: \"444455556666\"\n    accessTypes: [S3]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestDefault_RoundTripsThroughYAML(t *testing.T) {
	def := Default("111122223333", "shared-secret")
	require.NoError(t, def.Validate())

	var buf bytes.Buffer
	require.NoError(t, def.Encode(&buf))

	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, def, loaded)
}

func TestDefault_RequiresAnalystAccount(t *testing.T) {
	assert.Error(t, Default("", "").Validate())
}

func TestTargetAndLakeProperties(t *testing.T) {
	s, err := Parse([]byte(sampleStack))
	require.NoError(t, err)

	cfg := &config.Config{Region: "us-east-1", Account: "123456789012", Settings: config.DefaultSettings()}
	target := s.Target(cfg)
	assert.Equal(t, "ap-southeast-2", target.Region)
	assert.Equal(t, "123456789012", target.Account)
	assert.Equal(t, "us-east-1", cfg.Region, "the base config is not modified")

	props := s.LakeProperties(target)
	require.NoError(t, props.Validate())
	assert.Equal(t, "arn:aws:iam::123456789012:role/AmazonSecurityLakeMetaStoreManager", props.MetaStoreManagerRoleArn)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
