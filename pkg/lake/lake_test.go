// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package lake

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fiveYearPolicy = `{
	"expiration": {"days": 1825},
	"transitions": [
		{"days": 30, "storageClass": "INTELLIGENT_TIERING"},
		{"days": 365, "storageClass": "GLACIER"}
	]
}`

func validProperties() Properties {
	return Properties{
		Account:                 "123456789012",
		Region:                  "ap-southeast-2",
		MetaStoreManagerRoleArn: "arn:aws:iam::123456789012:role/MetaStore",
	}
}

func TestParseLifecycle(t *testing.T) {
	l, err := ParseLifecycle(fiveYearPolicy)
	require.NoError(t, err)
	require.NotNil(t, l)
	require.NotNil(t, l.Expiration)
	assert.Equal(t, int32(1825), l.Expiration.Days)
	require.Len(t, l.Transitions, 2)
	assert.Equal(t, StorageIntelligentTiering, l.Transitions[0].StorageClass)
	assert.Equal(t, StorageGlacier, l.Transitions[1].StorageClass)

	empty, err := ParseLifecycle("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = ParseLifecycle("{not json")
	assert.Error(t, err)
}

func TestLifecycle_UnmarshalStringOrObject(t *testing.T) {
	asString, _ := json.Marshal(map[string]interface{}{"lifecycle": fiveYearPolicy})
	asObject := []byte(`{"lifecycle": ` + fiveYearPolicy + `}`)

	for name, data := range map[string][]byte{"string": asString, "object": asObject} {
		t.Run(name, func(t *testing.T) {
			var p Properties
			require.NoError(t, json.Unmarshal(data, &p))
			require.NotNil(t, p.Lifecycle)
			assert.Equal(t, int32(1825), p.Lifecycle.Expiration.Days)
			assert.Len(t, p.Lifecycle.Transitions, 2)
		})
	}
}

func TestProperties_Validate(t *testing.T) {
	l, err := ParseLifecycle(fiveYearPolicy)
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(p *Properties)
		wantErr bool
	}{
		{name: "valid", mutate: func(p *Properties) {}},
		{name: "valid with lifecycle", mutate: func(p *Properties) { p.Lifecycle = l }},
		{name: "missing region", mutate: func(p *Properties) { p.Region = "" }, wantErr: true},
		{name: "short account", mutate: func(p *Properties) { p.Account = "1234" }, wantErr: true},
		{name: "role is not an arn", mutate: func(p *Properties) { p.MetaStoreManagerRoleArn = "MetaStore" }, wantErr: true},
		{
			name: "unknown storage class",
			mutate: func(p *Properties) {
				p.Lifecycle = &Lifecycle{Transitions: []Transition{{Days: 30, StorageClass: "TAPE"}}}
			},
			wantErr: true,
		},
		{
			name: "transitions out of order",
			mutate: func(p *Properties) {
				p.Lifecycle = &Lifecycle{Transitions: []Transition{
					{Days: 365, StorageClass: StorageGlacier},
					{Days: 30, StorageClass: StorageStandardIA},
				}}
			},
			wantErr: true,
		},
		{
			name: "expiration before last transition",
			mutate: func(p *Properties) {
				p.Lifecycle = &Lifecycle{
					Expiration:  &Expiration{Days: 100},
					Transitions: []Transition{{Days: 365, StorageClass: StorageGlacier}},
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProperties()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogSourceSpec(t *testing.T) {
	spec := LogSourceSpec{Kind: SourceVPCFlow}
	assert.Equal(t, "VPC_FLOW:2.0", spec.WithDefaultVersion("").Identity())
	assert.Equal(t, "VPC_FLOW:1.0", spec.WithDefaultVersion("1.0").Identity())

	pinned := LogSourceSpec{Kind: SourceRoute53, Version: "1.0"}
	assert.Equal(t, "1.0", pinned.WithDefaultVersion("2.0").Version)

	parsed, err := ParseIdentity("SH_FINDINGS:2.0")
	require.NoError(t, err)
	assert.Equal(t, SourceSecurityHub, parsed.Kind)
	assert.Equal(t, "2.0", parsed.Version)

	_, err = ParseIdentity("SH_FINDINGS")
	assert.Error(t, err)

	assert.NoError(t, LogSourceSpec{Kind: SourceEKSAudit, Accounts: []string{"123456789012"}}.Validate())
	assert.Error(t, LogSourceSpec{Kind: "SYSLOG"}.Validate())
	assert.Error(t, LogSourceSpec{Kind: SourceEKSAudit, Accounts: []string{"12"}}.Validate())
}

func TestLogSourceSpec_Ref(t *testing.T) {
	plain := LogSourceSpec{Kind: SourceVPCFlow, Version: "2.0"}
	assert.Equal(t, "VPC_FLOW:2.0", plain.Ref())

	multi := LogSourceSpec{Kind: SourceRoute53, Version: "2.0", Accounts: []string{"222222222222", "333333333333"}}
	assert.Equal(t, "ROUTE53:2.0@222222222222+333333333333", multi.Ref())

	parsed, err := ParseRef(multi.Ref())
	require.NoError(t, err)
	assert.Equal(t, multi, parsed)

	parsed, err = ParseRef(plain.Ref())
	require.NoError(t, err)
	assert.Equal(t, plain, parsed)

	for _, bad := range []string{"ROUTE53:2.0@", "ROUTE53@222222222222", ""} {
		_, err := ParseRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrincipalAndAccessTypes(t *testing.T) {
	assert.NoError(t, Principal{Account: "111122223333", ExternalID: "secret"}.Validate())
	assert.NoError(t, Principal{Account: "111122223333", ExternalID: "!not validated!"}.Validate())
	assert.Error(t, Principal{Account: "1111", ExternalID: "secret"}.Validate())

	assert.NoError(t, ValidateAccessTypes([]AccessType{AccessLakeFormation}))
	assert.Error(t, ValidateAccessTypes(nil))
	assert.Error(t, ValidateAccessTypes([]AccessType{"FTP"}))
}
