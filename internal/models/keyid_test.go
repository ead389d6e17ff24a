package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestKeyIDFromOTP(t *testing.T) {
	tests := []struct {
		name   string
		otp    string
		wantID string
		wantOK bool
	}{
		{"empty", "", "", false},
		{"eleven chars", "ccccccccccc", "", false},
		{"exactly twelve", "cccccccccccc", "cccccccccccc", true},
		{"full OTP", "vvvvvvcucrlcietctckflvnncdgckubflugerlnr", "vvvvvvcucrlc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := KeyIDFromOTP(tt.otp)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestNewKeyIDSet_Normalizes(t *testing.T) {
	set := NewKeyIDSet("cccccccccccc", " cccccccccccc ", "", "dddddddddddd")

	assert.Equal(t, KeyIDSet{"cccccccccccc", "dddddddddddd"}, set)
	assert.True(t, set.Contains("dddddddddddd"))
	assert.False(t, set.Contains("CCCCCCCCCCCC"), "membership is case-sensitive")
	assert.False(t, set.Empty())
}

func TestKeyIDSet_UnmarshalYAML_ScalarOrList(t *testing.T) {
	var scalar struct {
		KeyIDs KeyIDSet `yaml:"key_id"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("key_id: cccccccccccc\n"), &scalar))
	assert.Equal(t, KeyIDSet{"cccccccccccc"}, scalar.KeyIDs)

	var list struct {
		KeyIDs KeyIDSet `yaml:"key_id"`
	}
	doc := "key_id:\n  - cccccccccccc\n  - dddddddddddd\n  - cccccccccccc\n"
	require.NoError(t, yaml.Unmarshal([]byte(doc), &list))
	assert.Equal(t, KeyIDSet{"cccccccccccc", "dddddddddddd"}, list.KeyIDs)
}

func TestKeyIDSet_UnmarshalYAML_RejectsMapping(t *testing.T) {
	var bad struct {
		KeyIDs KeyIDSet `yaml:"key_id"`
	}
	err := yaml.Unmarshal([]byte("key_id:\n  a: b\n"), &bad)
	assert.Error(t, err)
}

func TestKeyIDSet_UnmarshalJSON_StringOrArray(t *testing.T) {
	var single TokenConfig
	require.NoError(t, json.Unmarshal([]byte(`{"key_id":"cccccccccccc"}`), &single))
	assert.Equal(t, KeyIDSet{"cccccccccccc"}, single.KeyIDs)

	var many TokenConfig
	require.NoError(t, json.Unmarshal([]byte(`{"key_id":["cccccccccccc","dddddddddddd"]}`), &many))
	assert.Equal(t, KeyIDSet{"cccccccccccc", "dddddddddddd"}, many.KeyIDs)

	var bad TokenConfig
	assert.Error(t, json.Unmarshal([]byte(`{"key_id":42}`), &bad))
}

func TestTokenConfig_MissingFields(t *testing.T) {
	id, secret, https := "1", "c2VjcmV0", false

	complete := &TokenConfig{
		ClientID:           &id,
		ClientSecret:       &secret,
		UseSecureTransport: &https,
		KeyIDs:             NewKeyIDSet("cccccccccccc"),
	}
	assert.True(t, complete.Complete(), "use_https=false still counts as present")

	var absent *TokenConfig
	assert.Equal(t, []string{"client_id", "client_key", "use_https", "key_id"}, absent.MissingFields())

	noKeys := *complete
	noKeys.KeyIDs = nil
	assert.Equal(t, []string{"key_id"}, noKeys.MissingFields())

	noTransport := *complete
	noTransport.UseSecureTransport = nil
	assert.Equal(t, []string{"use_https"}, noTransport.MissingFields())
}

func TestParseAuthMethod(t *testing.T) {
	assert.Equal(t, AuthMethodToken, ParseAuthMethod("YUBIKEY"))
	assert.Equal(t, AuthMethodToken, ParseAuthMethod("token"))
	assert.Equal(t, AuthMethodPassword, ParseAuthMethod("password"))
}
