package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// KeyIDLength is the number of leading OTP characters that identify a token
const KeyIDLength = 12

// KeyIDFromOTP returns the key id prefix of an OTP.
// ok is false when the OTP is too short to carry one.
func KeyIDFromOTP(otp string) (keyID string, ok bool) {
	if len(otp) < KeyIDLength {
		return "", false
	}
	return otp[:KeyIDLength], true
}

// KeyIDSet is the normalized set of key ids authorized for an account.
// Stored records may hold a single value or a list; both decode into a set
// with duplicates and empty entries removed.
type KeyIDSet []string

// NewKeyIDSet builds a normalized set from raw values
func NewKeyIDSet(ids ...string) KeyIDSet {
	trimmed := lo.Map(ids, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})
	return KeyIDSet(lo.Uniq(lo.Compact(trimmed)))
}

// Contains reports exact, case-sensitive membership
func (s KeyIDSet) Contains(keyID string) bool {
	return lo.Contains(s, keyID)
}

// Empty reports whether the set holds no key ids
func (s KeyIDSet) Empty() bool {
	return len(s) == 0
}

// String joins the ids for log output
func (s KeyIDSet) String() string {
	return strings.Join(s, ", ")
}

// UnmarshalYAML accepts either a scalar or a sequence
func (s *KeyIDSet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = NewKeyIDSet(value.Value)
		return nil
	case yaml.SequenceNode:
		ids := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("key_id: unexpected node at line %d", item.Line)
			}
			ids = append(ids, item.Value)
		}
		*s = NewKeyIDSet(ids...)
		return nil
	default:
		return fmt.Errorf("key_id: expected string or list at line %d", value.Line)
	}
}

// UnmarshalJSON accepts either a string or an array of strings
func (s *KeyIDSet) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = NewKeyIDSet(single)
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("key_id: expected string or array: %w", err)
	}
	*s = NewKeyIDSet(many...)
	return nil
}
