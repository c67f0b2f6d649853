// Package canon implements stable-key-sorted JSON stringification and SHA-256 fingerprinting,
// per spec.md §4.5. Used anywhere two snapshots must be compared or partitioned by key.
//
// Grounded on the teacher's JSON-tagged struct convention throughout internal/data/venue/types
// (explicit json tags everywhere); generalized here to operate over arbitrary values via
// encoding/json's intermediate representation so it composes with any caller's struct/map.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
)

// StableStringify renders v as JSON with object keys sorted, arrays order-preserved, and
// primitives JSON-encoded. Mirrors spec.md §4.5's stableStringify exactly.
func StableStringify(v interface{}) (string, error) {
	// Round-trip through encoding/json first so struct tags, custom marshalers, and map key
	// types are all normalized into the same generic representation before we canonicalize.
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	var buf []byte
	buf = appendStable(buf, generic)
	return string(buf), nil
}

func appendStable(buf []byte, v interface{}) []byte {
	switch val := v.(type) {
	case nil:
		return append(buf, "null"...)
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = appendStable(buf, val[k])
		}
		buf = append(buf, '}')
		return buf
	case []interface{}:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendStable(buf, item)
		}
		buf = append(buf, ']')
		return buf
	case string:
		b, _ := json.Marshal(val)
		return append(buf, b...)
	case bool:
		if val {
			return append(buf, "true"...)
		}
		return append(buf, "false"...)
	case float64:
		return append(buf, strconv.FormatFloat(val, 'g', -1, 64)...)
	default:
		b, _ := json.Marshal(val)
		return append(buf, b...)
	}
}

// HashStableObject returns the hex SHA-256 of StableStringify(v). Returns an empty string on
// marshal failure (outright JSON violations only, per spec.md §9's design note).
func HashStableObject(v interface{}) string {
	s, err := StableStringify(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
