// Package canonical builds deterministic canonical strings from record data
// and derives the SHA-256 fingerprints stored on the ledger. Canonical
// strings make hashing independent of field ordering in the source row.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HashHex returns the lowercase SHA-256 hex digest of a canonical string.
func HashHex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// FileHashHex returns the lowercase SHA-256 hex digest of raw file bytes.
func FileHashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalizeValue renders one field value for the canonical string.
// Collections render as compact JSON with sorted keys so two semantically
// equal values always normalize identically.
func normalizeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// String renders fields in the given order as field1=value1|field2=value2|...
// Missing fields render with empty values so every record of one type yields
// a string with the same shape.
func String(fields map[string]any, order []string) string {
	parts := make([]string, 0, len(order))
	for _, field := range order {
		parts = append(parts, field+"="+normalizeValue(fields[field]))
	}
	return strings.Join(parts, "|")
}

// itemList renders a collection of sub-entities (medications, invoice items)
// sorted by the given keys, each canonicalized with its own field order and
// joined with ";".
func itemList(items []map[string]any, order []string, sortKeys ...string) string {
	sorted := make([]map[string]any, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		for _, key := range sortKeys {
			a := normalizeValue(sorted[i][key])
			b := normalizeValue(sorted[j][key])
			if a != b {
				return a < b
			}
		}
		return false
	})

	parts := make([]string, 0, len(sorted))
	for _, item := range sorted {
		parts = append(parts, String(item, order))
	}
	return strings.Join(parts, ";")
}
