// Package cache provides TTL-based response caches keyed by provider, method
// and normalized request parameters. All implementations satisfy domain.Cache
// and treat entries as logically expired once their TTL elapses, whether or
// not they have been physically evicted.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key builds a deterministic cache key from provider, method and parameters.
// Parameters are serialized sorted by name so two logically-identical
// requests produce the same key regardless of construction order.
func Key(provider, method string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		// encoding/json sorts nested map keys, keeping values deterministic.
		value, err := json.Marshal(params[name])
		if err != nil {
			value = []byte(fmt.Sprintf("%v", params[name]))
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.Write(value)
		b.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s:%s:%s", provider, method, hex.EncodeToString(sum[:]))
}
