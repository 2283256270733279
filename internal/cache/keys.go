package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// BuildKey derives a deterministic key from an operation name and its
// parameters. Parameter order does not matter, so equivalent calls collide.
func BuildKey(operation string, params map[string]any) string {
	if len(params) == 0 {
		return operation + ":default"
	}

	parts := make([]string, 0, len(params))
	for name, value := range params {
		parts = append(parts, strings.TrimSpace(name)+"="+normalizeParam(value))
	}

	sort.Strings(parts)
	raw := strings.Join(parts, "|")
	sum := sha1.Sum([]byte(raw))
	return fmt.Sprintf("%s:%s", operation, hex.EncodeToString(sum[:]))
}

func normalizeParam(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%.6f", v)
	case []string:
		c := append([]string(nil), v...)
		for i := range c {
			c[i] = strings.TrimSpace(c[i])
		}
		sort.Strings(c)
		return strings.Join(c, ",")
	default:
		return fmt.Sprintf("%v", v)
	}
}
