package research

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSON parses a model reply, tolerating markdown code fences around
// the object.
func decodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}
