package seed

import "encoding/json"

// yamlToJSON re-encodes a fixture value as JSON for a jsonb column.
func yamlToJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
