package cmd

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigSchema(t *testing.T) {
	bts, err := configSchema()
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(bts, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	for _, key := range []string{"pointer-width", "endian", "history-file", "resolver-cache-size", "color"} {
		if !strings.Contains(string(bts), `"`+key+`"`) {
			t.Errorf("schema lacks %q", key)
		}
	}
}
