package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    func(*Config) bool
		wantErr string
	}{
		{
			name: "empty",
			in:   "",
			want: func(c *Config) bool {
				return c.ResolverCacheSize == DefaultResolverCacheSize && c.Color == "auto" && c.PointerWidth == 0
			},
		},
		{
			name: "overrides",
			in:   "pointer-width: 4\nendian: big\ncolor: never\nlisting: true\nresolver-cache-size: 16\n",
			want: func(c *Config) bool {
				return c.PointerWidth == 4 && c.Endian == "big" && c.Color == "never" && c.Listing && c.ResolverCacheSize == 16
			},
		},
		{name: "bad width", in: "pointer-width: 3\n", wantErr: "pointer-width"},
		{name: "bad endian", in: "endian: middle\n", wantErr: "endian"},
		{name: "bad color", in: "color: sometimes\n", wantErr: "color"},
		{name: "unknown key", in: "max-string-len: 3\n", wantErr: "decode config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.in))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !tt.want(c) {
				t.Errorf("unexpected config %+v", c)
			}
		})
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.ResolverCacheSize != DefaultResolverCacheSize {
		t.Errorf("defaults not applied: %+v", c)
	}

	path := filepath.Join(dir, "pointers", "config.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	// The written default must itself load cleanly.
	if _, err := Parse(data); err != nil {
		t.Errorf("default config does not parse: %v", err)
	}
	if _, err := Load(""); err != nil {
		t.Errorf("second load failed: %v", err)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yml")); err == nil {
		t.Error("missing explicit config should fail")
	}

	path := filepath.Join(dir, "conf.yml")
	data := "pointer-width: 8\nendian: little\ncolor: always\nhistory-file: /tmp/h\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.PointerWidth != 8 || c.Endian != "little" || c.Color != "always" || c.HistoryFile != "/tmp/h" {
		t.Errorf("round trip lost values: %+v", c)
	}
}
