package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileMissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile on missing file: %v", err)
	}
}

func TestLoadFileValuesAndPrecedence(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# local overrides\n" +
		"CALLWISE_ADDR=:9090\n" +
		"GREETING='good morning'\n" +
		"export DEEPGRAM_MODEL=nova-2\n" +
		"EXISTING=from_file\n" +
		"MALFORMED LINE\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("EXISTING", "already_set")

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if got := os.Getenv("CALLWISE_ADDR"); got != ":9090" {
		t.Fatalf("CALLWISE_ADDR = %q, want :9090", got)
	}
	if got := os.Getenv("GREETING"); got != "good morning" {
		t.Fatalf("GREETING = %q, want unquoted value", got)
	}
	if got := os.Getenv("DEEPGRAM_MODEL"); got != "nova-2" {
		t.Fatalf("DEEPGRAM_MODEL = %q, want nova-2", got)
	}
	if got := os.Getenv("EXISTING"); got != "already_set" {
		t.Fatalf("EXISTING = %q, want the pre-set value", got)
	}
}

func TestParseLine(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		line     string
		key, val string
		ok       bool
	}{
		{"A=1", "A", "1", true},
		{"  B = 2 ", "B", "2", true},
		{`C="quoted"`, "C", "quoted", true},
		{"# comment", "", "", false},
		{"", "", "", false},
		{"no equals", "", "", false},
		{"=orphan", "", "", false},
	} {
		key, val, ok := parseLine(tc.line)
		if key != tc.key || val != tc.val || ok != tc.ok {
			t.Fatalf("parseLine(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.line, key, val, ok, tc.key, tc.val, tc.ok)
		}
	}
}
