package ui

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		done, total, width int
		want               string
	}{
		{0, 10, 10, "[░░░░░░░░░░] 0/10"},
		{5, 10, 10, "[█████░░░░░] 5/10"},
		{10, 10, 4, "[████] 10/10"},
		{3, 0, 4, "[░░░░] 3/0"},
		{20, 10, 4, "[████] 20/10"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.done, tt.total, tt.width); got != tt.want {
			t.Errorf("ProgressBar(%d, %d, %d) = %q, want %q", tt.done, tt.total, tt.width, got, tt.want)
		}
	}
}

func TestInit_NonTerminalIsPlain(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	Init(f, false)
	defer SetColor(true)

	if ColorEnabled() {
		t.Error("colour enabled for a regular file")
	}
	if got := RenderPass("ok"); got != "ok" {
		t.Errorf("RenderPass() = %q, want no escape codes", got)
	}
}

func TestOK_Plain(t *testing.T) {
	SetColor(false)
	defer SetColor(true)

	var buf bytes.Buffer
	OK(&buf, "synced %d records", 3)
	if got := buf.String(); got != "✔ synced 3 records\n" {
		t.Errorf("OK() wrote %q", got)
	}
}

func TestTable_ContainsCells(t *testing.T) {
	SetColor(false)
	defer SetColor(true)

	out := Table([]string{"ID", "Characters"}, [][]string{{"440", "一"}, {"441", "二"}})
	for _, want := range []string{"ID", "Characters", "440", "一", "二"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
