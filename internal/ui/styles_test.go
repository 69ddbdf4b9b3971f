package ui

import (
	"bytes"
	"testing"
)

func TestRenderWithoutColor(t *testing.T) {
	DisableColor()

	for _, fn := range []func(string) string{RenderPass, RenderWarn, RenderFail, RenderAccent, RenderMuted} {
		if got := fn("ok"); got != "ok" {
			t.Errorf("expected plain text without color, got %q", got)
		}
	}
	if got := RenderAction("failed"); got != "failed" {
		t.Errorf("RenderAction() = %q", got)
	}
}

func TestTable(t *testing.T) {
	DisableColor()

	var buf bytes.Buffer
	Table(&buf, [][]string{
		{"ENTITY", "NAME", "ACTION"},
		{"field", "Mission", "created"},
		{"view", "All Items", "unchanged"},
	})

	want := "ENTITY  NAME       ACTION\n" +
		"field   Mission    created\n" +
		"view    All Items  unchanged\n"
	if got := buf.String(); got != want {
		t.Errorf("Table() =\n%s\nwant\n%s", got, want)
	}
}
