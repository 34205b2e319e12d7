package templates

import (
	"context"
	"strings"
	"testing"
)

func TestErrorAlert(t *testing.T) {
	var b strings.Builder
	if err := ErrorAlert("Bad <file>", "Try again", "FILE002").Render(context.Background(), &b); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := b.String()

	if !strings.Contains(out, "Bad &lt;file&gt;") {
		t.Errorf("message not escaped: %s", out)
	}
	if !strings.Contains(out, "Try again") {
		t.Errorf("action missing: %s", out)
	}
	if !strings.Contains(out, "Code: FILE002") {
		t.Errorf("code missing: %s", out)
	}
}

func TestErrorAlert_NoAction(t *testing.T) {
	var b strings.Builder
	if err := ErrorAlert("Oops", "", "ERR000").Render(context.Background(), &b); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(b.String(), "alert-action") {
		t.Errorf("empty action rendered: %s", b.String())
	}
}
