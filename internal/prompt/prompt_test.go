package prompt

import (
	"bytes"
	"strings"
	"testing"
)

func TestStdinConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "y", input: "y\n", want: true},
		{name: "yes", input: "yes\n", want: true},
		{name: "uppercase", input: "YES\n", want: true},
		{name: "padded", input: "  y  \n", want: true},
		{name: "n", input: "n\n", want: false},
		{name: "empty line", input: "\n", want: false},
		{name: "anything else", input: "sure\n", want: false},
		{name: "eof", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := New(strings.NewReader(tt.input), &out)
			if got := p.Confirm("Delete everything?"); got != tt.want {
				t.Errorf("Confirm() = %v; want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), "Delete everything?") {
				t.Errorf("prompt output = %q; must show the message", out.String())
			}
			if !strings.Contains(out.String(), "[y/N]") {
				t.Errorf("prompt output = %q; must show the default hint", out.String())
			}
		})
	}
}

func TestAutoConfirm(t *testing.T) {
	if !(Auto{}).Confirm("anything") {
		t.Error("Auto must always confirm")
	}
}
