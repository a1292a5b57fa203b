package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func TestChoose(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("7\nabc\n2\n"), &out)
	got, err := p.choose("Pick one", []string{"a", "b", "c"}, 1)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if got != 2 {
		t.Fatalf("choose = %d, want 2", got)
	}
	if !strings.Contains(out.String(), " *  1: b") {
		t.Fatalf("default not marked:\n%s", out.String())
	}
	if strings.Count(out.String(), "Invalid choice") != 2 {
		t.Fatalf("invalid answers not reported:\n%s", out.String())
	}
}

func TestChooseDefault(t *testing.T) {
	p := newPrompter(strings.NewReader("\n"), &bytes.Buffer{})
	got, err := p.choose("Pick", []string{"a", "b"}, 1)
	if err != nil || got != 1 {
		t.Fatalf("choose = %d, %v; want default 1", got, err)
	}
}

func TestPromptAborted(t *testing.T) {
	p := newPrompter(strings.NewReader(""), &bytes.Buffer{})
	if _, err := p.integer("Velocity", 64, 1, 127); !errors.Is(err, errAborted) {
		t.Fatalf("integer on EOF = %v, want errAborted", err)
	}
}

func TestNumbers(t *testing.T) {
	p := newPrompter(strings.NewReader("200\n100\n\n1.5\n0.7\nmaybe\ny"), &bytes.Buffer{})
	v, err := p.integer("Velocity", 64, 1, 127)
	if err != nil || v != 100 {
		t.Fatalf("integer = %d, %v; want 100", v, err)
	}
	v, err = p.integer("Velocity", 64, 1, 127)
	if err != nil || v != 64 {
		t.Fatalf("integer = %d, %v; want default 64", v, err)
	}
	f, err := p.float("Sensitivity", 0.8, 0.1, 1)
	if err != nil || f != 0.7 {
		t.Fatalf("float = %g, %v; want 0.7", f, err)
	}
	ok, err := p.confirm("Continue?", false)
	if err != nil || !ok {
		t.Fatalf("confirm = %v, %v; want true", ok, err)
	}
}
