package agent

import (
	"errors"
	"testing"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(map[string]any) (string, error) { return m.text, m.err }

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	if !inst.IsStatic() {
		t.Fatalf("expected static instruction")
	}
	out, err := inst.Resolve(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "static instruction" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestInstruction_TemplateVars(t *testing.T) {
	inst := NewInstructionFromText("Greet {{.customer}} from {{.company | upper}}.{{.missing}}")
	out, err := inst.Resolve(map[string]any{"customer": "Ada", "company": "acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Greet Ada from ACME." {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestInstruction_Provider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "dynamic {{.n}}"})
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	out, err := inst.Resolve(map[string]any{"n": 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "dynamic 7" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestInstruction_ProviderError(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{err: errors.New("boom")})
	if _, err := inst.Resolve(nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(vars map[string]any) (string, error) {
		return "func " + vars["who"].(string), nil
	})
	out, err := inst.Resolve(map[string]any{"who": "ok"})
	if err != nil || out != "func ok" {
		t.Fatalf("unexpected result %q %v", out, err)
	}
}
