package agent

import (
	"github.com/hupe1980/realtimemesh/internal/util"
)

// Provider supplies dynamic instruction text at session configuration time.
// Implementations receive the caller supplied session values.
type Provider interface {
	Instruction(vars map[string]any) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(vars map[string]any) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(vars map[string]any) (string, error) { return f(vars) }

// Instruction represents either a static instruction template or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a template string.
// The text may reference session values, e.g. {{.customer_name}}.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(vars map[string]any) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a template string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Text returns the raw template of a static instruction.
func (i Instruction) Text() string { return i.text }

// Resolve returns the instruction text. Static templates are rendered with
// vars; provider output is rendered as well so providers can return templates.
func (i Instruction) Resolve(vars map[string]any) (string, error) {
	text := i.text
	if i.provider != nil {
		var err error
		if text, err = i.provider.Instruction(vars); err != nil {
			return "", err
		}
	}
	return util.RenderTemplate(text, vars)
}
