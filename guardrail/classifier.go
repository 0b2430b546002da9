// Package guardrail runs asynchronous content checks on completed assistant
// messages and applies a tripwire when a message is flagged.
package guardrail

import (
	"context"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/internal/schema"
	"github.com/hupe1980/realtimemesh/internal/util"
	"github.com/hupe1980/realtimemesh/model"
)

// Classifier assigns a moderation category to a piece of assistant output.
type Classifier interface {
	Classify(ctx context.Context, text, brand string) (core.Verdict, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, text, brand string) (core.Verdict, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, text, brand string) (core.Verdict, error) {
	return f(ctx, text, brand)
}

const defaultPrompt = `You are an expert at classifying text according to moderation policies.
Consider the provided message, analyze potential classes from output_classes, and output the best classification.
Output JSON following the provided schema. Keep your analysis and reasoning short and to the point, maximum 2 sentences.

<info>
- Company name: {{.brand}}
</info>

<message>
{{.text}}
</message>

<output_classes>
- OFFENSIVE: Content that includes hate speech, discriminatory language, insults, slurs, or harassment.
- OFF_BRAND: Content that discusses competitors in a disparaging way.
- VIOLENCE: Content that includes explicit threats, incitement of harm, or graphic descriptions of physical injury or violence.
- NONE: If no other classes are appropriate and the message is fine.
</output_classes>`

// ModelClassifierOptions configures a ModelClassifier.
type ModelClassifierOptions struct {
	// Model overrides the adapter's default model identifier.
	Model string
	// Prompt is a template rendered with .brand and .text.
	Prompt string
}

// ModelClassifier classifies text with a structured-output reasoning call.
type ModelClassifier struct {
	llm  model.Model
	opts ModelClassifierOptions
}

// NewModelClassifier creates a classifier backed by llm.
func NewModelClassifier(llm model.Model, optFns ...func(o *ModelClassifierOptions)) *ModelClassifier {
	opts := ModelClassifierOptions{
		Prompt: defaultPrompt,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ModelClassifier{llm: llm, opts: opts}
}

type classification struct {
	Rationale string        `json:"moderationRationale"`
	Category  core.Category `json:"moderationCategory"`
}

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, text, brand string) (core.Verdict, error) {
	prompt, err := util.RenderTemplate(c.opts.Prompt, map[string]any{"brand": brand, "text": text})
	if err != nil {
		return core.Verdict{}, fmt.Errorf("render classifier prompt: %w", err)
	}

	out, err := schema.ToMap(outputSchema())
	if err != nil {
		return core.Verdict{}, err
	}

	resp, err := c.llm.Generate(ctx, model.Request{
		Model:    c.opts.Model,
		Messages: []model.Message{model.UserMessage(prompt)},
		ResponseSchema: &model.ResponseSchema{
			Name:        "output_classification",
			Description: "Moderation verdict for one assistant message.",
			Schema:      out,
		},
	})
	if err != nil {
		return core.Verdict{}, fmt.Errorf("classifier call: %w", err)
	}
	if resp == nil {
		return core.Verdict{}, fmt.Errorf("classifier returned no response")
	}

	var cls classification
	if err := resp.Decode(&cls); err != nil {
		return core.Verdict{}, err
	}
	cls.Category = core.Category(strings.ToUpper(strings.TrimSpace(string(cls.Category))))
	if !cls.Category.Valid() {
		return core.Verdict{}, fmt.Errorf("classifier returned unknown category %q", cls.Category)
	}

	return core.Verdict{
		Category:  cls.Category,
		Rationale: cls.Rationale,
		Text:      text,
		Status:    core.VerdictDone,
	}, nil
}

func outputSchema() *jsonschema.Schema {
	values := make([]string, len(core.Categories))
	for i, c := range core.Categories {
		values[i] = string(c)
	}
	return schema.Object(
		schema.Required("moderationRationale", schema.String("Short reasoning for the chosen category.")),
		schema.Required("moderationCategory", schema.Enum("Moderation category.", values...)),
	)
}
