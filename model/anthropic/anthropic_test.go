package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/realtimemesh/model"
)

func TestBuildMessages_GroupsToolResults(t *testing.T) {
	system, msgs := buildMessages([]model.Message{
		model.SystemMessage("be helpful"),
		model.UserMessage("check order"),
		model.AssistantMessage("", model.ToolCall{ID: "a", Function: model.ToolCallFunction{Name: "lookup", Arguments: `{"id":1}`}},
			model.ToolCall{ID: "b", Function: model.ToolCallFunction{Name: "status", Arguments: `{}`}}),
		model.ToolMessage("a", `{"found":true}`),
		model.ToolMessage("b", `{"status":"shipped"}`),
	})

	require.Len(t, system, 1)
	assert.Equal(t, "be helpful", system[0].Text)
	// user, assistant(tool_use x2), user(tool_result x2)
	require.Len(t, msgs, 3)
	assert.Len(t, msgs[1].Content, 2)
	assert.Len(t, msgs[2].Content, 2)
}

func TestBuildParams_StructuredOutputForcesTool(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })

	params := m.buildParams(model.Request{
		Messages: []model.Message{model.UserMessage("classify")},
		ResponseSchema: &model.ResponseSchema{
			Name:   "moderation",
			Schema: map[string]any{"type": "object", "properties": map[string]any{}, "required": []any{"moderationCategory"}},
		},
	})

	require.Len(t, params.Tools, 1)
	require.NotNil(t, params.ToolChoice.OfTool)
	assert.Equal(t, "moderation", params.ToolChoice.OfTool.Name)
	assert.Equal(t, "anthropic", m.Info().Provider)
}
