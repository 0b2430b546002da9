package history

import (
	"encoding/json"
	"strings"

	"github.com/hupe1980/realtimemesh/core"
)

// CorrectionTitle is the breadcrumb title used for redirected corrections.
const CorrectionTitle = "Output Guardrail Active"

// CorrectionDetector recognizes corrective guardrail instructions echoed by
// the provider. It returns the breadcrumb payload and true on a match.
type CorrectionDetector interface {
	Detect(text string) (map[string]any, bool)
}

// CorrectionDetectorFunc adapts a function to CorrectionDetector.
type CorrectionDetectorFunc func(text string) (map[string]any, bool)

// Detect implements CorrectionDetector.
func (f CorrectionDetectorFunc) Detect(text string) (map[string]any, bool) { return f(text) }

// MarkerDetector is the default best-effort detector. It matches text that
// embeds a JSON object whose "type" is core.CorrectionType. When the object
// cannot be parsed the raw text is returned as payload.
type MarkerDetector struct{}

// Detect implements CorrectionDetector.
func (MarkerDetector) Detect(text string) (map[string]any, bool) {
	if !strings.Contains(text, core.CorrectionType) {
		return nil, false
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var payload map[string]any
		if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err == nil {
			if payload["type"] == core.CorrectionType {
				return payload, true
			}
			return nil, false
		}
	}

	return map[string]any{"raw": text}, true
}

// noDetector never matches.
type noDetector struct{}

func (noDetector) Detect(string) (map[string]any, bool) { return nil, false }

// NoCorrectionDetector disables redirection.
var NoCorrectionDetector CorrectionDetector = noDetector{}
