package core

import (
	"encoding/json"
	"fmt"
)

// CorrectionType tags the payload injected after a guardrail tripwire.
const CorrectionType = "guardrail_tripped"

// Correction is the corrective instruction sent to the live model when a
// guardrail flags an assistant message. The live model echoes it back as a
// conversation item, which the reconciler redirects into a breadcrumb.
type Correction struct {
	Type          string   `json:"type"`
	Category      Category `json:"moderationCategory"`
	Rationale     string   `json:"moderationRationale"`
	OffendingText string   `json:"offendingText"`
}

// FormatCorrection renders the corrective message for a tripped verdict.
func FormatCorrection(v Verdict) string {
	b, _ := json.Marshal(Correction{
		Type:          CorrectionType,
		Category:      v.Category,
		Rationale:     v.Rationale,
		OffendingText: v.Text,
	})
	return fmt.Sprintf("Your previous reply was flagged by a safety check. Rephrase it without the flagged content. %s", b)
}
