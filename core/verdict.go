package core

// Category is the moderation outcome of a guardrail check.
type Category string

const (
	CategoryNone      Category = "NONE"
	CategoryOffensive Category = "OFFENSIVE"
	CategoryOffBrand  Category = "OFF_BRAND"
	CategoryViolence  Category = "VIOLENCE"
)

// Categories lists every valid category, NONE last.
var Categories = []Category{CategoryOffensive, CategoryOffBrand, CategoryViolence, CategoryNone}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// VerdictStatus tracks a guardrail check on a message.
type VerdictStatus string

const (
	VerdictPending VerdictStatus = "in_progress"
	VerdictDone    VerdictStatus = "done"
)

// Verdict is the guardrail outcome attached to an assistant message.
type Verdict struct {
	Category  Category      `json:"category"`
	Rationale string        `json:"rationale"`
	Text      string        `json:"text"`
	Status    VerdictStatus `json:"status"`
	// Failed marks a fail-open verdict produced after a classifier error.
	Failed bool `json:"failed,omitempty"`
}

// Tripped reports whether the verdict is final and flags the message.
func (v Verdict) Tripped() bool {
	return v.Status == VerdictDone && v.Category != CategoryNone
}
