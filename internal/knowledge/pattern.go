// Package knowledge holds the catalogue of known failure patterns and
// scores incidents against it.
package knowledge

// Category groups patterns by the layer of the stack they describe.
type Category string

const (
	CategoryKubernetes  Category = "kubernetes"
	CategoryDatabase    Category = "database"
	CategoryCloud       Category = "cloud"
	CategoryApplication Category = "application"
	CategoryCICD        Category = "cicd"
	CategoryNetwork     Category = "network"
	CategorySecurity    Category = "security"
	CategoryMonitoring  Category = "monitoring"
)

// SymptomType says which signal stream a symptom is checked against.
type SymptomType string

const (
	SymptomMetric SymptomType = "metric"
	SymptomEvent  SymptomType = "event"
	SymptomLog    SymptomType = "log"
	SymptomStatus SymptomType = "status"
)

// Condition is the comparison applied between an observation and the
// symptom's reference value.
type Condition string

const (
	CondAbove    Condition = "above"
	CondBelow    Condition = "below"
	CondEquals   Condition = "equals"
	CondContains Condition = "contains"
	CondMatches  Condition = "matches"
)

// Symptom is one weighted observable of a failure pattern.
type Symptom struct {
	Type      SymptomType `json:"type"`
	Name      string      `json:"name"`
	Condition Condition   `json:"condition"`
	Value     string      `json:"value"`
	Weight    float64     `json:"weight"`
}

// RecommendedAction is a candidate remediation attached to a pattern.
type RecommendedAction struct {
	ActionType           string            `json:"action_type"`
	ActionCategory       string            `json:"action_category"`
	BaseConfidence       float64           `json:"base_confidence"` // 0..100
	Params               map[string]string `json:"params,omitempty"`
	RequiresApproval     bool              `json:"requires_approval"`
	EstimatedResolutionS int               `json:"estimated_resolution_seconds"`
	RollbackAction       string            `json:"rollback_action,omitempty"`
}

// IncidentPattern is one catalogued failure mode. Patterns are loaded at
// startup and never mutated at runtime; the learning engine overlays
// promotion state separately.
type IncidentPattern struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	Category             Category            `json:"category"`
	Subcategory          string              `json:"subcategory"`
	Severity             string              `json:"severity"`
	Symptoms             []Symptom           `json:"symptoms"`
	Signals              []string            `json:"signals,omitempty"`
	RootCauses           []string            `json:"root_causes,omitempty"`
	Actions              []RecommendedAction `json:"actions"`
	AutonomousSafe       bool                `json:"autonomous_safe"`
	BlastRadius          string              `json:"blast_radius"`
	AvgResolutionSeconds int                 `json:"avg_resolution_seconds"`
	Tags                 []string            `json:"tags,omitempty"`
	RelatedPatterns      []string            `json:"related_patterns,omitempty"`
}
