package policy

// Stage identifies when a rule is evaluated.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// Action is what a matched rule does.
type Action string

const (
	// ActionDeny fails the call with a policy error. Only meaningful at
	// the input stage.
	ActionDeny Action = "deny"

	// ActionFilterFields removes the listed field paths from the response.
	ActionFilterFields Action = "filter_fields"

	// ActionMaskFields replaces the listed field paths with "****".
	ActionMaskFields Action = "mask_fields"

	// ActionFilterSensitiveFields removes every value whose declared type
	// carries sensitive: true.
	ActionFilterSensitiveFields Action = "filter_sensitive_fields"
)

// MaskValue replaces masked fields in the response.
const MaskValue = "****"

// Rule is one conditional policy attached to an endpoint.
type Rule struct {
	Condition string   `yaml:"condition" json:"condition"`
	Action    Action   `yaml:"action" json:"action"`
	Reason    string   `yaml:"reason,omitempty" json:"reason,omitempty"`
	Fields    []string `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Set groups an endpoint's rules by stage.
type Set struct {
	Input  []Rule `yaml:"input,omitempty" json:"input,omitempty"`
	Output []Rule `yaml:"output,omitempty" json:"output,omitempty"`
}

// Decision summarizes the outcome of a stage evaluation, recorded in the
// audit log.
type Decision string

const (
	DecisionAllow  Decision = "allow"
	DecisionDeny   Decision = "deny"
	DecisionFilter Decision = "filter"
	DecisionMask   Decision = "mask"
	DecisionNone   Decision = "none"
)

// ValidActions enumerates the closed action set, used by the loader.
var ValidActions = map[Action]bool{
	ActionDeny:                  true,
	ActionFilterFields:          true,
	ActionMaskFields:            true,
	ActionFilterSensitiveFields: true,
}
