package domain

// Intent is the classified purpose of a user query.
type Intent string

const (
	IntentIntrospection  Intent = "introspection"
	IntentDirectResponse Intent = "direct_response"
	IntentToolExecution  Intent = "tool_execution"
	IntentCurlGeneration Intent = "curl_generation"
)

// Intents lists every intent in the order offered to the router model.
var Intents = []Intent{
	IntentIntrospection,
	IntentDirectResponse,
	IntentToolExecution,
	IntentCurlGeneration,
}

// Valid reports whether i is one of the four known intents.
func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// RoutingDecision is produced once per query and never modified.
type RoutingDecision struct {
	Intent    Intent `json:"intent"`
	Reasoning string `json:"reasoning"`
	Prompt    string `json:"prompt,omitempty"`
}

// MaxSelectedTools caps how many tools one selection may return.
const MaxSelectedTools = 3

// SelectedTool is one entry chosen by the selection model.
type SelectedTool struct {
	Name           string     `json:"name"`
	Reason         string     `json:"reason,omitempty"`
	RegistrySource ToolSource `json:"registrySource"`
}

// SelectionResult lists chosen tools in the model's order of preference.
type SelectionResult struct {
	SelectedTools  []SelectedTool `json:"selectedTools"`
	ExecutionQuery string         `json:"executionQuery"`
}

// ToolNames returns the selected names in order.
func (s SelectionResult) ToolNames() []string {
	names := make([]string, len(s.SelectedTools))
	for i, t := range s.SelectedTools {
		names[i] = t.Name
	}
	return names
}
