package dialogue

import "github.com/astra-cc/orchestrator/internal/apperr"

// ToolExecutorFunc executes one tool invocation and returns the string
// result appended to the stream per the external LLM's tool protocol
// (spec.md §4.8: "their result ... is appended to the stream").
type ToolExecutorFunc func(argumentsJSON string) (string, error)

// ToolDefinition is one entry in the closed tool catalog (spec.md §4.8),
// grounded on the teacher's internal/core/tool.ToolDefinition /
// RegisterTool registry pattern, re-targeted from the teacher's WhatsApp
// booking tools to the six tools this adapter names.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Executor    ToolExecutorFunc
}

// Tool name constants, the fixed closed set spec.md §4.8 names.
const (
	ToolTransferToAgent    = "transfer_to_agent"
	ToolScheduleCallback   = "schedule_callback"
	ToolLookupCustomer     = "lookup_customer"
	ToolGetAccountBalance  = "get_account_balance"
	ToolCancelService      = "cancel_service"
	ToolUpdateContactInfo  = "update_contact_info"
)

// TransferToAgentSchema matches spec.md §4.8's transfer_to_agent{department, priority}.
var TransferToAgentSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"department": map[string]interface{}{
			"type":        "string",
			"description": "The department to transfer the call to.",
		},
		"priority": map[string]interface{}{
			"type":        "string",
			"description": "The urgency of the transfer.",
			"enum":        []string{"low", "normal", "high", "urgent"},
		},
	},
	"required": []string{"department", "priority"},
}

// ScheduleCallbackSchema matches schedule_callback{phone, datetime, reason}.
var ScheduleCallbackSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"phone": map[string]interface{}{
			"type":        "string",
			"description": "The phone number to call back.",
		},
		"datetime": map[string]interface{}{
			"type":        "string",
			"description": "ISO 8601 datetime for the callback.",
		},
		"reason": map[string]interface{}{
			"type":        "string",
			"description": "Why the callback is needed.",
		},
	},
	"required": []string{"phone", "datetime", "reason"},
}

// LookupCustomerSchema matches lookup_customer{customer_id}.
var LookupCustomerSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"customer_id": map[string]interface{}{
			"type":        "string",
			"description": "The customer's account identifier.",
		},
	},
	"required": []string{"customer_id"},
}

// GetAccountBalanceSchema matches get_account_balance (no arguments).
var GetAccountBalanceSchema = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{},
}

// CancelServiceSchema matches cancel_service (no arguments).
var CancelServiceSchema = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{},
}

// UpdateContactInfoSchema matches update_contact_info.
var UpdateContactInfoSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"phone": map[string]interface{}{"type": "string"},
		"email": map[string]interface{}{"type": "string"},
		"address": map[string]interface{}{"type": "string"},
	},
}

// Registry is the closed tool catalog for one Dialogue Engine Adapter.
type Registry struct {
	tools map[string]*ToolDefinition
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*ToolDefinition)}
}

// RegisterTool adds or replaces a tool definition.
func (r *Registry) RegisterTool(def *ToolDefinition) {
	r.tools[def.Name] = def
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (*ToolDefinition, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Catalog returns the tool definitions in the shape the LLM wire contract
// expects ({name, description, parameters}), omitting the Executor.
func (r *Registry) Catalog() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		})
	}
	return out
}

// Execute dispatches name to its registered executor.
func (r *Registry) Execute(name, argumentsJSON string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", apperr.NotFound("tool not registered: " + name)
	}
	return t.Executor(argumentsJSON)
}
