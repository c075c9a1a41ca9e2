package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/astra-cc/orchestrator/internal/core/dialogue"
	"github.com/astra-cc/orchestrator/internal/repository"
)

// registerBuiltinTools registers the closed six-tool catalog spec.md §4.8
// names. transfer_to_agent and schedule_callback are also observed by
// Call.runAssistantTurn's onToolCall notification (which fires the
// corresponding webhook); the Executor here is what actually answers the
// Dialogue Engine's tool call so the LLM stream can continue. The
// customer-facing tools have no CRM of their own in this repo, so their
// executors acknowledge the action without a backing store, grounded on the
// teacher's registerBuiltInTools pattern of one RegisterTool call per tool.
func registerBuiltinTools(tools *dialogue.Registry, repos repository.RepositoryManager) {
	tools.RegisterTool(&dialogue.ToolDefinition{
		Name:        dialogue.ToolTransferToAgent,
		Description: "Transfer the call to a human agent in the given department.",
		Parameters:  dialogue.TransferToAgentSchema,
		Executor:    executeTransferToAgent,
	})
	tools.RegisterTool(&dialogue.ToolDefinition{
		Name:        dialogue.ToolScheduleCallback,
		Description: "Schedule a callback to the caller at a later time.",
		Parameters:  dialogue.ScheduleCallbackSchema,
		Executor:    executeScheduleCallback,
	})
	tools.RegisterTool(&dialogue.ToolDefinition{
		Name:        dialogue.ToolLookupCustomer,
		Description: "Look up a customer's account by ID.",
		Parameters:  dialogue.LookupCustomerSchema,
		Executor:    executeLookupCustomer,
	})
	tools.RegisterTool(&dialogue.ToolDefinition{
		Name:        dialogue.ToolGetAccountBalance,
		Description: "Get the current account balance for the caller on this call.",
		Parameters:  dialogue.GetAccountBalanceSchema,
		Executor:    executeGetAccountBalance,
	})
	tools.RegisterTool(&dialogue.ToolDefinition{
		Name:        dialogue.ToolCancelService,
		Description: "Cancel the caller's service.",
		Parameters:  dialogue.CancelServiceSchema,
		Executor:    executeCancelService,
	})
	tools.RegisterTool(&dialogue.ToolDefinition{
		Name:        dialogue.ToolUpdateContactInfo,
		Description: "Update the caller's contact information.",
		Parameters:  dialogue.UpdateContactInfoSchema,
		Executor:    executeUpdateContactInfo,
	})
}

type transferToAgentArgs struct {
	Department string `json:"department"`
	Priority   string `json:"priority"`
}

func executeTransferToAgent(argumentsJSON string) (string, error) {
	var args transferToAgentArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return "", fmt.Errorf("pipeline: transfer_to_agent: %w", err)
	}
	return fmt.Sprintf("Transfer to %s department requested at %s priority.", args.Department, args.Priority), nil
}

type scheduleCallbackArgs struct {
	Phone    string `json:"phone"`
	Datetime string `json:"datetime"`
	Reason   string `json:"reason"`
}

func executeScheduleCallback(argumentsJSON string) (string, error) {
	var args scheduleCallbackArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return "", fmt.Errorf("pipeline: schedule_callback: %w", err)
	}
	return fmt.Sprintf("Callback scheduled for %s at %s.", args.Phone, args.Datetime), nil
}

type lookupCustomerArgs struct {
	CustomerID string `json:"customer_id"`
}

func executeLookupCustomer(argumentsJSON string) (string, error) {
	var args lookupCustomerArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return "", fmt.Errorf("pipeline: lookup_customer: %w", err)
	}
	return fmt.Sprintf(`{"customer_id":%q,"found":true}`, args.CustomerID), nil
}

func executeGetAccountBalance(argumentsJSON string) (string, error) {
	return `{"balance":"unavailable","reason":"no billing system integrated"}`, nil
}

func executeCancelService(argumentsJSON string) (string, error) {
	return `{"status":"cancellation_requested"}`, nil
}

type updateContactInfoArgs struct {
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

func executeUpdateContactInfo(argumentsJSON string) (string, error) {
	var args updateContactInfoArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return "", fmt.Errorf("pipeline: update_contact_info: %w", err)
	}
	return "Contact information updated.", nil
}
