// Package tools implements the portmanteau MCP tools. Each tool takes an
// action plus the parameters that action needs and answers with a Result;
// failures are reported inside the Result, never as Go errors.
package tools

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// Action is one value of a tool's action enumeration. Granular names the
// standalone tool registered for the action when every tool is exposed.
type Action struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Granular    string `json:"granular_tool"`
}

// Result is the document every tool call returns.
type Result struct {
	Success          bool              `json:"success"`
	Action           string            `json:"action,omitempty"`
	Message          string            `json:"message,omitempty"`
	Data             any               `json:"data,omitempty"`
	Error            string            `json:"error,omitempty"`
	ErrorCode        string            `json:"error_code,omitempty"`
	AvailableActions map[string]string `json:"available_actions,omitempty"`
}

func ok(action, message string, data any) Result {
	return Result{Success: true, Action: action, Message: message, Data: data}
}

func fail(action string, err error) Result {
	return Result{
		Action:    action,
		Error:     err.Error(),
		ErrorCode: string(vmerr.CodeOf(err)),
	}
}

func required(param, action string) Result {
	return Result{
		Action:    action,
		Error:     fmt.Sprintf("%s is required for %s action", param, action),
		ErrorCode: string(vmerr.CodeValidation),
	}
}

func invalid(action, format string, args ...any) Result {
	return Result{
		Action:    action,
		Error:     fmt.Sprintf(format, args...),
		ErrorCode: string(vmerr.CodeValidation),
	}
}

func unavailable(action, what string) Result {
	return Result{
		Action:    action,
		Error:     what + " is not configured on this server",
		ErrorCode: string(vmerr.CodeConfiguration),
	}
}

func actionMap(actions []Action) map[string]string {
	m := make(map[string]string, len(actions))
	for _, a := range actions {
		m[a.Name] = a.Description
	}
	return m
}

func actionNames(actions []Action) []string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Name
	}
	return names
}

// checkAction returns a populated INVALID_ACTION result when action is not
// one of actions.
func checkAction(tool, action string, actions []Action) (Result, bool) {
	if slices.ContainsFunc(actions, func(a Action) bool { return a.Name == action }) {
		return Result{}, true
	}
	msg := fmt.Sprintf("Invalid action '%s' for %s. Available actions: %s", action, tool, strings.Join(actionNames(actions), ", "))
	if strings.TrimSpace(action) == "" {
		msg = fmt.Sprintf("action is required for %s. Available actions: %s", tool, strings.Join(actionNames(actions), ", "))
	}
	return Result{
		Action:           action,
		Error:            msg,
		ErrorCode:        string(vmerr.CodeInvalidAction),
		AvailableActions: actionMap(actions),
	}, false
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// unhandled is reached only when an action is listed without a case.
func unhandled(action string) Result {
	return Result{
		Action:    action,
		Error:     fmt.Sprintf("action %s has no handler", action),
		ErrorCode: string(vmerr.CodeInternal),
	}
}
