package recovery

import "fmt"

// ActionContext carries caller-supplied escalation inputs for action
// selection. It is an extension point: today only prior attempts
// influence the result, future inputs (elapsed time, failure streaks)
// slot in here without changing the Suggest signature.
type ActionContext struct {
	// PriorAttempts is how many times the failing operation has
	// already been retried. Any value above zero removes ActionRetry
	// from the suggestions.
	PriorAttempts int
}

// Advisor maps a classified fault to an ordered list of recovery
// actions and renders the user-facing message for it. Action tables
// and message templates are fixed at construction.
type Advisor struct {
	actions            map[ErrorCategory][]RecoveryAction
	templates          map[ErrorCategory]string
	retrylessTemplates map[ErrorCategory]string
}

// NewAdvisor creates an advisor with the built-in action tables and
// message templates.
func NewAdvisor() *Advisor {
	return &Advisor{
		actions: map[ErrorCategory][]RecoveryAction{
			CategoryNetwork: {ActionRetry, ActionUseFallback, ActionAbort},
			CategoryPermission: {
				ActionRequestPermissions, ActionSkipStep, ActionAbort,
			},
			// Critical failures are never retried.
			CategorySystemRequirements: {ActionAbort},
			CategoryConfiguration: {
				ActionManualIntervention, ActionUseFallback, ActionAbort,
			},
			CategoryUserInput:          {ActionRetry, ActionManualIntervention},
			CategoryServiceUnavailable: {ActionRetry, ActionUseFallback, ActionRollback, ActionAbort},
			CategoryUnknown:            {ActionManualIntervention, ActionAbort},
		},
		templates: map[ErrorCategory]string{
			CategoryNetwork:            "A network problem interrupted the installation: %s. Check your connection and retry the step.",
			CategoryPermission:         "The installer was denied access: %s. Grant the required permissions before continuing.",
			CategorySystemRequirements: "Your system does not meet the installation requirements: %s. The installation will stop; resolve the requirement and start again.",
			CategoryConfiguration:      "A configuration value is not usable: %s. Review the settings file and correct it.",
			CategoryUserInput:          "The value you entered was not accepted: %s. Enter it again.",
			CategoryServiceUnavailable: "A required service is not responding: %s. Start the service and retry the step.",
			CategoryUnknown:            "An unexpected problem occurred: %s. Check the installation log and resolve it manually.",
		},
		// Variants used when Retry has been trimmed from the advice,
		// so the closing hint never points at an action that is no
		// longer suggested.
		retrylessTemplates: map[ErrorCategory]string{
			CategoryNetwork:            "A network problem interrupted the installation: %s. Check your connection before continuing.",
			CategoryUserInput:          "The value you entered was not accepted: %s. Correct it before continuing.",
			CategoryServiceUnavailable: "A required service is not responding: %s. Start the service before continuing.",
		},
	}
}

// Suggest returns the ordered recovery actions for a classified fault,
// least destructive first. The result is never empty: a category with
// no table entry, or a table emptied by trimming, degrades to manual
// intervention. ActionRetry is trimmed at SeverityCritical and when
// the context reports prior attempts.
func (a *Advisor) Suggest(category ErrorCategory, severity ErrorSeverity, actx ActionContext) []RecoveryAction {
	base, ok := a.actions[category]
	if !ok {
		base = a.actions[CategoryUnknown]
	}

	dropRetry := severity >= SeverityCritical || actx.PriorAttempts > 0

	out := make([]RecoveryAction, 0, len(base))
	for _, action := range base {
		if dropRetry && action == ActionRetry {
			continue
		}
		out = append(out, action)
	}

	if len(out) == 0 {
		out = append(out, ActionManualIntervention)
	}
	return out
}

// UserMessage renders the category template with the raw fault text
// substituted. The rendering never includes internal type names or
// stack traces, and always closes with a hint matching the leading
// suggested action: when actions no longer contain Retry, the retry
// hint of the retry-first categories is replaced.
func (a *Advisor) UserMessage(category ErrorCategory, rawMessage string, actions []RecoveryAction) string {
	tmpl, ok := a.templates[category]
	if !ok {
		tmpl = a.templates[CategoryUnknown]
	}
	if !containsRetry(actions) {
		if alt, ok := a.retrylessTemplates[category]; ok {
			tmpl = alt
		}
	}
	if rawMessage == "" {
		rawMessage = "no further details available"
	}
	return fmt.Sprintf(tmpl, rawMessage)
}

func containsRetry(actions []RecoveryAction) bool {
	for _, action := range actions {
		if action == ActionRetry {
			return true
		}
	}
	return false
}
