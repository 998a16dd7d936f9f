package rule

import "slices"

// ActionType identifies the effect a matched rule produces.
type ActionType string

const (
	ActionApprove         ActionType = "approve"
	ActionReject          ActionType = "reject"
	ActionEscalate        ActionType = "escalate"
	ActionNotify          ActionType = "notify"
	ActionSetValue        ActionType = "setValue"
	ActionCalculate       ActionType = "calculate"
	ActionRequireDocument ActionType = "requireDocument"
	ActionSetDeadline     ActionType = "setDeadline"
	ActionSetReminder     ActionType = "setReminder"
	ActionCustom          ActionType = "custom"
)

// ActionTypes lists every known action type.
var ActionTypes = []ActionType{
	ActionApprove, ActionReject, ActionEscalate, ActionNotify, ActionSetValue,
	ActionCalculate, ActionRequireDocument, ActionSetDeadline, ActionSetReminder, ActionCustom,
}

// Known reports whether t is a supported action type.
func (t ActionType) Known() bool {
	return slices.Contains(ActionTypes, t)
}

// Action is the effect produced when a rule matches. Which fields are
// meaningful depends on Type.
type Action struct {
	Type                ActionType `json:"type"`
	Target              string     `json:"target,omitempty"`
	Value               *Value     `json:"value,omitempty"`
	Formula             string     `json:"formula,omitempty"`
	Message             string     `json:"message,omitempty"`
	Recipients          []string   `json:"recipients,omitempty"`
	DocumentTypes       []string   `json:"documentTypes,omitempty"`
	DeadlineDays        int        `json:"deadlineDays,omitempty"`
	ReminderOffsetsDays []int      `json:"reminderOffsetsDays,omitempty"`
	CustomFunctionName  string     `json:"customFunctionName,omitempty"`
}

// Clone deep-copies the action.
func (a Action) Clone() Action {
	out := a
	if a.Value != nil {
		v := a.Value.Clone()
		out.Value = &v
	}
	out.Recipients = slices.Clone(a.Recipients)
	out.DocumentTypes = slices.Clone(a.DocumentTypes)
	out.ReminderOffsetsDays = slices.Clone(a.ReminderOffsetsDays)
	return out
}

// CloneActions deep-copies a list of actions.
func CloneActions(as []Action) []Action {
	if as == nil {
		return nil
	}
	out := make([]Action, len(as))
	for i, a := range as {
		out[i] = a.Clone()
	}
	return out
}
