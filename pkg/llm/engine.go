// Package llm generates receptionist responses with structured actions.
package llm

import "context"

// Actions the model can select. Every response carries exactly one.
const (
	ActionAnswerFAQ           = "answer_faq"
	ActionScheduleAppointment = "schedule_appointment"
	ActionTakeMessage         = "take_message"
	ActionRouteToHuman        = "route_to_human"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn presented to the model.
type Message struct {
	Role    string
	Content string
}

// Response is the model's reply: the text to speak plus the action it chose
// and that action's arguments.
type Response struct {
	Text       string
	Action     string
	ActionArgs map[string]any
}

// ResponseEngine produces a response for the conversation so far.
type ResponseEngine interface {
	Generate(ctx context.Context, messages []Message, systemPrompt string) (*Response, error)
}

// KnownAction reports whether name is one of the defined actions.
func KnownAction(name string) bool {
	switch name {
	case ActionAnswerFAQ, ActionScheduleAppointment, ActionTakeMessage, ActionRouteToHuman:
		return true
	}
	return false
}
