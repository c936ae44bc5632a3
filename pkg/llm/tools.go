package llm

// toolParam describes one parameter of an action's argument schema.
type toolParam struct {
	Name        string
	Description string
	Enum        []string
}

// toolSpec is a provider-neutral action declaration. Each adapter converts
// these into its own function-calling format.
type toolSpec struct {
	Name        string
	Description string
	Params      []toolParam
	Required    []string
}

var actionTools = []toolSpec{
	{
		Name:        ActionAnswerFAQ,
		Description: "Answer frequently asked questions about office hours, location, services, etc.",
		Params: []toolParam{
			{Name: "response", Description: "The answer to provide to the caller"},
			{Name: "category", Description: "The category of the FAQ",
				Enum: []string{"hours", "location", "services", "insurance", "general"}},
		},
		Required: []string{"response"},
	},
	{
		Name:        ActionScheduleAppointment,
		Description: "Schedule, reschedule, or check appointment availability",
		Params: []toolParam{
			{Name: "response", Description: "What to say to the caller"},
			{Name: "intent", Description: "The scheduling intent",
				Enum: []string{"check_availability", "propose_slot", "confirm_booking", "cancel"}},
			{Name: "patient_name", Description: "Patient's name (if provided)"},
			{Name: "preferred_date", Description: "Preferred date in YYYY-MM-DD format (if mentioned)"},
			{Name: "preferred_time", Description: "Preferred time (morning/afternoon/specific time)"},
			{Name: "appointment_type", Description: "Type of appointment (checkup, consultation, etc.)"},
		},
		Required: []string{"response", "intent"},
	},
	{
		Name:        ActionTakeMessage,
		Description: "Take a message from the caller for callback",
		Params: []toolParam{
			{Name: "response", Description: "What to say to the caller"},
			{Name: "caller_name", Description: "Caller's name"},
			{Name: "callback_phone", Description: "Phone number for callback"},
			{Name: "message_summary", Description: "Brief summary of the message/reason for call"},
			{Name: "urgency", Description: "Urgency level of the message",
				Enum: []string{"low", "normal", "high"}},
		},
		Required: []string{"response", "message_summary"},
	},
	{
		Name:        ActionRouteToHuman,
		Description: "Transfer the call to a human agent or take details for callback",
		Params: []toolParam{
			{Name: "response", Description: "What to say before transferring"},
			{Name: "reason", Description: "Reason for human transfer"},
			{Name: "department", Description: "Which department to route to",
				Enum: []string{"general", "medical", "billing", "scheduling"}},
		},
		Required: []string{"response", "reason"},
	},
}

// fallbackResponse wraps a plain-text reply as an answer_faq action, used
// when the model replies without calling a function.
func fallbackResponse(text string) *Response {
	return &Response{
		Text:   text,
		Action: ActionAnswerFAQ,
		ActionArgs: map[string]any{
			"response": text,
			"category": "general",
		},
	}
}
