package domain

// IntentKind enumerates the intents the AI classifier can return.
// It mirrors the subset of commands that make sense for free text,
// plus a query intent for task lookups.
type IntentKind int

const (
	IntentUnknown IntentKind = iota
	IntentAdd
	IntentRemind
	IntentMeet
	IntentComplete
	IntentDelete
	IntentList
	IntentQuery
)

func (k IntentKind) String() string {
	switch k {
	case IntentAdd:
		return "add_task"
	case IntentRemind:
		return "set_reminder"
	case IntentMeet:
		return "schedule_meeting"
	case IntentComplete:
		return "complete_task"
	case IntentDelete:
		return "delete_task"
	case IntentList:
		return "list_tasks"
	case IntentQuery:
		return "query_tasks"
	default:
		return "unknown"
	}
}

// ClassifiedIntent is the AI fallback classification of a message the
// deterministic parser could not recognize. Callers always receive a
// valid value; classification failures degrade to IntentUnknown.
type ClassifiedIntent struct {
	Kind       IntentKind
	Text       string // task description for add/remind/meet
	Search     string // search text for complete/delete/query
	TimeFilter string // optional: today | week | overdue
}
