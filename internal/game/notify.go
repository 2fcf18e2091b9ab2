package game

type NotificationKind string

const (
	NoteYourTurn       NotificationKind = "YourTurn"
	NoteTurnAccepted   NotificationKind = "TurnAccepted"
	NoteGameCompleted  NotificationKind = "GameCompleted"
	NoteGameAbandoned  NotificationKind = "GameAbandoned"
	NoteActionRejected NotificationKind = "ActionRejected"
)

// Notification is one outbound message for one recipient. The engine emits
// these; the messaging layer owns formatting and delivery, and delivery
// failure never rolls back the state transition that produced the
// notification.
type Notification struct {
	To        string           `json:"to"`
	Kind      NotificationKind `json:"kind"`
	SessionID string           `json:"sessionId"`
	Context   []string         `json:"context,omitempty"`  // YourTurn: visible trailing words
	Echo      []string         `json:"echo,omitempty"`     // TurnAccepted: the submitter's own words
	FullText  string           `json:"fullText,omitempty"` // GameCompleted
	Credits   []string         `json:"credits,omitempty"`  // GameCompleted
	Reason    string           `json:"reason,omitempty"`   // ActionRejected: error kind
	Turn      int              `json:"turn,omitempty"`
	MaxTurns  int              `json:"maxTurns,omitempty"`
}

// Notifier is the outbound capability the engine calls, implemented by the
// messaging layer. Calls are fire-and-forget.
type Notifier interface {
	Notify(n Notification)
}
