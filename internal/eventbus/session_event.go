package eventbus

type SessionEventType string

const (
	SessionEventCreated   SessionEventType = "SessionCreated"
	SessionEventContinued SessionEventType = "SessionContinued"
	SessionEventDeleted   SessionEventType = "SessionDeleted"
	SessionEventRestored  SessionEventType = "SessionRestored"
	SessionEventShared    SessionEventType = "SessionShared"
	SessionEventUnshared  SessionEventType = "SessionUnshared"
)

type SessionEvent struct {
	Type       SessionEventType
	SessionID  string
	RoundCount int
}

type SessionEventHandler = Handler[SessionEvent]
type SessionEventBus = Bus[SessionEventType, SessionEvent]

func NewSessionEventBus() *SessionEventBus {
	return NewBus[SessionEventType, SessionEvent]()
}
