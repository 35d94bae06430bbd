package models

// LogEntry is one audit record. It is immutable once written.
type LogEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// Entity converts l to its stored form in the logs collection.
func (l LogEntry) Entity() Entity {
	e := Entity{
		FieldID:     l.ID,
		"timestamp": l.Timestamp,
		"actor":     l.Actor,
		"action":    l.Action,
		"details":   l.Details,
	}
	if l.IPAddress != "" {
		e["ipAddress"] = l.IPAddress
	}
	return e
}

// LogFromEntity reads a stored log record. Records written by older
// versions name the actor "user".
func LogFromEntity(e Entity) LogEntry {
	actor := e.Text("actor")
	if actor == "" {
		actor = e.Text("user")
	}
	return LogEntry{
		ID:        e.ID(),
		Timestamp: e.Text("timestamp"),
		Actor:     actor,
		Action:    e.Text("action"),
		Details:   e.Text("details"),
		IPAddress: e.Text("ipAddress"),
	}
}

// LogFilter narrows an audit log query. Zero values match everything.
type LogFilter struct {
	Actor  string
	Action string
	Limit  int
}
