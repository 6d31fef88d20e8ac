// Package models contains the wire types exchanged between the panel and the
// node agent, and between the panel API and its own clients.
package models

import "encoding/json"

// Event is the name carried in the "event" field of a WebSocket message.
type Event string

// Inbound events sent by the node agent.
const (
	EventAuthSuccess      Event = "auth success"
	EventAuthError        Event = "auth_error"
	EventAuthErrorLegacy  Event = "auth error"
	EventTokenExpiring    Event = "token expiring"
	EventTokenExpired     Event = "token expired"
	EventConsoleOutput    Event = "console output"
	EventStats            Event = "stats"
	EventStatus           Event = "status"
	EventInstallStarted   Event = "install started"
	EventInstallOutput    Event = "install output"
	EventInstallCompleted Event = "install completed"
	EventBackupComplete   Event = "backup complete"
	EventTransferLogs     Event = "transfer logs"
	EventTransferStatus   Event = "transfer status"
	EventDaemonError      Event = "daemon error"
)

// Outbound events sent by the panel.
const (
	EventAuth        Event = "auth"
	EventSendCommand Event = "send command"
	EventSetState    Event = "set state"
	EventSendStats   Event = "send stats"
	EventSendLogs    Event = "send logs"
)

// Message is the {"event", "args"} envelope used in both directions on the
// node agent WebSocket.
type Message struct {
	// Event names the message kind
	Event Event `json:"event"`

	// Args holds the positional arguments, left undecoded until dispatch
	Args []json.RawMessage `json:"args"`
}

// NewMessage builds an outbound message, encoding each argument as JSON.
func NewMessage(event Event, args ...any) (Message, error) {
	msg := Message{Event: event, Args: make([]json.RawMessage, 0, len(args))}
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return Message{}, err
		}
		msg.Args = append(msg.Args, raw)
	}
	return msg, nil
}

// StringArg returns argument i as a string. Non-string JSON values are
// returned in their encoded form; a missing argument yields "".
func (m Message) StringArg(i int) string {
	if i < 0 || i >= len(m.Args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Args[i], &s); err == nil {
		return s
	}
	return string(m.Args[i])
}
