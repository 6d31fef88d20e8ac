package session

import (
	"encoding/json"
	"fmt"

	"evalgo.org/nodelink/models"
)

// inbound is the closed set of messages the daemon sends. Frames are decoded
// once, here, and dispatched by type.
type inbound interface {
	isInbound()
}

type (
	authSuccess   struct{}
	authFailed    struct{}
	tokenExpiring struct{}
	tokenExpired  struct{}

	consoleOutput struct{ line string }
	statsUpdate   struct{ stats *models.Stats }
	statusUpdate  struct{ status string }

	installStarted   struct{}
	installOutput    struct{ line string }
	installCompleted struct{}

	backupComplete struct{ payload json.RawMessage }

	transferLogs   struct{ line string }
	transferStatus struct{ status string }

	daemonError struct{ message string }

	unrecognized struct{ msg models.Message }
)

func (authSuccess) isInbound()      {}
func (authFailed) isInbound()       {}
func (tokenExpiring) isInbound()    {}
func (tokenExpired) isInbound()     {}
func (consoleOutput) isInbound()    {}
func (statsUpdate) isInbound()      {}
func (statusUpdate) isInbound()     {}
func (installStarted) isInbound()   {}
func (installOutput) isInbound()    {}
func (installCompleted) isInbound() {}
func (backupComplete) isInbound()   {}
func (transferLogs) isInbound()     {}
func (transferStatus) isInbound()   {}
func (daemonError) isInbound()      {}
func (unrecognized) isInbound()     {}

// decode parses one frame. Only a frame that is not a JSON envelope is an
// error; payload problems inside a known event fail soft.
func decode(data []byte) (inbound, error) {
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch msg.Event {
	case models.EventAuthSuccess:
		return authSuccess{}, nil
	case models.EventAuthError, models.EventAuthErrorLegacy:
		return authFailed{}, nil
	case models.EventTokenExpiring:
		return tokenExpiring{}, nil
	case models.EventTokenExpired:
		return tokenExpired{}, nil
	case models.EventConsoleOutput:
		return consoleOutput{line: msg.StringArg(0)}, nil
	case models.EventStats:
		return statsUpdate{stats: parseStats(msg)}, nil
	case models.EventStatus:
		return statusUpdate{status: msg.StringArg(0)}, nil
	case models.EventInstallStarted:
		return installStarted{}, nil
	case models.EventInstallOutput:
		return installOutput{line: msg.StringArg(0)}, nil
	case models.EventInstallCompleted:
		return installCompleted{}, nil
	case models.EventBackupComplete:
		var payload json.RawMessage
		if len(msg.Args) > 0 {
			payload = msg.Args[0]
		}
		return backupComplete{payload: payload}, nil
	case models.EventTransferLogs:
		return transferLogs{line: msg.StringArg(0)}, nil
	case models.EventTransferStatus:
		return transferStatus{status: msg.StringArg(0)}, nil
	case models.EventDaemonError:
		return daemonError{message: msg.StringArg(0)}, nil
	default:
		return unrecognized{msg: msg}, nil
	}
}

// parseStats accepts the payload either as a JSON-encoded string or as an
// object. Anything else yields nil.
func parseStats(msg models.Message) *models.Stats {
	if len(msg.Args) == 0 {
		return nil
	}
	raw := []byte(msg.Args[0])

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = []byte(encoded)
	}

	var stats models.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil
	}
	return &stats
}
