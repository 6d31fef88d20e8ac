package session

import (
	"encoding/json"
	"time"

	"evalgo.org/nodelink/models"
)

// Handlers receive decoded session events. Nil fields are skipped. Handlers
// run on the read goroutine; a slow handler delays later events.
type Handlers struct {
	ConsoleOutput func(line string)
	// Stats receives nil when the payload could not be parsed.
	Stats   func(stats *models.Stats)
	Latency func(rtt time.Duration)
	Status  func(status string)

	InstallStarted   func()
	InstallOutput    func(line string)
	InstallCompleted func()

	BackupComplete func(payload json.RawMessage)

	TransferLogs   func(line string)
	TransferStatus func(status string)

	TokenExpiring func()
	DaemonError   func(message string)
	StateChange   func(state State)

	// Message receives events with no dedicated handler.
	Message func(msg models.Message)
}
