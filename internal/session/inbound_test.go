package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/nodelink/models"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		frame string
		want  inbound
	}{
		{`{"event":"auth success"}`, authSuccess{}},
		{`{"event":"auth_error"}`, authFailed{}},
		{`{"event":"auth error"}`, authFailed{}},
		{`{"event":"token expiring"}`, tokenExpiring{}},
		{`{"event":"token expired"}`, tokenExpired{}},
		{`{"event":"console output","args":["hello"]}`, consoleOutput{line: "hello"}},
		{`{"event":"status","args":["running"]}`, statusUpdate{status: "running"}},
		{`{"event":"install started"}`, installStarted{}},
		{`{"event":"install output","args":["step 1"]}`, installOutput{line: "step 1"}},
		{`{"event":"install completed"}`, installCompleted{}},
		{`{"event":"transfer logs","args":["copying"]}`, transferLogs{line: "copying"}},
		{`{"event":"transfer status","args":["completed"]}`, transferStatus{status: "completed"}},
		{`{"event":"daemon error","args":["disk full"]}`, daemonError{message: "disk full"}},
		{`{"event":"console output"}`, consoleOutput{line: ""}},
	}
	for _, tt := range tests {
		got, err := decode([]byte(tt.frame))
		require.NoError(t, err, tt.frame)
		assert.Equal(t, tt.want, got, tt.frame)
	}
}

func TestDecodeBackupComplete(t *testing.T) {
	got, err := decode([]byte(`{"event":"backup complete","args":[{"uuid":"b1","is_successful":true}]}`))
	require.NoError(t, err)

	bc, ok := got.(backupComplete)
	require.True(t, ok)
	assert.JSONEq(t, `{"uuid":"b1","is_successful":true}`, string(bc.payload))
}

func TestDecodeStats(t *testing.T) {
	tests := map[string]struct {
		frame string
		want  *models.Stats
	}{
		"object": {
			frame: `{"event":"stats","args":[{"state":"running","memory_bytes":1024,"network":{"rx_bytes":5,"tx_bytes":6}}]}`,
			want:  &models.Stats{State: "running", MemoryBytes: 1024, Network: &models.NetworkStats{RxBytes: 5, TxBytes: 6}},
		},
		"encoded string": {
			frame: `{"event":"stats","args":["{\"state\":\"offline\",\"disk_bytes\":7}"]}`,
			want:  &models.Stats{State: "offline", DiskBytes: 7},
		},
		"garbage string": {frame: `{"event":"stats","args":["not stats"]}`},
		"number":         {frame: `{"event":"stats","args":[3]}`},
		"no args":        {frame: `{"event":"stats"}`},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, statsUpdate{stats: tt.want}, got)
		})
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	got, err := decode([]byte(`{"event":"mystery","args":[1,"two"]}`))
	require.NoError(t, err)

	u, ok := got.(unrecognized)
	require.True(t, ok)
	assert.Equal(t, models.Event("mystery"), u.msg.Event)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`"two"`)}, u.msg.Args)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := decode([]byte(`not json`))
	assert.Error(t, err)
}
