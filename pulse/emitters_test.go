package pulse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/exportsync/errors"
)

var (
	_ ProgressEmitter = (*CLIEmitter)(nil)
	_ ProgressEmitter = (*JSONEmitter)(nil)
	_ ProgressEmitter = NopEmitter{}
)

func TestJSONEmitter_Events(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONEmitterTo(&buf)
	fixed := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	e.EmitStage("sync", "50 candidates in 1 batch")
	e.EmitProgress(10, map[string]interface{}{"total": 50, "success": 8})
	e.EmitError("upload", errors.New("HTTP 503"))
	e.EmitInfo("batch 1/1 done")
	e.EmitComplete(map[string]interface{}{"success": 49})

	var events []ProgressEvent
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var ev ProgressEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 5)

	types := []string{}
	for _, ev := range events {
		types = append(types, ev.Type)
		assert.True(t, ev.Timestamp.Equal(fixed))
	}
	assert.Equal(t, []string{"stage", "progress", "error", "info", "complete"}, types)

	assert.Equal(t, float64(10), events[1].Data["count"])
	assert.Equal(t, float64(50), events[1].Data["total"])
	assert.Equal(t, "HTTP 503", events[2].Data["error"])
	assert.Equal(t, "upload", events[2].Data["stage"])
}

func TestCLIEmitter_DoesNotPanic(t *testing.T) {
	e := NewCLIEmitter(1)
	e.EmitStage("sweep", "3 files")
	e.EmitProgress(2, map[string]interface{}{"total": 3, "success": 1, "failed": 1, "skipped": 0})
	e.EmitProgress(2, nil)
	e.EmitError("upload", errors.New("boom"))
	e.EmitInfo("hello")
	e.EmitComplete(map[string]interface{}{"total": 3, "errors": []string{"a.xlsx (A)"}})
}
