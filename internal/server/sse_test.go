package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localgpt/localgpt/internal/event"
	"github.com/localgpt/localgpt/internal/session"
)

// mockResponseWriter counts flushes.
type mockResponseWriter struct {
	*httptest.ResponseRecorder
	flushed int
}

func (m *mockResponseWriter) Flush() {
	m.flushed++
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

type noFlushWriter struct{}

func (n *noFlushWriter) Header() http.Header       { return http.Header{} }
func (n *noFlushWriter) Write([]byte) (int, error) { return 0, nil }
func (n *noFlushWriter) WriteHeader(int)           {}

func TestNewSSEWriter_NoFlusher(t *testing.T) {
	_, err := newSSEWriter(&noFlushWriter{})
	assert.Error(t, err)
}

func TestSSEWriter_WriteEvent(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.writeEvent("turn.completed", []byte(`{"kind":"dialogue"}`)))

	lines := strings.Split(w.Body.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "event: turn.completed", lines[0])
	assert.Equal(t, `data: {"kind":"dialogue"}`, lines[1])
	assert.Equal(t, "", lines[2])
	assert.Positive(t, w.flushed)
}

func TestSSEWriter_WriteHeartbeat(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.writeHeartbeat())
	assert.Equal(t, ": heartbeat\n\n", w.Body.String())
	assert.Positive(t, w.flushed)
}

func TestEvents_StreamsBusEvents(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	srv := &Server{bus: bus, sessions: session.NewService(session.Config{Bus: bus})}
	ts := httptest.NewServer(srv.AdminHandler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	assert.Equal(t, "event: connected", scanner.Text())

	bus.Publish(event.Event{
		Type: event.TurnCompleted,
		Data: event.TurnData{SessionID: "s1", Kind: "dialogue", Messages: 2},
	})

	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: "+string(event.TurnCompleted) {
			eventLine = line
			require.True(t, scanner.Scan())
			dataLine = scanner.Text()
			break
		}
	}
	require.NotEmpty(t, eventLine)

	var decoded struct {
		Type event.EventType `json:"type"`
		Data event.TurnData  `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &decoded))
	assert.Equal(t, event.TurnCompleted, decoded.Type)
	assert.Equal(t, "s1", decoded.Data.SessionID)
	assert.Equal(t, 2, decoded.Data.Messages)
}
