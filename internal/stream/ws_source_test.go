package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamServer answers fetch requests from a fixed list of events.
type fakeStreamServer struct {
	events      []wsEvent
	failWith    *wsError
	dropFirst   atomic.Bool // close the first connection without answering
	connections atomic.Int32
}

func (f *fakeStreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if f.connections.Add(1) == 1 && f.dropFirst.Load() {
		return
	}

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		resp := wsResponse{ID: req.ID}
		if f.failWith != nil {
			resp.Error = f.failWith
		} else {
			result := &fetchResult{Events: []wsEvent{}}
			for _, e := range f.events {
				if e.Offset > req.Params.After && len(result.Events) < req.Params.Limit {
					result.Events = append(result.Events, e)
				}
			}
			resp.Result = result
		}

		// A stale response first: the client must skip it.
		if err := conn.WriteJSON(wsResponse{ID: req.ID + 1000}); err != nil {
			return
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func startFakeServer(t *testing.T, f *fakeStreamServer) string {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testEvents() []wsEvent {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []wsEvent{
		{Payload: json.RawMessage(`{"type":"SetGasprice"}`), Offset: 1, Timestamp: ts},
		{Payload: json.RawMessage(`{"type":"SetGasprice"}`), Offset: 2, Timestamp: ts.Add(time.Second), Undo: true},
		{Payload: json.RawMessage(`{"type":"SetDensity"}`), Offset: 3, Timestamp: ts.Add(2 * time.Second)},
	}
}

func TestWSSource_Fetch(t *testing.T) {
	endpoint := startFakeServer(t, &fakeStreamServer{events: testEvents()})
	src := NewWSSource(endpoint, nil)
	defer src.Close()

	events, err := src.Fetch(context.Background(), "oracle", 0, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Offset)
	assert.JSONEq(t, `{"type":"SetGasprice"}`, string(events[0].Payload))
	assert.True(t, events[1].Undo)

	events, err = src.Fetch(context.Background(), "oracle", 2, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Offset)

	events, err = src.Fetch(context.Background(), "oracle", 3, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestWSSource_ServerError(t *testing.T) {
	endpoint := startFakeServer(t, &fakeStreamServer{failWith: &wsError{Code: 404, Message: "unknown stream"}})
	src := NewWSSource(endpoint, nil)
	defer src.Close()

	_, err := src.Fetch(context.Background(), "nope", 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stream")
}

func TestWSSource_ReconnectsAfterDrop(t *testing.T) {
	f := &fakeStreamServer{events: testEvents()}
	f.dropFirst.Store(true)
	src := NewWSSource(startFakeServer(t, f), nil)
	defer src.Close()

	_, err := src.Fetch(context.Background(), "oracle", 0, 10)
	require.Error(t, err)

	events, err := src.Fetch(context.Background(), "oracle", 0, 10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, int32(2), f.connections.Load())
}

func TestWSSource_DialError(t *testing.T) {
	src := NewWSSource("ws://127.0.0.1:1", &WSSourceConfig{
		HandshakeTimeout: time.Second,
		ReadTimeout:      time.Second,
		WriteTimeout:     time.Second,
	})
	_, err := src.Fetch(context.Background(), "oracle", 0, 10)
	assert.ErrorContains(t, err, "websocket dial")
}

func TestWSSource_Closed(t *testing.T) {
	src := NewWSSource("ws://127.0.0.1:1", nil)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	_, err := src.Fetch(context.Background(), "oracle", 0, 10)
	assert.Error(t, err)
}
