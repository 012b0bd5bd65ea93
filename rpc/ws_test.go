package rpc

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"healthkey/core"
	"healthkey/core/events"
	"healthkey/native/healthkey"
)

func dialEvents(t *testing.T, h *harness, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws/events" + query
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: h.http.Client()})
	require.NoError(t, err)
	return conn
}

func readRecord(t *testing.T, conn *websocket.Conn) core.EventRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var rec core.EventRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func TestEventStreamBacklogThenLive(t *testing.T) {
	h := newHarness(t, 1000, Config{}, nil)

	ix, err := healthkey.InitializeUserProfileInstruction(h.user.addr, "ptr", "goal")
	require.NoError(t, err)
	_, err = h.send(h.user, ix)
	require.NoError(t, err)

	conn := dialEvents(t, h, "?type="+events.TypeProfileInitialized)
	backlog := readRecord(t, conn)
	require.Equal(t, events.TypeProfileInitialized, backlog.Event.Type)
	require.Equal(t, "goal", backlog.Event.Attributes["goal"])
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))

	conn = dialEvents(t, h, "?cursor="+backlog.Cursor+"&type="+events.TypeUserRewarded)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ix, err = healthkey.RewardUserInstruction(h.user.addr, h.user.addr, h.node.RewardMint(), 25)
	require.NoError(t, err)
	_, err = h.send(h.user, ix)
	require.NoError(t, err)

	live := readRecord(t, conn)
	require.Equal(t, events.TypeUserRewarded, live.Event.Type)
	require.Equal(t, "25", live.Event.Attributes["amount"])
	require.Equal(t, "true", live.Event.Attributes["accountCreated"])
	require.Greater(t, live.Sequence, backlog.Sequence)
}

func TestEventStreamRejectsBadCursor(t *testing.T) {
	h := newHarness(t, 10, Config{}, nil)
	conn := dialEvents(t, h, "?cursor=nope")
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}
