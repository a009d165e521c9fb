package core

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mixelka/chatmail/internal/event"
	"github.com/mixelka/chatmail/pkg/models"
)

func testCtx() context.Context {
	return context.Background()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	dbfile := filepath.Join(t.TempDir(), "dc.db")
	c, err := New("test", dbfile, 1, DefaultTimeouts(), testLogger())
	if err != nil {
		t.Fatalf("failed to create context: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func createTestChat(t *testing.T, c *Context) models.ChatID {
	t.Helper()
	chatID, err := CreateChat(context.Background(), c, "alice", "alice@example.org")
	if err != nil {
		t.Fatalf("failed to create chat: %v", err)
	}
	return chatID
}

// insertTestMsg inserts a message row directly, bypassing the fetch
// pipeline.
func insertTestMsg(t *testing.T, c *Context, msg models.Message) models.MsgID {
	t.Helper()
	res, err := c.db.ExecContext(context.Background(),
		`INSERT INTO msgs (chat_id, rfc724_mid, server_folder, server_uid, from_addr, txt, state, timestamp, ephemeral_timer, ephemeral_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ChatID, msg.RfcMsgID, msg.ServerFolder, msg.ServerUID, msg.FromAddr,
		msg.Text, msg.State, msg.Timestamp, msg.EphemeralTimer, msg.EphemeralTimestamp)
	if err != nil {
		t.Fatalf("failed to insert message: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get message id: %v", err)
	}
	return models.MsgID(id)
}

// drainEvents collects everything currently queued on the emitter.
func drainEvents(c *Context) []event.Event {
	var out []event.Event
	for {
		ev, ok := c.Events().TryRecv()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func countEvents(events []event.Event, kind event.Kind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func waitOrFail(t *testing.T, done <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}
