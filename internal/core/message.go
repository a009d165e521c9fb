package core

import (
	"context"
	"fmt"

	"github.com/mixelka/chatmail/pkg/models"
)

// GetMessage loads a message row.
func GetMessage(ctx context.Context, c *Context, msgID models.MsgID) (*models.Message, error) {
	var msg models.Message
	found, err := c.db.QueryRowOptional(ctx, &msg, "SELECT * FROM msgs WHERE id=?", msgID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no message with id %d", msgID)
	}
	return &msg, nil
}

// MarkSeenMsgs marks incoming messages as seen, arms their ephemeral
// timers and queues the server-side \Seen flag update.
func MarkSeenMsgs(ctx context.Context, c *Context, msgIDs []models.MsgID) error {
	for _, msgID := range msgIDs {
		n, err := c.db.Execute(ctx,
			"UPDATE msgs SET state=? WHERE id=? AND state IN (?, ?)",
			models.StateInSeen, msgID, models.StateInFresh, models.StateInNoticed)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if err := StartEphemeralTimer(ctx, c, msgID); err != nil {
			c.logger.Warn("failed to start ephemeral timer", "msg_id", msgID, "error", err)
		}
		if err := addJob(ctx, c, models.ActionMarkseenMsgOnImap, uint32(msgID), "", 0); err != nil {
			c.logger.Warn("failed to add markseen job", "msg_id", msgID, "error", err)
		}
	}
	return nil
}

// deleteMsgIfOrphaned removes the database row once the message is
// both in the trash chat and without server coordinates, leaving no
// trace of it.
func deleteMsgIfOrphaned(ctx context.Context, c *Context, msgID models.MsgID) error {
	_, err := c.db.Execute(ctx,
		"DELETE FROM msgs WHERE id=? AND chat_id=? AND server_uid=0",
		msgID, models.ChatIDTrash)
	return err
}
