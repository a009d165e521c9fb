package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mixelka/chatmail/pkg/models"
)

// CreateChat creates a chat for the given remote address and returns
// its ID. Real chat IDs always lie above the reserved range.
func CreateChat(ctx context.Context, c *Context, name, contactAddr string) (models.ChatID, error) {
	res, err := c.db.ExecContext(ctx,
		"INSERT INTO chats (name, contact_addr, created_at) VALUES (?, ?, ?)",
		name, contactAddr, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get chat id: %w", err)
	}
	return models.ChatID(id), nil
}

// getOrCreateChatByAddr finds the chat for a remote address, creating
// it on first contact.
func getOrCreateChatByAddr(ctx context.Context, c *Context, addr, name string) (models.ChatID, error) {
	id, found, err := c.db.QueryInt64(ctx,
		"SELECT id FROM chats WHERE contact_addr=? AND special=?", addr, models.ChatSpecialNone)
	if err != nil {
		return 0, err
	}
	if found {
		return models.ChatID(id), nil
	}
	if name == "" {
		name = addr
	}
	return CreateChat(ctx, c, name, addr)
}

// lookupChatBySpecial returns the chat carrying the given special
// marker, 0 when it does not exist.
func lookupChatBySpecial(ctx context.Context, c *Context, special int) models.ChatID {
	id, found, err := c.db.QueryInt64(ctx, "SELECT id FROM chats WHERE special=?", special)
	if err != nil || !found {
		return 0
	}
	return models.ChatID(id)
}

// GetChat loads a chat row.
func GetChat(ctx context.Context, c *Context, chatID models.ChatID) (*models.Chat, error) {
	var chat models.Chat
	found, err := c.db.QueryRowOptional(ctx, &chat, "SELECT * FROM chats WHERE id=?", chatID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no chat with id %d", chatID)
	}
	return &chat, nil
}

// SendMsg stores an outgoing message and queues its SMTP delivery.
// The per-chat ephemeral timer is copied onto the message so the
// header can be attached during composition.
func SendMsg(ctx context.Context, c *Context, chatID models.ChatID, msg *models.Message) (models.MsgID, error) {
	if c.IsClosed() {
		return 0, ErrClosed
	}
	if chatID.IsSpecial() {
		return 0, fmt.Errorf("cannot send to special chat %d", chatID)
	}

	timer, err := GetChatEphemeralTimer(ctx, c, chatID)
	if err != nil {
		return 0, err
	}

	selfAddr, err := c.GetConfig(ctx, ConfigAddr)
	if err != nil {
		return 0, err
	}

	rfcMsgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), "chatmail.invalid")
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO msgs (chat_id, rfc724_mid, from_addr, subject, txt, state, timestamp, ephemeral_timer, param)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chatID, rfcMsgID, selfAddr, msg.Subject, msg.Text,
		models.StateOutPending, time.Now().Unix(), timer, msg.Param)
	if err != nil {
		return 0, fmt.Errorf("failed to store message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get message id: %w", err)
	}
	msgID := models.MsgID(id)

	if err := addJob(ctx, c, models.ActionSendMsg, uint32(msgID), "", 0); err != nil {
		return 0, err
	}

	c.emitMsgsChanged(uint32(chatID), uint32(msgID))
	return msgID, nil
}

// SendTextMsg sends a plain text message to a chat.
func SendTextMsg(ctx context.Context, c *Context, chatID models.ChatID, text string) (models.MsgID, error) {
	return SendMsg(ctx, c, chatID, &models.Message{Text: text})
}

const deviceAddr = "device@localhost"

// AddDeviceMsg posts an informational message into the device chat,
// creating the chat on first use. Device messages never leave the
// device and are excluded from the delete_device_after window.
func AddDeviceMsg(ctx context.Context, c *Context, text string) (models.MsgID, error) {
	chatID := lookupChatBySpecial(ctx, c, models.ChatSpecialDevice)
	if chatID == 0 {
		var err error
		chatID, err = CreateChat(ctx, c, "Device messages", deviceAddr)
		if err != nil {
			return 0, err
		}
		if _, err := c.db.Execute(ctx, "UPDATE chats SET special=? WHERE id=?", models.ChatSpecialDevice, chatID); err != nil {
			return 0, err
		}
	}

	res, err := c.db.ExecContext(ctx,
		"INSERT INTO msgs (chat_id, from_addr, txt, state, timestamp) VALUES (?, ?, ?, ?, ?)",
		chatID, deviceAddr, text, models.StateInFresh, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to store device message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get message id: %w", err)
	}

	c.emitMsgsChanged(uint32(chatID), uint32(id))
	return models.MsgID(id), nil
}
