package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mixelka/chatmail/internal/parser"
	"github.com/mixelka/chatmail/pkg/models"
	gomail "gopkg.in/gomail.v2"
)

// Jobs that keep failing are retried with a growing delay before
// being dropped.
const maxJobTries = 3

// addJob queues a job and wakes the loop responsible for it.
func addJob(ctx context.Context, c *Context, action models.JobAction, foreignID uint32, param string, delay time.Duration) error {
	now := time.Now()
	_, err := c.db.Execute(ctx,
		`INSERT INTO jobs (added_timestamp, thread, action, foreign_id, param, desired_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		now.Unix(), action.Thread(), action, foreignID, param, now.Add(delay).Unix())
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	info := InterruptInfo{MsgID: models.MsgID(foreignID)}
	if action.Thread() == models.ThreadSmtp {
		c.InterruptSmtp(info)
	} else {
		c.InterruptInbox(info)
	}
	return nil
}

// loadNextJob returns the next due job of the thread, or nil. An
// interrupt carrying a message hint is served first; a network probe
// also loads jobs whose retry time has not come yet.
func loadNextJob(ctx context.Context, c *Context, thread models.JobThread, info InterruptInfo) *models.Job {
	var job models.Job

	if info.MsgID != 0 {
		found, err := c.db.QueryRowOptional(ctx, &job,
			`SELECT * FROM jobs WHERE thread=? AND foreign_id=? ORDER BY added_timestamp LIMIT 1`,
			thread, info.MsgID)
		if err != nil {
			c.logger.Error("failed to load job", "error", err)
			return nil
		}
		if found {
			return &job
		}
	}

	query := `SELECT * FROM jobs WHERE thread=? AND desired_timestamp<=? ORDER BY added_timestamp LIMIT 1`
	deadline := time.Now().Unix()
	if info.ProbeNetwork {
		// The network is probably back; retry deferred jobs now.
		deadline = math.MaxInt64
	}
	found, err := c.db.QueryRowOptional(ctx, &job, query, thread, deadline)
	if err != nil {
		c.logger.Error("failed to load job", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	return &job
}

func jobDone(ctx context.Context, c *Context, job *models.Job) {
	if _, err := c.db.Execute(ctx, "DELETE FROM jobs WHERE id=?", job.ID); err != nil {
		c.logger.Warn("failed to delete job", "job_id", job.ID, "error", err)
	}
}

// jobFailed retries the job later or gives up after maxJobTries.
// Returns whether the job was dropped for good.
func jobFailed(ctx context.Context, c *Context, job *models.Job, cause error) bool {
	tries := job.Tries + 1
	if tries >= maxJobTries {
		c.logger.Error("job failed permanently", "job_id", job.ID, "action", job.Action, "error", cause)
		jobDone(ctx, c, job)
		return true
	}
	delay := time.Duration(tries*tries) * time.Minute
	c.logger.Warn("job failed, will retry", "job_id", job.ID, "action", job.Action, "tries", tries, "error", cause)
	_, err := c.db.Execute(ctx,
		"UPDATE jobs SET tries=?, desired_timestamp=? WHERE id=?",
		tries, time.Now().Add(delay).Unix(), job.ID)
	if err != nil {
		c.logger.Warn("failed to reschedule job", "job_id", job.ID, "error", err)
	}
	return false
}

// performImapJob executes one job on the inbox connection.
func performImapJob(ctx context.Context, c *Context, conn *Imap, job *models.Job) {
	var err error
	switch job.Action {
	case models.ActionDeleteMsgOnImap:
		err = deleteMsgOnImap(ctx, c, conn, models.MsgID(job.ForeignID))
	case models.ActionMarkseenMsgOnImap:
		err = markseenMsgOnImap(ctx, c, conn, models.MsgID(job.ForeignID))
	default:
		c.logger.Warn("unknown imap job action", "action", job.Action)
	}
	if err != nil {
		jobFailed(ctx, c, job, err)
		return
	}
	jobDone(ctx, c, job)
}

// performSmtpJob executes one job on the SMTP connection.
func performSmtpJob(ctx context.Context, c *Context, conn *Smtp, job *models.Job) {
	var err error
	switch job.Action {
	case models.ActionSendMsg:
		err = sendMsgToSmtp(ctx, c, conn, models.MsgID(job.ForeignID))
	default:
		c.logger.Warn("unknown smtp job action", "action", job.Action)
	}
	if err != nil {
		conn.triggerReconnect()
		if jobFailed(ctx, c, job, err) {
			msgID := uint32(job.ForeignID)
			if _, uerr := c.db.Execute(ctx, "UPDATE msgs SET state=? WHERE id=?", models.StateOutFailed, msgID); uerr == nil {
				c.emitMsgsChanged(0, msgID)
			}
		}
		return
	}
	jobDone(ctx, c, job)
}

// sendMsgToSmtp composes and delivers one pending message. The
// per-chat ephemeral timer travels in a header so every member
// converges on the same setting.
func sendMsgToSmtp(ctx context.Context, c *Context, conn *Smtp, msgID models.MsgID) error {
	msg, err := GetMessage(ctx, c, msgID)
	if err != nil {
		return err
	}
	if msg.State != models.StateOutPending {
		// Already delivered or failed, nothing to do.
		return nil
	}

	chat, err := GetChat(ctx, c, msg.ChatID)
	if err != nil {
		return err
	}
	if err := conn.connectConfigured(ctx, c); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", conn.fromAddr)
	m.SetHeader("To", chat.ContactAddr)
	if msg.Subject != "" {
		m.SetHeader("Subject", msg.Subject)
	}
	if msg.RfcMsgID != "" {
		m.SetHeader("Message-ID", msg.RfcMsgID)
	}
	m.SetHeader(parser.EphemeralTimerHeader, msg.EphemeralTimer.String())
	m.SetBody("text/plain", msg.Text)

	if err := conn.sender.Send(m); err != nil {
		return err
	}

	if _, err := c.db.Execute(ctx, "UPDATE msgs SET state=? WHERE id=?", models.StateOutDelivered, msgID); err != nil {
		return err
	}
	c.emitMsgsChanged(uint32(msg.ChatID), uint32(msgID))
	return nil
}

// deleteMsgOnImap flags the server copy deleted and clears the stored
// server coordinates. Rows already moved to trash disappear entirely
// once the coordinates are gone.
func deleteMsgOnImap(ctx context.Context, c *Context, conn *Imap, msgID models.MsgID) error {
	msg, err := GetMessage(ctx, c, msgID)
	if err != nil {
		return err
	}

	if msg.ServerUID != 0 && msg.ServerFolder != "" {
		if err := conn.connectConfigured(ctx, c); err != nil {
			return err
		}
		if err := conn.selectFolder(ctx, c, msg.ServerFolder); err != nil {
			return err
		}
		if err := conn.session.MarkDeleted(msg.ServerUID); err != nil {
			conn.triggerReconnect()
			return err
		}
		conn.needsExpunge = true
	}

	if _, err := c.db.Execute(ctx, "UPDATE msgs SET server_folder='', server_uid=0 WHERE id=?", msgID); err != nil {
		return err
	}
	return deleteMsgIfOrphaned(ctx, c, msgID)
}

// markseenMsgOnImap sets the \Seen flag on the server copy.
func markseenMsgOnImap(ctx context.Context, c *Context, conn *Imap, msgID models.MsgID) error {
	msg, err := GetMessage(ctx, c, msgID)
	if err != nil {
		return err
	}
	if msg.ServerUID == 0 || msg.ServerFolder == "" {
		return nil
	}
	if err := conn.connectConfigured(ctx, c); err != nil {
		return err
	}
	if err := conn.selectFolder(ctx, c, msg.ServerFolder); err != nil {
		return err
	}
	if err := conn.session.MarkSeen(msg.ServerUID); err != nil {
		conn.triggerReconnect()
		return err
	}
	return nil
}
