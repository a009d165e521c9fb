package core

import (
	"context"
	"fmt"
	"time"

	"github.com/mixelka/chatmail/pkg/models"
)

const (
	housekeepingInterval = time.Hour
	// With ephemeral timers and delete_device_after around, data
	// removed from the device is unrecoverable without a backup;
	// remind about one monthly.
	backupReminderInterval = 30 * 24 * time.Hour
)

// maybeRunHousekeeping runs the periodic maintenance pass at most
// once per housekeepingInterval. It posts time-based device warnings,
// repairs ephemeral timers that missed their arming and drives
// server-side deletion, one candidate at a time.
func maybeRunHousekeeping(ctx context.Context, c *Context) {
	now := time.Now().Unix()
	last := c.GetConfigInt64(ctx, ConfigLastHousekeeping)
	if now < last+int64(housekeepingInterval/time.Second) {
		return
	}
	if err := c.SetConfig(ctx, ConfigLastHousekeeping, fmt.Sprintf("%d", now)); err != nil {
		c.logger.Warn("failed to store housekeeping timestamp", "error", err)
		return
	}

	c.logger.Info("running housekeeping")

	maybeAddTimeBasedWarnings(ctx, c)

	if err := StartEphemeralTimers(ctx, c); err != nil {
		c.logger.Warn("failed to repair ephemeral timers", "error", err)
	}

	msgID, found, err := LoadImapDeletionMsgID(ctx, c)
	if err != nil {
		c.logger.Warn("failed to look up server deletion candidate", "error", err)
		return
	}
	if found {
		if err := addJob(ctx, c, models.ActionDeleteMsgOnImap, uint32(msgID), "", 0); err != nil {
			c.logger.Warn("failed to add deletion job", "msg_id", msgID, "error", err)
		}
	}
}

// maybeAddTimeBasedWarnings posts device messages for conditions that
// only develop with time. Currently that is a single reminder to
// create a backup when none was made for a month.
func maybeAddTimeBasedWarnings(ctx context.Context, c *Context) {
	now := time.Now().Unix()

	last := c.GetConfigInt64(ctx, ConfigBackupTime)
	if reminded := c.GetConfigInt64(ctx, ConfigLastBackupReminder); reminded > last {
		last = reminded
	}
	if last == 0 {
		// Fresh account; start the clock instead of warning right
		// away.
		if err := c.SetConfig(ctx, ConfigLastBackupReminder, fmt.Sprintf("%d", now)); err != nil {
			c.logger.Warn("failed to store reminder timestamp", "error", err)
		}
		return
	}
	if now < last+int64(backupReminderInterval/time.Second) {
		return
	}

	if err := c.SetConfig(ctx, ConfigLastBackupReminder, fmt.Sprintf("%d", now)); err != nil {
		c.logger.Warn("failed to store reminder timestamp", "error", err)
		return
	}
	const text = "Remember to create a backup of this account. Messages deleted from the device cannot be recovered without one."
	if _, err := AddDeviceMsg(ctx, c, text); err != nil {
		c.logger.Warn("failed to add device message", "error", err)
	}
}
