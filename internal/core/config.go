package core

import (
	"context"
	"fmt"
	"strconv"
)

// ConfigKey names an entry of the per-account config table.
type ConfigKey string

// Per-account configuration keys.
const (
	ConfigAddr              ConfigKey = "addr"
	ConfigMailServer        ConfigKey = "mail_server"
	ConfigMailPort          ConfigKey = "mail_port"
	ConfigMailUser          ConfigKey = "mail_user"
	ConfigMailPw            ConfigKey = "mail_pw"
	ConfigSendServer        ConfigKey = "send_server"
	ConfigSendPort          ConfigKey = "send_port"
	ConfigSendUser          ConfigKey = "send_user"
	ConfigSendPw            ConfigKey = "send_pw"
	ConfigCertificateChecks ConfigKey = "imap_certificate_checks"

	ConfigInboxWatch   ConfigKey = "inbox_watch"
	ConfigMvboxWatch   ConfigKey = "mvbox_watch"
	ConfigSentboxWatch ConfigKey = "sentbox_watch"

	ConfigConfiguredInboxFolder   ConfigKey = "configured_inbox_folder"
	ConfigConfiguredMvboxFolder   ConfigKey = "configured_mvbox_folder"
	ConfigConfiguredSentboxFolder ConfigKey = "configured_sentbox_folder"

	ConfigDeleteDeviceAfter ConfigKey = "delete_device_after"
	ConfigDeleteServerAfter ConfigKey = "delete_server_after"

	ConfigLastHousekeeping ConfigKey = "last_housekeeping"

	// ConfigBackupTime is the unix timestamp of the last backup
	// export; ConfigLastBackupReminder tracks when housekeeping last
	// nagged about a missing one.
	ConfigBackupTime         ConfigKey = "backup_time"
	ConfigLastBackupReminder ConfigKey = "last_backup_reminder"
)

// Certificate check modes, stored in imap_certificate_checks.
const (
	CertificateChecksAutomatic          = "0"
	CertificateChecksStrict             = "1"
	CertificateChecksAcceptInvalidCerts = "3"
)

var configDefaults = map[ConfigKey]string{
	ConfigInboxWatch:        "1",
	ConfigMvboxWatch:        "1",
	ConfigSentboxWatch:      "1",
	ConfigCertificateChecks: CertificateChecksAutomatic,
}

// GetConfig returns the configured value or the built-in default. An
// unset key without default yields "".
func (c *Context) GetConfig(ctx context.Context, key ConfigKey) (string, error) {
	value, found, err := c.db.QueryString(ctx, "SELECT value FROM config WHERE keyname=?", string(key))
	if err != nil {
		return "", fmt.Errorf("failed to read config %s: %w", key, err)
	}
	if !found {
		return configDefaults[key], nil
	}
	return value, nil
}

// SetConfig stores a value; an empty value removes the key.
func (c *Context) SetConfig(ctx context.Context, key ConfigKey, value string) error {
	if value == "" {
		_, err := c.db.Execute(ctx, "DELETE FROM config WHERE keyname=?", string(key))
		return err
	}
	_, err := c.db.Execute(ctx,
		"INSERT INTO config (keyname, value) VALUES (?, ?) ON CONFLICT(keyname) DO UPDATE SET value=excluded.value",
		string(key), value)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// GetConfigBool interprets the value as a flag; "1" and "true" are
// enabled.
func (c *Context) GetConfigBool(ctx context.Context, key ConfigKey) bool {
	value, err := c.GetConfig(ctx, key)
	if err != nil {
		c.logger.Warn("failed to read config", "key", key, "error", err)
		return false
	}
	return value == "1" || value == "true"
}

// GetConfigInt64 interprets the value as an integer, 0 when unset or
// invalid.
func (c *Context) GetConfigInt64(ctx context.Context, key ConfigKey) int64 {
	value, err := c.GetConfig(ctx, key)
	if err != nil {
		c.logger.Warn("failed to read config", "key", key, "error", err)
		return 0
	}
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		c.logger.Warn("invalid numeric config", "key", key, "value", value)
		return 0
	}
	return n
}
