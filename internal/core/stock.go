package core

import (
	"fmt"

	"github.com/mixelka/chatmail/pkg/models"
)

// StockEphemeralTimerChanged returns the system message text for a
// timer changed to the given value by the given contact.
func StockEphemeralTimerChanged(timer models.Timer, fromID uint32) string {
	var base string
	switch {
	case !timer.IsEnabled():
		base = "Message deletion timer is disabled"
	case timer.Seconds() == 60:
		base = "Message deletion timer is set to 1 minute"
	case timer.Seconds() == 3600:
		base = "Message deletion timer is set to 1 hour"
	case timer.Seconds() == 86400:
		base = "Message deletion timer is set to 1 day"
	case timer.Seconds() == 604800:
		base = "Message deletion timer is set to 1 week"
	case timer.Seconds() == 2419200:
		base = "Message deletion timer is set to 4 weeks"
	default:
		base = fmt.Sprintf("Message deletion timer is set to %d s", timer.Seconds())
	}
	if fromID == models.ContactIDSelf {
		base += " by me"
	}
	return base + "."
}
