package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
)

// Timer is a per-chat or per-message ephemeral timer duration in
// seconds. The zero value means the timer is disabled.
type Timer uint32

// TimerDisabled is the disabled ephemeral timer.
const TimerDisabled Timer = 0

// TimerFromSeconds converts a duration in seconds to a Timer; 0 maps
// to the disabled timer.
func TimerFromSeconds(seconds uint32) Timer {
	return Timer(seconds)
}

// Seconds returns the timer duration in seconds, 0 when disabled.
func (t Timer) Seconds() uint32 {
	return uint32(t)
}

// IsEnabled reports whether the timer is enabled.
func (t Timer) IsEnabled() bool {
	return t != TimerDisabled
}

// String formats the timer as the decimal duration, "0" when disabled.
func (t Timer) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// ParseTimer parses the decimal representation produced by String.
func ParseTimer(s string) (Timer, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return TimerDisabled, err
	}
	return Timer(v), nil
}

// Value implements driver.Valuer, storing the timer as a non-negative
// integer.
func (t Timer) Value() (driver.Value, error) {
	return int64(t), nil
}

// Scan implements sql.Scanner. Values outside [0, 1<<32) are rejected
// as out of range.
func (t *Timer) Scan(src interface{}) error {
	if src == nil {
		*t = TimerDisabled
		return nil
	}
	v, ok := src.(int64)
	if !ok {
		return fmt.Errorf("ephemeral timer: unsupported column type %T", src)
	}
	if v < 0 || v > int64(^uint32(0)) {
		return fmt.Errorf("ephemeral timer value out of range: %d", v)
	}
	*t = Timer(v)
	return nil
}
