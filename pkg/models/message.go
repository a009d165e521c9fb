package models

// MsgID identifies a message within one account database.
type MsgID uint32

// MessageState describes the lifecycle position of a message.
type MessageState int

// Message states. Incoming states are 10 to 16, outgoing states 19
// and up. The values are stable, they are persisted in the msgs table.
const (
	StateUndefined    MessageState = 0
	StateInFresh      MessageState = 10
	StateInNoticed    MessageState = 13
	StateInSeen       MessageState = 16
	StateOutDraft     MessageState = 19
	StateOutPending   MessageState = 20
	StateOutFailed    MessageState = 24
	StateOutDelivered MessageState = 26
	StateOutMdnRcvd   MessageState = 28
)

// IsSeen reports whether the message left the unseen incoming states.
// The ephemeral timestamp is armed exactly at this transition.
func (s MessageState) IsSeen() bool {
	return s != StateInFresh && s != StateInNoticed && s != StateOutDraft
}

// SystemMessage tags a message with a special meaning, stored in the
// msgs.param column.
type SystemMessage int

const (
	SystemMessageNone SystemMessage = 0
	// SystemMessageEphemeralTimerChanged announces a new per-chat
	// ephemeral timer value to all chat members.
	SystemMessageEphemeralTimerChanged SystemMessage = 10
)

// Message represents a message row.
type Message struct {
	ID                 MsgID        `db:"id"`
	ChatID             ChatID       `db:"chat_id"`
	RfcMsgID           string       `db:"rfc724_mid"`
	ServerFolder       string       `db:"server_folder"`
	ServerUID          uint32       `db:"server_uid"`
	FromAddr           string       `db:"from_addr"`
	Subject            string       `db:"subject"`
	Text               string       `db:"txt"`
	State              MessageState `db:"state"`
	Timestamp          int64        `db:"timestamp"`
	EphemeralTimer     Timer        `db:"ephemeral_timer"`
	EphemeralTimestamp int64        `db:"ephemeral_timestamp"`
	Param              int          `db:"param"`
}
