package models

// JobThread assigns a job to the connection loop that executes it.
type JobThread int

const (
	// ThreadImap jobs run on the inbox connection.
	ThreadImap JobThread = 100
	// ThreadSmtp jobs run on the SMTP connection.
	ThreadSmtp JobThread = 5000
)

// JobAction identifies what a queued job does.
type JobAction int

const (
	// ActionDeleteMsgOnImap removes a message from the server and
	// clears its server coordinates.
	ActionDeleteMsgOnImap JobAction = 110
	// ActionMarkseenMsgOnImap sets the \Seen flag on the server copy.
	ActionMarkseenMsgOnImap JobAction = 130
	// ActionSendMsg delivers a pending outgoing message via SMTP.
	ActionSendMsg JobAction = 5901
)

// Thread returns the connection loop responsible for the action.
func (a JobAction) Thread() JobThread {
	if a >= 5000 {
		return ThreadSmtp
	}
	return ThreadImap
}

// Job represents a row of the jobs table.
type Job struct {
	ID               uint32    `db:"id"`
	AddedTimestamp   int64     `db:"added_timestamp"`
	Thread           JobThread `db:"thread"`
	Action           JobAction `db:"action"`
	ForeignID        uint32    `db:"foreign_id"`
	Param            string    `db:"param"`
	DesiredTimestamp int64     `db:"desired_timestamp"`
	Tries            int       `db:"tries"`
}
