package model

// EventType names a ledger transition that is announced to the parties.
type EventType string

const (
	EventApplicationHired    EventType = "application.hired"
	EventApplicationRejected EventType = "application.rejected"

	EventContractConfirmed EventType = "contract.confirmed"
	EventContractPaused    EventType = "contract.paused"
	EventContractResumed   EventType = "contract.resumed"
	EventContractCompleted EventType = "contract.completed"
	EventContractCancelled EventType = "contract.cancelled"

	EventMilestoneCreated   EventType = "milestone.created"
	EventMilestoneStarted   EventType = "milestone.started"
	EventMilestoneSubmitted EventType = "milestone.submitted"
	EventMilestoneApproved  EventType = "milestone.approved"
	EventMilestoneRejected  EventType = "milestone.rejected"
	EventMilestonePaid      EventType = "milestone.paid"

	EventTimeEntryStopped  EventType = "time_entry.stopped"
	EventTimeEntryApproved EventType = "time_entry.approved"
	EventTimeEntryRejected EventType = "time_entry.rejected"
	EventTimeEntryPaid     EventType = "time_entry.paid"

	EventPaymentPending         EventType = "payment.pending"
	EventPaymentCompleted       EventType = "payment.completed"
	EventPaymentFailed          EventType = "payment.failed"
	EventPaymentRefunded        EventType = "payment.refunded"
	EventPaymentRefundCandidate EventType = "payment.refund_candidate"
)

// Notification is a single best-effort message for one user.
type Notification struct {
	UserID    string    `json:"user_id"`
	EventType EventType `json:"event_type"`
	Payload   any       `json:"payload"`
}
