package enums

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
)

// Deletable reports whether a job in this status may be removed together with its recipients.
func (s JobStatus) Deletable() bool {
	switch s {
	case JobStatusQueued, JobStatusPaused, JobStatusCancelled, JobStatusFailed:
		return true
	default:
		return false
	}
}

func (s JobStatus) Finished() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusCancelled
}

type RecipientStatus string

const (
	RecipientStatusPending RecipientStatus = "pending"
	RecipientStatusSent    RecipientStatus = "sent"
	RecipientStatusFailed  RecipientStatus = "failed"
)
