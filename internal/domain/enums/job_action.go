package enums

import "strings"

type JobAction string

const (
	JobActionCancel JobAction = "cancel"
	JobActionPause  JobAction = "pause"
	JobActionResume JobAction = "resume"
	JobActionDelete JobAction = "delete"
)

func ParseJobAction(raw string) (JobAction, bool) {
	action := JobAction(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case JobActionCancel, JobActionPause, JobActionResume, JobActionDelete:
		return action, true
	default:
		return "", false
	}
}

type BulkAction string

const (
	BulkActionCancelOld        BulkAction = "cancel_old"
	BulkActionCleanupCompleted BulkAction = "cleanup_completed"
	BulkActionPauseAllRunning  BulkAction = "pause_all_running"
)

func ParseBulkAction(raw string) (BulkAction, bool) {
	action := BulkAction(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case BulkActionCancelOld, BulkActionCleanupCompleted, BulkActionPauseAllRunning:
		return action, true
	default:
		return "", false
	}
}
