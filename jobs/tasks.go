package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReturnReminders mails assignees whose assets are due or overdue.
	TaskReturnReminders = "assets:return_reminders"
)

// ReturnRemindersPayload narrows a reminder run. A zero payload reminds
// everybody with a due asset.
type ReturnRemindersPayload struct {
	UserID int64 `json:"user_id,omitempty"`
}

// NewReturnRemindersTask constructs an Asynq task.
func NewReturnRemindersTask(payload ReturnRemindersPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReturnReminders, data), nil
}
