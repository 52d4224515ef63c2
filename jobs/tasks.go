package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/motorcrm/motorcrm/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail renders and sends a templated email.
	TaskTypeSendEmail = "mail:send"
	// TaskBookingsRemind re-sends requests for lines providers have not answered.
	TaskBookingsRemind = "bookings:remind"
	// TaskMaintenanceCleanup prunes processed idempotency keys.
	TaskMaintenanceCleanup = "maintenance:cleanup"
)

// Triggerable lists the tasks operators may enqueue by hand.
var Triggerable = []string{TaskBookingsRemind, TaskMaintenanceCleanup}

// NewSendEmailTask wraps email in a mail:send task.
func NewSendEmailTask(email notify.Email) (*asynq.Task, error) {
	data, err := json.Marshal(email)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(8)), nil
}

// NewTask builds one of the payload-less maintenance tasks.
func NewTask(taskType string) (*asynq.Task, error) {
	for _, known := range Triggerable {
		if known == taskType {
			return asynq.NewTask(taskType, nil, asynq.MaxRetry(3)), nil
		}
	}
	return nil, fmt.Errorf("jobs: unknown task %q", taskType)
}
