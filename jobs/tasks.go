package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNewsletterWelcome sends the welcome mail after a subscription.
	TaskNewsletterWelcome = "newsletter:welcome"
	// TaskNewsletterStats publishes subscriber counts.
	TaskNewsletterStats = "newsletter:stats"
)

// WelcomeMaxRetry bounds SMTP redelivery attempts.
const WelcomeMaxRetry = 5

// WelcomePayload identifies the subscriber to greet.
type WelcomePayload struct {
	Email       string `json:"email"`
	Reactivated bool   `json:"reactivated"`
}

// NewWelcomeTask constructs the welcome mail task.
func NewWelcomeTask(payload WelcomePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNewsletterWelcome, data, asynq.Queue(QueueDefault), asynq.MaxRetry(WelcomeMaxRetry)), nil
}

// NewStatsTask constructs the subscriber stats task.
func NewStatsTask() *asynq.Task {
	return asynq.NewTask(TaskNewsletterStats, nil, asynq.Queue(QueueDefault))
}
