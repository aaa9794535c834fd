package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/alshekh/portfolio/internal/jobs"
	"github.com/alshekh/portfolio/internal/shared"
)

const (
	welcomeSubject     = "Welcome to the newsletter"
	welcomeBackSubject = "Welcome back to the newsletter"
)

// WelcomeJob mails new and returning subscribers.
type WelcomeJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewWelcomeJob wires the welcome mail handler.
func NewWelcomeJob(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *WelcomeJob {
	return &WelcomeJob{Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskNewsletterWelcome tasks.
func (j *WelcomeJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Mailer == nil {
		return errors.New("welcome: handler not configured")
	}
	var payload WelcomePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Email == "" {
		j.logger().Warn("dropping undecodable welcome task")
		return fmt.Errorf("welcome: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskNewsletterWelcome)
	defer func() {
		err = tracker.End(err)
	}()

	if err := j.Mailer.Send(ctx, welcomeMail(payload)); err != nil {
		j.logger().Warn("welcome mail failed",
			slog.String("subscriber", shared.EmailRef(payload.Email)),
			slog.String("email", shared.RedactEmail(payload.Email)),
			slog.Any("error", err))
		return err
	}
	j.Metrics.MailSent()
	j.logger().Info("welcome mail sent",
		slog.String("subscriber", shared.EmailRef(payload.Email)),
		slog.Bool("reactivated", payload.Reactivated))
	return nil
}

func welcomeMail(payload WelcomePayload) Mail {
	if payload.Reactivated {
		return Mail{
			To:      payload.Email,
			Subject: welcomeBackSubject,
			Body: "Good to have you back!\n\n" +
				"Your subscription is active again and the next issue will land in this inbox.\n",
		}
	}
	return Mail{
		To:      payload.Email,
		Subject: welcomeSubject,
		Body: "Thanks for subscribing!\n\n" +
			"Expect occasional notes on Laravel, React and running small engineering teams.\n",
	}
}

func (j *WelcomeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskNewsletterWelcome))
	}
	return slog.Default().With(slog.String("job", TaskNewsletterWelcome))
}
