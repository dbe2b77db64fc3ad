package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/inventory-manager/inventory-manager/internal/assets"
	jobmetrics "github.com/inventory-manager/inventory-manager/internal/jobs"
	"github.com/inventory-manager/inventory-manager/internal/platform/mail"
	"github.com/inventory-manager/inventory-manager/internal/view"
)

// DueSource lists the assets a reminder run covers, implemented by
// assets.Service.
type DueSource interface {
	DueForReminder(ctx context.Context) ([]assets.Asset, error)
}

// ReturnReminderJob emails every assignee one summary of their due assets.
type ReturnReminderJob struct {
	Assets  DueSource
	Mailer  mail.Sender
	BaseURL string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReturnReminderJob wires dependencies for the reminder handler.
func NewReturnReminderJob(source DueSource, mailer mail.Sender, baseURL string, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReturnReminderJob {
	return &ReturnReminderJob{
		Assets:  source,
		Mailer:  mailer,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Logger:  logger,
		Metrics: metrics,
		clock:   time.Now,
	}
}

type reminderBatch struct {
	to     assets.UserRef
	assets []assets.Asset
}

// Handle processes TaskReturnReminders. A failed mail does not stop the run,
// the task is retried when any recipient could not be reached.
func (j *ReturnReminderJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Assets == nil || j.Mailer == nil {
		return errors.New("return reminders: handler not configured")
	}
	var payload ReturnRemindersPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskReturnReminders)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	due, err := j.Assets.DueForReminder(ctx)
	if err != nil {
		return fmt.Errorf("return reminders: list due assets: %w", err)
	}
	batches := groupByAssignee(due, payload.UserID)
	now := j.clock()

	var sent, failed int
	for _, batch := range batches {
		if err := j.send(ctx, batch, now); err != nil {
			failed++
			j.logger().Warn("return reminder", slog.Int64("user_id", batch.to.ID), slog.Any("error", err))
			continue
		}
		sent++
	}
	j.Metrics.AddReminders("sent", sent)
	j.Metrics.AddReminders("failed", failed)
	j.logger().Info("return reminders", slog.Int("recipients", len(batches)), slog.Int("sent", sent), slog.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("return reminders: %d of %d mails failed", failed, len(batches))
	}
	return nil
}

func (j *ReturnReminderJob) send(ctx context.Context, batch reminderBatch, now time.Time) error {
	data := mail.ReminderData{Name: batch.to.Name, Link: j.BaseURL + "/"}
	if data.Name == "" {
		data.Name = batch.to.Email
	}
	for _, a := range batch.assets {
		line := mail.ReminderAsset{Code: a.Code, Name: a.Name, Overdue: a.ReturnDatePast(now)}
		if a.ReturnDate != nil {
			line.ReturnDate = a.ReturnDate.Format(view.DisplayDateLayout)
		}
		data.Assets = append(data.Assets, line)
	}
	body, err := mail.Render("return_reminder.txt", data)
	if err != nil {
		return err
	}
	subject := "Reminder: an asset is due for return"
	if len(batch.assets) > 1 {
		subject = fmt.Sprintf("Reminder: %d assets are due for return", len(batch.assets))
	}
	return j.Mailer.Send(ctx, mail.Message{Kind: mail.KindReminder, To: batch.to.Email, Subject: subject, Text: body})
}

// groupByAssignee keeps the order of first appearance. onlyUser filters to one
// assignee when non-zero.
func groupByAssignee(due []assets.Asset, onlyUser int64) []reminderBatch {
	var (
		out   []reminderBatch
		index = map[int64]int{}
	)
	for _, a := range due {
		if a.Assignee == nil || a.Assignee.Email == "" {
			continue
		}
		if onlyUser != 0 && a.Assignee.ID != onlyUser {
			continue
		}
		i, ok := index[a.Assignee.ID]
		if !ok {
			i = len(out)
			index[a.Assignee.ID] = i
			out = append(out, reminderBatch{to: *a.Assignee})
		}
		out[i].assets = append(out[i].assets, a)
	}
	return out
}

func (j *ReturnReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
