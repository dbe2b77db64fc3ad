package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventory-manager/inventory-manager/internal/assets"
	jobmetrics "github.com/inventory-manager/inventory-manager/internal/jobs"
	"github.com/inventory-manager/inventory-manager/internal/platform/mail"
)

type dueStub struct {
	assets []assets.Asset
	err    error
}

func (d dueStub) DueForReminder(ctx context.Context) ([]assets.Asset, error) {
	return d.assets, d.err
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	failFor  string
}

func (m *recordingMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.To == m.failFor {
		return errors.New("smtp: mailbox unavailable")
	}
	m.messages = append(m.messages, msg)
	return nil
}

var reminderNow = time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

func dueAsset(id int64, code string, holder assets.UserRef, days int) assets.Asset {
	due := reminderNow.AddDate(0, 0, days)
	return assets.Asset{ID: id, Code: code, Name: "Item " + code, Assignee: &holder, ReturnDate: &due}
}

func newReminderJob(source DueSource, mailer mail.Sender) *ReturnReminderJob {
	job := NewReturnReminderJob(source, mailer, "https://inventory.example.com/", nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return reminderNow }
	return job
}

func TestReturnRemindersGroupsByAssignee(t *testing.T) {
	alice := assets.UserRef{ID: 2, Name: "Alice", Email: "alice@example.com"}
	bob := assets.UserRef{ID: 3, Name: "Bob", Email: "bob@example.com"}
	source := dueStub{assets: []assets.Asset{
		dueAsset(1, "AND-001", alice, -2),
		dueAsset(2, "LAP-004", bob, 1),
		dueAsset(3, "MON-010", alice, 1),
	}}
	mailer := &recordingMailer{}

	task, err := NewReturnRemindersTask(ReturnRemindersPayload{})
	require.NoError(t, err)
	require.NoError(t, newReminderJob(source, mailer).Handle(context.Background(), task))

	require.Len(t, mailer.messages, 2)
	first := mailer.messages[0]
	assert.Equal(t, "alice@example.com", first.To)
	assert.Equal(t, mail.KindReminder, first.Kind)
	assert.Equal(t, "Reminder: 2 assets are due for return", first.Subject)
	assert.Contains(t, first.Text, "AND-001 Item AND-001: was due 08, Mar 2026")
	assert.Contains(t, first.Text, "MON-010 Item MON-010: due 11, Mar 2026")
	assert.Contains(t, first.Text, "https://inventory.example.com/")
	assert.Equal(t, "Reminder: an asset is due for return", mailer.messages[1].Subject)
}

func TestReturnRemindersFiltersByUser(t *testing.T) {
	alice := assets.UserRef{ID: 2, Name: "Alice", Email: "alice@example.com"}
	bob := assets.UserRef{ID: 3, Name: "Bob", Email: "bob@example.com"}
	source := dueStub{assets: []assets.Asset{dueAsset(1, "AND-001", alice, 0), dueAsset(2, "LAP-004", bob, 1)}}
	mailer := &recordingMailer{}

	task, err := NewReturnRemindersTask(ReturnRemindersPayload{UserID: bob.ID})
	require.NoError(t, err)
	require.NoError(t, newReminderJob(source, mailer).Handle(context.Background(), task))
	require.Len(t, mailer.messages, 1)
	assert.Equal(t, "bob@example.com", mailer.messages[0].To)
}

func TestReturnRemindersContinuesPastFailures(t *testing.T) {
	alice := assets.UserRef{ID: 2, Name: "Alice", Email: "alice@example.com"}
	bob := assets.UserRef{ID: 3, Email: "bob@example.com"}
	source := dueStub{assets: []assets.Asset{dueAsset(1, "AND-001", alice, 0), dueAsset(2, "LAP-004", bob, 1)}}
	mailer := &recordingMailer{failFor: "alice@example.com"}

	err := newReminderJob(source, mailer).Handle(context.Background(), asynq.NewTask(TaskReturnReminders, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	require.Len(t, mailer.messages, 1)
	assert.True(t, strings.HasPrefix(mailer.messages[0].Text, "Hello bob@example.com,"))
}

func TestReturnRemindersBadPayloadSkipsRetry(t *testing.T) {
	job := newReminderJob(dueStub{}, &recordingMailer{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskReturnReminders, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReturnRemindersSourceError(t *testing.T) {
	job := newReminderJob(dueStub{err: errors.New("db down")}, &recordingMailer{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskReturnReminders, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

type enqueueStub struct {
	err   error
	calls int
}

func (e *enqueueStub) EnqueueReturnReminders(ctx context.Context, payload ReturnRemindersPayload, now time.Time) (*asynq.TaskInfo, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return &asynq.TaskInfo{ID: "abc", Queue: QueueDefault}, nil
}

func TestJobsHandler(t *testing.T) {
	stub := &enqueueStub{}
	h := NewHandler(nil, stub, nil)
	r := chi.NewRouter()
	r.Route("/jobs", func(r chi.Router) {
		h.MountRoutes(r)
		h.MountAdminRoutes(r)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/reminders", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"abc"`)

	stub.err = asynq.ErrTaskIDConflict
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/reminders", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Contains(t, rr.Body.String(), `"duplicate":true`)
	assert.Equal(t, 2, stub.calls)
}

func TestJobsHealthUnreachableQueue(t *testing.T) {
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	defer inspector.Close()
	h := NewHandler(inspector, nil, nil)
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Queue unavailable", body["title"])
}
