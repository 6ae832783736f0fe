package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quickcourt/internal/database"
	"quickcourt/internal/domain"
	"quickcourt/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskUpsert       = "upsert"
	TaskUpdateStatus = "update_status"
	TaskSyncSchedule = "sync_schedule"
	TaskResyncAll    = "resync_all"
)

// scheduleWindowDays is how far ahead the schedule sheet renders.
const scheduleWindowDays = 14

// sheetTaskPayload is persisted in SyncTask.Payload as JSON.
type sheetTaskPayload struct {
	BookingID int64           `json:"booking_id"`
	Booking   *models.Booking `json:"booking,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// SheetsClient applies a sync task to the reporting spreadsheet.
type SheetsClient interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	UpdateScheduleSheet(ctx context.Context, startDate, endDate time.Time, dailyBookings map[string][]models.Booking, venues []models.Venue) error
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

// SheetsWorker consumes sync_queue tasks and applies them to the reporting
// spreadsheet. Tasks are persisted before scheduling so they survive a
// restart; Redis carries the hot path and the DB poll acts as catch-up.
type SheetsWorker struct {
	db            *database.DB
	sheets        SheetsClient
	venues        domain.VenueService
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewSheetsWorker(db *database.DB, sheets SheetsClient, venues domain.VenueService, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &SheetsWorker{
		db:            db,
		sheets:        sheets,
		venues:        venues,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "sheets:queue",
		deadLetterKey: "sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask persists the task and schedules it via Redis or the in-memory
// queue. Persisting first means a crashed worker picks the task up from the
// DB poll.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if bookingID == 0 && booking != nil {
		bookingID = booking.ID
	}
	// sync_schedule и resync_all не привязаны к конкретной брони
	if bookingID == 0 && taskType != TaskSyncSchedule && taskType != TaskResyncAll {
		return errors.New("booking id is required")
	}

	payloadBytes, err := json.Marshal(sheetTaskPayload{
		BookingID: bookingID,
		Booking:   booking,
		Status:    status,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   string(payloadBytes),
		Status:    database.SyncStatusPending,
		CreatedAt: time.Now(),
	}

	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		err := w.pushRedis(ctx, task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("sheets worker: redis push failed, falling back to memory queue")
	}

	select {
	case w.queue <- task:
	default:
		// Переполнение очереди не ошибка: задача уже в sync_queue и будет
		// подобрана polling-циклом.
		w.logger.Warn().Int64("task_id", task.ID).Msg("sheets worker: memory queue full, task left for polling")
	}

	return nil
}

// Start runs the processing loop until ctx is cancelled.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets worker started")
	defer w.logger.Info().Msg("sheets worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if task, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &task)
			continue
		}

		if task, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &task)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("sheets worker: fetch pending tasks")
			w.sleep(ctx, w.pollInterval)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx, w.pollInterval)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case task := <-w.queue:
		return task, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("sheets worker: redis BRPOP")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("sheets worker: decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	var payload sheetTaskPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.applyTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, database.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets worker: mark completed")
	}
}

func (w *SheetsWorker) applyTask(ctx context.Context, taskType string, payload sheetTaskPayload) error {
	switch taskType {
	case TaskUpsert:
		if payload.Booking == nil {
			return errors.New("booking payload missing")
		}
		return w.sheets.UpsertBooking(ctx, payload.Booking)
	case TaskUpdateStatus:
		if payload.BookingID == 0 || payload.Status == "" {
			return errors.New("booking id or status missing")
		}
		return w.sheets.UpdateBookingStatus(ctx, payload.BookingID, payload.Status)
	case TaskSyncSchedule:
		return w.syncSchedule(ctx)
	case TaskResyncAll:
		return w.resyncAll(ctx)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

// syncSchedule re-renders the schedule sheet for the upcoming window. The
// task carries no payload; state is read fresh so stale tasks stay harmless.
func (w *SheetsWorker) syncSchedule(ctx context.Context) error {
	start := time.Now().Truncate(24 * time.Hour)
	end := start.AddDate(0, 0, scheduleWindowDays)

	daily, err := w.db.GetDailyBookings(ctx, start, end)
	if err != nil {
		return fmt.Errorf("load daily bookings: %w", err)
	}

	var venueList []models.Venue
	if w.venues != nil {
		active, err := w.venues.GetActiveVenues(ctx)
		if err != nil {
			return fmt.Errorf("load venues: %w", err)
		}
		venueList = make([]models.Venue, 0, len(active))
		for _, v := range active {
			venueList = append(venueList, *v)
		}
	}

	dailyBookings := make(map[string][]models.Booking, len(daily))
	for day, items := range daily {
		values := make([]models.Booking, 0, len(items))
		for _, b := range items {
			values = append(values, *b)
		}
		dailyBookings[day] = values
	}

	return w.sheets.UpdateScheduleSheet(ctx, start, end, dailyBookings, venueList)
}

// resyncAll rebuilds the bookings sheet from the database.
func (w *SheetsWorker) resyncAll(ctx context.Context) error {
	bookings, err := w.db.GetAllBookings(ctx)
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}
	return w.sheets.ReplaceBookingsSheet(ctx, bookings)
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry", nextTime).Msg("sheets worker: task retry scheduled")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, database.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets worker: mark retry")
	}
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("sheets worker: task failed permanently")
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, database.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets worker: mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("sheets worker: deadletter push")
	}
}

func (w *SheetsWorker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
