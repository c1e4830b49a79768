package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/Satyam8589/SaveServe-sub000/internal/config"
	"github.com/Satyam8589/SaveServe-sub000/internal/models"
	"github.com/Satyam8589/SaveServe-sub000/internal/notify"
	"github.com/Satyam8589/SaveServe-sub000/internal/services"
)

// TaskType defines the type of a background task.
const (
	TypeBookingEvent = "booking:event"
	TypeExpirySweep  = "reservations:sweep"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"

	eventMaxRetry   = 8
	enqueueDeadline = 2 * time.Second
)

// RedisOpt derives the asynq connection from an existing go-redis client.
func RedisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(RedisOpt(rdb))
}

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EventPublisher implements services.EventPublisher by enqueueing one task per
// event. Enqueue failures are logged and dropped.
type EventPublisher struct {
	client Enqueuer
}

func NewEventPublisher(client Enqueuer) *EventPublisher {
	return &EventPublisher{client: client}
}

func (p *EventPublisher) Publish(ctx context.Context, event models.BookingEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Events Error] Failed to marshal %s for booking %s: %v", event.Type, event.BookingID, err)
		return
	}

	// The request may finish before the enqueue does.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueDeadline)
	defer cancel()

	task := asynq.NewTask(TypeBookingEvent, payload)
	if _, err := p.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(eventMaxRetry)); err != nil {
		log.Printf("[Events Error] Failed to enqueue %s for booking %s: %v", event.Type, event.BookingID, err)
	}
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
type TaskProcessor struct {
	sender  notify.Sender
	sweeper services.ISweeperService
}

func NewTaskProcessor(sender notify.Sender, sweeper services.ISweeperService) *TaskProcessor {
	return &TaskProcessor{sender: sender, sweeper: sweeper}
}

// NewServeMux routes every task type to its handler.
func NewServeMux(processor *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBookingEvent, processor.HandleBookingEventTask)
	mux.HandleFunc(TypeExpirySweep, processor.HandleExpirySweepTask)
	return mux
}

// SetupServer configures an Asynq server instance.
func SetupServer(rdb *redis.Client, concurrency int) *asynq.Server {
	return asynq.NewServer(
		RedisOpt(rdb),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)
}

// NewScheduler enqueues an expiry sweep every SweepInterval. The Unique option
// keeps a second sweep from being queued while one is still pending or running.
func NewScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(RedisOpt(rdb), &asynq.SchedulerOpts{
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if errors.Is(err, asynq.ErrDuplicateTask) {
				log.Printf("[Scheduler] Previous sweep still queued, skipping")
				return
			}
			if err != nil {
				log.Printf("[Scheduler Error] Failed to enqueue sweep: %v", err)
			}
		},
	})

	_, err := scheduler.Register(
		"@every "+cfg.SweepInterval.String(),
		asynq.NewTask(TypeExpirySweep, nil),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(0),
		asynq.Unique(cfg.SweepInterval),
		asynq.Timeout(cfg.SweepInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register sweep schedule: %w", err)
	}
	return scheduler, nil
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleBookingEventTask(ctx context.Context, t *asynq.Task) error {
	var event models.BookingEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("failed to unmarshal booking event payload: %v: %w", err, asynq.SkipRetry)
	}
	if event.Type == "" || event.BookingID.IsZero() {
		return fmt.Errorf("booking event payload is incomplete: %w", asynq.SkipRetry)
	}

	if err := p.sender.Send(ctx, event); err != nil {
		return fmt.Errorf("failed to deliver %s for booking %s: %w", event.Type, event.BookingID, err)
	}
	return nil
}

func (p *TaskProcessor) HandleExpirySweepTask(ctx context.Context, t *asynq.Task) error {
	report, err := p.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep failed: %w", err)
	}
	if report.Failures > 0 {
		log.Printf("[Sweeper] Sweep finished with %d failures", report.Failures)
	}
	return nil
}
