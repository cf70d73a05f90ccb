package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/taskpipe/pkg/models"
	"github.com/robfig/cron/v3"
)

// FireFunc receives a schedule event addressed to one flow.
type FireFunc func(ctx context.Context, flow *models.Flow, ev models.TriggerEvent)

// Scheduler registers schedule-triggered flows with a cron runner and fires
// them directly when due.
type Scheduler struct {
	cron   *cron.Cron
	fire   FireFunc
	logger *slog.Logger
	ctx    context.Context
}

func NewScheduler(logger *slog.Logger, fire FireFunc) *Scheduler {
	logger = logger.With("module", "scheduler")

	cronLogger := cronLogAdapter{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		fire:   fire,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Register adds every flow with a schedule trigger and returns how many were
// added. Flows with other triggers are ignored.
func (s *Scheduler) Register(flows []*models.Flow) (int, error) {
	registered := 0

	for _, flow := range flows {
		if flow.Trigger.Kind != models.TriggerKindSchedule {
			continue
		}

		def, err := Parse(flow.ID, flow.Trigger)
		if err != nil {
			return registered, err
		}

		schedule, _ := def.(Schedule)

		s.cron.Schedule(schedule.Schedule, cron.FuncJob(func() {
			s.fireFlow(flow, schedule)
		}))

		registered++

		s.logger.Info("Registered scheduled flow", "flow_id", flow.ID, "cron", schedule.Cron)
	}

	return registered, nil
}

func (s *Scheduler) fireFlow(flow *models.Flow, schedule Schedule) {
	source := flow.ID
	now := time.Now().UTC()

	s.fire(s.ctx, flow, models.TriggerEvent{
		EventName: models.EventNameSchedule,
		Payload: map[string]any{
			"flow_id":  flow.ID,
			"cron":     schedule.Cron,
			"fired_at": now.Format(time.RFC3339),
		},
		Source: &source,
	})
}

// Start runs the cron loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Len returns the number of registered schedules.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

type cronLogAdapter struct {
	logger *slog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
