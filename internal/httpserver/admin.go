package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/bloombox/backend/internal/notify"
	"github.com/bloombox/backend/internal/scheduler"
	"github.com/bloombox/backend/internal/worker"
	"github.com/bloombox/backend/pkg/logging"
)

type AdminHTTP struct {
	Scheduler *scheduler.Scheduler
	Queues    []*notify.Queue
	Executor  *worker.Executor
}

func (h *AdminHTTP) SchedulerStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Scheduler.Status())
}

func (h *AdminHTTP) RunScheduler(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.run_scheduler")

	res := h.Scheduler.TriggerNow(ctx)
	l.Info("scheduler_triggered", "advanced", res.Advanced, "failed", res.Failed, "skipped", res.Skipped)
	return c.JSON(http.StatusOK, res)
}

func (h *AdminHTTP) QueueStats(c echo.Context) error {
	out := map[string]any{
		"queues": lo.Map(h.Queues, func(q *notify.Queue, _ int) notify.QueueStats { return q.Stats() }),
	}
	if h.Executor != nil {
		out["background"] = h.Executor.Stats()
	}
	return c.JSON(http.StatusOK, out)
}
