package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/orders"
	"github.com/bloombox/backend/internal/repo/memrepo"
	"github.com/bloombox/backend/pkg/cache"
	"github.com/bloombox/backend/pkg/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func seedOrder(t *testing.T, r *memrepo.Repo, status models.OrderStatus, updated *time.Time) *models.Order {
	t.Helper()
	o := &models.Order{
		OrderNumber:     "BBORD20260310" + uuid.NewString()[:6],
		CustomerName:    "Ravi",
		CustomerPhone:   "+919822222222",
		Status:          status,
		StatusUpdatedAt: updated,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   models.PaymentCOD,
		Total:           decimal.NewFromInt(400),
	}
	require.NoError(t, r.CreateOrder(context.Background(), o))
	return o
}

func ago(d time.Duration) *time.Time {
	t := fixedNow.Add(-d)
	return &t
}

func newScheduler(r *memrepo.Repo) *Scheduler {
	svc := orders.NewService(r, nil)
	svc.Now = clock
	return New(r, svc, time.Minute, logging.Discard()).WithClock(clock)
}

func statusOf(t *testing.T, r *memrepo.Repo, id uuid.UUID) models.OrderStatus {
	t.Helper()
	o, err := r.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o.Status
}

func TestTick_AdvancesDueOrders(t *testing.T) {
	r := memrepo.New()
	s := newScheduler(r)

	tests := []struct {
		name    string
		status  models.OrderStatus
		updated *time.Time
		want    models.OrderStatus
	}{
		{name: "pending past threshold", status: models.OrderStatusPending, updated: ago(61 * time.Minute), want: models.OrderStatusConfirmed},
		{name: "pending exactly at threshold", status: models.OrderStatusPending, updated: ago(60 * time.Minute), want: models.OrderStatusConfirmed},
		{name: "pending too fresh", status: models.OrderStatusPending, updated: ago(30 * time.Minute), want: models.OrderStatusPending},
		{name: "pending never stamped", status: models.OrderStatusPending, updated: nil, want: models.OrderStatusConfirmed},
		{name: "confirmed past threshold", status: models.OrderStatusConfirmed, updated: ago(3 * time.Hour), want: models.OrderStatusProcessing},
		{name: "processing one day", status: models.OrderStatusProcessing, updated: ago(25 * time.Hour), want: models.OrderStatusShipped},
		{name: "shipped not yet two days", status: models.OrderStatusShipped, updated: ago(47 * time.Hour), want: models.OrderStatusShipped},
		{name: "shipped two days", status: models.OrderStatusShipped, updated: ago(48 * time.Hour), want: models.OrderStatusDelivered},
		{name: "cancelled untouched", status: models.OrderStatusCancelled, updated: ago(100 * time.Hour), want: models.OrderStatusCancelled},
	}

	ids := make([]uuid.UUID, len(tests))
	for i, tt := range tests {
		ids[i] = seedOrder(t, r, tt.status, tt.updated).ID
	}

	res := s.Tick(context.Background())
	assert.Equal(t, 6, res.Advanced)
	assert.Zero(t, res.Failed)

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(t, r, ids[i]))
		})
	}
}

func TestTick_OneStepPerTickWithHistory(t *testing.T) {
	r := memrepo.New()
	s := newScheduler(r)
	o := seedOrder(t, r, models.OrderStatusPending, ago(10*time.Hour))

	s.Tick(context.Background())
	assert.Equal(t, models.OrderStatusConfirmed, statusOf(t, r, o.ID))

	history, err := r.ListStatusHistory(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.OrderStatusConfirmed, history[0].Status)
	assert.Equal(t, orders.NoteAutoProgressed, history[0].Note)
	assert.Equal(t, fixedNow, history[0].ChangedAt)

	st := s.Status()
	require.NotNil(t, st.LastResult)
	assert.Equal(t, 1, st.LastResult.Advanced)
	assert.Equal(t, fixedNow, *st.LastRunAt)
}

type flakyTransitioner struct {
	next *orders.Service
	bad  map[uuid.UUID]bool
}

func (f *flakyTransitioner) Transition(ctx context.Context, id uuid.UUID, to models.OrderStatus, note string) (*models.Order, error) {
	if f.bad[id] {
		return nil, errors.New("row lock timeout")
	}
	return f.next.Transition(ctx, id, to, note)
}

func TestTick_FailureDoesNotStopOthers(t *testing.T) {
	r := memrepo.New()
	s := newScheduler(r)

	bad := seedOrder(t, r, models.OrderStatusPending, ago(2*time.Hour))
	good := seedOrder(t, r, models.OrderStatusPending, ago(2*time.Hour))
	svc := orders.NewService(r, nil)
	svc.Now = clock
	s.Service = &flakyTransitioner{next: svc, bad: map[uuid.UUID]bool{bad.ID: true}}

	res := s.Tick(context.Background())
	assert.Equal(t, 1, res.Advanced)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, models.OrderStatusPending, statusOf(t, r, bad.ID))
	assert.Equal(t, models.OrderStatusConfirmed, statusOf(t, r, good.ID))
}

func TestTick_PagesPastFailingOrders(t *testing.T) {
	r := memrepo.New()
	s := newScheduler(r)
	s.BatchSize = 2

	bad := make(map[uuid.UUID]bool)
	var good []uuid.UUID
	for i := range 8 {
		o := seedOrder(t, r, models.OrderStatusPending, ago(2*time.Hour))
		if i%3 == 2 {
			good = append(good, o.ID)
			continue
		}
		bad[o.ID] = true
	}
	svc := orders.NewService(r, nil)
	svc.Now = clock
	s.Service = &flakyTransitioner{next: svc, bad: bad}

	res := s.Tick(context.Background())
	assert.Equal(t, len(good), res.Advanced)
	assert.Equal(t, len(bad), res.Failed)
	for _, id := range good {
		assert.Equal(t, models.OrderStatusConfirmed, statusOf(t, r, id))
	}
}

func TestTick_QueryFailureIsLogged(t *testing.T) {
	r := memrepo.New()
	s := newScheduler(r)
	seedOrder(t, r, models.OrderStatusPending, ago(2*time.Hour))
	r.Fail("ListOrdersForProgression", errors.New("connection refused"))

	res := s.Tick(context.Background())
	assert.Zero(t, res.Advanced)
	assert.False(t, res.Skipped)
}

type blockingTransitioner struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingTransitioner) Transition(context.Context, uuid.UUID, models.OrderStatus, string) (*models.Order, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return &models.Order{}, nil
}

func TestTick_SkipsWhileInProgress(t *testing.T) {
	r := memrepo.New()
	s := newScheduler(r)
	seedOrder(t, r, models.OrderStatusPending, ago(2*time.Hour))

	bt := &blockingTransitioner{entered: make(chan struct{}), release: make(chan struct{})}
	s.Service = bt

	done := make(chan Result)
	go func() { done <- s.Tick(context.Background()) }()
	<-bt.entered

	assert.True(t, s.Status().InProgress)
	second := s.TriggerNow(context.Background())
	assert.True(t, second.Skipped)

	close(bt.release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Advanced)
	assert.False(t, s.Status().InProgress)
}

func TestTick_SharedLock(t *testing.T) {
	r := memrepo.New()
	shared := cache.NewMemoryCacheWithClock("bloombox", clock)

	a := newScheduler(r)
	a.Locker = NewCacheLocker(shared)
	b := newScheduler(r)
	b.Locker = NewCacheLocker(shared)

	seedOrder(t, r, models.OrderStatusPending, ago(2*time.Hour))

	assert.False(t, a.Tick(context.Background()).Skipped)
	assert.True(t, b.Tick(context.Background()).Skipped)
	assert.False(t, b.TriggerNow(context.Background()).Skipped, "manual runs ignore the shared lock")
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := memrepo.New()
	s := newScheduler(r)
	s.interval = 5 * time.Millisecond
	seedOrder(t, r, models.OrderStatusPending, ago(2*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Running && st.LastRunAt != nil
	}, time.Second, time.Millisecond)

	cancel()
	<-stopped
	assert.False(t, s.Status().Running)
}
