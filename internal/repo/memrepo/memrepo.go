// Package memrepo is a map-backed store.Store for unit tests. Transactions
// hold the repo lock for their whole duration and restore a snapshot when
// the callback fails.
package memrepo

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/bloombox/backend/internal/models"
	"github.com/bloombox/backend/internal/store"
)

type state struct {
	products  map[uuid.UUID]models.Product
	coupons   map[string]models.Coupon
	delivery  map[uuid.UUID]models.DeliveryOption
	users     map[uuid.UUID]models.User
	addresses map[uuid.UUID]models.Address
	carts     map[uuid.UUID]map[uuid.UUID]models.CartItem
	orders    map[uuid.UUID]models.Order
	history   []models.OrderStatusHistory
}

func newState() *state {
	return &state{
		products:  map[uuid.UUID]models.Product{},
		coupons:   map[string]models.Coupon{},
		delivery:  map[uuid.UUID]models.DeliveryOption{},
		users:     map[uuid.UUID]models.User{},
		addresses: map[uuid.UUID]models.Address{},
		carts:     map[uuid.UUID]map[uuid.UUID]models.CartItem{},
		orders:    map[uuid.UUID]models.Order{},
	}
}

func (s *state) clone() *state {
	c := &state{
		products:  maps.Clone(s.products),
		coupons:   maps.Clone(s.coupons),
		delivery:  maps.Clone(s.delivery),
		users:     maps.Clone(s.users),
		addresses: maps.Clone(s.addresses),
		carts:     make(map[uuid.UUID]map[uuid.UUID]models.CartItem, len(s.carts)),
		orders:    maps.Clone(s.orders),
		history:   slices.Clone(s.history),
	}
	for k, v := range s.carts {
		c.carts[k] = maps.Clone(v)
	}
	return c
}

type Repo struct {
	mu   *sync.Mutex
	st   *state
	inTx bool

	// FailOn makes the named method return the error; used to exercise
	// rollback paths.
	FailOn map[string]error
	failMu *sync.Mutex
	now    func() time.Time
}

var _ store.Store = (*Repo)(nil)

func New() *Repo {
	return &Repo{
		mu:     &sync.Mutex{},
		st:     newState(),
		FailOn: map[string]error{},
		failMu: &sync.Mutex{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Fail arranges for method to return err until cleared with a nil err.
func (r *Repo) Fail(method string, err error) {
	r.failMu.Lock()
	defer r.failMu.Unlock()
	if err == nil {
		delete(r.FailOn, method)
		return
	}
	r.FailOn[method] = err
}

func (r *Repo) failure(method string) error {
	r.failMu.Lock()
	defer r.failMu.Unlock()
	return r.FailOn[method]
}

func (r *Repo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *Repo) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.st.clone()
	tx := &Repo{mu: r.mu, st: r.st, inTx: true, FailOn: r.FailOn, failMu: r.failMu, now: r.now}
	if err := fn(tx); err != nil {
		*r.st = *snapshot
		return err
	}
	return ctx.Err()
}

func (r *Repo) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	defer r.lock()()
	p, ok := r.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r *Repo) ListProducts(_ context.Context, offset, limit int, activeOnly bool) (int64, []models.Product, error) {
	defer r.lock()()
	all := lo.Filter(lo.Values(r.st.products), func(p models.Product, _ int) bool {
		return !activeOnly || p.Active
	})
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return int64(len(all)), page(all, offset, limit), nil
}

func (r *Repo) SearchProducts(_ context.Context, query string, offset, limit int) (int64, []models.Product, error) {
	defer r.lock()()
	q := strings.ToLower(strings.TrimSpace(query))
	all := lo.Filter(lo.Values(r.st.products), func(p models.Product, _ int) bool {
		return p.Active && (strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Description), q))
	})
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return int64(len(all)), page(all, offset, limit), nil
}

func (r *Repo) CreateProduct(_ context.Context, p *models.Product) error {
	defer r.lock()()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, ok := r.st.products[p.ID]; ok {
		return store.ErrDuplicate
	}
	p.InStock = p.StockQuantity > 0
	p.CreatedAt, p.UpdatedAt = r.now(), r.now()
	r.st.products[p.ID] = *p
	return nil
}

func (r *Repo) DecrementStock(_ context.Context, id uuid.UUID, qty int) (bool, error) {
	if err := r.failure("DecrementStock"); err != nil {
		return false, err
	}
	defer r.lock()()
	p, ok := r.st.products[id]
	if !ok || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	p.InStock = p.StockQuantity > 0
	p.UpdatedAt = r.now()
	r.st.products[id] = p
	return true, nil
}

func (r *Repo) SetProductActive(_ context.Context, id uuid.UUID, active bool) error {
	defer r.lock()()
	p, ok := r.st.products[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Active = active
	r.st.products[id] = p
	return nil
}

func (r *Repo) DeleteProduct(_ context.Context, id uuid.UUID) error {
	defer r.lock()()
	if _, ok := r.st.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.st.products, id)
	return nil
}

func (r *Repo) ProductReferenced(_ context.Context, id uuid.UUID) (bool, error) {
	defer r.lock()()
	for _, o := range r.st.orders {
		if lo.ContainsBy(o.Items, func(i models.OrderItem) bool { return i.ProductID == id }) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repo) GetCouponByCode(_ context.Context, code string) (*models.Coupon, error) {
	defer r.lock()()
	c, ok := r.st.coupons[models.NormalizeCouponCode(code)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (r *Repo) CreateCoupon(_ context.Context, c *models.Coupon) error {
	defer r.lock()()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Code = models.NormalizeCouponCode(c.Code)
	if _, ok := r.st.coupons[c.Code]; ok {
		return store.ErrDuplicate
	}
	r.st.coupons[c.Code] = *c
	return nil
}

func (r *Repo) IncrementCouponUsage(_ context.Context, code string) (bool, error) {
	if err := r.failure("IncrementCouponUsage"); err != nil {
		return false, err
	}
	defer r.lock()()
	key := models.NormalizeCouponCode(code)
	c, ok := r.st.coupons[key]
	if !ok || c.Exhausted() {
		return false, nil
	}
	c.TimesUsed++
	r.st.coupons[key] = c
	return true, nil
}

func (r *Repo) GetDeliveryOption(_ context.Context, id uuid.UUID) (*models.DeliveryOption, error) {
	defer r.lock()()
	d, ok := r.st.delivery[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (r *Repo) ListDeliveryOptions(_ context.Context, activeOnly bool) ([]models.DeliveryOption, error) {
	defer r.lock()()
	out := lo.Filter(lo.Values(r.st.delivery), func(d models.DeliveryOption, _ int) bool {
		return !activeOnly || d.IsActive
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r *Repo) CreateDeliveryOption(_ context.Context, d *models.DeliveryOption) error {
	defer r.lock()()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.st.delivery[d.ID] = *d
	return nil
}

func (r *Repo) GetUserAddress(_ context.Context, userID, addressID uuid.UUID) (*models.Address, error) {
	defer r.lock()()
	a, ok := r.st.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (r *Repo) ListAddresses(_ context.Context, userID uuid.UUID) ([]models.Address, error) {
	defer r.lock()()
	out := lo.Filter(lo.Values(r.st.addresses), func(a models.Address, _ int) bool { return a.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Repo) CreateAddress(_ context.Context, a *models.Address) error {
	defer r.lock()()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = r.now()
	r.st.addresses[a.ID] = *a
	return nil
}

func (r *Repo) GetCart(_ context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	defer r.lock()()
	return lo.Values(r.st.carts[userID]), nil
}

func (r *Repo) AddToCart(_ context.Context, item *models.CartItem) error {
	defer r.lock()()
	cart := r.st.carts[item.UserID]
	if cart == nil {
		cart = map[uuid.UUID]models.CartItem{}
		r.st.carts[item.UserID] = cart
	}
	if existing, ok := cart[item.ProductID]; ok {
		existing.Quantity += item.Quantity
		cart[item.ProductID] = existing
		*item = existing
		return nil
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	cart[item.ProductID] = *item
	return nil
}

func (r *Repo) RemoveFromCart(_ context.Context, userID, productID uuid.UUID) error {
	defer r.lock()()
	if _, ok := r.st.carts[userID][productID]; !ok {
		return store.ErrNotFound
	}
	delete(r.st.carts[userID], productID)
	return nil
}

func (r *Repo) ClearCart(_ context.Context, userID uuid.UUID) error {
	if err := r.failure("ClearCart"); err != nil {
		return err
	}
	defer r.lock()()
	delete(r.st.carts, userID)
	return nil
}

func (r *Repo) LastOrderNumber(_ context.Context, prefix string) (string, error) {
	defer r.lock()()
	last := ""
	for _, o := range r.st.orders {
		n := o.OrderNumber
		if !strings.HasPrefix(n, prefix) {
			continue
		}
		if len(n) > len(last) || (len(n) == len(last) && n > last) {
			last = n
		}
	}
	return last, nil
}

func (r *Repo) CreateOrder(_ context.Context, o *models.Order) error {
	if err := r.failure("CreateOrder"); err != nil {
		return err
	}
	defer r.lock()()
	for _, existing := range r.st.orders {
		if existing.OrderNumber == o.OrderNumber {
			return store.ErrDuplicate
		}
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt, o.UpdatedAt = r.now(), r.now()
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	stored.Items = slices.Clone(o.Items)
	r.st.orders[o.ID] = stored
	return nil
}

func (r *Repo) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	defer r.lock()()
	o, ok := r.st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (r *Repo) ListOrdersByUser(_ context.Context, userID uuid.UUID, offset, limit int) (int64, []models.Order, error) {
	defer r.lock()()
	out := lo.Filter(lo.Values(r.st.orders), func(o models.Order, _ int) bool {
		return o.UserID != nil && *o.UserID == userID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return int64(len(out)), page(out, offset, limit), nil
}

func (r *Repo) ListOrdersForProgression(_ context.Context, status models.OrderStatus, cutoff time.Time, offset, limit int) ([]models.Order, error) {
	if err := r.failure("ListOrdersForProgression"); err != nil {
		return nil, err
	}
	defer r.lock()()
	out := lo.Filter(lo.Values(r.st.orders), func(o models.Order, _ int) bool {
		return o.Status == status && (o.StatusUpdatedAt == nil || !o.StatusUpdatedAt.After(cutoff))
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, offset, limit), nil
}

func (r *Repo) UpdateOrderStatus(_ context.Context, id uuid.UUID, from, to models.OrderStatus, at time.Time) (bool, error) {
	if err := r.failure("UpdateOrderStatus"); err != nil {
		return false, err
	}
	defer r.lock()()
	o, ok := r.st.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.StatusUpdatedAt = &at
	o.UpdatedAt = r.now()
	r.st.orders[id] = o
	return true, nil
}

func (r *Repo) AppendStatusHistory(_ context.Context, h *models.OrderStatusHistory) error {
	defer r.lock()()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	r.st.history = append(r.st.history, *h)
	return nil
}

func (r *Repo) ListStatusHistory(_ context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	defer r.lock()()
	return lo.Filter(r.st.history, func(h models.OrderStatusHistory, _ int) bool {
		return h.OrderID == orderID
	}), nil
}

func (r *Repo) MarkPointsAwarded(_ context.Context, id uuid.UUID) (bool, error) {
	defer r.lock()()
	o, ok := r.st.orders[id]
	if !ok || o.PointsAwarded {
		return false, nil
	}
	o.PointsAwarded = true
	r.st.orders[id] = o
	return true, nil
}

func (r *Repo) SetPayment(_ context.Context, id uuid.UUID, gatewayOrderID string, status models.PaymentStatus) error {
	defer r.lock()()
	o, ok := r.st.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	if gatewayOrderID != "" {
		o.GatewayOrderID = gatewayOrderID
	}
	o.PaymentStatus = status
	r.st.orders[id] = o
	return nil
}

func (r *Repo) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	defer r.lock()()
	u, ok := r.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (r *Repo) GetUserByPhone(_ context.Context, phone string) (*models.User, error) {
	defer r.lock()()
	for _, u := range r.st.users {
		if u.Phone == phone {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *Repo) CreateUser(_ context.Context, u *models.User) error {
	defer r.lock()()
	for _, existing := range r.st.users {
		if existing.Phone == u.Phone {
			return store.ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = r.now()
	r.st.users[u.ID] = *u
	return nil
}

func (r *Repo) AddLoyaltyPoints(_ context.Context, id uuid.UUID, points int) error {
	if err := r.failure("AddLoyaltyPoints"); err != nil {
		return err
	}
	defer r.lock()()
	u, ok := r.st.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LoyaltyPoints += points
	r.st.users[id] = u
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
