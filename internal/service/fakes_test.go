package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
)

type fakeProduct struct {
	name   string
	active bool
}

// fakeState is everything a fakeStore holds. Values, not pointers, so clone is cheap.
type fakeState struct {
	nextID     int64
	addresses  map[int64]models.Address
	products   map[int64]fakeProduct
	variants   map[int64]models.ProductVariant
	cart       map[int64]models.CartItem
	orders     map[int64]models.Order
	orderItems map[int64][]models.OrderItem
	logs       []models.InventoryLog
	payments   map[int64]models.Payment
	processed  map[string]string
}

func newFakeState() *fakeState {
	return &fakeState{
		addresses:  map[int64]models.Address{},
		products:   map[int64]fakeProduct{},
		variants:   map[int64]models.ProductVariant{},
		cart:       map[int64]models.CartItem{},
		orders:     map[int64]models.Order{},
		orderItems: map[int64][]models.OrderItem{},
		payments:   map[int64]models.Payment{},
		processed:  map[string]string{},
	}
}

func (st *fakeState) clone() *fakeState {
	c := newFakeState()
	c.nextID = st.nextID
	for k, v := range st.addresses {
		c.addresses[k] = v
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.variants {
		c.variants[k] = v
	}
	for k, v := range st.cart {
		c.cart[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.orderItems {
		c.orderItems[k] = append([]models.OrderItem(nil), v...)
	}
	c.logs = append([]models.InventoryLog(nil), st.logs...)
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.processed {
		c.processed[k] = v
	}
	return c
}

func (st *fakeState) id() int64 {
	st.nextID++
	return st.nextID
}

func (st *fakeState) addCartItem(userID, variantID int64, quantity int) models.CartItem {
	now := time.Now()
	for id, item := range st.cart {
		if item.UserID == userID && item.VariantID == variantID {
			item.Quantity += quantity
			item.UpdatedAt = now
			st.cart[id] = item
			return item
		}
	}
	item := models.CartItem{ID: st.id(), UserID: userID, VariantID: variantID, Quantity: quantity, CreatedAt: now, UpdatedAt: now}
	st.cart[item.ID] = item
	return item
}

// fakeStore is an in-memory store. A transaction holds the mutex for its whole
// duration and restores the snapshot taken at begin when fn fails.
type fakeStore struct {
	mu sync.Mutex
	st *fakeState

	// onCartLocked runs inside the checkout transaction right after the cart is read
	onCartLocked func(st *fakeState)
	// createOrderErrs are returned, in order, by the next CreateOrder calls
	createOrderErrs []error
	txCount         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{st: newFakeState()}
}

func (s *fakeStore) addVariant(sku, price string, stock int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	productID := s.st.id()
	s.st.products[productID] = fakeProduct{name: "Product " + sku, active: true}
	v := models.ProductVariant{
		ID:        s.st.id(),
		ProductID: productID,
		SKU:       sku,
		Price:     decimal.RequireFromString(price),
		Inventory: stock,
		Size:      "M",
		Color:     "Black",
		IsActive:  true,
	}
	s.st.variants[v.ID] = v
	return v.ID
}

func (s *fakeStore) addAddress(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := models.Address{ID: s.st.id(), UserID: userID, Line1: "1 Main St", City: "Makati", Country: "PH"}
	s.st.addresses[a.ID] = a
	return a.ID
}

func (s *fakeStore) setPrice(variantID int64, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.st.variants[variantID]
	v.Price = decimal.RequireFromString(price)
	s.st.variants[variantID] = v
}

func (s *fakeStore) deactivate(variantID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.st.variants[variantID]
	v.IsActive = false
	s.st.variants[variantID] = v
}

func (s *fakeStore) variant(id int64) models.ProductVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.variants[id]
}

func (s *fakeStore) logsFor(variantID int64) []models.InventoryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.InventoryLog
	for _, l := range s.st.logs {
		if l.VariantID == variantID {
			out = append(out, l)
		}
	}
	return out
}

func (s *fakeStore) cartFor(userID int64) []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CartItem
	for _, item := range s.st.cart {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

func (s *fakeStore) InTx(ctx context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	snapshot := s.st.clone()
	if err := fn(&fakeTx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Cart

func (s *fakeStore) AddCartItem(ctx context.Context, userID, variantID int64, quantity int) (*models.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.st.addCartItem(userID, variantID, quantity)
	return &item, nil
}

func (s *fakeStore) UpdateCartItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*models.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.st.cart[itemID]
	if !ok || item.UserID != userID {
		return nil, fmt.Errorf("%w: cart item %d", store.ErrNotFound, itemID)
	}
	item.Quantity = quantity
	s.st.cart[itemID] = item
	return &item, nil
}

func (s *fakeStore) DeleteCartItem(ctx context.Context, userID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.st.cart[itemID]
	if !ok || item.UserID != userID {
		return fmt.Errorf("%w: cart item %d", store.ErrNotFound, itemID)
	}
	delete(s.st.cart, itemID)
	return nil
}

func (s *fakeStore) ListCartItems(ctx context.Context, userID int64) ([]models.CartItemWithDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.CartItemWithDetails{}
	for _, item := range s.st.cart {
		if item.UserID != userID {
			continue
		}
		v := s.st.variants[item.VariantID]
		out = append(out, models.CartItemWithDetails{
			ID:          item.ID,
			VariantID:   item.VariantID,
			Quantity:    item.Quantity,
			SKU:         v.SKU,
			Price:       v.Price,
			Inventory:   v.Inventory,
			Size:        v.Size,
			Color:       v.Color,
			ProductID:   v.ProductID,
			ProductName: s.st.products[v.ProductID].name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) IsVariantPurchasable(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.st.variants[id]
	if !ok {
		return false, fmt.Errorf("%w: variant %d", store.ErrNotFound, id)
	}
	return v.IsActive && s.st.products[v.ProductID].active, nil
}

// Orders

func (s *fakeStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order", store.ErrNotFound)
	}
	return &o, nil
}

func (s *fakeStore) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.st.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OrderItem{}, s.st.orderItems[orderID]...), nil
}

func (s *fakeStore) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Order{}
	for _, o := range s.st.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *fakeStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.st.processed[eventID]
	return ok, nil
}

// Inventory

func (s *fakeStore) GetVariantByID(ctx context.Context, id int64) (*models.ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.st.variants[id]
	if !ok {
		return nil, fmt.Errorf("%w: variant %d", store.ErrNotFound, id)
	}
	return &v, nil
}

func (s *fakeStore) ListInventoryLogs(ctx context.Context, variantID int64, limit int) ([]models.InventoryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.InventoryLog{}
	for i := len(s.st.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.st.logs[i].VariantID == variantID {
			out = append(out, s.st.logs[i])
		}
	}
	return out, nil
}

func (s *fakeStore) ListStockLevels(ctx context.Context) ([]models.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.StockLevel{}
	for _, v := range s.st.variants {
		level := models.StockLevel{VariantID: v.ID, Inventory: v.Inventory}
		for _, l := range s.st.logs {
			if l.VariantID == v.ID && l.ID > level.Version {
				level.Version = l.ID
			}
		}
		out = append(out, level)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out, nil
}

func (s *fakeStore) FindStockDiscrepancies(ctx context.Context) ([]models.StockDiscrepancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := map[int64]models.InventoryLog{}
	for _, l := range s.st.logs {
		if l.ID > latest[l.VariantID].ID {
			latest[l.VariantID] = l
		}
	}
	out := []models.StockDiscrepancy{}
	for id, l := range latest {
		v := s.st.variants[id]
		if v.Inventory != l.NewStock {
			out = append(out, models.StockDiscrepancy{
				VariantID: id, SKU: v.SKU, Inventory: v.Inventory, LedgerStock: l.NewStock, LastLogID: l.ID,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out, nil
}

// corruptStock changes a counter without a ledger row
func (s *fakeStore) corruptStock(variantID int64, inventory int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.st.variants[variantID]
	v.Inventory = inventory
	s.st.variants[variantID] = v
}

// Admin

func (s *fakeStore) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := []models.Order{}
	for _, o := range s.st.orders {
		if filter.Status == "" || o.Status == filter.Status {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if filter.Offset >= len(all) {
		return []models.Order{}, nil
	}
	all = all[filter.Offset:]
	if len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (s *fakeStore) updateOrder(orderID int64, apply func(*models.Order) string) (string, error) {
	o, ok := s.st.orders[orderID]
	if !ok {
		return "", fmt.Errorf("%w: order %d", store.ErrNotFound, orderID)
	}
	previous := apply(&o)
	s.st.orders[orderID] = o
	return previous, nil
}

func (s *fakeStore) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateOrder(orderID, func(o *models.Order) string {
		prev := o.Status
		o.Status = status
		return prev
	})
}

func (s *fakeStore) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, status string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateOrder(orderID, func(o *models.Order) string {
		prev := o.PaymentStatus
		o.PaymentStatus = status
		return prev
	})
}

func (s *fakeStore) UpdateOrderFulfillmentStatus(ctx context.Context, orderID int64, status string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateOrder(orderID, func(o *models.Order) string {
		prev := o.FulfillmentStatus
		o.FulfillmentStatus = status
		return prev
	})
}

func (s *fakeStore) CountOrdersByStatus(ctx context.Context) ([]models.StatusCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	for _, o := range s.st.orders {
		counts[o.Status]++
	}
	out := []models.StatusCount{}
	for status, n := range counts {
		out = append(out, models.StatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (s *fakeStore) Revenue(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, o := range s.st.orders {
		if o.Status != models.OrderStatusCancelled && o.Status != models.OrderStatusRefunded {
			total = total.Add(o.Total)
		}
	}
	return total, nil
}

func (s *fakeStore) ListLowStockVariants(ctx context.Context, threshold int) ([]models.LowStockVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.LowStockVariant{}
	for _, v := range s.st.variants {
		if v.IsActive && v.Inventory <= threshold {
			out = append(out, models.LowStockVariant{
				VariantID: v.ID, SKU: v.SKU, ProductName: s.st.products[v.ProductID].name, Inventory: v.Inventory,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out, nil
}

// Payments

func (s *fakeStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment.ID = s.st.id()
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	s.st.payments[payment.ID] = *payment
	return nil
}

func (s *fakeStore) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Payment
	for _, p := range s.st.payments {
		if p.OrderID == orderID && (found == nil || p.ID > found.ID) {
			p := p
			found = &p
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: payment for order %d", store.ErrNotFound, orderID)
	}
	return found, nil
}

func (s *fakeStore) UpdatePaymentResult(ctx context.Context, paymentID int64, status, providerTxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.payments[paymentID]
	if !ok {
		return fmt.Errorf("%w: payment %d", store.ErrNotFound, paymentID)
	}
	p.Status = status
	p.ProviderTxID = providerTxID
	s.st.payments[paymentID] = p
	return nil
}

// fakeTx runs with fakeStore.mu held
type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) GetAddressForUser(ctx context.Context, userID, addressID int64) (*models.Address, error) {
	a, ok := t.s.st.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("%w: address %d", store.ErrNotFound, addressID)
	}
	return &a, nil
}

func (t *fakeTx) LockCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	st := t.s.st
	var lines []models.CartLine
	for _, item := range st.cart {
		if item.UserID != userID {
			continue
		}
		v := st.variants[item.VariantID]
		p := st.products[v.ProductID]
		lines = append(lines, models.CartLine{
			CartItemID:  item.ID,
			VariantID:   item.VariantID,
			Quantity:    item.Quantity,
			UnitPrice:   v.Price,
			SKU:         v.SKU,
			Size:        v.Size,
			Color:       v.Color,
			IsActive:    v.IsActive && p.active,
			ProductName: p.name,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].VariantID < lines[j].VariantID })

	if t.s.onCartLocked != nil {
		t.s.onCartLocked(st)
	}
	return lines, nil
}

func (t *fakeTx) DeleteCartItems(ctx context.Context, userID int64, itemIDs []int64) (int64, error) {
	var n int64
	for _, id := range itemIDs {
		if item, ok := t.s.st.cart[id]; ok && item.UserID == userID {
			delete(t.s.st.cart, id)
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) CreateOrder(ctx context.Context, order *models.Order) error {
	if len(t.s.createOrderErrs) > 0 {
		err := t.s.createOrderErrs[0]
		t.s.createOrderErrs = t.s.createOrderErrs[1:]
		return err
	}
	for _, o := range t.s.st.orders {
		if o.OrderNumber == order.OrderNumber {
			return store.ErrDuplicateOrderNumber
		}
		if order.IdempotencyKey != nil && o.IdempotencyKey != nil &&
			o.UserID == order.UserID && *o.IdempotencyKey == *order.IdempotencyKey {
			return store.ErrDuplicateIdempotencyKey
		}
	}
	order.ID = t.s.st.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	t.s.st.orders[order.ID] = *order
	return nil
}

func (t *fakeTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	item.ID = t.s.st.id()
	item.CreatedAt = time.Now()
	t.s.st.orderItems[item.OrderID] = append(t.s.st.orderItems[item.OrderID], *item)
	return nil
}

func (t *fakeTx) LockOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	o, ok := t.s.st.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order", store.ErrNotFound)
	}
	return &o, nil
}

func (t *fakeTx) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return append([]models.OrderItem{}, t.s.st.orderItems[orderID]...), nil
}

func (t *fakeTx) SetOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := t.s.updateOrder(orderID, func(o *models.Order) string {
		o.Status = status
		return ""
	})
	return err
}

func (t *fakeTx) SetOrderPaymentStatus(ctx context.Context, orderID int64, status string) error {
	_, err := t.s.updateOrder(orderID, func(o *models.Order) string {
		o.PaymentStatus = status
		return ""
	})
	return err
}

func (t *fakeTx) LockVariantStock(ctx context.Context, variantID int64) (int, error) {
	v, ok := t.s.st.variants[variantID]
	if !ok {
		return 0, fmt.Errorf("%w: variant %d", store.ErrNotFound, variantID)
	}
	return v.Inventory, nil
}

func (t *fakeTx) AdjustStock(ctx context.Context, adj models.StockAdjustment) (*models.InventoryLog, error) {
	st := t.s.st
	v, ok := st.variants[adj.VariantID]
	if !ok {
		return nil, fmt.Errorf("%w: variant %d", store.ErrNotFound, adj.VariantID)
	}
	if v.Inventory+adj.Delta < 0 {
		return nil, fmt.Errorf("%w: variant %d has %d, requested %d",
			store.ErrInsufficientStock, adj.VariantID, v.Inventory, -adj.Delta)
	}
	entry := models.InventoryLog{
		ID:            st.id(),
		VariantID:     adj.VariantID,
		Kind:          adj.Kind,
		Delta:         adj.Delta,
		PreviousStock: v.Inventory,
		NewStock:      v.Inventory + adj.Delta,
		Reason:        adj.Reason,
		Reference:     adj.Reference,
		CreatedAt:     time.Now(),
	}
	v.Inventory = entry.NewStock
	st.variants[v.ID] = v
	st.logs = append(st.logs, entry)
	return &entry, nil
}

func (t *fakeTx) HasLedgerEntries(ctx context.Context, kind, reference string) (bool, error) {
	for _, entry := range t.s.st.logs {
		if entry.Kind == kind && entry.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	t.s.st.processed[eventID] = eventType
	return nil
}

// fakePublisher records everything it is asked to publish
type fakePublisher struct {
	mu            sync.Mutex
	placed        []*models.OrderPlacedEvent
	statusChanged []*models.OrderStatusChangedEvent
	cancelled     []*models.OrderCancelledEvent
	adjusted      []*models.InventoryAdjustedEvent
	succeeded     []*models.PaymentSucceededEvent
	failed        []*models.PaymentFailedEvent
	paths         []string
	err           error
}

func (p *fakePublisher) record(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	fn()
	return nil
}

func (p *fakePublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	return p.record(func() { p.placed = append(p.placed, e) })
}

func (p *fakePublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	return p.record(func() { p.statusChanged = append(p.statusChanged, e) })
}

func (p *fakePublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	return p.record(func() { p.cancelled = append(p.cancelled, e) })
}

func (p *fakePublisher) PublishInventoryAdjusted(_ context.Context, e *models.InventoryAdjustedEvent) error {
	return p.record(func() { p.adjusted = append(p.adjusted, e) })
}

func (p *fakePublisher) PublishPaymentSucceeded(_ context.Context, e *models.PaymentSucceededEvent) error {
	return p.record(func() { p.succeeded = append(p.succeeded, e) })
}

func (p *fakePublisher) PublishPaymentFailed(_ context.Context, e *models.PaymentFailedEvent) error {
	return p.record(func() { p.failed = append(p.failed, e) })
}

func (p *fakePublisher) Revalidate(_ context.Context, paths ...string) error {
	return p.record(func() { p.paths = append(p.paths, paths...) })
}

func (p *fakePublisher) revalidated(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, got := range p.paths {
		if got == path {
			return true
		}
	}
	return false
}

type cachedStock struct {
	stock   int
	version int64
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[int64]cachedStock
	err     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[int64]cachedStock{}}
}

func (c *fakeCache) SetStock(_ context.Context, variantID int64, stock int, version int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if cur, ok := c.entries[variantID]; ok && version < cur.version {
		return false, nil
	}
	c.entries[variantID] = cachedStock{stock: stock, version: version}
	return true, nil
}

func (c *fakeCache) GetStock(_ context.Context, variantID int64) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, false, c.err
	}
	e, ok := c.entries[variantID]
	return e.stock, ok, nil
}

type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]string
	err   error
	count int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.count++
	token := fmt.Sprintf("token-%d", l.count)
	l.held[key] = token
	return token, true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type fakeGateway struct {
	mu      sync.Mutex
	results []error
	charges int
}

func (g *fakeGateway) Charge(_ context.Context, orderID int64, _ decimal.Decimal, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges++
	if len(g.results) > 0 {
		err := g.results[0]
		g.results = g.results[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("txn_%d", orderID), nil
}

// harness wires every service to the same fakes
type harness struct {
	store     *fakeStore
	publisher *fakePublisher
	cache     *fakeCache
	locker    *fakeLocker
	gateway   *fakeGateway
	cart      *CartService
	orders    *OrderService
	inventory *InventoryService
	admin     *AdminService
	payments  *PaymentService
	saga      *SagaOrchestrator
}

func newHarness() *harness {
	h := &harness{
		store:     newFakeStore(),
		publisher: &fakePublisher{},
		cache:     newFakeCache(),
		locker:    newFakeLocker(),
		gateway:   &fakeGateway{},
	}
	h.inventory = NewInventoryService(h.store, h.cache, h.publisher)
	h.cart = NewCartService(h.store, h.publisher)
	h.orders = NewOrderService(h.store, h.inventory, h.publisher, h.locker, OrderOptions{
		Pricing:           DefaultPricingRules(),
		OrderNumberPrefix: "ORD",
		CheckoutLockTTL:   time.Minute,
	})
	h.admin = NewAdminService(h.store, h.inventory, h.publisher, 5)
	h.payments = NewPaymentService(h.store, h.gateway, h.publisher)
	h.saga = NewSagaOrchestrator(h.store, h.orders, h.publisher)
	return h
}

func customer(id int64) *models.User {
	return &models.User{ID: id, Email: fmt.Sprintf("user%d@example.com", id), Role: models.RoleCustomer}
}

func adminUser() *models.User {
	return &models.User{ID: 900, Email: "admin@example.com", Role: models.RoleAdmin}
}

// checkoutInput creates both addresses for user and returns a valid standard COD checkout
func (h *harness) checkoutInput(user *models.User) CreateOrderInput {
	addr := h.store.addAddress(user.ID)
	return CreateOrderInput{
		ShippingAddressID: addr,
		BillingAddressID:  addr,
		ShippingMethod:    models.ShippingMethodStandard,
		PaymentMethod:     models.PaymentMethodCOD,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
