package payment

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"coin-wallet/internal/model"
	"coin-wallet/internal/store"
)

// fakeStore is an in-memory stand-in for the database with the same locking
// discipline: one mutex guards orders, balances and the ledger, so a
// settlement is observed either fully applied or not at all.
type fakeStore struct {
	mu       sync.Mutex
	orders   map[string]*model.PaymentOrder
	balances map[int64]int64
	ledger   []model.Transaction
	rates    map[int64]int

	nextOrderID int64
	createErrs  []error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[string]*model.PaymentOrder),
		balances: make(map[int64]int64),
	}
}

func (f *fakeStore) CreateOrder(o *model.PaymentOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := f.orders[o.OutTradeNo]; ok {
		return store.ErrDuplicate
	}
	f.nextOrderID++
	o.ID = f.nextOrderID
	cp := *o
	f.orders[o.OutTradeNo] = &cp
	return nil
}

func (f *fakeStore) GetOrderByTradeNo(outTradeNo string) (*model.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[outTradeNo]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) SettleOrder(outTradeNo, tradeNo string, paidAmount float64, timeout time.Duration, coinName string) (*model.SettleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[outTradeNo]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	if o.Status == model.OrderPaid {
		cp := *o
		return &model.SettleResult{Order: &cp, AlreadyPaid: true, NewBalance: f.balances[o.UserID]}, nil
	}
	if o.Status != model.OrderPending {
		return nil, store.ErrOrderNotPending
	}
	if o.ExpiredByTime(timeout, time.Now().UTC()) {
		o.Status = model.OrderExpired
		return nil, store.ErrOrderExpired
	}
	if !store.AmountWithinTolerance(o.ActualPrice, paidAmount) {
		return nil, store.ErrAmountMismatch
	}

	now := time.Now().UTC()
	o.Status = model.OrderPaid
	o.TradeNo = tradeNo
	o.PaidAt = &now

	f.balances[o.UserID] += o.CoinAmount
	f.ledger = append(f.ledger, model.Transaction{
		ID:              int64(len(f.ledger) + 1),
		UserID:          o.UserID,
		Amount:          o.CoinAmount,
		BalanceAfter:    f.balances[o.UserID],
		Reason:          "Recharge " + coinName,
		TransactionType: model.TypeRecharge,
		OutTradeNo:      o.OutTradeNo,
		CreatedAt:       now,
	})

	cp := *o
	return &model.SettleResult{Order: &cp, NewBalance: f.balances[o.UserID]}, nil
}

func (f *fakeStore) GetPendingOrder(userID int64, timeout time.Duration) (*model.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var newest *model.PaymentOrder
	for _, o := range f.orders {
		if o.UserID != userID || o.Status != model.OrderPending {
			continue
		}
		if o.ExpiredByTime(timeout, time.Now().UTC()) {
			o.Status = model.OrderExpired
			continue
		}
		if newest == nil || o.CreatedAt.After(newest.CreatedAt) {
			newest = o
		}
	}
	if newest == nil {
		return nil, store.ErrOrderNotFound
	}
	cp := *newest
	return &cp, nil
}

func (f *fakeStore) GetOrderStatus(outTradeNo string, userID int64, timeout time.Duration) (*model.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[outTradeNo]
	if !ok || o.UserID != userID {
		return nil, store.ErrOrderNotFound
	}
	if o.Status == model.OrderPending && o.ExpiredByTime(timeout, time.Now().UTC()) {
		o.Status = model.OrderExpired
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrders(userID int64, limit int) ([]model.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PaymentOrder
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ExpirePendingOrders(timeout time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, o := range f.orders {
		if o.Status == model.OrderPending && o.ExpiredByTime(timeout, time.Now().UTC()) {
			o.Status = model.OrderExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) AdjustBalance(userID, amount int64, reason string, ttype model.TType) (*model.BalanceChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old := f.balances[userID]
	if old+amount < 0 {
		return nil, store.ErrInsufficientFunds
	}
	f.balances[userID] = old + amount
	f.ledger = append(f.ledger, model.Transaction{
		ID:              int64(len(f.ledger) + 1),
		UserID:          userID,
		Amount:          amount,
		BalanceAfter:    old + amount,
		Reason:          reason,
		TransactionType: ttype,
		CreatedAt:       time.Now().UTC(),
	})
	return &model.BalanceChange{UserID: userID, Amount: amount, OldBalance: old, NewBalance: old + amount}, nil
}

func (f *fakeStore) GetOrCreateBalance(userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID], nil
}

func (f *fakeStore) GetUserDiscountRate(userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rates == nil {
		return 100, nil
	}
	if r, ok := f.rates[userID]; ok {
		return r, nil
	}
	return 100, nil
}

func newTestService(f *fakeStore) *Service {
	return NewService(f, f, f, 2*time.Minute, "Coin")
}

func TestNewTradeNoFormat(t *testing.T) {
	re := regexp.MustCompile(`^COIN\d{14}[0-9A-F]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		no := NewTradeNo()
		if !re.MatchString(no) {
			t.Fatalf("trade number %q does not match the expected shape", no)
		}
		if seen[no] {
			t.Fatalf("trade number %q repeated within 100 draws", no)
		}
		seen[no] = true
	}
}

type brokenReader struct{}

func (brokenReader) Read(p []byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestTradeSuffix(t *testing.T) {
	if got := tradeSuffix(bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef})); got != "DEADBEEF" {
		t.Errorf("tradeSuffix = %s, want DEADBEEF", got)
	}

	re := regexp.MustCompile(`^[0-9A-F]{8}$`)
	got := tradeSuffix(brokenReader{})
	if !re.MatchString(got) {
		t.Fatalf("fallback suffix %q is not 8 uppercase hex chars", got)
	}
	if got == "00000000" {
		t.Error("fallback suffix must not collapse to all zeros")
	}
}

func TestCreateOrderAppliesDiscount(t *testing.T) {
	f := newFakeStore()
	f.rates = map[int64]int{7: 85}
	svc := newTestService(f)

	pkg := &model.RechargePackage{ID: 1, CoinAmount: 100, Price: 10.00}
	order, err := svc.CreateOrder(7, pkg, "alipay")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.OriginalPrice != 10.00 {
		t.Errorf("OriginalPrice = %v, want 10.00", order.OriginalPrice)
	}
	if order.ActualPrice != 8.50 {
		t.Errorf("ActualPrice = %v, want 8.50", order.ActualPrice)
	}
	if order.DiscountRate != 85 {
		t.Errorf("DiscountRate = %d, want 85", order.DiscountRate)
	}
	if order.Status != model.OrderPending {
		t.Errorf("Status = %s, want pending", order.Status)
	}
}

func TestCreateCustomOrderBounds(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	for _, coins := range []int64{0, -5, MaxCustomCoins + 1} {
		if _, err := svc.CreateCustomOrder(1, coins, "alipay"); !errors.Is(err, ErrCoinBounds) {
			t.Errorf("CreateCustomOrder(%d): expected ErrCoinBounds, got %v", coins, err)
		}
	}

	order, err := svc.CreateCustomOrder(1, 250, "alipay")
	if err != nil {
		t.Fatalf("CreateCustomOrder failed: %v", err)
	}
	if order.CoinAmount != 250 || order.OriginalPrice != 250.0 {
		t.Errorf("custom order = %+v, want 250 coins at list price 250.00", order)
	}
}

func TestCreateOrderRetriesOnDuplicateTradeNo(t *testing.T) {
	f := newFakeStore()
	f.createErrs = []error{store.ErrDuplicate, store.ErrDuplicate}
	svc := newTestService(f)

	order, err := svc.CreateCustomOrder(1, 10, "alipay")
	if err != nil {
		t.Fatalf("expected the collision to be retried, got %v", err)
	}
	if order == nil || order.Status != model.OrderPending {
		t.Fatalf("unexpected order after retry: %+v", order)
	}

	f2 := newFakeStore()
	f2.createErrs = []error{store.ErrDuplicate, store.ErrDuplicate, store.ErrDuplicate}
	svc2 := newTestService(f2)
	if _, err := svc2.CreateCustomOrder(1, 10, "alipay"); !errors.Is(err, ErrTradeNoBusy) {
		t.Fatalf("expected ErrTradeNoBusy after exhausting retries, got %v", err)
	}
}

func TestProcessPaymentSuccessCredits(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	order, err := svc.CreateCustomOrder(3, 100, "alipay")
	if err != nil {
		t.Fatalf("CreateCustomOrder failed: %v", err)
	}

	result, err := svc.ProcessPaymentSuccess(order.OutTradeNo, "GW-1", "100.00")
	if err != nil {
		t.Fatalf("ProcessPaymentSuccess failed: %v", err)
	}
	if result.AlreadyPaid {
		t.Error("first settlement must not report AlreadyPaid")
	}
	if result.NewBalance != 100 {
		t.Errorf("NewBalance = %d, want 100", result.NewBalance)
	}
	if result.Order.Status != model.OrderPaid {
		t.Errorf("order status = %s, want paid", result.Order.Status)
	}
	if result.Order.TradeNo != "GW-1" {
		t.Errorf("gateway trade number not recorded: %q", result.Order.TradeNo)
	}
	if len(f.ledger) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(f.ledger))
	}
	if f.ledger[0].TransactionType != model.TypeRecharge || f.ledger[0].BalanceAfter != 100 {
		t.Errorf("unexpected ledger entry: %+v", f.ledger[0])
	}
}

func TestProcessPaymentSuccessIdempotent(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	order, _ := svc.CreateCustomOrder(3, 100, "alipay")
	if _, err := svc.ProcessPaymentSuccess(order.OutTradeNo, "GW-1", "100.00"); err != nil {
		t.Fatalf("first settlement failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		result, err := svc.ProcessPaymentSuccess(order.OutTradeNo, "GW-1", "100.00")
		if err != nil {
			t.Fatalf("replay %d failed: %v", i, err)
		}
		if !result.AlreadyPaid {
			t.Fatalf("replay %d must report AlreadyPaid", i)
		}
	}

	if got := f.balances[3]; got != 100 {
		t.Errorf("balance = %d after replays, want a single credit of 100", got)
	}
	if len(f.ledger) != 1 {
		t.Errorf("ledger grew on replay: %d entries", len(f.ledger))
	}
}

func TestProcessPaymentSuccessConcurrentDelivery(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	order, _ := svc.CreateCustomOrder(5, 500, "alipay")

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ProcessPaymentSuccess(order.OutTradeNo, "GW-9", "500.00")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d failed: %v", i, err)
		}
	}
	if got := f.balances[5]; got != 500 {
		t.Errorf("balance = %d after concurrent delivery, want 500", got)
	}
	if len(f.ledger) != 1 {
		t.Errorf("expected one ledger entry, got %d", len(f.ledger))
	}
}

func TestProcessPaymentSuccessAmountMismatch(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	order, _ := svc.CreateCustomOrder(3, 100, "alipay")

	if _, err := svc.ProcessPaymentSuccess(order.OutTradeNo, "GW-1", "50.00"); !errors.Is(err, store.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if f.balances[3] != 0 {
		t.Error("mismatched payment must not credit")
	}

	if _, err := svc.ProcessPaymentSuccess(order.OutTradeNo, "GW-1", "99.98"); !errors.Is(err, store.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch two cents off, got %v", err)
	}

	// One cent either way is inside the tolerance.
	if _, err := svc.ProcessPaymentSuccess(order.OutTradeNo, "GW-1", "99.99"); err != nil {
		t.Fatalf("payment within tolerance rejected: %v", err)
	}
	if f.balances[3] != 100 {
		t.Errorf("balance = %d, want 100", f.balances[3])
	}
}

func TestProcessPaymentSuccessFailedOrder(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	order, _ := svc.CreateCustomOrder(3, 100, "alipay")
	f.mu.Lock()
	f.orders[order.OutTradeNo].Status = model.OrderFailed
	f.mu.Unlock()

	if _, err := svc.ProcessPaymentSuccess(order.OutTradeNo, "GW-1", "100.00"); !errors.Is(err, store.ErrOrderNotPending) {
		t.Fatalf("expected ErrOrderNotPending, got %v", err)
	}
	if f.balances[3] != 0 {
		t.Error("a failed order must never credit")
	}
	if len(f.ledger) != 0 {
		t.Errorf("ledger grew for a failed order: %d entries", len(f.ledger))
	}

	got, err := svc.GetOrderStatus(order.OutTradeNo, 3)
	if err != nil {
		t.Fatalf("GetOrderStatus failed: %v", err)
	}
	if got.Status != model.OrderFailed {
		t.Errorf("order status = %s, failed must stay terminal", got.Status)
	}
}

func TestProcessPaymentSuccessBadAmount(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	if _, err := svc.ProcessPaymentSuccess("COINX", "GW-1", "not-a-number"); !errors.Is(err, ErrBadAmount) {
		t.Fatalf("expected ErrBadAmount, got %v", err)
	}
	if _, err := svc.ProcessPaymentSuccess("COINX", "GW-1", ""); !errors.Is(err, ErrBadAmount) {
		t.Fatalf("expected ErrBadAmount for empty money, got %v", err)
	}
}

func TestProcessPaymentSuccessUnknownOrder(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	if _, err := svc.ProcessPaymentSuccess("COINMISSING", "GW-1", "1.00"); !errors.Is(err, store.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestProcessPaymentSuccessExpiredOrder(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	order, _ := svc.CreateCustomOrder(3, 100, "alipay")
	f.mu.Lock()
	f.orders[order.OutTradeNo].CreatedAt = time.Now().UTC().Add(-3 * time.Minute)
	f.mu.Unlock()

	if _, err := svc.ProcessPaymentSuccess(order.OutTradeNo, "GW-1", "100.00"); !errors.Is(err, store.ErrOrderExpired) {
		t.Fatalf("expected ErrOrderExpired, got %v", err)
	}
	if f.balances[3] != 0 {
		t.Error("expired order must not credit")
	}

	got, err := svc.GetOrderStatus(order.OutTradeNo, 3)
	if err != nil {
		t.Fatalf("GetOrderStatus failed: %v", err)
	}
	if got.Status != model.OrderExpired {
		t.Errorf("order status = %s, want expired", got.Status)
	}
}

func TestAdjustRejectsOverdraft(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	if _, err := svc.Adjust(9, 50, "grant", model.TypeAdminAdjust); err != nil {
		t.Fatalf("credit adjustment failed: %v", err)
	}
	if _, err := svc.Adjust(9, -80, "revoke", model.TypeAdminAdjust); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if f.balances[9] != 50 {
		t.Errorf("balance = %d after rejected debit, want 50", f.balances[9])
	}

	change, err := svc.Adjust(9, -50, "spend all", model.TypeConsumption)
	if err != nil {
		t.Fatalf("debit to exactly zero failed: %v", err)
	}
	if change.NewBalance != 0 {
		t.Errorf("NewBalance = %d, want 0", change.NewBalance)
	}
}

func TestLedgerBalanceAfterChain(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	order, _ := svc.CreateCustomOrder(4, 200, "alipay")
	if _, err := svc.ProcessPaymentSuccess(order.OutTradeNo, "GW-1", "200.00"); err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if _, err := svc.Adjust(4, 30, "bonus", model.TypeAdminAdjust); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if _, err := svc.Adjust(4, -70, "purchase", model.TypeConsumption); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	var running int64
	for i, tx := range f.ledger {
		running += tx.Amount
		if tx.BalanceAfter != running {
			t.Errorf("entry %d: balance_after = %d, running sum = %d", i, tx.BalanceAfter, running)
		}
	}
	if running != f.balances[4] {
		t.Errorf("ledger sum %d does not match stored balance %d", running, f.balances[4])
	}
}

func TestGetPendingOrder(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	order, err := svc.GetPendingOrder(1)
	if err != nil {
		t.Fatalf("GetPendingOrder on empty store failed: %v", err)
	}
	if order != nil {
		t.Fatal("expected nil order when nothing is pending")
	}

	created, _ := svc.CreateCustomOrder(1, 10, "alipay")
	order, err = svc.GetPendingOrder(1)
	if err != nil {
		t.Fatalf("GetPendingOrder failed: %v", err)
	}
	if order == nil || order.OutTradeNo != created.OutTradeNo {
		t.Fatalf("pending order lookup mismatch: %+v", order)
	}

	f.mu.Lock()
	f.orders[created.OutTradeNo].CreatedAt = time.Now().UTC().Add(-3 * time.Minute)
	f.mu.Unlock()

	order, err = svc.GetPendingOrder(1)
	if err != nil {
		t.Fatalf("GetPendingOrder after timeout failed: %v", err)
	}
	if order != nil {
		t.Error("timed-out order must not be reported as pending")
	}
}

func TestExpirePendingOrdersSweep(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	stale, _ := svc.CreateCustomOrder(1, 10, "alipay")
	fresh, _ := svc.CreateCustomOrder(2, 10, "alipay")

	f.mu.Lock()
	f.orders[stale.OutTradeNo].CreatedAt = time.Now().UTC().Add(-10 * time.Minute)
	f.mu.Unlock()

	n, err := svc.ExpirePendingOrders()
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d orders, want 1", n)
	}

	got, _ := svc.GetOrderStatus(fresh.OutTradeNo, 2)
	if got.Status != model.OrderPending {
		t.Errorf("fresh order was swept: %s", got.Status)
	}
}
