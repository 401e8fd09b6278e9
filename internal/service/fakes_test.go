package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// In-memory fakes for the domain interfaces, shared by the service tests.

type fakePositionStore struct {
	mu        sync.Mutex
	nextID    int64
	positions map[int64]domain.Position
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{positions: make(map[int64]domain.Position)}
}

func (f *fakePositionStore) Mint(_ context.Context, pos domain.Position) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	pos.ID = f.nextID
	f.positions[pos.ID] = pos
	return pos.ID, nil
}

func (f *fakePositionStore) GetByID(_ context.Context, id int64) (domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (f *fakePositionStore) TransferOwnership(_ context.Context, id int64, newOwner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	pos.Owner = newOwner
	f.positions[id] = pos
	return nil
}

func (f *fakePositionStore) MarkSettled(_ context.Context, id int64, amount int64, settledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if pos.Settled {
		return domain.ErrAlreadySettled
	}
	pos.Settled = true
	pos.SettledAt = &settledAt
	pos.PayoutAmount = &amount
	f.positions[id] = pos
	return nil
}

func (f *fakePositionStore) UnmarkSettled(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[id]
	if !ok || !pos.Settled {
		return domain.ErrNotFound
	}
	pos.Settled = false
	pos.SettledAt = nil
	pos.PayoutAmount = nil
	f.positions[id] = pos
	return nil
}

func (f *fakePositionStore) ListDue(_ context.Context, now time.Time, afterID int64, limit int) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []domain.Position
	for _, pos := range f.positions {
		if pos.Due(now) && pos.ID > afterID {
			due = append(due, pos)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakePositionStore) ListByOwner(_ context.Context, owner string, _ domain.ListOpts) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Position
	for _, pos := range f.positions {
		if pos.Owner == owner {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakePositionStore) ListSettledBefore(_ context.Context, before time.Time) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Position
	for _, pos := range f.positions {
		if pos.Settled && pos.SettledAt != nil && pos.SettledAt.Before(before) {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePositionStore) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.positions)), nil
}

type fakeSettlementStore struct {
	mu      sync.Mutex
	records []domain.Settlement
}

func (f *fakeSettlementStore) InsertBatch(_ context.Context, settlements []domain.Settlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, settlements...)
	return nil
}

func (f *fakeSettlementStore) ListRecent(_ context.Context, limit int) ([]domain.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Settlement, n)
	copy(out, f.records[len(f.records)-n:])
	return out, nil
}

type fakeCustodyStore struct {
	mu      sync.Mutex
	native  int64
	entries []domain.CustodyEntry
}

func (f *fakeCustodyStore) NativeBalance(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.native, nil
}

func (f *fakeCustodyStore) Credit(_ context.Context, amount int64, account, kind, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.native += amount
	f.entries = append(f.entries, domain.CustodyEntry{Kind: kind, Account: account, Amount: amount, Reference: reference})
	return nil
}

func (f *fakeCustodyStore) Debit(_ context.Context, amount int64, account, kind, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.native < amount {
		return domain.ErrInsufficientFunds
	}
	f.native -= amount
	f.entries = append(f.entries, domain.CustodyEntry{Kind: kind, Account: account, Amount: amount, Reference: reference})
	return nil
}

func (f *fakeCustodyStore) Record(_ context.Context, e domain.CustodyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeCustodyStore) ListEntries(_ context.Context, _ domain.ListOpts) ([]domain.CustodyEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CustodyEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

type fakeTokenLedger struct {
	mu         sync.Mutex
	balances   map[string]int64
	allowances map[string]int64 // owner|spender
	transfers  int
	failNext   error
}

func newFakeTokenLedger() *fakeTokenLedger {
	return &fakeTokenLedger{
		balances:   make(map[string]int64),
		allowances: make(map[string]int64),
	}
}

func (f *fakeTokenLedger) BalanceOf(_ context.Context, account string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[account], nil
}

func (f *fakeTokenLedger) Allowance(_ context.Context, owner, spender string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowances[owner+"|"+spender], nil
}

func (f *fakeTokenLedger) Transfer(_ context.Context, to string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	if f.balances["custody"] < amount {
		return domain.ErrInsufficientFunds
	}
	f.balances["custody"] -= amount
	f.balances[to] += amount
	f.transfers++
	return nil
}

func (f *fakeTokenLedger) TransferFrom(_ context.Context, from, to string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := from + "|" + to
	if f.allowances[key] < amount {
		return domain.ErrAllowanceExceeded
	}
	if f.balances[from] < amount {
		return domain.ErrInsufficientFunds
	}
	f.allowances[key] -= amount
	f.balances[from] -= amount
	f.balances[to] += amount
	return nil
}

type fakePriceCache struct {
	mu    sync.Mutex
	quote domain.PriceQuote
	set   bool
}

func (f *fakePriceCache) SetQuote(_ context.Context, quote domain.PriceQuote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quote = quote
	f.set = true
	return nil
}

func (f *fakePriceCache) GetQuote(_ context.Context) (domain.PriceQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return f.quote, nil
}

type fakeFeed struct {
	quote domain.PriceQuote
	err   error
	calls int
}

func (f *fakeFeed) LatestPrice(_ context.Context) (domain.PriceQuote, error) {
	f.calls++
	if f.err != nil {
		return domain.PriceQuote{}, f.err
	}
	return f.quote, nil
}

type fakeLockManager struct {
	mu   sync.Mutex
	held bool
	err  error
}

func (f *fakeLockManager) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.held = true
	return func() {
		f.mu.Lock()
		f.held = false
		f.mu.Unlock()
	}, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamed[stream] = append(f.streamed[stream], payload)
	return nil
}

func (f *fakeBus) StreamRead(_ context.Context, _ string, _ string, _ int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}
