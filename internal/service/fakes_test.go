package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePendingStore struct {
	mu      sync.Mutex
	markets map[string]domain.PendingMarket
}

func newFakePendingStore() *fakePendingStore {
	return &fakePendingStore{markets: make(map[string]domain.PendingMarket)}
}

func (f *fakePendingStore) Upsert(_ context.Context, pm domain.PendingMarket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[pm.PolyID] = pm
	return nil
}

func (f *fakePendingStore) GetByPolyID(_ context.Context, polyID string) (domain.PendingMarket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pm, ok := f.markets[polyID]
	if !ok {
		return domain.PendingMarket{}, domain.ErrNotFound
	}
	return pm, nil
}

func (f *fakePendingStore) ListUnposted(_ context.Context, limit int) ([]domain.PendingMarket, error) {
	return f.filter(func(pm domain.PendingMarket) bool { return !pm.Posted }, limit), nil
}

func (f *fakePendingStore) ListPosted(_ context.Context) ([]domain.PendingMarket, error) {
	return f.filter(func(pm domain.PendingMarket) bool { return pm.Posted }, 0), nil
}

func (f *fakePendingStore) filter(keep func(domain.PendingMarket) bool, limit int) []domain.PendingMarket {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PendingMarket
	for _, pm := range f.markets {
		if keep(pm) {
			out = append(out, pm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolyID < out[j].PolyID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakePendingStore) MarkPosted(_ context.Context, polyID, slackMsgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pm, ok := f.markets[polyID]
	if !ok {
		return domain.ErrNotFound
	}
	pm.Posted = true
	pm.SlackMessageID = slackMsgID
	f.markets[polyID] = pm
	return nil
}

func (f *fakePendingStore) Delete(_ context.Context, polyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.markets, polyID)
	return nil
}

func (f *fakePendingStore) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.markets)), nil
}

type fakeMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
	byPoly  map[string]string
}

func newFakeMarketStore() *fakeMarketStore {
	return &fakeMarketStore{
		markets: make(map[string]domain.Market),
		byPoly:  make(map[string]string),
	}
}

func (f *fakeMarketStore) Create(_ context.Context, m domain.Market) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byPoly[m.OriginalMarketID]; ok {
		return domain.ErrAlreadyExists
	}
	f.markets[m.ID] = m
	f.byPoly[m.OriginalMarketID] = m.ID
	return nil
}

func (f *fakeMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarketStore) GetByPolyID(_ context.Context, polyID string) (domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPoly[polyID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return f.markets[id], nil
}

func (f *fakeMarketStore) UpdateStatus(_ context.Context, id string, status domain.MarketStatus) error {
	return f.update(id, func(m *domain.Market) { m.Status = status })
}

func (f *fakeMarketStore) SetSlackMessage(_ context.Context, id, slackMsgID string) error {
	return f.update(id, func(m *domain.Market) { m.SlackMessageID = slackMsgID })
}

func (f *fakeMarketStore) SetDeployment(_ context.Context, id, apechainMarketID, txHash string, status domain.MarketStatus) error {
	return f.update(id, func(m *domain.Market) {
		m.ApechainMarketID = apechainMarketID
		m.BlockchainTx = txHash
		m.Status = status
	})
}

func (f *fakeMarketStore) SetFailure(_ context.Context, id, txHash, reason string) error {
	return f.update(id, func(m *domain.Market) {
		m.BlockchainTx = txHash
		m.FailureReason = reason
		m.Status = domain.StatusDeploymentFailed
	})
}

func (f *fakeMarketStore) update(id string, mutate func(*domain.Market)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	mutate(&m)
	f.markets[id] = m
	return nil
}

func (f *fakeMarketStore) ListByStatus(_ context.Context, status domain.MarketStatus, _ domain.ListOpts) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Market
	for _, m := range f.markets {
		if m.Status == status {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeMarketStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Market
	for _, m := range f.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeMarketStore) CountByStatus(_ context.Context) (map[domain.MarketStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[domain.MarketStatus]int64)
	for _, m := range f.markets {
		counts[m.Status]++
	}
	return counts, nil
}

type fakeApprovalLog struct {
	mu      sync.Mutex
	entries map[string]domain.ApprovalLog
}

func newFakeApprovalLog() *fakeApprovalLog {
	return &fakeApprovalLog{entries: make(map[string]domain.ApprovalLog)}
}

func logKey(polyID string, stage domain.ApprovalStage) string {
	return polyID + "/" + string(stage)
}

func (f *fakeApprovalLog) Record(_ context.Context, entry domain.ApprovalLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := logKey(entry.PolyID, entry.Stage)
	if _, ok := f.entries[key]; ok {
		return domain.ErrAlreadyDecided
	}
	f.entries[key] = entry
	return nil
}

func (f *fakeApprovalLog) GetByPolyID(_ context.Context, polyID string, stage domain.ApprovalStage) (domain.ApprovalLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[logKey(polyID, stage)]
	if !ok {
		return domain.ApprovalLog{}, domain.ErrNotFound
	}
	return entry, nil
}

func (f *fakeApprovalLog) List(_ context.Context, _ domain.ListOpts) ([]domain.ApprovalLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ApprovalLog
	for _, entry := range f.entries {
		out = append(out, entry)
	}
	return out, nil
}

type fakeProcessedStore struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func newFakeProcessedStore() *fakeProcessedStore {
	return &fakeProcessedStore{outcomes: make(map[string]string)}
}

func (f *fakeProcessedStore) MarkProcessed(_ context.Context, key, outcome string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[key] = outcome
	return nil
}

func (f *fakeProcessedStore) IsProcessed(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.outcomes[key]
	return ok, nil
}

func (f *fakeProcessedStore) FilterProcessed(_ context.Context, keys []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		_, ok := f.outcomes[k]
		out[k] = ok
	}
	return out, nil
}

func (f *fakeProcessedStore) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.outcomes)), nil
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	posted    []string
	reactions map[string]domain.ReactionSet
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{reactions: make(map[string]domain.ReactionSet)}
}

func (f *fakeMessenger) PostApproval(_ context.Context, pm domain.PendingMarket) (string, error) {
	return f.post(pm.PolyID)
}

func (f *fakeMessenger) PostDeployment(_ context.Context, m domain.Market) (string, error) {
	return f.post(m.ID)
}

func (f *fakeMessenger) post(ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	f.posted = append(f.posted, ref)
	return id, nil
}

func (f *fakeMessenger) Reactions(_ context.Context, msgID string) (domain.ReactionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.reactions[msgID]
	if !ok {
		return domain.ReactionSet{}, nil
	}
	return set, nil
}

func (f *fakeMessenger) setReactions(msgID string, set domain.ReactionSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[msgID] = set
}

func (f *fakeMessenger) React(_ context.Context, _, _ string) error { return nil }

func (f *fakeMessenger) Delete(_ context.Context, _ string) error { return nil }

// fakeDeployer returns scripted outcomes keyed by market id.
type fakeDeployer struct {
	receipts map[string]domain.DeployReceipt
	errs     map[string]error
	resolve  map[string]string
	resolveE map[string]error
}

func newFakeDeployer() *fakeDeployer {
	return &fakeDeployer{
		receipts: make(map[string]domain.DeployReceipt),
		errs:     make(map[string]error),
		resolve:  make(map[string]string),
		resolveE: make(map[string]error),
	}
}

func (f *fakeDeployer) Deploy(_ context.Context, m domain.Market) (domain.DeployReceipt, error) {
	if err, ok := f.errs[m.ID]; ok {
		return domain.DeployReceipt{}, err
	}
	return f.receipts[m.ID], nil
}

func (f *fakeDeployer) ResolveMarketID(_ context.Context, txHash string) (string, error) {
	if err, ok := f.resolveE[txHash]; ok {
		return "", err
	}
	id, ok := f.resolve[txHash]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}
