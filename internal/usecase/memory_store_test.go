package usecase

import (
	"context"
	"errors"
	"sort"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/ports"
)

type shareKey struct {
	owner   domain.AccountID
	trustee domain.AccountID
}

// memoryState はテスト用のインメモリ・レジャー状態。
type memoryState struct {
	height     uint64
	identities map[domain.AccountID]domain.IdentityRecord
	didIndex   map[domain.DID]domain.AccountID
	configs    map[domain.AccountID]domain.RecoveryConfig
	shares     map[shareKey]domain.TrusteeShare
	recoveries map[domain.AccountID]domain.RecoveryRequest
	deposits   map[domain.AccountID]domain.Balance
	balances   map[domain.AccountID]domain.AccountBalance
	events     []domain.Event
}

func newMemoryState() *memoryState {
	return &memoryState{
		identities: map[domain.AccountID]domain.IdentityRecord{},
		didIndex:   map[domain.DID]domain.AccountID{},
		configs:    map[domain.AccountID]domain.RecoveryConfig{},
		shares:     map[shareKey]domain.TrusteeShare{},
		recoveries: map[domain.AccountID]domain.RecoveryRequest{},
		deposits:   map[domain.AccountID]domain.Balance{},
		balances:   map[domain.AccountID]domain.AccountBalance{},
	}
}

func (m *memoryState) clone() *memoryState {
	c := newMemoryState()
	c.height = m.height
	for k, v := range m.identities {
		v.Metadata = append([]byte(nil), v.Metadata...)
		c.identities[k] = v
	}
	for k, v := range m.didIndex {
		c.didIndex[k] = v
	}
	for k, v := range m.configs {
		c.configs[k] = v
	}
	for k, v := range m.shares {
		v.Share = append([]byte(nil), v.Share...)
		c.shares[k] = v
	}
	for k, v := range m.recoveries {
		c.recoveries[k] = v
	}
	for k, v := range m.deposits {
		c.deposits[k] = v
	}
	for k, v := range m.balances {
		c.balances[k] = v
	}
	c.events = append([]domain.Event(nil), m.events...)
	return c
}

// memoryStore は Atomic の失敗時にスナップショットへ巻き戻すテスト用ストア。
type memoryStore struct {
	state     *memoryState
	failAfter int // >0 の場合、その回数の書き込み後にエラーを返す
	writes    int
}

var errInjected = errors.New("injected store failure")

func newMemoryStore() *memoryStore {
	return &memoryStore{state: newMemoryState()}
}

func (s *memoryStore) Atomic(ctx context.Context, fn func(tx ports.Ledger) error) error {
	snapshot := s.state.clone()
	s.writes = 0
	if err := fn(&memoryLedger{store: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *memoryStore) fund(account domain.AccountID, amount domain.Balance) {
	b := s.state.balances[account]
	b.Account = account
	b.Free += amount
	s.state.balances[account] = b
}

type memoryLedger struct {
	store *memoryStore
}

func (l *memoryLedger) st() *memoryState { return l.store.state }

func (l *memoryLedger) write() error {
	l.store.writes++
	if l.store.failAfter > 0 && l.store.writes >= l.store.failAfter {
		return errInjected
	}
	return nil
}

func (l *memoryLedger) CurrentHeight(ctx context.Context) (uint64, error) {
	return l.st().height, nil
}

func (l *memoryLedger) FindIdentity(ctx context.Context, account domain.AccountID) (*domain.IdentityRecord, error) {
	r, ok := l.st().identities[account]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (l *memoryLedger) SaveIdentity(ctx context.Context, record *domain.IdentityRecord) error {
	if err := l.write(); err != nil {
		return err
	}
	l.st().identities[record.Account] = *record
	return nil
}

func (l *memoryLedger) FindAccountByDID(ctx context.Context, did domain.DID) (domain.AccountID, bool, error) {
	a, ok := l.st().didIndex[did]
	return a, ok, nil
}

func (l *memoryLedger) PutDIDIndex(ctx context.Context, did domain.DID, account domain.AccountID) error {
	if err := l.write(); err != nil {
		return err
	}
	l.st().didIndex[did] = account
	return nil
}

func (l *memoryLedger) DeleteDIDIndex(ctx context.Context, did domain.DID) error {
	delete(l.st().didIndex, did)
	return nil
}

func (l *memoryLedger) FindRecoveryConfig(ctx context.Context, owner domain.AccountID) (*domain.RecoveryConfig, error) {
	c, ok := l.st().configs[owner]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (l *memoryLedger) SaveRecoveryConfig(ctx context.Context, cfg *domain.RecoveryConfig) error {
	if err := l.write(); err != nil {
		return err
	}
	l.st().configs[cfg.Owner] = *cfg
	return nil
}

func (l *memoryLedger) DeleteRecoveryConfig(ctx context.Context, owner domain.AccountID) error {
	delete(l.st().configs, owner)
	return nil
}

func (l *memoryLedger) FindTrusteeShare(ctx context.Context, owner, trustee domain.AccountID) (*domain.TrusteeShare, error) {
	s, ok := l.st().shares[shareKey{owner, trustee}]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (l *memoryLedger) ListTrusteeShares(ctx context.Context, owner domain.AccountID) ([]*domain.TrusteeShare, error) {
	var out []*domain.TrusteeShare
	for k, v := range l.st().shares {
		if k.owner == owner {
			v := v
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trustee < out[j].Trustee })
	return out, nil
}

func (l *memoryLedger) SaveTrusteeShare(ctx context.Context, share *domain.TrusteeShare) error {
	if err := l.write(); err != nil {
		return err
	}
	l.st().shares[shareKey{share.Owner, share.Trustee}] = *share
	return nil
}

func (l *memoryLedger) DeleteTrusteeShare(ctx context.Context, owner, trustee domain.AccountID) error {
	delete(l.st().shares, shareKey{owner, trustee})
	return nil
}

func (l *memoryLedger) FindActiveRecovery(ctx context.Context, lost domain.AccountID) (*domain.RecoveryRequest, error) {
	r, ok := l.st().recoveries[lost]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (l *memoryLedger) SaveActiveRecovery(ctx context.Context, req *domain.RecoveryRequest) error {
	if err := l.write(); err != nil {
		return err
	}
	l.st().recoveries[req.LostAccount] = *req
	return nil
}

func (l *memoryLedger) DeleteActiveRecovery(ctx context.Context, lost domain.AccountID) error {
	delete(l.st().recoveries, lost)
	return nil
}

func (l *memoryLedger) FindRecoveryDeposit(ctx context.Context, owner domain.AccountID) (domain.Balance, bool, error) {
	d, ok := l.st().deposits[owner]
	return d, ok, nil
}

func (l *memoryLedger) SaveRecoveryDeposit(ctx context.Context, owner domain.AccountID, amount domain.Balance) error {
	if err := l.write(); err != nil {
		return err
	}
	l.st().deposits[owner] = amount
	return nil
}

func (l *memoryLedger) DeleteRecoveryDeposit(ctx context.Context, owner domain.AccountID) error {
	delete(l.st().deposits, owner)
	return nil
}

func (l *memoryLedger) Reserve(ctx context.Context, account domain.AccountID, amount domain.Balance) error {
	b := l.st().balances[account]
	if b.Free < amount {
		return domain.ErrInsufficientBalance
	}
	if err := l.write(); err != nil {
		return err
	}
	b.Account = account
	b.Free -= amount
	b.Reserved += amount
	l.st().balances[account] = b
	return nil
}

func (l *memoryLedger) Unreserve(ctx context.Context, account domain.AccountID, amount domain.Balance) (domain.Balance, error) {
	b := l.st().balances[account]
	actual := amount
	if actual > b.Reserved {
		actual = b.Reserved
	}
	b.Account = account
	b.Reserved -= actual
	b.Free += actual
	l.st().balances[account] = b
	return amount - actual, nil
}

func (l *memoryLedger) FindBalance(ctx context.Context, account domain.AccountID) (*domain.AccountBalance, error) {
	b := l.st().balances[account]
	b.Account = account
	return &b, nil
}

func (l *memoryLedger) AppendEvent(ctx context.Context, event *domain.Event) error {
	if err := l.write(); err != nil {
		return err
	}
	event.Seq = uint64(len(l.st().events) + 1)
	l.st().events = append(l.st().events, *event)
	return nil
}

func (l *memoryLedger) ListEvents(ctx context.Context, after uint64, limit int) ([]*domain.Event, error) {
	var out []*domain.Event
	for i := range l.st().events {
		e := l.st().events[i]
		if e.Seq <= after {
			continue
		}
		out = append(out, &e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
