package redeem

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/pointmart/backend/internal/apperr"
	"github.com/pointmart/backend/internal/chainsync"
	"github.com/pointmart/backend/internal/ledger"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/vault"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type mockCoupons struct {
	mu      sync.Mutex
	objects map[string]*models.CouponObject
}

func newMockCoupons(objs ...*models.CouponObject) *mockCoupons {
	m := &mockCoupons{objects: make(map[string]*models.CouponObject)}
	for _, o := range objs {
		cp := *o
		m.objects[o.ObjectID] = &cp
	}
	return m
}

func (m *mockCoupons) GetForUpdate(_ context.Context, _ pgx.Tx, objectID string) (*models.CouponObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[objectID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (m *mockCoupons) GetByJTIForUpdate(_ context.Context, _ pgx.Tx, jti string) (*models.CouponObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.objects {
		if o.JTI != nil && *o.JTI == jti {
			cp := *o
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockCoupons) SetToken(_ context.Context, _ pgx.Tx, objectID, jti string, tokenExpiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objects[objectID]
	o.JTI = &jti
	o.TokenExpiresAt = &tokenExpiresAt
	return nil
}

func (m *mockCoupons) MarkRedeemed(_ context.Context, _ pgx.Tx, objectID string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objects[objectID]
	o.State = models.CouponRedeemed
	o.Remaining = new(big.Int)
	o.UsedAt = &usedAt
	return nil
}

func (m *mockCoupons) state(objectID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[objectID].State
}

func (m *mockCoupons) jti(objectID string) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[objectID].JTI
}

// Real ledger and vault over in-memory accounts, so the payout math is the
// production path.

type memPoints struct {
	mu       sync.Mutex
	balances map[string]*models.PointAccount
}

func newMemPoints() *memPoints { return &memPoints{balances: make(map[string]*models.PointAccount)} }

func (m *memPoints) acct(address string) *models.PointAccount {
	a, ok := m.balances[address]
	if !ok {
		a = &models.PointAccount{Address: address, Balance: new(big.Int), TotalEarned: new(big.Int), TotalSpent: new(big.Int)}
		m.balances[address] = a
	}
	return a
}

func (m *memPoints) GetOrCreate(_ context.Context, address string) (*models.PointAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.acct(address)
	return &cp, nil
}

func (m *memPoints) Get(_ context.Context, address string) (*models.PointAccount, error) {
	return m.GetOrCreate(nil, address)
}

func (m *memPoints) LockOrCreate(_ context.Context, _ pgx.Tx, address string) (*models.PointAccount, error) {
	return m.GetOrCreate(nil, address)
}

func (m *memPoints) UpdateBalances(_ context.Context, _ pgx.Tx, address string, balance, totalEarned, totalSpent *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.acct(address)
	a.Balance = new(big.Int).Set(balance)
	a.TotalEarned = new(big.Int).Set(totalEarned)
	a.TotalSpent = new(big.Int).Set(totalSpent)
	return nil
}

func (m *memPoints) balance(address string) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.acct(address).Balance)
}

type memEntries struct{}

func (memEntries) InsertTx(context.Context, pgx.Tx, *models.PointEntry) error { return nil }
func (memEntries) ListByAddress(context.Context, string, int) ([]*models.PointEntry, error) {
	return nil, nil
}

type memEscrow struct {
	mu       sync.Mutex
	accounts map[string]*models.EscrowAccount
}

func newMemEscrow() *memEscrow { return &memEscrow{accounts: make(map[string]*models.EscrowAccount)} }

func (m *memEscrow) acct(supplier string) *models.EscrowAccount {
	a, ok := m.accounts[supplier]
	if !ok {
		a = &models.EscrowAccount{SupplierAddress: supplier, Balance: new(big.Int), TotalDeposited: new(big.Int), TotalReleased: new(big.Int)}
		m.accounts[supplier] = a
	}
	return a
}

func (m *memEscrow) Get(_ context.Context, supplier string) (*models.EscrowAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.acct(supplier)
	return &cp, nil
}

func (m *memEscrow) LockOrCreate(_ context.Context, _ pgx.Tx, supplier string) (*models.EscrowAccount, error) {
	return m.Get(nil, supplier)
}

func (m *memEscrow) UpdateBalances(_ context.Context, _ pgx.Tx, supplier string, balance, totalDeposited, totalReleased *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.acct(supplier)
	a.Balance = new(big.Int).Set(balance)
	a.TotalDeposited = new(big.Int).Set(totalDeposited)
	a.TotalReleased = new(big.Int).Set(totalReleased)
	return nil
}

func (m *memEscrow) set(supplier string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acct(supplier).Balance = big.NewInt(balance)
}

func (m *memEscrow) balance(supplier string) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.acct(supplier).Balance)
}

const (
	supplier = "0xsupplier"
	owner    = "0xowner"
)

type fixture struct {
	svc     Service
	coupons *mockCoupons
	points  *memPoints
	escrow  *memEscrow
	queued  []chainsync.SyncObjectArgs
}

func newFixture(objs ...*models.CouponObject) *fixture {
	f := &fixture{
		coupons: newMockCoupons(objs...),
		points:  newMemPoints(),
		escrow:  newMemEscrow(),
	}
	enqueue := func(_ context.Context, _ pgx.Tx, args chainsync.SyncObjectArgs) error {
		f.queued = append(f.queued, args)
		return nil
	}
	ledgerSvc := ledger.NewService(f.points, memEntries{})
	f.svc = NewService(fakeDB{}, f.coupons, ledgerSvc, vault.NewService(f.escrow), enqueue)
	return f
}

func object(remaining int64, state string) *models.CouponObject {
	return &models.CouponObject{
		ObjectID:        ulid.Make().String(),
		CapID:           uuid.New(),
		OwnerAddress:    owner,
		SupplierAddress: supplier,
		IssuerAddress:   "0xissuer",
		FaceValue:       big.NewInt(1000),
		Remaining:       big.NewInt(remaining),
		State:           state,
		ExpiresAt:       time.Now().Add(24 * time.Hour),
		IssuedAt:        time.Now(),
	}
}

// ---------------------------------------------------------------------------
// Token generation
// ---------------------------------------------------------------------------

func TestGenerateToken(t *testing.T) {
	obj := object(970, models.CouponCreated)
	f := newFixture(obj)
	ctx := context.Background()

	tok, err := f.svc.GenerateToken(ctx, owner, obj.ObjectID)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if tok.JTI == "" || tok.ObjectID != obj.ObjectID {
		t.Errorf("token: %+v", tok)
	}
	if remaining := time.Until(tok.ExpiresAt); remaining <= 0 || remaining > TokenTTL {
		t.Errorf("token TTL out of range: %v", remaining)
	}

	// Regenerating replaces the previous token: only the newest is valid.
	tok2, err := f.svc.GenerateToken(ctx, owner, obj.ObjectID)
	if err != nil {
		t.Fatalf("second GenerateToken: %v", err)
	}
	if tok2.JTI == tok.JTI {
		t.Error("regenerated token should have a fresh jti")
	}
	if stored := f.coupons.jti(obj.ObjectID); stored == nil || *stored != tok2.JTI {
		t.Error("stored jti should be the latest token")
	}
	if _, err := f.svc.VerifyAndRedeem(ctx, supplier, tok.JTI); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("stale token: expected not-found, got %v", err)
	}
}

func TestGenerateTokenGuards(t *testing.T) {
	created := object(970, models.CouponCreated)
	trading := object(970, models.CouponTrading)
	expired := object(970, models.CouponCreated)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	f := newFixture(created, trading, expired)
	ctx := context.Background()

	if _, err := f.svc.GenerateToken(ctx, "0xother", created.ObjectID); err != apperr.ErrNotOwner {
		t.Errorf("wrong owner: expected ErrNotOwner, got %v", err)
	}
	if _, err := f.svc.GenerateToken(ctx, owner, trading.ObjectID); err != apperr.ErrWrongState {
		t.Errorf("trading object: expected ErrWrongState, got %v", err)
	}
	if _, err := f.svc.GenerateToken(ctx, owner, expired.ObjectID); err != apperr.ErrExpired {
		t.Errorf("expired object: expected ErrExpired, got %v", err)
	}
}

func TestGenerateTokenRejectsPaidOutObject(t *testing.T) {
	// State walked back to CREATED by chain reconciliation, but the payout
	// already happened.
	paid := object(0, models.CouponCreated)
	usedAt := time.Now().Add(-time.Minute)
	paid.UsedAt = &usedAt
	f := newFixture(paid)

	if _, err := f.svc.GenerateToken(context.Background(), owner, paid.ObjectID); err != apperr.ErrWrongState {
		t.Errorf("paid-out object: expected ErrWrongState, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Redemption
// ---------------------------------------------------------------------------

func TestVerifyAndRedeemPaysOutRemaining(t *testing.T) {
	obj := object(940, models.CouponCreated)
	f := newFixture(obj)
	f.escrow.set(supplier, 940)
	ctx := context.Background()

	tok, err := f.svc.GenerateToken(ctx, owner, obj.ObjectID)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	redeemed, err := f.svc.VerifyAndRedeem(ctx, supplier, tok.JTI)
	if err != nil {
		t.Fatalf("VerifyAndRedeem: %v", err)
	}

	if redeemed.State != models.CouponRedeemed {
		t.Errorf("state: got %s, want REDEEMED", redeemed.State)
	}
	if redeemed.Remaining.Sign() != 0 {
		t.Errorf("remaining: got %s, want 0", redeemed.Remaining)
	}
	if redeemed.UsedAt == nil {
		t.Error("used_at should be set")
	}
	if got := f.points.balance(supplier); got.Cmp(big.NewInt(940)) != 0 {
		t.Errorf("supplier payout: got %s, want 940", got)
	}
	if got := f.escrow.balance(supplier); got.Sign() != 0 {
		t.Errorf("escrow after payout: got %s, want 0", got)
	}
	if len(f.queued) != 1 || f.queued[0].Event != chainsync.EventRedeemed {
		t.Errorf("queued sync jobs: got %+v, want one redeemed event", f.queued)
	}

	// Single use: the same token can never pay twice.
	if _, err := f.svc.VerifyAndRedeem(ctx, supplier, tok.JTI); err != apperr.ErrWrongState {
		t.Errorf("second redeem: expected ErrWrongState, got %v", err)
	}
	if got := f.points.balance(supplier); got.Cmp(big.NewInt(940)) != 0 {
		t.Errorf("supplier balance after replay: got %s, want 940", got)
	}
}

func TestVerifyAndRedeemWrongSupplier(t *testing.T) {
	obj := object(940, models.CouponCreated)
	f := newFixture(obj)
	f.escrow.set(supplier, 940)
	ctx := context.Background()

	tok, _ := f.svc.GenerateToken(ctx, owner, obj.ObjectID)
	_, err := f.svc.VerifyAndRedeem(ctx, "0xothersupplier", tok.JTI)
	if apperr.CodeOf(err) != "WRONG_SUPPLIER" {
		t.Fatalf("expected WRONG_SUPPLIER, got: %v", err)
	}
	if f.coupons.state(obj.ObjectID) != models.CouponCreated {
		t.Error("object should be untouched after rejected redemption")
	}
}

func TestVerifyAndRedeemUnknownToken(t *testing.T) {
	f := newFixture()

	if _, err := f.svc.VerifyAndRedeem(context.Background(), supplier, "no-such-token"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not-found, got: %v", err)
	}
	if _, err := f.svc.VerifyAndRedeem(context.Background(), supplier, ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("empty token: expected validation error, got: %v", err)
	}
}

func TestVerifyAndRedeemExpiredObject(t *testing.T) {
	obj := object(940, models.CouponCreated)
	f := newFixture(obj)
	f.escrow.set(supplier, 940)
	ctx := context.Background()

	tok, err := f.svc.GenerateToken(ctx, owner, obj.ObjectID)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	// The object expires between token issue and scan.
	f.coupons.mu.Lock()
	f.coupons.objects[obj.ObjectID].ExpiresAt = time.Now().Add(-time.Minute)
	f.coupons.mu.Unlock()

	if _, err := f.svc.VerifyAndRedeem(ctx, supplier, tok.JTI); err != apperr.ErrExpired {
		t.Fatalf("expected ErrExpired, got: %v", err)
	}
	if got := f.escrow.balance(supplier); got.Cmp(big.NewInt(940)) != 0 {
		t.Errorf("escrow should be untouched, got %s", got)
	}
}
