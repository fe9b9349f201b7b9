package chainsync

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/pointmart/backend/internal/apperr"
	"github.com/pointmart/backend/internal/models"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type mockRepo struct {
	mu      sync.Mutex
	objects map[string]*models.CouponObject
}

func newMockRepo(objs ...*models.CouponObject) *mockRepo {
	m := &mockRepo{objects: make(map[string]*models.CouponObject)}
	for _, o := range objs {
		cp := *o
		m.objects[o.ObjectID] = &cp
	}
	return m
}

func (m *mockRepo) GetForUpdate(_ context.Context, _ pgx.Tx, objectID string) (*models.CouponObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[objectID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) SetStateIf(_ context.Context, _ pgx.Tx, objectID, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objects[objectID]
	if o.State != from {
		return apperr.ErrWrongState
	}
	o.State = to
	return nil
}

func (m *mockRepo) state(objectID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[objectID].State
}

func testObject(state string) *models.CouponObject {
	return &models.CouponObject{
		ObjectID:        ulid.Make().String(),
		CapID:           uuid.New(),
		OwnerAddress:    "0xowner",
		SupplierAddress: "0xsupplier",
		IssuerAddress:   "0xissuer",
		FaceValue:       big.NewInt(1000),
		Remaining:       big.NewInt(970),
		State:           state,
		ExpiresAt:       time.Now().Add(time.Hour),
		IssuedAt:        time.Now(),
	}
}

func newTestReconciler(repo *mockRepo) *Reconciler {
	return NewReconciler(fakeDB{}, repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReconcilerFlipsCreatedToRedeemed(t *testing.T) {
	obj := testObject(models.CouponCreated)
	repo := newMockRepo(obj)
	rec := newTestReconciler(repo)

	if err := rec.Apply(context.Background(), obj.ObjectID, models.CouponRedeemed); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if repo.state(obj.ObjectID) != models.CouponRedeemed {
		t.Errorf("state: got %s, want REDEEMED", repo.state(obj.ObjectID))
	}
}

func TestReconcilerNeverTouchesTrading(t *testing.T) {
	obj := testObject(models.CouponTrading)
	repo := newMockRepo(obj)
	rec := newTestReconciler(repo)

	// An in-flight sale is authoritative local state; the observation is
	// dropped without error.
	if err := rec.Apply(context.Background(), obj.ObjectID, models.CouponRedeemed); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if repo.state(obj.ObjectID) != models.CouponTrading {
		t.Errorf("state: got %s, want TRADING untouched", repo.state(obj.ObjectID))
	}
}

func TestReconcilerIgnoresUnknownObjects(t *testing.T) {
	rec := newTestReconciler(newMockRepo())

	if err := rec.Apply(context.Background(), "no-such-object", models.CouponRedeemed); err != nil {
		t.Fatalf("unknown object should not error, got: %v", err)
	}
}

func TestReconcilerRejectsOtherStates(t *testing.T) {
	obj := testObject(models.CouponCreated)
	repo := newMockRepo(obj)
	rec := newTestReconciler(repo)
	ctx := context.Background()

	if err := rec.Apply(ctx, obj.ObjectID, models.CouponTrading); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("observed TRADING: expected validation error, got %v", err)
	}
	if err := rec.Apply(ctx, obj.ObjectID, models.CouponExpired); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("observed EXPIRED: expected validation error, got %v", err)
	}
}

func TestReconcilerNoOpOnMatchAndTerminalExpiry(t *testing.T) {
	match := testObject(models.CouponCreated)
	expired := testObject(models.CouponExpired)
	repo := newMockRepo(match, expired)
	rec := newTestReconciler(repo)
	ctx := context.Background()

	if err := rec.Apply(ctx, match.ObjectID, models.CouponCreated); err != nil {
		t.Errorf("matching observation: %v", err)
	}
	if err := rec.Apply(ctx, expired.ObjectID, models.CouponRedeemed); err != nil {
		t.Errorf("expired object observation: %v", err)
	}
	if repo.state(expired.ObjectID) != models.CouponExpired {
		t.Error("locally expired object must stay EXPIRED")
	}
}
