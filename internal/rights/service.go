// Package rights implements the issuance rights hierarchy: suppliers list
// Permits, issuers buy and redeem them into Caps, and Caps mint coupon
// objects against escrowed points.
package rights

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/pointmart/backend/internal/apperr"
	"github.com/pointmart/backend/internal/chainsync"
	"github.com/pointmart/backend/internal/ledger"
	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
	"github.com/pointmart/backend/internal/vault"
)

type PermitRepo interface {
	Create(ctx context.Context, p *models.Permit) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Permit, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Permit, error)
	MarkSold(ctx context.Context, tx pgx.Tx, id uuid.UUID, buyer string, soldAt time.Time) error
	MarkRedeemed(ctx context.Context, tx pgx.Tx, id uuid.UUID, nonce string, redeemedAt time.Time) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	ListListed(ctx context.Context, now time.Time) ([]*models.Permit, error)
	ListBySupplier(ctx context.Context, supplier string) ([]*models.Permit, error)
	ListByBuyer(ctx context.Context, buyer string) ([]*models.Permit, error)
}

type CapRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.Cap) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Cap, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Cap, error)
	ExistsByPermitID(ctx context.Context, tx pgx.Tx, permitID uuid.UUID) (bool, error)
	UpdateQuota(ctx context.Context, tx pgx.Tx, id uuid.UUID, remaining, issuedCount int64, totalValueIssued *big.Int, status string) error
	Freeze(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	ListByOwner(ctx context.Context, owner string) ([]*models.Cap, error)
}

type CouponWriter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, c *models.CouponObject) error
}

type MintReceiptRepo interface {
	InsertTx(ctx context.Context, tx pgx.Tx, m *models.MintReceipt) error
}

type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ListPermitInput carries the supplier's listing terms.
type ListPermitInput struct {
	Scope     string
	Limit     int64
	FaceValue *big.Int
	Price     *big.Int
	ExpiresAt time.Time
}

type Service interface {
	ListPermit(ctx context.Context, supplier string, in ListPermitInput) (*models.Permit, error)
	BuyPermit(ctx context.Context, buyer string, permitID uuid.UUID) (*models.Permit, error)
	CancelPermit(ctx context.Context, supplier string, permitID uuid.UUID) error
	RedeemPermit(ctx context.Context, buyer string, permitID uuid.UUID, nonce string) (*models.Cap, error)
	MintWithCap(ctx context.Context, issuer string, capID uuid.UUID, recipient string, count int64, idempotencyKey string) ([]*models.CouponObject, error)
	FreezeCap(ctx context.Context, actor models.Principal, capID uuid.UUID) error

	GetPermit(ctx context.Context, id uuid.UUID) (*models.Permit, error)
	BrowsePermits(ctx context.Context) ([]*models.Permit, error)
	GetCap(ctx context.Context, id uuid.UUID) (*models.Cap, error)
	ListCapsByOwner(ctx context.Context, owner string) ([]*models.Cap, error)
}

type service struct {
	db       DB
	permits  PermitRepo
	caps     CapRepo
	coupons  CouponWriter
	receipts MintReceiptRepo
	ledger   ledger.Service
	vault    vault.Service
	enqueue  chainsync.EnqueueTxFunc
}

func NewService(db DB, permits PermitRepo, caps CapRepo, coupons CouponWriter, receipts MintReceiptRepo,
	ledgerSvc ledger.Service, vaultSvc vault.Service, enqueue chainsync.EnqueueTxFunc) Service {
	return &service{
		db:       db,
		permits:  permits,
		caps:     caps,
		coupons:  coupons,
		receipts: receipts,
		ledger:   ledgerSvc,
		vault:    vaultSvc,
		enqueue:  enqueue,
	}
}

var _ Service = (*service)(nil)

func (s *service) ListPermit(ctx context.Context, supplier string, in ListPermitInput) (*models.Permit, error) {
	if in.Scope == "" {
		return nil, apperr.Validation("MISSING_SCOPE", "permit scope is required")
	}
	if in.Limit <= 0 {
		return nil, apperr.Validation("BAD_LIMIT", "mint limit must be positive")
	}
	if err := money.CheckPositive(in.FaceValue); err != nil {
		return nil, err
	}
	if in.Price == nil || in.Price.Sign() < 0 {
		return nil, apperr.Validation("BAD_PRICE", "permit price must be non-negative")
	}
	if !in.ExpiresAt.After(time.Now()) {
		return nil, apperr.Validation("BAD_EXPIRY", "permit expiry must be in the future")
	}
	p := &models.Permit{
		ID:              uuid.New(),
		SupplierAddress: supplier,
		Scope:           in.Scope,
		Limit:           in.Limit,
		FaceValue:       money.Copy(in.FaceValue),
		TotalValue:      money.MulCount(in.FaceValue, in.Limit),
		Price:           money.Copy(in.Price),
		ExpiresAt:       in.ExpiresAt,
		Status:          models.PermitListed,
	}
	if err := s.permits.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// BuyPermit atomically charges the buyer the listing price, pays the
// supplier, and hands the permit over.
func (s *service) BuyPermit(ctx context.Context, buyer string, permitID uuid.UUID) (*models.Permit, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := s.permits.GetForUpdate(ctx, tx, permitID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("PERMIT_NOT_FOUND", "permit does not exist")
		}
		return nil, err
	}
	if p.Status != models.PermitListed {
		return nil, apperr.ErrWrongState
	}
	if !time.Now().Before(p.ExpiresAt) {
		return nil, apperr.ErrExpired
	}
	if buyer == p.SupplierAddress {
		return nil, apperr.BusinessRule("SELF_PURCHASE", "supplier cannot buy its own permit")
	}

	// Free permits move no value, so there is nothing to lock or post.
	if p.Price.Sign() > 0 {
		ref := p.ID.String()
		if err := s.ledger.LockAccounts(ctx, tx, buyer, p.SupplierAddress); err != nil {
			return nil, err
		}
		if err := s.ledger.Debit(ctx, tx, buyer, p.Price, models.EntryPermitPayment, &ref); err != nil {
			return nil, err
		}
		if err := s.ledger.Credit(ctx, tx, p.SupplierAddress, p.Price, models.EntryPermitSale, &ref); err != nil {
			return nil, err
		}
	}
	now := time.Now()
	if err := s.permits.MarkSold(ctx, tx, p.ID, buyer, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	p.Status = models.PermitSold
	p.BuyerAddress = &buyer
	p.SoldAt = &now
	return p, nil
}

func (s *service) CancelPermit(ctx context.Context, supplier string, permitID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	p, err := s.permits.GetForUpdate(ctx, tx, permitID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperr.NotFound("PERMIT_NOT_FOUND", "permit does not exist")
		}
		return err
	}
	if p.SupplierAddress != supplier {
		return apperr.ErrNotOwner
	}
	if p.Status != models.PermitListed {
		return apperr.ErrWrongState
	}
	if err := s.permits.UpdateStatus(ctx, tx, p.ID, models.PermitCancelled); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RedeemPermit exchanges a SOLD permit for its Cap, exactly once. The nonce
// guard and the one-cap-per-permit constraint both make replays fail.
func (s *service) RedeemPermit(ctx context.Context, buyer string, permitID uuid.UUID, nonce string) (*models.Cap, error) {
	if nonce == "" {
		return nil, apperr.Validation("MISSING_NONCE", "redemption nonce is required")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := s.permits.GetForUpdate(ctx, tx, permitID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("PERMIT_NOT_FOUND", "permit does not exist")
		}
		return nil, err
	}
	if p.Status != models.PermitSold {
		return nil, apperr.ErrWrongState
	}
	if p.BuyerAddress == nil || *p.BuyerAddress != buyer {
		return nil, apperr.ErrNotOwner
	}
	if !time.Now().Before(p.ExpiresAt) {
		return nil, apperr.ErrExpired
	}
	if p.RedeemNonce != nil && *p.RedeemNonce == nonce {
		return nil, apperr.ErrNonceReused
	}
	exists, err := s.caps.ExistsByPermitID(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.BusinessRule("PERMIT_ALREADY_REDEEMED", "a cap already exists for this permit")
	}

	c := &models.Cap{
		ID:               uuid.New(),
		PermitID:         p.ID,
		OwnerAddress:     buyer,
		SupplierAddress:  p.SupplierAddress,
		Scope:            p.Scope,
		Remaining:        p.Limit,
		OriginalLimit:    p.Limit,
		FaceValue:        money.Copy(p.FaceValue),
		ExpiresAt:        p.ExpiresAt,
		Status:           models.CapActive,
		TotalValueIssued: money.Zero(),
	}
	if err := s.caps.CreateTx(ctx, tx, c); err != nil {
		return nil, err
	}
	if err := s.permits.MarkRedeemed(ctx, tx, p.ID, nonce, time.Now()); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// MintWithCap debits the issuer the full face cost, escrows it under the
// supplier, skims the supplier fee immediately, and fans out count coupon
// objects to the recipient. One transaction.
func (s *service) MintWithCap(ctx context.Context, issuer string, capID uuid.UUID, recipient string, count int64, idempotencyKey string) ([]*models.CouponObject, error) {
	if count <= 0 {
		return nil, apperr.Validation("BAD_COUNT", "mint count must be positive")
	}
	if recipient == "" {
		return nil, apperr.Validation("MISSING_RECIPIENT", "recipient address is required")
	}
	if idempotencyKey == "" {
		return nil, apperr.Validation("MISSING_IDEMPOTENCY_KEY", "idempotency key is required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cap, err := s.caps.GetForUpdate(ctx, tx, capID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("CAP_NOT_FOUND", "cap does not exist")
		}
		return nil, err
	}
	if cap.OwnerAddress != issuer {
		return nil, apperr.ErrNotOwner
	}
	if cap.Frozen {
		return nil, apperr.ErrFrozen
	}
	if !time.Now().Before(cap.ExpiresAt) {
		return nil, apperr.ErrExpired
	}
	if cap.Status != models.CapActive {
		return nil, apperr.ErrWrongState
	}
	if cap.Remaining < count {
		return nil, apperr.BusinessRule("QUOTA_EXCEEDED", "cap remaining quota is below the requested count")
	}

	totalCost := money.MulCount(cap.FaceValue, count)
	fee := money.Fee(totalCost)
	perUnitFee := new(big.Int).Div(fee, big.NewInt(count))
	perUnitRemaining := money.Sub(cap.FaceValue, perUnitFee)

	if err := s.receipts.InsertTx(ctx, tx, &models.MintReceipt{
		ID:             uuid.New(),
		IdempotencyKey: idempotencyKey,
		CapID:          cap.ID,
		IssuerAddress:  issuer,
		Recipient:      recipient,
		Count:          count,
		TotalCost:      totalCost,
		SupplierFee:    fee,
	}); err != nil {
		return nil, err
	}

	ref := cap.ID.String()
	if err := s.ledger.LockAccounts(ctx, tx, issuer, cap.SupplierAddress); err != nil {
		return nil, err
	}
	if err := s.ledger.Debit(ctx, tx, issuer, totalCost, models.EntryMintPayment, &ref); err != nil {
		return nil, err
	}
	if err := s.vault.Deposit(ctx, tx, cap.SupplierAddress, totalCost); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := s.vault.Release(ctx, tx, cap.SupplierAddress, fee); err != nil {
			return nil, err
		}
		if err := s.ledger.Credit(ctx, tx, cap.SupplierAddress, fee, models.EntrySupplierFee, &ref); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	minted := make([]*models.CouponObject, 0, count)
	for i := int64(0); i < count; i++ {
		obj := &models.CouponObject{
			ObjectID:        ulid.Make().String(),
			CapID:           cap.ID,
			OwnerAddress:    recipient,
			SupplierAddress: cap.SupplierAddress,
			IssuerAddress:   issuer,
			FaceValue:       money.Copy(cap.FaceValue),
			Remaining:       money.Copy(perUnitRemaining),
			State:           models.CouponCreated,
			ExpiresAt:       cap.ExpiresAt,
			IssuedAt:        now,
		}
		if err := s.coupons.InsertTx(ctx, tx, obj); err != nil {
			return nil, err
		}
		if err := s.enqueue(ctx, tx, chainsync.SyncObjectArgs{ObjectID: obj.ObjectID, Event: chainsync.EventMinted}); err != nil {
			return nil, err
		}
		minted = append(minted, obj)
	}

	newRemaining := cap.Remaining - count
	newIssued := cap.IssuedCount + count
	newTotal := money.Add(cap.TotalValueIssued, totalCost)
	status := cap.Status
	if newRemaining == 0 {
		status = models.CapExhausted
	}
	if err := s.caps.UpdateQuota(ctx, tx, cap.ID, newRemaining, newIssued, newTotal, status); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return minted, nil
}

// FreezeCap blocks further minting. Allowed for the cap's supplier, its
// owner, or an admin. There is no unfreeze.
func (s *service) FreezeCap(ctx context.Context, actor models.Principal, capID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cap, err := s.caps.GetForUpdate(ctx, tx, capID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperr.NotFound("CAP_NOT_FOUND", "cap does not exist")
		}
		return err
	}
	if actor.Address != cap.SupplierAddress && actor.Address != cap.OwnerAddress && !actor.IsAdmin() {
		return apperr.Authorization("FREEZE_DENIED", "only the cap's supplier, owner or an admin may freeze it")
	}
	if err := s.caps.Freeze(ctx, tx, cap.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *service) GetPermit(ctx context.Context, id uuid.UUID) (*models.Permit, error) {
	p, err := s.permits.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("PERMIT_NOT_FOUND", "permit does not exist")
		}
		return nil, err
	}
	return p, nil
}

func (s *service) BrowsePermits(ctx context.Context) ([]*models.Permit, error) {
	return s.permits.ListListed(ctx, time.Now())
}

func (s *service) GetCap(ctx context.Context, id uuid.UUID) (*models.Cap, error) {
	c, err := s.caps.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("CAP_NOT_FOUND", "cap does not exist")
		}
		return nil, err
	}
	return c, nil
}

func (s *service) ListCapsByOwner(ctx context.Context, owner string) ([]*models.Cap, error) {
	return s.caps.ListByOwner(ctx, owner)
}
