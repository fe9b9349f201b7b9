// Package chainsync mirrors committed coupon state onto the external chain
// gateway. It is a best-effort side channel: jobs are enqueued in the same
// transaction as the ledger mutation, run only after commit, and their
// failures are retried by River without ever touching ledger state.
package chainsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/pointmart/backend/internal/models"
	"github.com/pointmart/backend/internal/money"
)

// Sync events, one per ledger operation that changes mirrored state.
const (
	EventMinted   = "minted"
	EventTraded   = "traded"
	EventRedeemed = "redeemed"
	EventExpired  = "expired"
)

type SyncObjectArgs struct {
	ObjectID string `json:"object_id"`
	Event    string `json:"event"`
}

func (SyncObjectArgs) Kind() string { return "chain_sync_object" }

// EnqueueTxFunc enqueues a sync job within the given transaction. Provided by
// main using river.Client.InsertTx so the job is only visible after commit.
type EnqueueTxFunc func(ctx context.Context, tx pgx.Tx, args SyncObjectArgs) error

// ObjectReader loads the committed object to mirror.
type ObjectReader interface {
	GetByID(ctx context.Context, objectID string) (*models.CouponObject, error)
}

type SyncWorker struct {
	river.WorkerDefaults[SyncObjectArgs]
	coupons    ObjectReader
	gatewayURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewSyncWorker(coupons ObjectReader, gatewayURL string, log *slog.Logger) *SyncWorker {
	if log == nil {
		log = slog.Default()
	}
	return &SyncWorker{
		coupons:    coupons,
		gatewayURL: gatewayURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

type mirrorPayload struct {
	ObjectID   string `json:"object_id"`
	Event      string `json:"event"`
	State      string `json:"state"`
	Owner      string `json:"owner"`
	Supplier   string `json:"supplier"`
	Remaining  string `json:"remaining"`
	TradeCount int64  `json:"trade_count"`
}

func (w *SyncWorker) Work(ctx context.Context, job *river.Job[SyncObjectArgs]) error {
	obj, err := w.coupons.GetByID(ctx, job.Args.ObjectID)
	if err != nil {
		return fmt.Errorf("load object %s: %w", job.Args.ObjectID, err)
	}

	payload := mirrorPayload{
		ObjectID:   obj.ObjectID,
		Event:      job.Args.Event,
		State:      obj.State,
		Owner:      obj.OwnerAddress,
		Supplier:   obj.SupplierAddress,
		Remaining:  money.Format(obj.Remaining),
		TradeCount: obj.TradeCount,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.gatewayURL+"/v1/objects/mirror", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.log.Warn("chain gateway unreachable, will retry", "object_id", obj.ObjectID, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.log.Warn("chain gateway rejected mirror", "object_id", obj.ObjectID, "status", resp.StatusCode)
		return fmt.Errorf("chain gateway returned status %d", resp.StatusCode)
	}
	return nil
}
