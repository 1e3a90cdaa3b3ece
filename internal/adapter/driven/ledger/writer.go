package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/creditpanel/internal/domain/model"
	"github.com/ericfisherdev/creditpanel/internal/domain/port/driven"
)

// ErrTransactionFailed indicates the ledger reverted or dropped a transaction.
var ErrTransactionFailed = errors.New("transaction failed")

// errPending keeps the poll loop going while a transaction is unconfirmed.
var errPending = errors.New("transaction pending")

const maxPollInterval = 15 * time.Second

type transferJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type retireJSON struct {
	Owner string `json:"owner"`
}

type issueJSON struct {
	Producer       string `json:"producer"`
	EnergySource   string `json:"energy_source"`
	ProductionDate int64  `json:"production_date"`
}

type submittedJSON struct {
	TxHash string `json:"tx_hash"`
}

type txStatusJSON struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Transfer submits a transfer of the credit from its current owner.
func (c *Client) Transfer(ctx context.Context, id model.TokenID, from, to model.Address) (driven.TransactionHandle, error) {
	body := transferJSON{From: string(from), To: string(to)}
	return c.submit(ctx, fmt.Sprintf("/v1/credits/%d/transfer", id), body, "transfer", id)
}

// Retire submits a retirement of the credit on behalf of its owner.
func (c *Client) Retire(ctx context.Context, id model.TokenID, owner model.Address) (driven.TransactionHandle, error) {
	body := retireJSON{Owner: string(owner)}
	return c.submit(ctx, fmt.Sprintf("/v1/credits/%d/retire", id), body, "retire", id)
}

// Issue submits certification and minting of one credit.
func (c *Client) Issue(ctx context.Context, req driven.IssueRequest) (driven.TransactionHandle, error) {
	body := issueJSON{
		Producer:       string(req.Producer),
		EnergySource:   string(req.EnergySource),
		ProductionDate: req.ProductionTime.Unix(),
	}
	return c.submit(ctx, "/v1/credits", body, "issue", 0)
}

func (c *Client) submit(ctx context.Context, path string, body any, op string, id model.TokenID) (driven.TransactionHandle, error) {
	var out submittedJSON
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("submitting %s: %w", op, err)
	}
	if out.TxHash == "" {
		return nil, fmt.Errorf("submitting %s: gateway returned no transaction hash", op)
	}

	slog.Debug("ledger transaction submitted", "op", op, "token_id", id, "tx_hash", out.TxHash)

	poller := *c
	poller.fresh = true
	return &txHandle{client: &poller, hash: out.TxHash}, nil
}

// txHandle polls the gateway until its transaction resolves.
type txHandle struct {
	client *Client
	hash   string
}

func (h *txHandle) Hash() string {
	return h.hash
}

// Wait polls the transaction status with exponential backoff until it is
// confirmed, failed, or ctx ends. Lookup errors that may be transient (404
// before the gateway indexed the hash, 429, 5xx, network) are retried.
func (h *txHandle) Wait(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.client.pollInterval
	b.MaxInterval = maxPollInterval
	b.MaxElapsedTime = 0

	path := "/v1/transactions/" + h.hash
	poll := func() error {
		var st txStatusJSON
		if err := h.client.do(ctx, http.MethodGet, path, nil, &st); err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		switch st.Status {
		case "confirmed":
			return nil
		case "failed":
			reason := st.Reason
			if reason == "" {
				reason = "no reason given"
			}
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrTransactionFailed, reason))
		default:
			return errPending
		}
	}

	notify := func(err error, next time.Duration) {
		if !errors.Is(err, errPending) {
			slog.Debug("transaction status lookup failed, retrying", "tx_hash", h.hash, "error", err, "next", next)
		}
	}

	if err := backoff.RetryNotify(poll, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("waiting for transaction %s: %w", h.hash, err)
	}
	return nil
}
