package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/litebridge/bridge-agent/internal/config"
	"github.com/litebridge/bridge-agent/internal/types"
	log "github.com/sirupsen/logrus"
)

// Client talks to the off-chain relay. Transport-level failures retry with
// backoff inside retryablehttp; 4xx responses are relay decisions and are
// never retried.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

func NewClient() *Client {
	return NewClientWithURL(config.AppConfig.RelayURL)
}

func NewClientWithURL(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = config.AppConfig.RelayRetryMax
	rc.HTTPClient.Timeout = config.AppConfig.RelayTimeout
	rc.Logger = nil

	return &Client{
		baseURL: baseURL,
		http:    rc,
	}
}

func (c *Client) GetBalance(ctx context.Context, account string) (*BalanceResponse, error) {
	var out BalanceResponse
	if err := c.get(ctx, "/api/v1/balance", url.Values{"account": {account}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetNonce(ctx context.Context, account string) (*NonceResponse, error) {
	var out NonceResponse
	if err := c.get(ctx, "/api/v1/nonce", url.Values{"account": {account}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitWithdrawal(ctx context.Context, req *SubmitWithdrawalRequest) (*SubmitWithdrawalResponse, error) {
	var out SubmitWithdrawalResponse
	if err := c.post(ctx, "/api/v1/withdrawals", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitTransfer(ctx context.Context, req *SubmitTransferRequest) (*SubmitTransferResponse, error) {
	var out SubmitTransferResponse
	if err := c.post(ctx, "/api/v1/transfers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProof looks up the Merkle proof for (account, amount, nonce). The amount
// rides along so the relay can refuse a lookup that disagrees with what was
// signed.
func (c *Client) GetProof(ctx context.Context, account, amount string, nonce uint64) (*ProofResponse, error) {
	q := url.Values{
		"account": {account},
		"amount":  {amount},
		"nonce":   {fmt.Sprintf("%d", nonce)},
	}
	var out ProofResponse
	if err := c.get(ctx, "/api/v1/proof", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PendingWithdrawals(ctx context.Context, account string) ([]PendingWithdrawal, error) {
	var out []PendingWithdrawal
	if err := c.get(ctx, "/api/v1/withdrawals/pending", url.Values{"account": {account}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TriggerBatch asks the relay to commit the current pending set on-chain.
// The response lists the included withdrawals so callers can capture batch
// records immediately.
func (c *Client) TriggerBatch(ctx context.Context) (*TriggerBatchResponse, error) {
	var out TriggerBatchResponse
	if err := c.post(ctx, "/api/v1/batch", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reconcile(ctx context.Context, account string) (*ReconcileResponse, error) {
	var out ReconcileResponse
	if err := c.post(ctx, "/api/v1/balance/reconcile", map[string]string{"account": account}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SyncDeposit(ctx context.Context, txHash string) (*SyncDepositResponse, error) {
	var out SyncDepositResponse
	if err := c.post(ctx, "/api/v1/deposits/sync", &SyncDepositRequest{TxHash: txHash}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) History(ctx context.Context, account string, limit int) ([]HistoryEntry, error) {
	q := url.Values{"account": {account}}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var out []HistoryEntry
	if err := c.get(ctx, "/api/v1/history", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) HistoryByHash(ctx context.Context, txHash string) (*HistoryEntry, error) {
	var out HistoryEntry
	if err := c.get(ctx, "/api/v1/history/tx", url.Values{"hash": {txHash}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *retryablehttp.Request, op string, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return types.WrapNetworkError(err, op)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.WrapNetworkError(err, op)
	}

	if resp.StatusCode >= 400 {
		var e errorResponse
		if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		log.Debugf("Relay declined %s: status %d, %s", op, resp.StatusCode, e.Error)
		return &types.RequestRejectedError{StatusCode: resp.StatusCode, Reason: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return types.WrapNetworkError(err, op)
	}
	return nil
}
