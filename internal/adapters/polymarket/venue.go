package polymarket

// venue.go — ports.OrderVenue against the Polymarket CLOB.
//
// Orders are submitted as FOK taker orders at the best counter-price.
// Failures are classified here (transient / permanent / ambiguous); the
// engine never inspects error text.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/alejandrodnm/polypilot/internal/domain"
	"github.com/alejandrodnm/polypilot/internal/ports"
)

type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
	ClientID  string        `json:"clientOrderId,omitempty"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

type clobPriceResponse struct {
	Price string `json:"price"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

type clobOrderLookupResponse struct {
	OrderID     string `json:"id"`
	SizeMatched string `json:"size_matched"`
	Price       string `json:"price"`
	Status      string `json:"status"`
}

// Venue signs and submits orders for many wallets, one session per wallet.
type Venue struct {
	client *Client
	creds  ports.CredentialStore

	mu       sync.Mutex
	sessions map[string]*session
	negRisk  map[string]bool // tokenID → NegRisk adapter flag, immutable per token
}

// NewVenue creates the CLOB venue adapter.
func NewVenue(client *Client, creds ports.CredentialStore) *Venue {
	return &Venue{
		client:   client,
		creds:    creds,
		sessions: make(map[string]*session),
		negRisk:  make(map[string]bool),
	}
}

// sessionFor resolves (and caches) the signing session for a wallet.
func (v *Venue) sessionFor(ctx context.Context, walletID string) (*session, error) {
	v.mu.Lock()
	s, ok := v.sessions[walletID]
	v.mu.Unlock()
	if ok {
		return s, nil
	}

	c, err := v.creds.Resolve(ctx, walletID)
	if err != nil {
		if errors.Is(err, ports.ErrNoCredentials) {
			return nil, domain.PermanentErr("missing credentials", err)
		}
		return nil, domain.TransientErr("credential resolve failed", err)
	}

	s, err = newSession(walletID, c.PrivateKeyHex)
	if err != nil {
		return nil, domain.PermanentErr("invalid signing key", err)
	}
	if err := s.ensureCreds(ctx, v.client); err != nil {
		return nil, domain.TransientErr("derive api credentials failed", err)
	}

	v.mu.Lock()
	v.sessions[walletID] = s
	v.mu.Unlock()
	return s, nil
}

// BestPrice returns the best counter-price for taking liquidity on tokenID.
func (v *Venue) BestPrice(ctx context.Context, tokenID string, action ports.OrderAction) (float64, error) {
	side := "BUY"
	if action == ports.OrderSell {
		side = "SELL"
	}
	u := fmt.Sprintf("%s/price?token_id=%s&side=%s", v.client.clobBase, url.QueryEscape(tokenID), side)

	var resp clobPriceResponse
	if err := v.client.get(ctx, u, &resp); err != nil {
		return 0, classifyHTTPErr(ctx, "best price", err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || price <= 0 {
		return 0, domain.PermanentErr(fmt.Sprintf("no price for token %s", tokenID), err)
	}
	return price, nil
}

// Submit signs and places one FOK order. Single attempt: retries, dedupe,
// and reconciliation live in the engine's executor.
func (v *Venue) Submit(ctx context.Context, req ports.OrderRequest) (ports.OrderResult, error) {
	s, err := v.sessionFor(ctx, req.WalletID)
	if err != nil {
		return ports.OrderResult{}, err
	}

	negRisk, err := v.isNegRisk(ctx, req.TokenID)
	if err != nil {
		return ports.OrderResult{}, err
	}

	buy := req.Action == ports.OrderBuy
	signed, err := s.buildSignedOrder(req.TokenID, req.Price, req.Size, buy, negRisk)
	if err != nil {
		return ports.OrderResult{}, domain.PermanentErr("invalid order parameters", err)
	}

	sideStr := "BUY"
	if !buy {
		sideStr = "SELL"
	}
	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          sideStr,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     s.creds.APIKey,
		OrderType: "FOK",
		ClientID:  req.ClientID,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ports.OrderResult{}, domain.PermanentErr("marshal order", err)
	}

	headers, err := s.l2Headers(http.MethodPost, "/order", string(payload))
	if err != nil {
		return ports.OrderResult{}, domain.PermanentErr("l2 headers", err)
	}

	status, respBody, err := v.client.do(ctx, http.MethodPost, "/order", headers, string(payload))
	if err != nil {
		if ctx.Err() != nil {
			// The request may have reached the venue before the deadline.
			return ports.OrderResult{}, domain.AmbiguousErr("submit timed out", ctx.Err())
		}
		return ports.OrderResult{}, domain.TransientErr("submit request failed", err)
	}

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return ports.OrderResult{}, domain.TransientErr(
			fmt.Sprintf("submit status %d", status), errors.New(string(respBody)))
	case status >= 400:
		return ports.OrderResult{}, domain.PermanentErr(
			fmt.Sprintf("submit rejected %d", status), errors.New(string(respBody)))
	}

	var resp clobOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return ports.OrderResult{}, domain.AmbiguousErr("unparseable submit response", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return ports.OrderResult{}, domain.PermanentErr("clob rejected order", errors.New(resp.ErrorMsg))
	}

	return toOrderResult(resp, req, buy), nil
}

// toOrderResult converts CLOB amounts to engine units: shares filled and
// average fill price.
func toOrderResult(resp clobOrderResponse, req ports.OrderRequest, buy bool) ports.OrderResult {
	taken := parseUSDC(resp.TakingAmount)
	made := parseUSDC(resp.MakingAmount)

	var shares, price float64
	if buy {
		// made = USDC spent, taken = shares received
		shares = taken
		if shares > 0 {
			price = made / shares
		}
	} else {
		// made = shares given, taken = USDC received
		shares = made
		if shares > 0 {
			price = taken / shares
		}
	}
	if price <= 0 {
		price = req.Price
	}
	return ports.OrderResult{
		VenueOrderID: resp.OrderID,
		FilledSize:   shares,
		FilledPrice:  price,
	}
}

// LookupOrder queries authoritative order state by client order id, for
// reconciling ambiguous outcomes.
func (v *Venue) LookupOrder(ctx context.Context, clientID string) (ports.OrderResult, bool, error) {
	// Any authenticated session can query; reuse an existing one.
	v.mu.Lock()
	var s *session
	for _, cand := range v.sessions {
		s = cand
		break
	}
	v.mu.Unlock()
	if s == nil {
		return ports.OrderResult{}, false, domain.TransientErr("no session for lookup", nil)
	}

	path := "/data/order?client_order_id=" + url.QueryEscape(clientID)
	headers, err := s.l2Headers(http.MethodGet, path, "")
	if err != nil {
		return ports.OrderResult{}, false, domain.PermanentErr("l2 headers", err)
	}

	status, body, err := v.client.do(ctx, http.MethodGet, path, headers, "")
	if err != nil {
		return ports.OrderResult{}, false, domain.TransientErr("lookup request failed", err)
	}
	if status == http.StatusNotFound {
		return ports.OrderResult{}, false, nil
	}
	if status != http.StatusOK {
		return ports.OrderResult{}, false, domain.TransientErr(
			fmt.Sprintf("lookup status %d", status), errors.New(string(body)))
	}

	var resp clobOrderLookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ports.OrderResult{}, false, domain.TransientErr("parse lookup response", err)
	}
	if resp.OrderID == "" {
		return ports.OrderResult{}, false, nil
	}

	matched, _ := strconv.ParseFloat(resp.SizeMatched, 64)
	price, _ := strconv.ParseFloat(resp.Price, 64)
	return ports.OrderResult{
		VenueOrderID: resp.OrderID,
		FilledSize:   matched,
		FilledPrice:  price,
	}, true, nil
}

// isNegRisk checks (and caches) whether the token's market uses the NegRisk
// adapter.
func (v *Venue) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	v.mu.Lock()
	nr, ok := v.negRisk[tokenID]
	v.mu.Unlock()
	if ok {
		return nr, nil
	}

	u := fmt.Sprintf("%s/neg-risk?token_id=%s", v.client.clobBase, url.QueryEscape(tokenID))
	var resp clobNegRiskResponse
	if err := v.client.get(ctx, u, &resp); err != nil {
		return false, classifyHTTPErr(ctx, "neg-risk check", err)
	}

	v.mu.Lock()
	v.negRisk[tokenID] = resp.NegRisk
	v.mu.Unlock()
	return resp.NegRisk, nil
}

// classifyHTTPErr maps read failures. Reads have no side effects, so even a
// context expiry is transient.
func classifyHTTPErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return domain.TransientErr(op+" cancelled", err)
	}
	return domain.TransientErr(op+" failed", err)
}

// parseUSDC converts a 6-decimal integer string to float USDC/shares.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	raw, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return raw / 1e6
}
