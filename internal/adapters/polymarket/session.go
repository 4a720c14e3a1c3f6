package polymarket

// session.go — per-wallet CLOB signing session.
//
// Two-level authentication:
//   L1: EIP-712 signature with the wallet private key → derive API creds
//   L2: HMAC-SHA256 signing of every authenticated request

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"
)

const (
	polygonChainID = int64(137)

	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	clobAuthMessage   = "This message attests that I control the given wallet"

	zeroAddress = "0x0000000000000000000000000000000000000000"
)

// apiCredentials are the CLOB API credentials derived from a wallet key.
type apiCredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// session holds one wallet's signing state.
type session struct {
	walletID string
	key      *ecdsa.PrivateKey
	address  common.Address
	builder  builder.ExchangeOrderBuilder
	creds    *apiCredentials
}

// newSession builds a session from a hex private key (no 0x prefix).
func newSession(walletID, privateKeyHex string) (*session, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("session %s: invalid private key: %w", walletID, err)
	}
	return &session{
		walletID: walletID,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		builder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
	}, nil
}

// EIP-712 type hashes, computed once.
var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
)

func clobAuthDomainSeparator() common.Hash {
	var buf []byte
	buf = append(buf, eip712DomainTypeHash.Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(polygonChainID).Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// signClobAuth signs the ClobAuth typed data for L1 credential derivation.
func (s *session) signClobAuth(timestamp, nonce string) (string, error) {
	nonceInt, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return "", fmt.Errorf("invalid nonce: %s", nonce)
	}

	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(s.address.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(nonceInt.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, clobAuthDomainSeparator().Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)
	msgHash := crypto.Keccak256Hash(rawBuf)

	sig, err := crypto.Sign(msgHash.Bytes(), s.key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + fmt.Sprintf("%x", sig), nil
}

// ensureCreds derives (and caches) API credentials via L1 auth.
func (s *session) ensureCreds(ctx context.Context, c *Client) error {
	if s.creds != nil {
		return nil
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := s.signClobAuth(ts, "0")
	if err != nil {
		return fmt.Errorf("session %s: sign l1: %w", s.walletID, err)
	}

	status, body, err := c.do(ctx, http.MethodGet, "/auth/derive-api-key", map[string]string{
		"POLY_ADDRESS":   s.address.Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": ts,
		"POLY_NONCE":     "0",
	}, "")
	if err != nil {
		return fmt.Errorf("session %s: derive-api-key: %w", s.walletID, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("session %s: derive-api-key status %d: %s", s.walletID, status, body)
	}

	var creds apiCredentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return fmt.Errorf("session %s: parse creds: %w", s.walletID, err)
	}
	s.creds = &creds
	return nil
}

// l2Headers returns the authenticated headers for an L2 request. Regenerated
// per request so the timestamp stays fresh.
func (s *session) l2Headers(method, path, body string) (map[string]string, error) {
	if s.creds == nil {
		return nil, fmt.Errorf("session %s: credentials not derived", s.walletID)
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := ts + strings.ToUpper(method) + path + body

	secretBytes, err := base64.URLEncoding.DecodeString(s.creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("session %s: decode secret: %w", s.walletID, err)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(msg))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    s.address.Hex(),
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    s.creds.APIKey,
		"POLY_PASSPHRASE": s.creds.Passphrase,
	}, nil
}

// buildSignedOrder creates an EIP-712 signed taker order. For buys, size is
// USDC to spend; for sells, size is shares to unload. Integer arithmetic
// keeps makerAmount == price × takerAmount exact, which the CLOB verifies.
func (s *session) buildSignedOrder(tokenID string, price, size float64, buy, negRisk bool) (*gomodel.SignedOrder, error) {
	if price <= 0 || size <= 0 {
		return nil, fmt.Errorf("invalid order: price=%.4f size=%.4f", price, size)
	}

	pricePrecision := detectPricePrecision(price)
	priceInt := int64(math.Round(price * float64(pricePrecision)))
	amountFactor := int64(1_000_000) / (100 * pricePrecision)

	var makerAmount, takerAmount int64
	var side gomodel.Side
	if buy {
		// maker gives USDC, takes shares
		sharesCents := int64(math.Floor(size / price * 100))
		makerAmount = sharesCents * priceInt * amountFactor
		takerAmount = sharesCents * 10000
		side = gomodel.BUY
	} else {
		// maker gives shares, takes USDC
		sharesCents := int64(math.Floor(size * 100))
		makerAmount = sharesCents * 10000
		takerAmount = sharesCents * priceInt * amountFactor
		side = gomodel.SELL
	}

	if makerAmount <= 0 || takerAmount <= 0 {
		return nil, fmt.Errorf("invalid amounts: maker=%d taker=%d (price=%.4f size=%.4f)",
			makerAmount, takerAmount, price, size)
	}

	verifyingContract := gomodel.CTFExchange
	if negRisk {
		verifyingContract = gomodel.NegRiskCTFExchange
	}

	orderData := &gomodel.OrderData{
		Maker:         s.address.Hex(),
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   strconv.FormatInt(makerAmount, 10),
		TakerAmount:   strconv.FormatInt(takerAmount, 10),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        s.address.Hex(),
		Expiration:    "0",
		Side:          side,
		SignatureType: gomodel.EOA,
	}

	signed, err := s.builder.BuildSignedOrder(s.key, orderData, verifyingContract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}

// detectPricePrecision returns the multiplier matching the market's tick
// size: 0.60 → 100, 0.673 → 1000.
func detectPricePrecision(price float64) int64 {
	for _, prec := range []int64{100, 1000, 10000} {
		rounded := math.Round(price * float64(prec))
		if math.Abs(rounded/float64(prec)-price) < 1e-10 {
			return prec
		}
	}
	return 100
}
