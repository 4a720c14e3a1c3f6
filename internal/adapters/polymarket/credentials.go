package polymarket

// credentials.go — ports.CredentialStore backed by environment variables
// (loaded from .env by the config layer). Key custody stays outside the
// engine; this store only validates and derives addresses.

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/polypilot/internal/ports"
)

// EnvPrefix is the environment variable prefix for wallet private keys:
// POLYPILOT_PK_<WALLET_ID> (wallet id uppercased, dashes as underscores).
const EnvPrefix = "POLYPILOT_PK_"

// EnvCredentialStore resolves signing keys from the environment.
type EnvCredentialStore struct {
	lookup func(string) (string, bool)

	mu    sync.Mutex
	cache map[string]ports.Credentials
}

// NewEnvCredentialStore creates the store. lookup defaults to os.LookupEnv
// when nil (injectable for tests).
func NewEnvCredentialStore(lookup func(string) (string, bool)) *EnvCredentialStore {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvCredentialStore{
		lookup: lookup,
		cache:  make(map[string]ports.Credentials),
	}
}

// Resolve returns validated credentials for walletID, or
// ports.ErrNoCredentials when no key is configured.
func (s *EnvCredentialStore) Resolve(_ context.Context, walletID string) (ports.Credentials, error) {
	s.mu.Lock()
	if c, ok := s.cache[walletID]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	raw, ok := s.lookup(envKey(walletID))
	if !ok || raw == "" {
		return ports.Credentials{}, fmt.Errorf("wallet %q: %w", walletID, ports.ErrNoCredentials)
	}

	hexKey := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return ports.Credentials{}, fmt.Errorf("wallet %q: invalid private key: %w", walletID, err)
	}

	c := ports.Credentials{
		WalletID:      walletID,
		Address:       crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKeyHex: hexKey,
	}

	s.mu.Lock()
	s.cache[walletID] = c
	s.mu.Unlock()
	return c, nil
}

func envKey(walletID string) string {
	id := strings.ToUpper(walletID)
	id = strings.NewReplacer("-", "_", ".", "_").Replace(id)
	return EnvPrefix + id
}
