package ports

import (
	"context"
	"errors"
)

// ErrNoCredentials marks a wallet with no signing material. Callers skip the
// wallet; it is never a crash.
var ErrNoCredentials = errors.New("no credentials for wallet")

// Credentials is the signing material resolved for one wallet.
type Credentials struct {
	WalletID      string
	Address       string // checksummed 0x address derived from the key
	PrivateKeyHex string // hex encoded, no 0x prefix
}

// CredentialStore resolves signing material per wallet. Custody and key
// generation live outside this core.
type CredentialStore interface {
	Resolve(ctx context.Context, walletID string) (Credentials, error)
}
