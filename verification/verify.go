// Package verification checks the signatures produced during a connector
// handshake.
package verification

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/types"
)

// Challenge is the sign-in message a wallet is asked to sign after connecting.
type Challenge struct {
	App      string
	Account  string
	ChainID  types.ChainID
	Nonce    string
	IssuedAt time.Time
}

// NewChallenge creates a challenge with a fresh nonce.
func NewChallenge(app, account string, chainID types.ChainID) Challenge {
	return Challenge{
		App:      app,
		Account:  account,
		ChainID:  chainID,
		Nonce:    uuid.NewString(),
		IssuedAt: time.Now().UTC(),
	}
}

// Message renders the text presented to the user by the wallet.
func (c Challenge) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your account:\n", c.App)
	fmt.Fprintf(&b, "%s\n\n", c.Account)
	fmt.Fprintf(&b, "Chain ID: %d\n", c.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", c.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", c.IssuedAt.Format(time.RFC3339))
	return b.String()
}

// RecoverPersonalSign returns the address that produced an EIP-191 personal_sign
// signature over message.
func RecoverPersonalSign(message []byte, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}

	sig := make([]byte, len(signature))
	copy(sig, signature)
	// Wallets return v as 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonalSign checks that signature over message was produced by account.
// Any mismatch or malformed input is an AuthError.
func VerifyPersonalSign(account string, message []byte, signature []byte) error {
	if !common.IsHexAddress(account) {
		return apperror.NewAuth(fmt.Sprintf("account %q cannot sign messages", account), nil)
	}

	signer, err := RecoverPersonalSign(message, signature)
	if err != nil {
		return apperror.NewAuth("handshake signature is invalid", err)
	}
	if signer != common.HexToAddress(account) {
		return apperror.NewAuth(
			fmt.Sprintf("handshake signature was produced by %s, not %s", signer.Hex(), common.HexToAddress(account).Hex()), nil)
	}
	return nil
}

// DecodeSignature parses a 0x-prefixed hex signature.
func DecodeSignature(s string) ([]byte, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return nil, apperror.NewAuth("handshake signature is not valid hex", err)
	}
	return b, nil
}
