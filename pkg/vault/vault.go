// Package vault generates disposable escrow wallets and seals them for storage.
//
// Sealed wallets are hex-encoded "nonce:authTag:ciphertext" triples produced with
// AES-256-GCM. The key is derived once per process with PBKDF2-SHA256 from an
// operator secret and a static salt.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 iteration count used for key derivation.
	DefaultIterations = 100_000

	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrDecrypt is returned for any sealed wallet that fails authentication or parsing.
	ErrDecrypt = errors.New("wallet decryption failed")
	// ErrEmptySecret is returned when the vault is built without a secret or salt.
	ErrEmptySecret = errors.New("vault secret and salt are required")
)

// Wallet is an escrow keypair. The private key is kept unexported so it can only
// leave the value through PrivateKey, at signing time.
type Wallet struct {
	address common.Address
	key     *ecdsa.PrivateKey
}

// Address returns the wallet's account address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// PrivateKey returns the signing key.
func (w *Wallet) PrivateKey() (*ecdsa.PrivateKey, error) {
	if w == nil || w.key == nil {
		return nil, fmt.Errorf("wallet has no key")
	}
	return w.key, nil
}

// String never includes key material.
func (w *Wallet) String() string {
	return w.address.Hex()
}

// GoString never includes key material.
func (w *Wallet) GoString() string {
	return "vault.Wallet{" + w.address.Hex() + "}"
}

// sealedWallet is the plaintext layout inside the ciphertext.
type sealedWallet struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

// Vault seals and opens wallets with a process-wide derived key.
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key from secret and salt.
func New(secret, salt string, iterations int) (*Vault, error) {
	if secret == "" || salt == "" {
		return nil, ErrEmptySecret
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	key := pbkdf2.Key([]byte(secret), []byte(salt), iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// GenerateWallet creates a fresh secp256k1 wallet.
func GenerateWallet() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}
	return &Wallet{address: crypto.PubkeyToAddress(key.PublicKey), key: key}, nil
}

// GeneratePair creates the payin (A) and payout (B) wallets for one transfer.
func (v *Vault) GeneratePair() (*Wallet, *Wallet, error) {
	a, err := GenerateWallet()
	if err != nil {
		return nil, nil, err
	}
	b, err := GenerateWallet()
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// Seal encrypts the wallet into its storage form.
func (v *Vault) Seal(w *Wallet) (string, error) {
	if w == nil || w.key == nil {
		return "", fmt.Errorf("cannot seal empty wallet")
	}

	plain, err := json.Marshal(sealedWallet{
		Address:    w.address.Hex(),
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(w.key)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode wallet: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// GCM appends the tag to the ciphertext; split it out for the stored layout.
	out := v.aead.Seal(nil, nonce, plain, nil)
	ct, tag := out[:len(out)-tagSize], out[len(out)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, ":"), nil
}

// Open authenticates and decrypts a sealed wallet. Every failure wraps ErrDecrypt.
func (v *Vault) Open(sealed string) (*Wallet, error) {
	parts := strings.Split(sealed, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: malformed sealed wallet", ErrDecrypt)
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return nil, fmt.Errorf("%w: invalid nonce", ErrDecrypt)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: invalid auth tag", ErrDecrypt)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext", ErrDecrypt)
	}

	plain, err := v.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	var sw sealedWallet
	if err := json.Unmarshal(plain, &sw); err != nil {
		return nil, fmt.Errorf("%w: invalid payload", ErrDecrypt)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(sw.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key", ErrDecrypt)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if !strings.EqualFold(addr.Hex(), sw.Address) {
		return nil, fmt.Errorf("%w: address does not match key", ErrDecrypt)
	}

	return &Wallet{address: addr, key: key}, nil
}
