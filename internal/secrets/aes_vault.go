package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"

	"github.com/rendis/appspec/pkg/schema"
)

// VaultConfig configures the AES vault key derivation.
// Provide either MasterKey (raw 32 bytes) or Passphrase + Salt. The CLI
// derives from APPSPEC_VAULT_PASSPHRASE with a salt kept next to the database.
type VaultConfig struct {
	MasterKey  []byte // raw 32-byte key (takes priority)
	Passphrase string // derive key via PBKDF2
	Salt       []byte // salt for PBKDF2 (required with Passphrase)
	Iterations int    // PBKDF2 iterations (default 100_000)
}

// AESVault encrypts secrets with AES-256-GCM before persisting. Each
// ciphertext is bound to its key as additional data, so a sealed value
// copied under another key fails to open.
type AESVault struct {
	store SecretStore
	aead  cipher.AEAD
}

// NewAESVault creates a vault with AES-256-GCM encryption.
func NewAESVault(s SecretStore, cfg VaultConfig) (*AESVault, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "aes cipher: %s", err.Error()).WithCause(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "gcm: %s", err.Error()).WithCause(err)
	}
	return &AESVault{store: s, aead: aead}, nil
}

func deriveKey(cfg VaultConfig) ([]byte, error) {
	if len(cfg.MasterKey) > 0 {
		if len(cfg.MasterKey) != 32 {
			return nil, schema.NewErrorf(schema.ErrCodeVault,
				"master key must be 32 bytes, got %d", len(cfg.MasterKey))
		}
		return cfg.MasterKey, nil
	}
	if cfg.Passphrase == "" {
		return nil, schema.NewError(schema.ErrCodeVault, "either master_key or passphrase is required")
	}
	if len(cfg.Salt) == 0 {
		return nil, schema.NewError(schema.ErrCodeVault, "salt is required with passphrase")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, 32)
}

func (v *AESVault) encrypt(key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "generate nonce: %s", err.Error()).WithCause(err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, []byte(key)), nil
}

func (v *AESVault) decrypt(key string, ciphertext []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "secret %q: ciphertext too short", key)
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ct, []byte(key))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "secret %q: decrypt failed", key).WithCause(err)
	}
	return plaintext, nil
}

// Store encrypts value and persists it under key, replacing any previous value.
func (v *AESVault) Store(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return schema.NewError(schema.ErrCodeVault, "secret key is empty")
	}
	encrypted, err := v.encrypt(key, value)
	if err != nil {
		return err
	}
	return v.store.StoreSecret(ctx, key, encrypted)
}

// Resolve loads and decrypts the value stored under key.
func (v *AESVault) Resolve(ctx context.Context, key string) ([]byte, error) {
	encrypted, err := v.store.GetSecret(ctx, key)
	if err != nil {
		return nil, err
	}
	return v.decrypt(key, encrypted)
}

func (v *AESVault) Delete(ctx context.Context, key string) error {
	return v.store.DeleteSecret(ctx, key)
}

// List returns the stored keys starting with prefix.
func (v *AESVault) List(ctx context.Context, prefix string) ([]string, error) {
	return v.store.ListSecrets(ctx, prefix)
}

var _ Vault = (*AESVault)(nil)
