// Package vault seals reviewer comments with Vault's transit engine.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"manuscript-review/internal/config"
)

// CiphertextPrefix marks values produced by the transit engine
const CiphertextPrefix = "vault:"

var errInvalidResponse = errors.New("invalid transit response")

// Sealer encrypts and decrypts comments through a transit key
type Sealer struct {
	client  *api.Client
	mount   string
	keyName string
}

// NewSealer connects to Vault, mounts the transit engine if needed and makes
// sure the comment key exists
func NewSealer(ctx context.Context, cfg *config.VaultConfig) (*Sealer, error) {
	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	s := &Sealer{client: client, mount: cfg.TransitMount, keyName: cfg.KeyName}
	if s.mount == "" {
		s.mount = "transit"
	}
	if s.keyName == "" {
		s.keyName = "review-comments"
	}

	if err := s.ensureMount(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureKey(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sealer) ensureMount(ctx context.Context) error {
	mounts, err := s.client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mounts: %w", err)
	}
	if _, exists := mounts[s.mount+"/"]; exists {
		return nil
	}

	err = s.client.Sys().MountWithContext(ctx, s.mount, &api.MountInput{
		Type:        "transit",
		Description: "Reviewer comment encryption",
	})
	if err != nil {
		return fmt.Errorf("failed to mount transit engine: %w", err)
	}
	return nil
}

func (s *Sealer) ensureKey(ctx context.Context) error {
	path := fmt.Sprintf("%s/keys/%s", s.mount, s.keyName)
	existing, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to read key %s: %w", s.keyName, err)
	}
	if existing != nil {
		return nil
	}

	_, err = s.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"type":       "aes256-gcm96",
		"exportable": false,
	})
	if err != nil {
		return fmt.Errorf("failed to create key %s: %w", s.keyName, err)
	}
	return nil
}

// Seal encrypts plaintext and returns the transit ciphertext
func (s *Sealer) Seal(ctx context.Context, plaintext string) (string, error) {
	path := fmt.Sprintf("%s/encrypt/%s", s.mount, s.keyName)
	secret, err := s.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString([]byte(plaintext)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encrypt comment: %w", err)
	}
	if secret == nil {
		return "", errInvalidResponse
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok || !strings.HasPrefix(ciphertext, CiphertextPrefix) {
		return "", errInvalidResponse
	}
	return ciphertext, nil
}

// Open decrypts a stored comment. Values without the transit prefix were
// stored before sealing was enabled and are returned unchanged.
func (s *Sealer) Open(ctx context.Context, stored string) (string, error) {
	if !strings.HasPrefix(stored, CiphertextPrefix) {
		return stored, nil
	}

	path := fmt.Sprintf("%s/decrypt/%s", s.mount, s.keyName)
	secret, err := s.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"ciphertext": stored,
	})
	if err != nil {
		return "", fmt.Errorf("failed to decrypt comment: %w", err)
	}
	if secret == nil {
		return "", errInvalidResponse
	}

	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return "", errInvalidResponse
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode plaintext: %w", err)
	}
	return string(plaintext), nil
}

// Health checks that Vault is initialized and unsealed
func (s *Sealer) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := s.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized {
		return errors.New("vault is not initialized")
	}
	if health.Sealed {
		return errors.New("vault is sealed")
	}
	return nil
}
