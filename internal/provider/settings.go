package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sydlexius/scruffy/internal/encryption"
)

// Scope selects which kind of enrichment a provider toggle applies to.
type Scope string

// Enrichment scopes.
const (
	ScopeArtist Scope = "artist"
	ScopeAlbum  Scope = "album"
)

// SettingsService manages provider API keys, enabled flags, and the priority
// order using the settings key-value table. API keys are encrypted at rest.
type SettingsService struct {
	db        *sql.DB
	encryptor *encryption.Encryptor
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(db *sql.DB, encryptor *encryption.Encryptor) *SettingsService {
	return &SettingsService{db: db, encryptor: encryptor}
}

func apiKeySettingKey(name ProviderName) string {
	return fmt.Sprintf("provider.%s.api_key", name)
}

func apiSecretSettingKey(name ProviderName) string {
	return fmt.Sprintf("provider.%s.api_secret", name)
}

// disabledSettingKey returns the settings key marking a provider disabled for
// a scope. Providers are enabled unless this key exists.
func disabledSettingKey(name ProviderName, scope Scope) string {
	return fmt.Sprintf("provider.%s.%s.disabled", name, scope)
}

const prioritySettingKey = "provider.priority"

// GetAPIKey retrieves and decrypts the API key for a provider.
// Returns empty string if no key is configured.
func (s *SettingsService) GetAPIKey(ctx context.Context, name ProviderName) (string, error) {
	return s.getEncrypted(ctx, name, apiKeySettingKey(name))
}

// GetAPISecret retrieves and decrypts the API secret for a provider, for
// providers that authenticate with a key/secret pair.
func (s *SettingsService) GetAPISecret(ctx context.Context, name ProviderName) (string, error) {
	return s.getEncrypted(ctx, name, apiSecretSettingKey(name))
}

func (s *SettingsService) getEncrypted(ctx context.Context, name ProviderName, key string) (string, error) {
	var encrypted string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading credential for %s: %w", name, err)
	}
	plaintext, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypting credential for %s: %w", name, err)
	}
	return plaintext, nil
}

// SetAPIKey encrypts and stores the API key for a provider. An empty key
// deletes the stored value.
func (s *SettingsService) SetAPIKey(ctx context.Context, name ProviderName, apiKey string) error {
	return s.setEncrypted(ctx, name, apiKeySettingKey(name), apiKey)
}

// SetAPISecret encrypts and stores the API secret for a provider.
func (s *SettingsService) SetAPISecret(ctx context.Context, name ProviderName, secret string) error {
	return s.setEncrypted(ctx, name, apiSecretSettingKey(name), secret)
}

func (s *SettingsService) setEncrypted(ctx context.Context, name ProviderName, key, value string) error {
	if value == "" {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
			return fmt.Errorf("deleting credential for %s: %w", name, err)
		}
		return nil
	}
	encrypted, err := s.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting credential for %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = datetime('now')",
		key, encrypted, encrypted,
	)
	if err != nil {
		return fmt.Errorf("storing credential for %s: %w", name, err)
	}
	return nil
}

// IsEnabled reports whether a provider is enabled for a scope. Providers are
// enabled by default.
func (s *SettingsService) IsEnabled(ctx context.Context, name ProviderName, scope Scope) (bool, error) {
	key := disabledSettingKey(name, scope)
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading enabled state for %s: %w", name, err)
	}
	return value != "true", nil
}

// SetEnabled stores the enabled state of a provider for a scope.
func (s *SettingsService) SetEnabled(ctx context.Context, name ProviderName, scope Scope, enabled bool) error {
	key := disabledSettingKey(name, scope)
	if enabled {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
			return fmt.Errorf("enabling %s: %w", name, err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, 'true') ON CONFLICT(key) DO UPDATE SET value = 'true', updated_at = datetime('now')",
		key,
	)
	if err != nil {
		return fmt.Errorf("disabling %s: %w", name, err)
	}
	return nil
}

// EnabledMap returns the enabled state of every known provider for a scope.
func (s *SettingsService) EnabledMap(ctx context.Context, scope Scope) (map[ProviderName]bool, error) {
	enabled := make(map[ProviderName]bool, len(AllProviderNames()))
	for _, name := range AllProviderNames() {
		on, err := s.IsEnabled(ctx, name, scope)
		if err != nil {
			return nil, err
		}
		enabled[name] = on
	}
	return enabled, nil
}

// Priority returns the provider priority order, falling back to the default
// order. Providers missing from a stored list are appended in default order
// so newly added providers take part without a settings reset.
func (s *SettingsService) Priority(ctx context.Context) ([]ProviderName, error) {
	defaults := AllProviderNames()

	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", prioritySettingKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading provider priority: %w", err)
	}

	var stored []ProviderName
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		return defaults, nil
	}

	known := make(map[ProviderName]bool, len(defaults))
	for _, p := range defaults {
		known[p] = true
	}
	var result []ProviderName
	seen := make(map[ProviderName]bool, len(stored))
	for _, p := range stored {
		if known[p] && !seen[p] {
			result = append(result, p)
			seen[p] = true
		}
	}
	for _, p := range defaults {
		if !seen[p] {
			result = append(result, p)
		}
	}
	return result, nil
}

// SetPriority stores the provider priority order.
func (s *SettingsService) SetPriority(ctx context.Context, providers []ProviderName) error {
	data, err := json.Marshal(providers)
	if err != nil {
		return fmt.Errorf("marshaling provider priority: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = datetime('now')",
		prioritySettingKey, string(data), string(data),
	)
	if err != nil {
		return fmt.Errorf("storing provider priority: %w", err)
	}
	return nil
}

// EnabledProviders returns the priority-ordered providers that are enabled
// for a scope and, for auth-requiring providers, have a key configured.
func (s *SettingsService) EnabledProviders(ctx context.Context, scope Scope) ([]ProviderName, error) {
	priority, err := s.Priority(ctx)
	if err != nil {
		return nil, err
	}
	var result []ProviderName
	for _, name := range priority {
		on, err := s.IsEnabled(ctx, name, scope)
		if err != nil {
			return nil, err
		}
		if !on {
			continue
		}
		if providerRequiresKey(name) {
			key, err := s.GetAPIKey(ctx, name)
			if err != nil {
				return nil, err
			}
			if key == "" {
				continue
			}
		}
		result = append(result, name)
	}
	return result, nil
}

// providerRequiresKey returns whether a provider cannot work without a key.
// Spotify works anonymously but can use client credentials when configured.
func providerRequiresKey(name ProviderName) bool {
	return name == NameLastFM
}
