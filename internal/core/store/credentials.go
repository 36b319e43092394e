package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CredentialEntry describes a stored credential without its secret.
type CredentialEntry struct {
	Provider  string
	Label     string
	UpdatedAt time.Time
}

// GetCredential returns the API key stored for provider. A missing row
// returns an empty string and a nil error.
func (s *Store) GetCredential(ctx context.Context, provider string) (string, error) {
	if s == nil || s.DB == nil {
		return "", errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", errors.New("provider is required")
	}

	var apiKey string
	row := s.DB.QueryRowContext(ctx, `SELECT api_key FROM credentials WHERE provider = ?`, provider)
	if err := row.Scan(&apiKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("fetch credential: %w", err)
	}
	return apiKey, nil
}

// SetCredential stores or replaces the API key for provider.
func (s *Store) SetCredential(ctx context.Context, provider, label, apiKey string, now time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider = strings.TrimSpace(provider)
	apiKey = strings.TrimSpace(apiKey)
	if provider == "" {
		return errors.New("provider is required")
	}
	if apiKey == "" {
		return errors.New("api key is required")
	}

	ts := now.UTC().Unix()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO credentials (provider, api_key, label, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			api_key = excluded.api_key,
			label = excluded.label,
			updated_at = excluded.updated_at
	`, provider, apiKey, strings.TrimSpace(label), ts, ts)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// DeleteCredential removes the credential for provider and reports whether
// one existed.
func (s *Store) DeleteCredential(ctx context.Context, provider string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM credentials WHERE provider = ?`, strings.TrimSpace(provider))
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	return affected > 0, nil
}

// ListCredentials returns stored credentials ordered by provider. Secrets
// are not read.
func (s *Store) ListCredentials(ctx context.Context) ([]CredentialEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT provider, label, updated_at
		FROM credentials
		ORDER BY provider
	`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []CredentialEntry{}
	for rows.Next() {
		var (
			provider  string
			label     sql.NullString
			updatedAt int64
		)
		if err := rows.Scan(&provider, &label, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan credentials: %w", err)
		}
		entries = append(entries, CredentialEntry{
			Provider:  provider,
			Label:     label.String,
			UpdatedAt: time.Unix(updatedAt, 0).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return entries, nil
}
