package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/nerrad567/graycam/internal/infrastructure/database"
)

const (
	// KeyBrokerURL holds the MQTT broker URL, e.g. "mqtt://broker.local:1883".
	KeyBrokerURL = "MQTT_URL"

	// MaxKeyLen is the longest accepted key or namespace.
	MaxKeyLen = 15

	// MaxValueLen is the longest accepted value in bytes.
	MaxValueLen = 4000
)

// brokerSchemes are the URL schemes the MQTT transport can dial.
var brokerSchemes = []any{"mqtt", "mqtts", "tcp", "ssl", "tls", "ws", "wss"}

// Entry is one stored value.
type Entry struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats summarises store usage.
type Stats struct {
	Entries    int `json:"entries"`
	Namespaces int `json:"namespaces"`
}

// Store reads and writes settings in a single namespace.
//
// Thread Safety: safe for concurrent use; the underlying pool serialises access.
type Store struct {
	db        *database.DB
	namespace string
}

// New returns a Store bound to namespace.
func New(db *database.DB, namespace string) (*Store, error) {
	if err := validateKey(namespace); err != nil {
		return nil, fmt.Errorf("namespace %q: %w", namespace, err)
	}
	return &Store{db: db, namespace: namespace}, nil
}

// Namespace returns the namespace this store is bound to.
func (s *Store) Namespace() string {
	return s.namespace
}

// Get returns the value for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE namespace = ? AND key = ?",
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, s.namespace, key)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s/%s: %w", s.namespace, key, err)
	}
	return string(value), nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validation.Validate(value, validation.Length(0, MaxValueLen)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if key == KeyBrokerURL {
		if err := ValidateBrokerURL(value); err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, s.namespace, key, []byte(value), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM settings WHERE namespace = ? AND key = ?", s.namespace, key)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", s.namespace, key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, s.namespace, key)
	}
	return nil
}

// List returns every entry in the store's namespace, ordered by key.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	return s.query(ctx,
		"SELECT namespace, key, value, updated_at FROM settings WHERE namespace = ? ORDER BY key",
		s.namespace)
}

// ListAll returns entries across all namespaces.
func (s *Store) ListAll(ctx context.Context) ([]Entry, error) {
	return s.query(ctx,
		"SELECT namespace, key, value, updated_at FROM settings ORDER BY namespace, key")
}

// Stats counts entries and namespaces across the whole store.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT namespace) FROM settings",
	).Scan(&st.Entries, &st.Namespaces)
	if err != nil {
		return Stats{}, fmt.Errorf("reading settings stats: %w", err)
	}
	return st, nil
}

// BrokerURL returns the provisioned broker URL.
func (s *Store) BrokerURL(ctx context.Context) (string, error) {
	v, err := s.Get(ctx, KeyBrokerURL)
	if errors.Is(err, ErrNotFound) {
		return "", ErrMissingBrokerURL
	}
	if err != nil {
		return "", err
	}
	if err := ValidateBrokerURL(v); err != nil {
		return "", err
	}
	return v, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			value   []byte
			updated string
		)
		if err := rows.Scan(&e.Namespace, &e.Key, &value, &updated); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		e.Value = string(value)
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updated) //nolint:errcheck // Format is controlled
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return entries, nil
}

func validateKey(key string) error {
	if err := validation.Validate(key, validation.Required, validation.Length(1, MaxKeyLen)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return nil
}

// ValidateBrokerURL checks that raw is an absolute URL the MQTT transport can dial.
func ValidateBrokerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: broker URL: %v", ErrInvalidValue, err)
	}
	err = validation.Errors{
		"scheme": validation.Validate(u.Scheme, validation.Required, validation.In(brokerSchemes...)),
		"host":   validation.Validate(u.Host, validation.Required),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: broker URL: %v", ErrInvalidValue, err)
	}
	return nil
}
