package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SettingsStore keeps storage quotas, keyed by organization when one is set
// and by user otherwise.
type SettingsStore interface {
	Find(ctx context.Context, user, org string) (*UserSettings, error)
	Save(ctx context.Context, settings *UserSettings) error
	AddUsage(ctx context.Context, user, org string, bytes, defaultTotal int64) error
}

type settingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) SettingsStore {
	return &settingsStore{db: db}
}

func settingsKey(user, org string) (string, []any) {
	if org != "" {
		return "organization_id=?", []any{org}
	}
	return "user_id=? AND organization_id IS NULL", []any{user}
}

func (s *settingsStore) Find(ctx context.Context, user, org string) (*UserSettings, error) {
	return findSettings(ctx, s.db, user, org)
}

func findSettings(ctx context.Context, q querier, user, org string) (*UserSettings, error) {
	clause, args := settingsKey(user, org)
	var st UserSettings
	var userID, orgID sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, organization_id, space_used, space_total, created_at, updated_at
		FROM drive_user_settings WHERE `+clause+` ORDER BY created_at LIMIT 1`, args...).
		Scan(&st.ID, &userID, &orgID, &st.Space.Used, &st.Space.Total, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	st.User = fromNull(userID)
	st.Organization = fromNull(orgID)
	return &st, nil
}

func (s *settingsStore) Save(ctx context.Context, settings *UserSettings) error {
	return s.db.WithTx(ctx, func(tx *Tx) error {
		return saveSettings(ctx, tx, settings)
	})
}

func saveSettings(ctx context.Context, tx *Tx, settings *UserSettings) error {
	now := time.Now().UTC()
	existing, err := findSettings(ctx, tx, settings.User, settings.Organization)
	if err != nil {
		return err
	}
	settings.UpdatedAt = now
	if existing == nil {
		settings.ID = newID()
		settings.CreatedAt = now
		user := settings.User
		if settings.Organization != "" {
			user = ""
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO drive_user_settings(id, user_id, organization_id, space_used, space_total, created_at, updated_at)
			VALUES(?,?,?,?,?,?,?)`,
			settings.ID, nullableString(user), nullableString(settings.Organization), settings.Space.Used, settings.Space.Total, now, now)
		return err
	}
	settings.ID = existing.ID
	settings.CreatedAt = existing.CreatedAt
	_, err = tx.ExecContext(ctx, `UPDATE drive_user_settings SET space_used=?, space_total=?, updated_at=? WHERE id=?`,
		settings.Space.Used, settings.Space.Total, now, existing.ID)
	return err
}

// AddUsage increments space.used, creating the row with defaultTotal when absent.
func (s *settingsStore) AddUsage(ctx context.Context, user, org string, bytes, defaultTotal int64) error {
	return s.db.WithTx(ctx, func(tx *Tx) error {
		existing, err := findSettings(ctx, tx, user, org)
		if err != nil {
			return err
		}
		if existing == nil {
			return saveSettings(ctx, tx, &UserSettings{User: user, Organization: org, Space: Space{Used: bytes, Total: defaultTotal}})
		}
		_, err = tx.ExecContext(ctx, `UPDATE drive_user_settings SET space_used=space_used+?, updated_at=? WHERE id=?`,
			bytes, time.Now().UTC(), existing.ID)
		return err
	})
}
