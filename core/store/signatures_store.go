package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type SignaturesStore interface {
	Create(ctx context.Context, sig *Signature) (string, error)
	Get(ctx context.Context, id string) (*Signature, error)
	ListByUser(ctx context.Context, userID string) ([]Signature, error)
	Delete(ctx context.Context, id string) error
}

type signaturesStore struct {
	db *DB
}

func NewSignaturesStore(db *DB) SignaturesStore {
	return &signaturesStore{db: db}
}

const signatureColumns = `id, user_id, name, store_key, content_type, size, created_at`

func (s *signaturesStore) Create(ctx context.Context, sig *Signature) (string, error) {
	if sig.ID == "" {
		sig.ID = newID()
	}
	sig.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO drive_signatures(`+signatureColumns+`) VALUES(?,?,?,?,?,?,?)`,
		sig.ID, sig.UserID, sig.Name, sig.StoreKey, sig.ContentType, sig.Size, sig.CreatedAt)
	if err != nil {
		return "", err
	}
	return sig.ID, nil
}

func (s *signaturesStore) Get(ctx context.Context, id string) (*Signature, error) {
	sig, err := scanSignature(s.db.QueryRowContext(ctx, `SELECT `+signatureColumns+` FROM drive_signatures WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sig, nil
}

func (s *signaturesStore) ListByUser(ctx context.Context, userID string) ([]Signature, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+signatureColumns+` FROM drive_signatures WHERE user_id=? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Signature
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sig)
	}
	return res, rows.Err()
}

func (s *signaturesStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drive_signatures WHERE id=?`, id)
	return err
}

func scanSignature(row rowScanner) (Signature, error) {
	var sig Signature
	err := row.Scan(&sig.ID, &sig.UserID, &sig.Name, &sig.StoreKey, &sig.ContentType, &sig.Size, &sig.CreatedAt)
	return sig, err
}
