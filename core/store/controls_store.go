package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type ControlsStore interface {
	List(ctx context.Context, documentID string) ([]DocumentControl, error)
	Get(ctx context.Context, id string) (*DocumentControl, error)
	Save(ctx context.Context, c *DocumentControl) (string, error)
	Delete(ctx context.Context, id string) error
	DeleteByDocuments(ctx context.Context, documentIDs []string) error
	CountBySignature(ctx context.Context, signatureID string) (int, error)
}

type controlsStore struct {
	db *DB
}

func NewControlsStore(db *DB) ControlsStore {
	return &controlsStore{db: db}
}

const controlColumns = `id, document_id, type, page_number, pos_x, pos_y, signature_id, created_at, updated_at`

func (s *controlsStore) List(ctx context.Context, documentID string) ([]DocumentControl, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+controlColumns+` FROM drive_document_controls WHERE document_id=? ORDER BY page_number, created_at, id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DocumentControl
	for rows.Next() {
		c, err := scanControl(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *controlsStore) Get(ctx context.Context, id string) (*DocumentControl, error) {
	c, err := scanControl(s.db.QueryRowContext(ctx, `SELECT `+controlColumns+` FROM drive_document_controls WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Save inserts the control when it has no id, otherwise updates it in place.
func (s *controlsStore) Save(ctx context.Context, c *DocumentControl) (string, error) {
	now := time.Now().UTC()
	c.UpdatedAt = now
	if c.PageNumber <= 0 {
		c.PageNumber = 1
	}
	if c.ID == "" {
		c.ID = newID()
		c.CreatedAt = now
		_, err := s.db.ExecContext(ctx, `INSERT INTO drive_document_controls(`+controlColumns+`) VALUES(?,?,?,?,?,?,?,?,?)`,
			c.ID, c.DocumentID, string(c.Type), c.PageNumber, c.Position.X, c.Position.Y, nullableString(c.SignatureID), now, now)
		if err != nil {
			return "", err
		}
		return c.ID, nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE drive_document_controls SET type=?, page_number=?, pos_x=?, pos_y=?, signature_id=?, updated_at=? WHERE id=?`,
		string(c.Type), c.PageNumber, c.Position.X, c.Position.Y, nullableString(c.SignatureID), now, c.ID)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (s *controlsStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drive_document_controls WHERE id=?`, id)
	return err
}

func (s *controlsStore) DeleteByDocuments(ctx context.Context, documentIDs []string) error {
	documentIDs = uniqueStrings(documentIDs)
	if len(documentIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM drive_document_controls WHERE document_id IN (`+placeholders(len(documentIDs))+`)`, stringArgs(documentIDs)...)
	return err
}

func (s *controlsStore) CountBySignature(ctx context.Context, signatureID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drive_document_controls WHERE signature_id=?`, signatureID).Scan(&n)
	return n, err
}

func scanControl(row rowScanner) (DocumentControl, error) {
	var c DocumentControl
	var typ string
	var sig sql.NullString
	if err := row.Scan(&c.ID, &c.DocumentID, &typ, &c.PageNumber, &c.Position.X, &c.Position.Y, &sig, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	c.Type = ControlType(typ)
	c.SignatureID = fromNull(sig)
	return c, nil
}
