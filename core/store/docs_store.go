package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type DocsStore interface {
	Create(ctx context.Context, doc *Document) (string, error)
	Get(ctx context.Context, id string) (*Document, error)
	UpdateName(ctx context.Context, id, name string) error
	UpdateFolder(ctx context.Context, id, folderID string) error
	Delete(ctx context.Context, id string) error
	DeleteByIDs(ctx context.Context, ids []string) error
	List(ctx context.Context, filter DocumentFilter) ([]Document, error)
	ListByIDs(ctx context.Context, ids []string) ([]Document, error)
	ListByFolders(ctx context.Context, folderIDs []string) ([]Document, error)
	ListByServices(ctx context.Context, org string) ([]Document, error)
}

type docsStore struct {
	db *DB
}

func NewDocsStore(db *DB) DocsStore {
	return &docsStore{db: db}
}

const documentColumns = `id, name, store_key, size, content_type, organization_id, service_id, service_key, folder_id, created_by, thumbnail, is_external, created_at, updated_at`

func (s *docsStore) Create(ctx context.Context, doc *Document) (string, error) {
	if doc.ID == "" {
		doc.ID = newID()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	var svcID, svcKey string
	if doc.Service != nil {
		svcID, svcKey = doc.Service.ID, doc.Service.Key
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drive_documents(`+documentColumns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		doc.ID, doc.Name, doc.StoreKey, doc.Size, doc.ContentType, nullableString(doc.Organization),
		nullableString(svcID), nullableString(svcKey), nullableString(doc.FolderID), nullableString(doc.CreatedBy),
		doc.Thumbnail, boolToInt(doc.IsExternal), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (s *docsStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM drive_documents WHERE id=?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (s *docsStore) UpdateName(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE drive_documents SET name=?, updated_at=? WHERE id=?`, name, time.Now().UTC(), id)
	return err
}

func (s *docsStore) UpdateFolder(ctx context.Context, id, folderID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE drive_documents SET folder_id=?, updated_at=? WHERE id=?`, nullableString(folderID), time.Now().UTC(), id)
	return err
}

func (s *docsStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drive_documents WHERE id=?`, id)
	return err
}

func (s *docsStore) DeleteByIDs(ctx context.Context, ids []string) error {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM drive_documents WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	return err
}

// List applies the namespace rules: an organization scope when set, otherwise
// personal documents, then the service binding and the folder.
func (s *docsStore) List(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	var clauses []string
	var args []any
	add := func(clause string, a []any) {
		clauses = append(clauses, clause)
		args = append(args, a...)
	}
	if filter.Organization != "" {
		add("organization_id=?", []any{filter.Organization})
	} else {
		add("organization_id IS NULL", nil)
		if filter.ServiceID == "" && filter.CreatedBy != "" {
			add("created_by=?", []any{filter.CreatedBy})
		}
	}
	if filter.ServiceID != "" {
		add("service_id=?", []any{filter.ServiceID})
		add(eqOrNull("service_key", filter.ServiceKey))
	} else {
		add("service_id IS NULL", nil)
	}
	add(eqOrNull("folder_id", filter.FolderID))
	query := `SELECT ` + documentColumns + ` FROM drive_documents WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id`
	return s.query(ctx, query, args...)
}

func (s *docsStore) ListByIDs(ctx context.Context, ids []string) ([]Document, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+documentColumns+` FROM drive_documents WHERE id IN (`+placeholders(len(ids))+`) ORDER BY created_at DESC, id`, stringArgs(ids)...)
}

func (s *docsStore) ListByFolders(ctx context.Context, folderIDs []string) ([]Document, error) {
	folderIDs = uniqueStrings(folderIDs)
	if len(folderIDs) == 0 {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+documentColumns+` FROM drive_documents WHERE folder_id IN (`+placeholders(len(folderIDs))+`) ORDER BY created_at DESC, id`, stringArgs(folderIDs)...)
}

// ListByServices returns the service-bound documents of an organization.
func (s *docsStore) ListByServices(ctx context.Context, org string) ([]Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM drive_documents WHERE organization_id=? AND service_id IS NOT NULL ORDER BY created_at DESC, id`, org)
}

func (s *docsStore) query(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, doc)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var org, svcID, svcKey, folder, createdBy sql.NullString
	var external int
	if err := row.Scan(&doc.ID, &doc.Name, &doc.StoreKey, &doc.Size, &doc.ContentType, &org, &svcID, &svcKey,
		&folder, &createdBy, &doc.Thumbnail, &external, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return doc, err
	}
	doc.Organization = fromNull(org)
	doc.FolderID = fromNull(folder)
	doc.CreatedBy = fromNull(createdBy)
	doc.IsExternal = external == 1
	if svcID.Valid {
		doc.Service = &ServiceRef{ID: svcID.String, Key: fromNull(svcKey)}
	}
	return doc, nil
}
