package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type FoldersStore interface {
	Create(ctx context.Context, f *Folder) (string, error)
	Update(ctx context.Context, f *Folder) error
	Get(ctx context.Context, id string) (*Folder, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	ListPersonal(ctx context.Context, user, parentID string) ([]Folder, error)
	ListOrganization(ctx context.Context, org, parentID string) ([]Folder, error)
	ListByIDs(ctx context.Context, ids []string) ([]Folder, error)
	ChildIDs(ctx context.Context, parentIDs []string) ([]string, error)
	FindByDynamicName(ctx context.Context, dynamicName, org string) (*Folder, error)
	ListServiceFolders(ctx context.Context, serviceKey, user, org string) ([]Folder, error)
}

type foldersStore struct {
	db *DB
}

func NewFoldersStore(db *DB) FoldersStore {
	return &foldersStore{db: db}
}

const folderColumns = `id, name, dynamic_name, dynamic_name_ref, parent_id, organization_id, service_key, created_by, created_at, updated_at`

func (s *foldersStore) Create(ctx context.Context, f *Folder) (string, error) {
	if f.ID == "" {
		f.ID = newID()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drive_folders(`+folderColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		f.ID, nullableString(f.Name), nullableString(f.DynamicName), nullableString(f.DynamicNameRef), nullableString(f.ParentID),
		nullableString(f.Organization), nullableString(f.ServiceKey), f.CreatedBy, now, now)
	if err != nil {
		return "", err
	}
	return f.ID, nil
}

func (s *foldersStore) Update(ctx context.Context, f *Folder) error {
	f.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE drive_folders SET name=?, dynamic_name=?, dynamic_name_ref=?, parent_id=?, updated_at=? WHERE id=?`,
		nullableString(f.Name), nullableString(f.DynamicName), nullableString(f.DynamicNameRef), nullableString(f.ParentID), f.UpdatedAt, f.ID)
	return err
}

func (s *foldersStore) Get(ctx context.Context, id string) (*Folder, error) {
	return s.one(ctx, `SELECT `+folderColumns+` FROM drive_folders WHERE id=?`, id)
}

func (s *foldersStore) DeleteByIDs(ctx context.Context, ids []string) error {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM drive_folders WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	return err
}

func (s *foldersStore) ListPersonal(ctx context.Context, user, parentID string) ([]Folder, error) {
	c, a := eqOrNull("parent_id", parentID)
	args := append([]any{user}, a...)
	return s.query(ctx, `SELECT `+folderColumns+` FROM drive_folders
		WHERE created_by=? AND organization_id IS NULL AND `+c+` ORDER BY name, id`, args...)
}

func (s *foldersStore) ListOrganization(ctx context.Context, org, parentID string) ([]Folder, error) {
	c, a := eqOrNull("parent_id", parentID)
	args := append([]any{org}, a...)
	return s.query(ctx, `SELECT `+folderColumns+` FROM drive_folders
		WHERE organization_id=? AND service_key IS NULL AND `+c+` ORDER BY name, id`, args...)
}

func (s *foldersStore) ListByIDs(ctx context.Context, ids []string) ([]Folder, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+folderColumns+` FROM drive_folders WHERE id IN (`+placeholders(len(ids))+`) ORDER BY name, id`, stringArgs(ids)...)
}

func (s *foldersStore) ChildIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	parentIDs = uniqueStrings(parentIDs)
	if len(parentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM drive_folders WHERE parent_id IN (`+placeholders(len(parentIDs))+`)`, stringArgs(parentIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func (s *foldersStore) FindByDynamicName(ctx context.Context, dynamicName, org string) (*Folder, error) {
	c, a := eqOrNull("organization_id", org)
	args := append([]any{dynamicName}, a...)
	return s.one(ctx, `SELECT `+folderColumns+` FROM drive_folders WHERE dynamic_name=? AND `+c+` ORDER BY created_at LIMIT 1`, args...)
}

// ListServiceFolders returns the folders bound to serviceKey inside org, or
// created by user when org is empty.
func (s *foldersStore) ListServiceFolders(ctx context.Context, serviceKey, user, org string) ([]Folder, error) {
	if org != "" {
		return s.query(ctx, `SELECT `+folderColumns+` FROM drive_folders WHERE service_key=? AND organization_id=? ORDER BY name, id`, serviceKey, org)
	}
	return s.query(ctx, `SELECT `+folderColumns+` FROM drive_folders WHERE service_key=? AND created_by=? AND organization_id IS NULL ORDER BY name, id`, serviceKey, user)
}

func (s *foldersStore) one(ctx context.Context, query string, args ...any) (*Folder, error) {
	f, err := scanFolder(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (s *foldersStore) query(ctx context.Context, query string, args ...any) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func scanFolder(row rowScanner) (Folder, error) {
	var f Folder
	var name, dyn, dynRef, parent, org, key sql.NullString
	if err := row.Scan(&f.ID, &name, &dyn, &dynRef, &parent, &org, &key, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return f, err
	}
	f.Name = fromNull(name)
	f.DynamicName = fromNull(dyn)
	f.DynamicNameRef = fromNull(dynRef)
	f.ParentID = fromNull(parent)
	f.Organization = fromNull(org)
	f.ServiceKey = fromNull(key)
	return f, nil
}
