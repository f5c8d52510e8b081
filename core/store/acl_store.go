package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ACLQuery selects a single grant. When Public is set only the service binding
// is matched; otherwise empty fields are not constrained.
type ACLQuery struct {
	User         string
	ServiceID    string
	ServiceKey   string
	Organization string
	Public       bool
}

type ACLStore interface {
	Get(ctx context.Context, id string) (*ACL, error)
	FindOne(ctx context.Context, q ACLQuery) (*ACL, error)
	FindOneByService(ctx context.Context, serviceID, serviceKey string) (*ACL, error)
	ListByUser(ctx context.Context, user, org string) ([]ACL, error)
	ServiceKeys(ctx context.Context, user, serviceID, org string) ([]ServiceKey, error)
	Upsert(ctx context.Context, acl *ACL) (string, error)
	Update(ctx context.Context, acl *ACL) error
	Delete(ctx context.Context, id string) error
}

type aclStore struct {
	db *DB
}

func NewACLStore(db *DB) ACLStore {
	return &aclStore{db: db}
}

const aclColumns = `id, user_id, organization_id, service_id, service_key, service_key_name, level, is_public, created_at, updated_at`

func (s *aclStore) Get(ctx context.Context, id string) (*ACL, error) {
	return s.one(ctx, `SELECT `+aclColumns+` FROM drive_acl WHERE id=?`, id)
}

func (s *aclStore) FindOne(ctx context.Context, q ACLQuery) (*ACL, error) {
	clauses := []string{"service_id=?"}
	args := []any{q.ServiceID}
	if q.Public {
		c, a := eqOrNull("service_key", q.ServiceKey)
		clauses = append(clauses, c)
		args = append(args, a...)
	} else {
		if q.User != "" {
			clauses = append(clauses, "user_id=?")
			args = append(args, q.User)
		}
		if q.ServiceKey != "" {
			clauses = append(clauses, "service_key=?")
			args = append(args, q.ServiceKey)
		}
		if q.Organization != "" {
			clauses = append(clauses, "organization_id=?")
			args = append(args, q.Organization)
		}
	}
	return s.one(ctx, `SELECT `+aclColumns+` FROM drive_acl WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at LIMIT 1`, args...)
}

func (s *aclStore) FindOneByService(ctx context.Context, serviceID, serviceKey string) (*ACL, error) {
	c, a := eqOrNull("service_key", serviceKey)
	args := append([]any{serviceID}, a...)
	return s.one(ctx, `SELECT `+aclColumns+` FROM drive_acl WHERE service_id=? AND `+c+` ORDER BY is_public DESC, created_at LIMIT 1`, args...)
}

func (s *aclStore) ListByUser(ctx context.Context, user, org string) ([]ACL, error) {
	c, a := eqOrNull("organization_id", org)
	args := append([]any{user}, a...)
	rows, err := s.db.QueryContext(ctx, `SELECT `+aclColumns+` FROM drive_acl WHERE user_id=? AND `+c+` ORDER BY service_id, service_key`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ACL
	for rows.Next() {
		item, err := scanACL(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

// ServiceKeys lists the distinct keys of a service visible to the user, either
// granted to them directly or granted without a user. A non-empty org limits
// the keys to that organization.
func (s *aclStore) ServiceKeys(ctx context.Context, user, serviceID, org string) ([]ServiceKey, error) {
	clauses := []string{"service_id=?", "service_key IS NOT NULL", "(user_id=? OR user_id IS NULL)"}
	args := []any{serviceID, user}
	if org != "" {
		clauses = append(clauses, "organization_id=?")
		args = append(args, org)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_key, service_key_name, is_public FROM drive_acl
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY service_key, created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ServiceKey
	seen := map[string]int{}
	for rows.Next() {
		var key ServiceKey
		var public int
		if err := rows.Scan(&key.Key, &key.KeyName, &public); err != nil {
			return nil, err
		}
		if idx, ok := seen[key.Key]; ok {
			res[idx].Public = res[idx].Public || public == 1
			continue
		}
		key.Public = public == 1
		seen[key.Key] = len(res)
		res = append(res, key)
	}
	return res, rows.Err()
}

// Upsert keeps one grant per (user, organization, service, key).
func (s *aclStore) Upsert(ctx context.Context, acl *ACL) (string, error) {
	now := time.Now().UTC()
	var id string
	err := s.db.WithTx(ctx, func(tx *Tx) error {
		userClause, userArgs := eqOrNull("user_id", acl.User)
		orgClause, orgArgs := eqOrNull("organization_id", acl.Organization)
		keyClause, keyArgs := eqOrNull("service_key", acl.Service.Key)
		args := append(append(append(userArgs, orgArgs...), acl.Service.ID), keyArgs...)
		err := tx.QueryRowContext(ctx, `SELECT id FROM drive_acl WHERE `+userClause+` AND `+orgClause+` AND service_id=? AND `+keyClause+` LIMIT 1`, args...).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id = newID()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO drive_acl(`+aclColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)`,
				id, nullableString(acl.User), nullableString(acl.Organization), acl.Service.ID, nullableString(acl.Service.Key),
				acl.Service.KeyName, string(acl.Level), boolToInt(acl.Public), now, now)
			return err
		case err != nil:
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE drive_acl SET service_key_name=?, level=?, is_public=?, updated_at=? WHERE id=?`,
			acl.Service.KeyName, string(acl.Level), boolToInt(acl.Public), now, id)
		return err
	})
	if err != nil {
		return "", err
	}
	acl.ID = id
	return id, nil
}

func (s *aclStore) Update(ctx context.Context, acl *ACL) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE drive_acl SET user_id=?, organization_id=?, service_id=?, service_key=?, service_key_name=?, level=?, is_public=?, updated_at=?
		WHERE id=?`,
		nullableString(acl.User), nullableString(acl.Organization), acl.Service.ID, nullableString(acl.Service.Key),
		acl.Service.KeyName, string(acl.Level), boolToInt(acl.Public), time.Now().UTC(), acl.ID)
	return err
}

func (s *aclStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drive_acl WHERE id=?`, id)
	return err
}

func (s *aclStore) one(ctx context.Context, query string, args ...any) (*ACL, error) {
	item, err := scanACL(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func scanACL(row rowScanner) (ACL, error) {
	var a ACL
	var user, org, key sql.NullString
	var level string
	var public int
	if err := row.Scan(&a.ID, &user, &org, &a.Service.ID, &key, &a.Service.KeyName, &level, &public, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return a, err
	}
	a.User = fromNull(user)
	a.Organization = fromNull(org)
	a.Service.Key = fromNull(key)
	a.Level = AccessLevel(level)
	a.Public = public == 1
	return a, nil
}
