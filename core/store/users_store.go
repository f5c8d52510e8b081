package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// UsersStore holds the identity records the drive authorizes against.
type UsersStore interface {
	Get(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmails(ctx context.Context, emails []string) ([]User, error)
	FindByIDs(ctx context.Context, ids []string) ([]User, error)
	Save(ctx context.Context, u *User) (string, error)

	GetOrganization(ctx context.Context, id string) (*Organization, error)
	SaveOrganization(ctx context.Context, org *Organization) (string, error)
}

type usersStore struct {
	db *DB
}

func NewUsersStore(db *DB) UsersStore {
	return &usersStore{db: db}
}

const userColumns = `id, email, first_name, last_name, sysadmin, created_at, updated_at`

func (s *usersStore) Get(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.loadRoles(ctx, []*User{&u}); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *usersStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	users, err := s.FindByEmails(ctx, []string{email})
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return &users[0], nil
}

func (s *usersStore) FindByEmails(ctx context.Context, emails []string) ([]User, error) {
	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(e)))
	}
	normalized = uniqueStrings(normalized)
	if len(normalized) == 0 {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) IN (`+placeholders(len(normalized))+`) ORDER BY email`, stringArgs(normalized)...)
}

func (s *usersStore) FindByIDs(ctx context.Context, ids []string) ([]User, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`) ORDER BY email`, stringArgs(ids)...)
}

// Save upserts the user and replaces its organization roles.
func (s *usersStore) Save(ctx context.Context, u *User) (string, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	err := s.db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users(`+userColumns+`) VALUES(?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET email=excluded.email, first_name=excluded.first_name, last_name=excluded.last_name,
				sysadmin=excluded.sysadmin, updated_at=excluded.updated_at`,
			u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.FirstName, u.LastName, boolToInt(u.Sysadmin), u.CreatedAt, u.UpdatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_org_roles WHERE user_id=?`, u.ID); err != nil {
			return err
		}
		for _, r := range u.Roles {
			if r.Organization == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO user_org_roles(user_id, organization_id, role, services, teams) VALUES(?,?,?,?,?)`,
				u.ID, r.Organization, r.Role, toJSON(nonNilServices(r.Services)), toJSON(nonNilStrings(r.Teams))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func (s *usersStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var org Organization
	var services string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, domain, services, created_at FROM organizations WHERE id=?`, id).
		Scan(&org.ID, &org.Name, &org.Domain, &services, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(services), &org.Services)
	return &org, nil
}

func (s *usersStore) SaveOrganization(ctx context.Context, org *Organization) (string, error) {
	if org.ID == "" {
		org.ID = newID()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations(id, name, domain, services, created_at) VALUES(?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, domain=excluded.domain, services=excluded.services`,
		org.ID, org.Name, org.Domain, toJSON(nonNilStrings(org.Services)), org.CreatedAt)
	if err != nil {
		return "", err
	}
	return org.ID, nil
}

func (s *usersStore) query(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	ptrs := make([]*User, 0, len(res))
	for i := range res {
		ptrs = append(ptrs, &res[i])
	}
	return res, s.loadRoles(ctx, ptrs)
}

func (s *usersStore) loadRoles(ctx context.Context, users []*User) error {
	if len(users) == 0 {
		return nil
	}
	byID := make(map[string]*User, len(users))
	ids := make([]string, 0, len(users))
	for _, u := range users {
		byID[u.ID] = u
		ids = append(ids, u.ID)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, organization_id, role, services, teams FROM user_org_roles
		WHERE user_id IN (`+placeholders(len(ids))+`) ORDER BY organization_id`, stringArgs(ids)...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var userID, services, teams string
		var r Role
		if err := rows.Scan(&userID, &r.Organization, &r.Role, &services, &teams); err != nil {
			return err
		}
		_ = json.Unmarshal([]byte(services), &r.Services)
		_ = json.Unmarshal([]byte(teams), &r.Teams)
		if u := byID[userID]; u != nil {
			u.Roles = append(u.Roles, r)
		}
	}
	return rows.Err()
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var sysadmin int
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &sysadmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return u, err
	}
	u.Sysadmin = sysadmin == 1
	return u, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilServices(in []ServiceRole) []ServiceRole {
	if in == nil {
		return []ServiceRole{}
	}
	return in
}
