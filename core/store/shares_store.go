package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type SharesStore interface {
	Get(ctx context.Context, id string) (*Share, error)
	ListByTarget(ctx context.Context, target ShareTarget) ([]Share, error)
	FindForTarget(ctx context.Context, target ShareTarget, lookup ShareLookup) ([]Share, error)
	Insert(ctx context.Context, shares []Share) error
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteMatching(ctx context.Context, target ShareTarget, sharedBy string, to Recipient) error
	UpsertMatching(ctx context.Context, target ShareTarget, sharedBy string, to Recipient) error
	DeleteByTargets(ctx context.Context, folderIDs, documentIDs []string) error
	SharedDocuments(ctx context.Context, lookup ShareLookup, folderID string) ([]Document, error)
	SharedFolders(ctx context.Context, lookup ShareLookup, parentID string) ([]Folder, error)
	SharedFlags(ctx context.Context, kind TargetKind, ids []string) (map[string]bool, error)
	ConvertEmailToUser(ctx context.Context, email, userID string) (int64, error)
}

type sharesStore struct {
	db *DB
}

func NewSharesStore(db *DB) SharesStore {
	return &sharesStore{db: db}
}

const shareColumns = `id, document_id, folder_id, shared_by, recipient_user, recipient_team, recipient_email, shareable_link, organization_id, level, created_at, updated_at`

func targetColumn(kind TargetKind) string {
	if kind == TargetFolder {
		return "folder_id"
	}
	return "document_id"
}

func (s *sharesStore) Get(ctx context.Context, id string) (*Share, error) {
	sh, err := scanShare(s.db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM drive_shares WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sh, nil
}

func (s *sharesStore) ListByTarget(ctx context.Context, target ShareTarget) ([]Share, error) {
	return s.query(ctx, `SELECT `+shareColumns+` FROM drive_shares WHERE `+targetColumn(target.Kind)+`=? ORDER BY created_at, id`, target.ID)
}

// FindForTarget returns the rows on target that apply to the caller.
func (s *sharesStore) FindForTarget(ctx context.Context, target ShareTarget, lookup ShareLookup) ([]Share, error) {
	clause, args := recipientMatch("", lookup)
	args = append([]any{target.ID}, args...)
	return s.query(ctx, `SELECT `+shareColumns+` FROM drive_shares WHERE `+targetColumn(target.Kind)+`=? AND `+clause+` ORDER BY created_at, id`, args...)
}

func (s *sharesStore) Insert(ctx context.Context, shares []Share) error {
	if len(shares) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.db.WithTx(ctx, func(tx *Tx) error {
		for i := range shares {
			sh := &shares[i]
			if sh.ID == "" {
				sh.ID = newID()
			}
			sh.CreatedAt, sh.UpdatedAt = now, now
			if err := insertShare(ctx, tx, sh); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sharesStore) DeleteByIDs(ctx context.Context, ids []string) error {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM drive_shares WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	return err
}

func (s *sharesStore) DeleteMatching(ctx context.Context, target ShareTarget, sharedBy string, to Recipient) error {
	clause, args := matchKey(target, sharedBy, to)
	_, err := s.db.ExecContext(ctx, `DELETE FROM drive_shares WHERE `+clause, args...)
	return err
}

// UpsertMatching inserts the share unless a row with the same target, sharer,
// recipient and organization exists, in which case only its level is updated.
func (s *sharesStore) UpsertMatching(ctx context.Context, target ShareTarget, sharedBy string, to Recipient) error {
	clause, args := matchKey(target, sharedBy, to)
	now := time.Now().UTC()
	return s.db.WithTx(ctx, func(tx *Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM drive_shares WHERE `+clause+` LIMIT 1`, args...).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return insertShare(ctx, tx, &Share{ID: newID(), Target: target, SharedBy: sharedBy, SharedTo: to, CreatedAt: now, UpdatedAt: now})
		case err != nil:
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE drive_shares SET level=?, updated_at=? WHERE id=?`, string(to.Level), now, id)
		return err
	})
}

func (s *sharesStore) DeleteByTargets(ctx context.Context, folderIDs, documentIDs []string) error {
	folderIDs = uniqueStrings(folderIDs)
	documentIDs = uniqueStrings(documentIDs)
	if len(folderIDs) > 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM drive_shares WHERE folder_id IN (`+placeholders(len(folderIDs))+`)`, stringArgs(folderIDs)...); err != nil {
			return err
		}
	}
	if len(documentIDs) > 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM drive_shares WHERE document_id IN (`+placeholders(len(documentIDs))+`)`, stringArgs(documentIDs)...); err != nil {
			return err
		}
	}
	return nil
}

// SharedDocuments lists documents shared with the caller inside folderID. At
// the root it also returns documents whose folder is not shared with the caller.
func (s *sharesStore) SharedDocuments(ctx context.Context, lookup ShareLookup, folderID string) ([]Document, error) {
	match, args := recipientMatch("s.", lookup)
	query := `SELECT ` + prefixed("d.", documentColumns) + ` FROM drive_documents d
		WHERE EXISTS (SELECT 1 FROM drive_shares s WHERE s.document_id = d.id AND ` + match + `)`
	if folderID != "" {
		query += ` AND d.folder_id=?`
		args = append(args, folderID)
	} else {
		parentMatch, parentArgs := recipientMatch("p.", lookup)
		query += ` AND (d.folder_id IS NULL OR NOT EXISTS (SELECT 1 FROM drive_shares p WHERE p.folder_id = d.folder_id AND ` + parentMatch + `))`
		args = append(args, parentArgs...)
	}
	query += ` ORDER BY d.created_at DESC, d.id`
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

// SharedFolders lists folders shared with the caller under parentID. At the
// root a shared folder counts when its parent is not shared with the caller.
func (s *sharesStore) SharedFolders(ctx context.Context, lookup ShareLookup, parentID string) ([]Folder, error) {
	match, args := recipientMatch("s.", lookup)
	query := `SELECT ` + prefixed("f.", folderColumns) + ` FROM drive_folders f
		WHERE EXISTS (SELECT 1 FROM drive_shares s WHERE s.folder_id = f.id AND ` + match + `)`
	if parentID != "" {
		query += ` AND f.parent_id=?`
		args = append(args, parentID)
	} else {
		parentMatch, parentArgs := recipientMatch("p.", lookup)
		query += ` AND (f.parent_id IS NULL OR NOT EXISTS (SELECT 1 FROM drive_shares p WHERE p.folder_id = f.parent_id AND ` + parentMatch + `))`
		args = append(args, parentArgs...)
	}
	query += ` ORDER BY f.name, f.id`
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

// SharedFlags reports which of ids have at least one share row.
func (s *sharesStore) SharedFlags(ctx context.Context, kind TargetKind, ids []string) (map[string]bool, error) {
	ids = uniqueStrings(ids)
	res := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	col := targetColumn(kind)
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT `+col+` FROM drive_shares WHERE `+col+` IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res[id] = true
	}
	return res, rows.Err()
}

func (s *sharesStore) ConvertEmailToUser(ctx context.Context, email, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE drive_shares SET recipient_user=?, recipient_email=NULL, updated_at=?
		WHERE LOWER(recipient_email)=LOWER(?) AND recipient_user IS NULL AND recipient_team IS NULL AND shareable_link=0`,
		userID, time.Now().UTC(), email)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sharesStore) query(ctx context.Context, query string, args ...any) ([]Share, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Share
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sh)
	}
	return res, rows.Err()
}

func insertShare(ctx context.Context, q querier, sh *Share) error {
	var docID, folderID string
	if sh.Target.Kind == TargetFolder {
		folderID = sh.Target.ID
	} else {
		docID = sh.Target.ID
	}
	level := sh.SharedTo.Level
	if level == "" {
		level = LevelRead
	}
	_, err := q.ExecContext(ctx, `INSERT INTO drive_shares(`+shareColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		sh.ID, nullableString(docID), nullableString(folderID), sh.SharedBy,
		nullableString(sh.SharedTo.User), nullableString(sh.SharedTo.Team), nullableString(sh.SharedTo.Email),
		boolToInt(sh.SharedTo.ShareableLink), nullableString(sh.SharedTo.Organization), string(level), sh.CreatedAt, sh.UpdatedAt)
	return err
}

// recipientMatch selects rows addressed to the caller: a user (directly or via
// a team of the organization) or, without a user, a shareable link.
func recipientMatch(alias string, l ShareLookup) (string, []any) {
	orgClause, orgArgs := eqOrNull(alias+"organization_id", l.Organization)
	if l.User == "" {
		return alias + "shareable_link=1 AND " + orgClause, orgArgs
	}
	if l.Organization == "" {
		return alias + "recipient_user=? AND " + orgClause, []any{l.User}
	}
	teams := uniqueStrings(l.Teams)
	if len(teams) == 0 {
		return alias + "recipient_user=? AND " + orgClause, append([]any{l.User}, orgArgs...)
	}
	args := append(stringArgs(teams), l.User)
	args = append(args, orgArgs...)
	return "(" + alias + "recipient_team IN (" + placeholders(len(teams)) + ") OR " + alias + "recipient_user=?) AND " + orgClause, args
}

// matchKey identifies a propagated share by target, sharer, recipient identity
// and organization.
func matchKey(target ShareTarget, sharedBy string, to Recipient) (string, []any) {
	clause := targetColumn(target.Kind) + "=? AND shared_by=?"
	args := []any{target.ID, sharedBy}
	switch to.Kind() {
	case RecipientUser:
		clause += " AND recipient_user=?"
		args = append(args, to.User)
	case RecipientTeam:
		clause += " AND recipient_team=?"
		args = append(args, to.Team)
	case RecipientLink:
		clause += " AND shareable_link=1"
	case RecipientEmail:
		clause += " AND recipient_email=?"
		args = append(args, to.Email)
	}
	orgClause, orgArgs := eqOrNull("organization_id", to.Organization)
	return clause + " AND " + orgClause, append(args, orgArgs...)
}

func prefixed(alias, columns string) string {
	out := make([]byte, 0, len(columns)*2)
	out = append(out, alias...)
	for i := 0; i < len(columns); i++ {
		out = append(out, columns[i])
		if columns[i] == ' ' && i > 0 && columns[i-1] == ',' {
			out = append(out, alias...)
		}
	}
	return string(out)
}

func scanShare(row rowScanner) (Share, error) {
	var sh Share
	var docID, folderID, user, team, email, org sql.NullString
	var link int
	var level string
	if err := row.Scan(&sh.ID, &docID, &folderID, &sh.SharedBy, &user, &team, &email, &link, &org, &level, &sh.CreatedAt, &sh.UpdatedAt); err != nil {
		return sh, err
	}
	if folderID.Valid {
		sh.Target = FolderTarget(folderID.String)
	} else {
		sh.Target = DocumentTarget(fromNull(docID))
	}
	sh.SharedTo = Recipient{
		User:          fromNull(user),
		Team:          fromNull(team),
		Email:         fromNull(email),
		ShareableLink: link == 1,
		Organization:  fromNull(org),
		Level:         AccessLevel(level),
	}
	return sh, nil
}
