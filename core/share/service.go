package share

import (
	"context"
	"fmt"
	"strings"

	"driveshare/config"
	"driveshare/core/errs"
	"driveshare/core/folders"
	"driveshare/core/mail"
	"driveshare/core/store"
	"driveshare/core/utils"
)

type Service struct {
	cfg     *config.AppConfig
	store   store.SharesStore
	folders *folders.Service
	docs    store.DocsStore
	users   store.UsersStore
	mailer  mail.Sender
	logger  *utils.Logger
}

type SaveRequest struct {
	Target     store.ShareTarget
	SharedBy   *store.User
	Recipients []store.Recipient
}

type SaveResult struct {
	IsShared bool `json:"isShared"`
	Added    int  `json:"added"`
	Removed  int  `json:"removed"`
}

func NewService(cfg *config.AppConfig, shares store.SharesStore, fs *folders.Service, docs store.DocsStore, users store.UsersStore, mailer mail.Sender, logger *utils.Logger) *Service {
	return &Service{cfg: cfg, store: shares, folders: fs, docs: docs, users: users, mailer: mailer, logger: logger}
}

func lookupFor(user *store.User, org string) store.ShareLookup {
	if user == nil {
		return store.ShareLookup{Organization: org}
	}
	return store.ShareLookup{User: user.ID, Teams: user.TeamsIn(org), Organization: org}
}

// CheckAccess reports whether a share row grants the caller access to target.
// Without a user only a shareable link applies. Only READ is ever granted, and
// only by a READ share.
func (s *Service) CheckAccess(ctx context.Context, target store.ShareTarget, user *store.User, org string, level store.AccessLevel) (bool, error) {
	if !target.Valid() {
		return false, nil
	}
	rows, err := s.store.FindForTarget(ctx, target, lookupFor(user, org))
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	return level == store.LevelRead && rows[0].SharedTo.Level == store.LevelRead, nil
}

func (s *Service) FindByItem(ctx context.Context, target store.ShareTarget) ([]store.Share, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: share target", errs.ErrValidation)
	}
	return s.store.ListByTarget(ctx, target)
}

func (s *Service) FindByID(ctx context.Context, id string) (*store.Share, error) {
	sh, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, fmt.Errorf("share %s: %w", id, errs.ErrNotFound)
	}
	return sh, nil
}

// Save makes the recipient list of target equal to req.Recipients. Removals
// run before additions; folder changes are applied to every descendant folder
// and every document in the subtree.
func (s *Service) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if !req.Target.Valid() || req.SharedBy == nil {
		return SaveResult{}, fmt.Errorf("%w: share target and sharer are required", errs.ErrValidation)
	}
	desired, err := s.normalize(ctx, req.SharedBy, req.Recipients)
	if err != nil {
		return SaveResult{}, err
	}
	existing, err := s.store.ListByTarget(ctx, req.Target)
	if err != nil {
		return SaveResult{}, err
	}
	toRemove, toAdd := diff(existing, desired)

	removeIDs := make([]string, 0, len(toRemove))
	for _, sh := range toRemove {
		removeIDs = append(removeIDs, sh.ID)
	}
	if err := s.store.DeleteByIDs(ctx, removeIDs); err != nil {
		return SaveResult{}, fmt.Errorf("remove shares: %w", err)
	}
	added := make([]store.Share, 0, len(toAdd))
	for _, to := range toAdd {
		added = append(added, store.Share{Target: req.Target, SharedBy: req.SharedBy.ID, SharedTo: to})
	}
	if err := s.store.Insert(ctx, added); err != nil {
		return SaveResult{}, fmt.Errorf("insert shares: %w", err)
	}
	if req.Target.Kind == store.TargetFolder {
		if err := s.propagate(ctx, req.Target.ID, toRemove, added); err != nil {
			return SaveResult{}, fmt.Errorf("propagate folder %s: %w", req.Target.ID, err)
		}
	}
	if len(added) > 0 {
		s.notify(ctx, req.Target, req.SharedBy, added)
	}
	return SaveResult{
		IsShared: len(existing)-len(toRemove)+len(added) > 0,
		Added:    len(added),
		Removed:  len(toRemove),
	}, nil
}

// normalize resolves registered emails to users, drops self shares and pins
// the level to READ.
func (s *Service) normalize(ctx context.Context, sharer *store.User, in []store.Recipient) ([]store.Recipient, error) {
	var emails []string
	for _, r := range in {
		if r.User == "" && r.Email != "" {
			emails = append(emails, r.Email)
		}
	}
	byEmail := map[string]string{}
	if len(emails) > 0 {
		users, err := s.users.FindByEmails(ctx, emails)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			byEmail[strings.ToLower(u.Email)] = u.ID
		}
	}
	out := make([]store.Recipient, 0, len(in))
	for _, r := range in {
		r.Email = strings.TrimSpace(r.Email)
		if r.User == "" && r.Email != "" {
			if id, ok := byEmail[strings.ToLower(r.Email)]; ok {
				r.User, r.Email = id, ""
			}
		}
		if r.User != "" && r.User == sharer.ID {
			continue
		}
		if !r.Single() {
			return nil, fmt.Errorf("%w: a share needs exactly one recipient", errs.ErrValidation)
		}
		r.Level = store.LevelRead
		out = append(out, r)
	}
	return out, nil
}

// sameRecipient compares by the existing row's identity: user, else team,
// else shareable link, else email.
func sameRecipient(existing, desired store.Recipient) bool {
	switch {
	case existing.User != "":
		return desired.User != "" && existing.User == desired.User
	case existing.Team != "":
		return desired.Team != "" && existing.Team == desired.Team
	case existing.ShareableLink:
		return desired.ShareableLink
	case existing.Email != "":
		return existing.Email == desired.Email
	}
	return false
}

func diff(existing []store.Share, desired []store.Recipient) (toRemove []store.Share, toAdd []store.Recipient) {
	for _, ex := range existing {
		keep := false
		for _, d := range desired {
			if sameRecipient(ex.SharedTo, d) {
				keep = true
				break
			}
		}
		if !keep {
			toRemove = append(toRemove, ex)
		}
	}
	for _, d := range desired {
		found := false
		for _, ex := range existing {
			if sameRecipient(ex.SharedTo, d) {
				found = true
				break
			}
		}
		if !found {
			toAdd = append(toAdd, d)
		}
	}
	return toRemove, toAdd
}

// propagate mirrors a folder's share change onto its subtree: descendant
// folders and documents in the folder or any descendant.
func (s *Service) propagate(ctx context.Context, folderID string, removed, added []store.Share) error {
	if len(removed) == 0 && len(added) == 0 {
		return nil
	}
	descendants, err := s.folders.DescendantIDs(ctx, folderID)
	if err != nil {
		return err
	}
	docs, err := s.docs.ListByFolders(ctx, append([]string{folderID}, descendants...))
	if err != nil {
		return err
	}
	targets := make([]store.ShareTarget, 0, len(descendants)+len(docs))
	for _, id := range descendants {
		targets = append(targets, store.FolderTarget(id))
	}
	for _, d := range docs {
		targets = append(targets, store.DocumentTarget(d.ID))
	}
	for _, t := range targets {
		for _, sh := range removed {
			if err := s.store.DeleteMatching(ctx, t, sh.SharedBy, sh.SharedTo); err != nil {
				return err
			}
		}
	}
	for _, t := range targets {
		for _, sh := range added {
			if err := s.store.UpsertMatching(ctx, t, sh.SharedBy, sh.SharedTo); err != nil {
				return err
			}
		}
	}
	s.logger.Debugf("share propagation folder=%s targets=%d removed=%d added=%d", folderID, len(targets), len(removed), len(added))
	return nil
}

// CheckAndCreateShare copies the shares of parentFolderID onto a newly
// created child.
func (s *Service) CheckAndCreateShare(ctx context.Context, parentFolderID string, child store.ShareTarget) error {
	if parentFolderID == "" || !child.Valid() {
		return nil
	}
	parentShares, err := s.store.ListByTarget(ctx, store.FolderTarget(parentFolderID))
	if err != nil {
		return err
	}
	if len(parentShares) == 0 {
		return nil
	}
	cloned := make([]store.Share, 0, len(parentShares))
	for _, sh := range parentShares {
		cloned = append(cloned, store.Share{Target: child, SharedBy: sh.SharedBy, SharedTo: sh.SharedTo})
	}
	return s.store.Insert(ctx, cloned)
}

// FindDocuments lists documents shared with the caller inside folderID.
func (s *Service) FindDocuments(ctx context.Context, user *store.User, folderID, org string) ([]store.Document, error) {
	return s.store.SharedDocuments(ctx, lookupFor(user, org), folderID)
}

// FindFolders lists folders shared with the caller under parentID.
func (s *Service) FindFolders(ctx context.Context, user *store.User, parentID, org string) ([]store.Folder, error) {
	items, err := s.store.SharedFolders(ctx, lookupFor(user, org), parentID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].IsShared = true
	}
	return items, nil
}

// ConvertEmailToUser turns pending email shares into user shares once the
// address has registered.
func (s *Service) ConvertEmailToUser(ctx context.Context, user *store.User) error {
	if user == nil || user.Email == "" {
		return nil
	}
	n, err := s.store.ConvertEmailToUser(ctx, user.Email, user.ID)
	if err != nil {
		return err
	}
	s.logger.Debugf("share email conversion user=%s rows=%d", user.ID, n)
	return nil
}

func (s *Service) RemoveAll(ctx context.Context, folderIDs, documentIDs []string) error {
	return s.store.DeleteByTargets(ctx, folderIDs, documentIDs)
}

func (s *Service) SearchUsersByEmail(ctx context.Context, emails []string) ([]store.User, error) {
	return s.users.FindByEmails(ctx, emails)
}

func (s *Service) SearchUsersByIDs(ctx context.Context, ids []string) ([]store.User, error) {
	return s.users.FindByIDs(ctx, ids)
}

// SharedFlags reports which of ids have at least one share row.
func (s *Service) SharedFlags(ctx context.Context, kind store.TargetKind, ids []string) (map[string]bool, error) {
	return s.store.SharedFlags(ctx, kind, ids)
}
