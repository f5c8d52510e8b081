package docs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"driveshare/config"
	"driveshare/core/acl"
	"driveshare/core/blob"
	"driveshare/core/errs"
	"driveshare/core/folders"
	"driveshare/core/pdfsign"
	"driveshare/core/share"
	"driveshare/core/signatures"
	"driveshare/core/store"
	"driveshare/core/utils"
)

// Service owns document records, their blobs and controls. It also runs the
// operations that span folders and shares, such as cascading folder delete.
type Service struct {
	cfg        *config.AppConfig
	store      store.DocsStore
	controls   store.ControlsStore
	settings   store.SettingsStore
	users      store.UsersStore
	folders    *folders.Service
	shares     *share.Service
	acl        *acl.Engine
	signatures *signatures.Service
	signer     *pdfsign.Engine
	blobs      blob.Store
	client     *http.Client
	logger     *utils.Logger
}

type Deps struct {
	Docs       store.DocsStore
	Controls   store.ControlsStore
	Settings   store.SettingsStore
	Users      store.UsersStore
	Folders    *folders.Service
	Shares     *share.Service
	ACL        *acl.Engine
	Signatures *signatures.Service
	Signer     *pdfsign.Engine
	Blobs      blob.Store
}

func NewService(cfg *config.AppConfig, deps Deps, logger *utils.Logger) *Service {
	timeout := cfg.Docs.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		cfg:        cfg,
		store:      deps.Docs,
		controls:   deps.Controls,
		settings:   deps.Settings,
		users:      deps.Users,
		folders:    deps.Folders,
		shares:     deps.Shares,
		acl:        deps.ACL,
		signatures: deps.Signatures,
		signer:     deps.Signer,
		blobs:      deps.Blobs,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *Service) storeKey(id, org, name string) string {
	sub := "/"
	if org != "" {
		sub = "/ORGANIZATIONS/" + org + "/"
	}
	return s.cfg.EffectiveServiceID() + "/DOCUMENTS" + sub + id + filepath.Ext(name)
}

// FindAll lists documents in the caller's namespace for one service (or none)
// and one folder (or the root).
func (s *Service) FindAll(ctx context.Context, caller Caller, req ListRequest) ([]store.Document, error) {
	items, err := s.store.List(ctx, store.DocumentFilter{
		Organization: caller.Organization,
		ServiceID:    req.ServiceID,
		ServiceKey:   req.KeyID,
		FolderID:     req.FolderID,
		CreatedBy:    caller.userID(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.annotate(ctx, items); err != nil {
		return nil, err
	}
	if req.SignedURLTTL > 0 {
		s.attachURLs(ctx, items, req.SignedURLTTL)
	}
	return items, nil
}

func (s *Service) annotate(ctx context.Context, items []store.Document) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, d := range items {
		ids = append(ids, d.ID)
	}
	flags, err := s.shares.SharedFlags(ctx, store.TargetDocument, ids)
	if err != nil {
		return err
	}
	for i := range items {
		items[i].IsShared = flags[items[i].ID]
	}
	return nil
}

func (s *Service) attachURLs(ctx context.Context, items []store.Document, ttl time.Duration) {
	for i := range items {
		url, err := s.blobs.SignedURL(ctx, items[i].StoreKey, items[i].Name, ttl, false)
		if err != nil {
			s.logger.Errorf("signed url %s: %v", items[i].ID, err)
			continue
		}
		items[i].SignedURL = url
	}
}

func (s *Service) FindByFolder(ctx context.Context, folderID string) ([]store.Document, error) {
	return s.store.ListByFolders(ctx, []string{folderID})
}

func (s *Service) FindByFolders(ctx context.Context, folderIDs []string) ([]store.Document, error) {
	return s.store.ListByFolders(ctx, folderIDs)
}

func (s *Service) FindByServices(ctx context.Context, org string) ([]store.Document, error) {
	return s.store.ListByServices(ctx, org)
}

// FindByServiceFolder lists the documents of the service folder bound to
// dynamicName, with short lived download URLs.
func (s *Service) FindByServiceFolder(ctx context.Context, caller Caller, dynamicName string) ([]store.Document, error) {
	folder, err := s.folders.FindByDynamicName(ctx, dynamicName, caller.Organization)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("service folder %s: %w", dynamicName, errs.ErrNotFound)
	}
	if _, err := acl.Require(s.acl.CheckServiceFolderAccess(ctx, folder, caller.User, caller.Organization, store.LevelRead, false)); err != nil {
		return nil, err
	}
	items, err := s.store.ListByFolders(ctx, []string{folder.ID})
	if err != nil {
		return nil, err
	}
	s.attachURLs(ctx, items, s.cfg.EffectiveSignedURLTTL())
	return items, nil
}

func (s *Service) Get(ctx context.Context, id string) (*store.Document, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	return doc, nil
}

// create uploads the blob and stores the record. The thumbnail is optional:
// failures are logged and the document is stored without one.
func (s *Service) create(ctx context.Context, doc *store.Document, file Upload, serviceFolder string) (*store.Document, error) {
	if len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", errs.ErrValidation)
	}
	if file.ContentType == "" {
		file.ContentType = http.DetectContentType(file.Data)
	}
	doc.ID = uuid.Must(uuid.NewV4()).String()
	doc.StoreKey = s.storeKey(doc.ID, doc.Organization, file.Name)
	doc.Name = file.Name
	doc.ContentType = file.ContentType

	res, err := s.blobs.Upload(ctx, doc.StoreKey, file.ContentType, file.Data)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", doc.StoreKey, err)
	}
	doc.Size = res.Size

	if len(file.Data) > s.cfg.Docs.ThumbnailMinBytes && isImage(file.ContentType) {
		thumb, err := thumbnail(file.Data, s.cfg.Docs.ThumbnailSize, s.cfg.Docs.ThumbnailQuality)
		if err != nil {
			s.logger.Errorf("thumbnail %s: %v", doc.ID, err)
		} else {
			doc.Thumbnail = thumb
		}
	}

	if serviceFolder != "" {
		folder, err := s.folders.FindByDynamicName(ctx, serviceFolder, doc.Organization)
		if err != nil {
			return nil, err
		}
		if folder != nil {
			doc.FolderID = folder.ID
		}
	}

	if _, err := s.store.Create(ctx, doc); err != nil {
		if rmErr := s.blobs.Remove(ctx, doc.StoreKey); rmErr != nil {
			s.logger.Errorf("rollback blob %s: %v", doc.StoreKey, rmErr)
		}
		return nil, err
	}
	return doc, nil
}

func (s *Service) requireOrganizationService(doc *store.Document) error {
	if doc.Organization != "" && doc.Service != nil && doc.Service.ID == "" && doc.Service.Key == "" {
		return fmt.Errorf("%w: For organization documents you need specify a service and a key", errs.ErrValidation)
	}
	return nil
}

// prepare builds the document skeleton for an upload and checks that the
// caller may write into its namespace.
func (s *Service) prepare(ctx context.Context, caller Caller, req CreateRequest) (*store.Document, acl.Result, error) {
	if caller.User == nil {
		return nil, acl.Result{}, errs.ErrUnauthenticated
	}
	org := req.Organization
	if org == "" {
		org = caller.Organization
	}
	doc := &store.Document{Service: req.Service, FolderID: req.FolderID, CreatedBy: caller.User.ID}
	if doc.Service != nil && doc.Service.ID == "" && doc.Service.Key == "" && org == "" {
		doc.Service = nil
	}
	if !req.IsPublic && org != "" {
		doc.Organization = org
		if err := s.requireOrganizationService(doc); err != nil {
			return nil, acl.Result{}, err
		}
	}
	if doc.FolderID != "" {
		if _, err := s.folders.Get(ctx, doc.FolderID); err != nil {
			return nil, acl.Result{}, err
		}
	}
	res, err := acl.Require(s.acl.ResolveAccess(ctx, acl.DocumentResource(doc), caller.User, org, store.LevelWrite, req.IsPublic))
	if err != nil {
		return nil, res, err
	}
	return doc, res, nil
}

// finish applies the side effects every upload shares: quota accounting,
// inherited folder shares and the optional download URL.
func (s *Service) finish(ctx context.Context, caller Caller, org string, doc *store.Document, res acl.Result, ttl time.Duration) {
	if !res.ViaPublic {
		if err := s.addUsage(ctx, caller.userID(), org, doc.Size); err != nil {
			s.logger.Errorf("quota %s: %v", doc.ID, err)
		}
	}
	if doc.FolderID != "" {
		if err := s.shares.CheckAndCreateShare(ctx, doc.FolderID, store.DocumentTarget(doc.ID)); err != nil {
			s.logger.Errorf("inherit shares %s: %v", doc.ID, err)
		}
	}
	if ttl > 0 {
		url, err := s.blobs.SignedURL(ctx, doc.StoreKey, doc.Name, ttl, true)
		if err != nil {
			s.logger.Errorf("signed url %s: %v", doc.ID, err)
			return
		}
		doc.SignedURL = url
	}
}

func callerOrg(caller Caller, req CreateRequest) string {
	if req.Organization != "" {
		return req.Organization
	}
	return caller.Organization
}

// Create stores an uploaded file.
func (s *Service) Create(ctx context.Context, caller Caller, req CreateRequest, file Upload) (*store.Document, error) {
	doc, res, err := s.prepare(ctx, caller, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.create(ctx, doc, file, req.ServiceFolder); err != nil {
		return nil, err
	}
	s.finish(ctx, caller, callerOrg(caller, req), doc, res, req.SignedURLTTL)
	return doc, nil
}

// CreateFromURL fetches url and stores it as an external document.
func (s *Service) CreateFromURL(ctx context.Context, caller Caller, req CreateRequest, url string) (*store.Document, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: url is required", errs.ErrValidation)
	}
	doc, res, err := s.prepare(ctx, caller, req)
	if err != nil {
		return nil, err
	}
	file, err := s.fetchExternal(ctx, url)
	if err != nil {
		return nil, err
	}
	doc.IsExternal = true
	if _, err := s.create(ctx, doc, file, req.ServiceFolder); err != nil {
		return nil, err
	}
	s.finish(ctx, caller, callerOrg(caller, req), doc, res, req.SignedURLTTL)
	return doc, nil
}

// CreateForService stores a file uploaded by another service. The target
// organization must have the service enabled, unless it is this service.
func (s *Service) CreateForService(ctx context.Context, req InternalRequest, file Upload) (*store.Document, error) {
	if req.ServiceID == "" {
		return nil, fmt.Errorf("%w: service id is required", errs.ErrValidation)
	}
	org, err := s.users.GetOrganization(ctx, req.Organization)
	if err != nil {
		return nil, err
	}
	allowed := req.ServiceID == s.cfg.EffectiveServiceID() ||
		(org != nil && slices.Contains(org.Services, req.ServiceID))
	if org == nil || !allowed {
		return nil, fmt.Errorf("%w: Not authorized to upload to service", errs.ErrAccessDenied)
	}
	doc := &store.Document{Service: &store.ServiceRef{ID: req.ServiceID}}
	if !req.IsPublic {
		doc.Organization = org.ID
	}
	if _, err := s.create(ctx, doc, file, ""); err != nil {
		return nil, err
	}
	if req.SignedURLTTL > 0 {
		url, err := s.blobs.SignedURL(ctx, doc.StoreKey, doc.Name, req.SignedURLTTL, true)
		if err != nil {
			s.logger.Errorf("signed url %s: %v", doc.ID, err)
		} else {
			doc.SignedURL = url
		}
	}
	return doc, nil
}

// URL returns a short lived download URL for id. Without a user only a
// shareable link grants access; with a user a share or an ACL grant does.
func (s *Service) URL(ctx context.Context, caller Caller, id string, download bool) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	isPublic := false
	if doc.Service != nil && doc.Service.ID != "" && doc.Service.Key != "" {
		row, err := s.acl.FindOneByService(ctx, doc.Service.ID, doc.Service.Key)
		if err != nil {
			return "", err
		}
		isPublic = row != nil && row.Public
	}
	shared, err := s.shares.CheckAccess(ctx, store.DocumentTarget(doc.ID), caller.User, caller.Organization, store.LevelRead)
	if err != nil {
		return "", err
	}
	if !shared {
		if caller.User == nil {
			return "", errs.ErrAccessDenied
		}
		if _, err := acl.Require(s.acl.ResolveAccess(ctx, acl.DocumentResource(doc), caller.User, caller.Organization, store.LevelRead, isPublic)); err != nil {
			return "", err
		}
	}
	return s.blobs.SignedURL(ctx, doc.StoreKey, doc.Name, s.cfg.EffectiveSignedURLTTL(), download)
}

func (s *Service) requireDocument(ctx context.Context, caller Caller, id string, level store.AccessLevel) (*store.Document, acl.Result, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, acl.Result{}, err
	}
	res, err := acl.Require(s.acl.ResolveAccess(ctx, acl.DocumentResource(doc), caller.User, caller.Organization, level, false))
	if err != nil {
		return nil, res, err
	}
	return doc, res, nil
}

// Rename changes the document name. FULL access is required.
func (s *Service) Rename(ctx context.Context, caller Caller, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", errs.ErrValidation)
	}
	if _, _, err := s.requireDocument(ctx, caller, id, store.LevelFull); err != nil {
		return err
	}
	return s.store.UpdateName(ctx, id, name)
}

// Remove deletes a document with its blob, controls and shares.
func (s *Service) Remove(ctx context.Context, caller Caller, id string) error {
	doc, _, err := s.requireDocument(ctx, caller, id, store.LevelFull)
	if err != nil {
		return err
	}
	if err := s.remove(ctx, doc); err != nil {
		return err
	}
	return s.shares.RemoveAll(ctx, nil, []string{id})
}

func (s *Service) remove(ctx context.Context, doc *store.Document) error {
	if err := s.blobs.Remove(ctx, doc.StoreKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("remove blob %s: %w", doc.StoreKey, err)
	}
	if err := s.controls.DeleteByDocuments(ctx, []string{doc.ID}); err != nil {
		return err
	}
	return s.store.Delete(ctx, doc.ID)
}

// RemoveByFolders deletes every document in folderIDs and returns their ids.
// Share rows are left to the caller.
func (s *Service) RemoveByFolders(ctx context.Context, folderIDs []string) ([]string, error) {
	items, err := s.store.ListByFolders(ctx, folderIDs)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(items))
	keys := make([]string, 0, len(items))
	for _, d := range items {
		ids = append(ids, d.ID)
		keys = append(keys, d.StoreKey)
	}
	if err := s.blobs.RemoveMany(ctx, keys); err != nil {
		return nil, fmt.Errorf("remove blobs: %w", err)
	}
	if err := s.controls.DeleteByDocuments(ctx, ids); err != nil {
		return nil, err
	}
	if err := s.store.DeleteByIDs(ctx, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// RemoveFolder deletes a folder, every folder below it, the documents in
// all of them and every share that targets any of those.
func (s *Service) RemoveFolder(ctx context.Context, caller Caller, folderID string) error {
	folder, err := s.folders.Get(ctx, folderID)
	if err != nil {
		return err
	}
	ok, err := s.folders.CheckAccess(ctx, folder, caller.User, caller.Organization, store.LevelFull)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrAccessDenied
	}
	below, err := s.folders.DescendantIDs(ctx, folderID)
	if err != nil {
		return err
	}
	all := append([]string{folderID}, below...)
	docIDs, err := s.RemoveByFolders(ctx, all)
	if err != nil {
		return err
	}
	if err := s.shares.RemoveAll(ctx, all, docIDs); err != nil {
		return err
	}
	return s.folders.DeleteTree(ctx, folderID, below)
}

// CreateFolder creates f and copies the shares of its parent folder onto it,
// so recipients of the parent keep reaching the new branch.
func (s *Service) CreateFolder(ctx context.Context, f *store.Folder) (*store.Folder, error) {
	created, err := s.folders.Create(ctx, f)
	if err != nil {
		return nil, err
	}
	if created.ParentID != "" {
		if err := s.shares.CheckAndCreateShare(ctx, created.ParentID, store.FolderTarget(created.ID)); err != nil {
			s.logger.Errorf("inherit shares %s: %v", created.ID, err)
		}
	}
	return created, nil
}

// CheckFolderAccess returns the folder when the caller may use it at level.
// READ is also granted by a share on the folder.
func (s *Service) CheckFolderAccess(ctx context.Context, caller Caller, folderID string, level store.AccessLevel) (*store.Folder, error) {
	folder, err := s.folders.Get(ctx, folderID)
	if err != nil {
		return nil, err
	}
	ok, err := s.folders.CheckAccess(ctx, folder, caller.User, caller.Organization, level)
	if err != nil {
		return nil, err
	}
	if !ok && level == store.LevelRead {
		if ok, err = s.shares.CheckAccess(ctx, store.FolderTarget(folderID), caller.User, caller.Organization, level); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, errs.ErrAccessDenied
	}
	return folder, nil
}

// Sign renders the document's controls, signs it and stores the result as a
// new document next to the original.
func (s *Service) Sign(ctx context.Context, caller Caller, id string) (*store.Document, error) {
	doc, res, err := s.requireDocument(ctx, caller, id, store.LevelFull)
	if err != nil {
		return nil, err
	}
	if doc.ContentType != contentTypePDF {
		return nil, fmt.Errorf("%w: only PDF documents can be signed", errs.ErrUnsupportedFormat)
	}
	source, err := s.blobs.Download(ctx, doc.StoreKey)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", doc.StoreKey, err)
	}
	controls, err := s.controls.List(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	marks, err := s.marks(ctx, controls)
	if err != nil {
		return nil, err
	}
	signed, err := s.signer.Sign(pdfsign.Request{
		DocumentID: doc.ID,
		Source:     source,
		Marks:      marks,
		FullName:   caller.User.FullName(),
	})
	if err != nil {
		return nil, err
	}
	out := &store.Document{
		Organization: doc.Organization,
		Service:      doc.Service,
		FolderID:     doc.FolderID,
		CreatedBy:    caller.User.ID,
	}
	if _, err := s.create(ctx, out, Upload{Name: signedNamePrefix + doc.Name, ContentType: contentTypePDF, Data: signed}, ""); err != nil {
		return nil, err
	}
	s.finish(ctx, caller, caller.Organization, out, res, 0)
	return out, nil
}

// marks loads and decrypts each distinct signature image once.
func (s *Service) marks(ctx context.Context, controls []store.DocumentControl) ([]pdfsign.Mark, error) {
	images := map[string][]byte{}
	out := make([]pdfsign.Mark, 0, len(controls))
	for _, c := range controls {
		m := pdfsign.Mark{Kind: c.Type, Page: c.PageNumber, X: c.Position.X, Y: c.Position.Y}
		if c.Type == store.ControlSignature {
			if c.SignatureID == "" {
				continue
			}
			img, ok := images[c.SignatureID]
			if !ok {
				sig, err := s.signatures.FindByID(ctx, c.SignatureID)
				if err != nil {
					return nil, err
				}
				if img, err = s.signatures.Open(ctx, sig); err != nil {
					return nil, err
				}
				images[c.SignatureID] = img
			}
			m.ImageKey, m.Image = c.SignatureID, img
		}
		out = append(out, m)
	}
	return out, nil
}

// CheckAccess returns the document when the caller holds level on it through
// ownership, organization membership or an ACL grant.
func (s *Service) CheckAccess(ctx context.Context, caller Caller, id string, level store.AccessLevel) (*store.Document, error) {
	doc, _, err := s.requireDocument(ctx, caller, id, level)
	return doc, err
}
