package folders

import (
	"context"
	"fmt"
	"strings"

	"driveshare/config"
	"driveshare/core/acl"
	"driveshare/core/errs"
	"driveshare/core/store"
	"driveshare/core/utils"
)

type Service struct {
	cfg    *config.AppConfig
	store  store.FoldersStore
	shares store.SharesStore
	users  store.UsersStore
	acl    *acl.Engine
	logger *utils.Logger
}

// ServiceFolderRequest asks for the folder a service keeps for one of its
// entities, such as a project.
type ServiceFolderRequest struct {
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	DynamicName    string `json:"projectId"`
	DynamicNameRef string `json:"projectSchemaName"`
	ServiceKey     string `json:"serviceKey"`
}

type ServiceFolder struct {
	store.Folder
	HasAccess bool `json:"has_access"`
}

func NewService(cfg *config.AppConfig, fs store.FoldersStore, shares store.SharesStore, users store.UsersStore, engine *acl.Engine, logger *utils.Logger) *Service {
	return &Service{cfg: cfg, store: fs, shares: shares, users: users, acl: engine, logger: logger}
}

// Find lists the folders under parent (roots when empty) in the caller's
// namespace: the organization when set, personal folders otherwise.
func (s *Service) Find(ctx context.Context, user, org, parent string) ([]store.Folder, error) {
	var (
		items []store.Folder
		err   error
	)
	if org != "" {
		items, err = s.store.ListOrganization(ctx, org, parent)
	} else {
		items, err = s.store.ListPersonal(ctx, user, parent)
	}
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, items)
}

func (s *Service) Get(ctx context.Context, id string) (*store.Folder, error) {
	f, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("folder %s: %w", id, errs.ErrNotFound)
	}
	return f, nil
}

// DescendantIDs expands id one level at a time until no new children appear.
// The result excludes id itself.
func (s *Service) DescendantIDs(ctx context.Context, id string) ([]string, error) {
	visited := map[string]struct{}{id: {}}
	frontier := []string{id}
	var out []string
	for len(frontier) > 0 {
		children, err := s.store.ChildIDs(ctx, frontier)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, c := range children {
			if _, seen := visited[c]; seen {
				continue
			}
			visited[c] = struct{}{}
			out = append(out, c)
			frontier = append(frontier, c)
		}
	}
	return out, nil
}

func (s *Service) FindChildren(ctx context.Context, id string) ([]store.Folder, error) {
	ids, err := s.DescendantIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.ListByIDs(ctx, ids)
}

func (s *Service) FindByParent(ctx context.Context, parent string) ([]store.Folder, error) {
	ids, err := s.store.ChildIDs(ctx, []string{parent})
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, items)
}

// Ancestors returns the path from the root down to the parent of id.
func (s *Service) Ancestors(ctx context.Context, id string) ([]store.Folder, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	visited := map[string]struct{}{current.ID: {}}
	var path []store.Folder
	for current.ParentID != "" {
		if _, seen := visited[current.ParentID]; seen {
			return nil, fmt.Errorf("folder %s: parent cycle: %w", id, errs.ErrMalformedState)
		}
		parent, err := s.store.Get(ctx, current.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		visited[parent.ID] = struct{}{}
		path = append(path, *parent)
		current = parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

func (s *Service) Create(ctx context.Context, f *store.Folder) (*store.Folder, error) {
	f.Name = strings.TrimSpace(f.Name)
	if !f.HasName() {
		return nil, fmt.Errorf("%w: folder needs a name or a dynamic name binding", errs.ErrValidation)
	}
	if f.ParentID != "" {
		parent, err := s.store.Get(ctx, f.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, fmt.Errorf("parent folder %s: %w", f.ParentID, errs.ErrNotFound)
		}
		if parent.Organization != f.Organization {
			return nil, fmt.Errorf("%w: parent folder belongs to another namespace", errs.ErrValidation)
		}
	}
	if _, err := s.store.Create(ctx, f); err != nil {
		s.logger.Errorf("create folder: %v", err)
		return nil, err
	}
	return f, nil
}

// Update renames or moves a folder. Moving a folder below itself is rejected.
func (s *Service) Update(ctx context.Context, f *store.Folder) (*store.Folder, error) {
	existing, err := s.Get(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		existing.Name = name
	}
	if f.ParentID != existing.ParentID && f.ParentID != "" {
		if f.ParentID == existing.ID {
			return nil, fmt.Errorf("%w: folder cannot be its own parent", errs.ErrValidation)
		}
		below, err := s.DescendantIDs(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range below {
			if id == f.ParentID {
				return nil, fmt.Errorf("%w: folder cannot move below itself", errs.ErrValidation)
			}
		}
		existing.ParentID = f.ParentID
	}
	if !existing.HasName() {
		return nil, fmt.Errorf("%w: folder needs a name", errs.ErrValidation)
	}
	if err := s.store.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// DeleteTree removes the folder rows for id and descendantIDs. Documents and
// shares are removed by the caller first.
func (s *Service) DeleteTree(ctx context.Context, id string, descendantIDs []string) error {
	return s.store.DeleteByIDs(ctx, append([]string{id}, descendantIDs...))
}

func (s *Service) FindByDynamicName(ctx context.Context, dynamicName, org string) (*store.Folder, error) {
	return s.store.FindByDynamicName(ctx, dynamicName, org)
}

// ProcessServiceFolder returns the folder bound to the request's entity,
// creating it on first use. The caller must hold a root or ServiceAdmin role.
func (s *Service) ProcessServiceFolder(ctx context.Context, req ServiceFolderRequest) (*store.Folder, error) {
	if req.UserID == "" || req.OrganizationID == "" || req.DynamicName == "" || req.DynamicNameRef == "" || req.ServiceKey == "" {
		return nil, fmt.Errorf("%w: insufficient arguments", errs.ErrValidation)
	}
	user, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", req.UserID, errs.ErrNotFound)
	}
	folder := &store.Folder{
		DynamicName:    req.DynamicName,
		DynamicNameRef: req.DynamicNameRef,
		Organization:   req.OrganizationID,
		ServiceKey:     req.ServiceKey,
		CreatedBy:      req.UserID,
	}
	if res := s.acl.CheckSystemFolderAccess(folder, user.Roles, req.OrganizationID, false); !res.Granted {
		s.logger.Errorf("service folder %s/%s: acl denied for %s", req.ServiceKey, req.DynamicName, req.UserID)
		return nil, errs.ErrAccessDenied
	}
	existing, err := s.store.FindByDynamicName(ctx, req.DynamicName, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.DynamicNameRef == req.DynamicNameRef && existing.ServiceKey == req.ServiceKey {
		return existing, nil
	}
	if _, err := s.store.Create(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// FindServiceFolders lists the folders a service keeps in the caller's
// namespace. Folders the caller cannot read are left out.
func (s *Service) FindServiceFolders(ctx context.Context, user *store.User, serviceKey, org string) ([]ServiceFolder, error) {
	items, err := s.store.ListServiceFolders(ctx, serviceKey, user.ID, org)
	if err != nil {
		return nil, err
	}
	out := make([]ServiceFolder, 0, len(items))
	for i := range items {
		res, err := s.acl.CheckServiceFolderAccess(ctx, &items[i], user, org, store.LevelRead, false)
		if err != nil {
			return nil, err
		}
		if !res.Granted {
			continue
		}
		out = append(out, ServiceFolder{Folder: items[i], HasAccess: true})
	}
	return out, nil
}

// CheckAccess resolves ownership, organization and service grants on a folder.
// Shares are not consulted.
func (s *Service) CheckAccess(ctx context.Context, f *store.Folder, user *store.User, org string, level store.AccessLevel) (bool, error) {
	if f == nil || user == nil {
		return false, nil
	}
	if f.ServiceKey != "" {
		res, err := s.acl.CheckServiceFolderAccess(ctx, f, user, org, level, false)
		return res.Granted, err
	}
	res, err := s.acl.ResolveAccess(ctx, acl.Resource{CreatedBy: f.CreatedBy, Organization: f.Organization}, user, org, level, false)
	return res.Granted, err
}

func (s *Service) annotate(ctx context.Context, items []store.Folder) ([]store.Folder, error) {
	if len(items) == 0 {
		return items, nil
	}
	ids := make([]string, 0, len(items))
	for _, f := range items {
		ids = append(ids, f.ID)
	}
	flags, err := s.shares.SharedFlags(ctx, store.TargetFolder, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].IsShared = flags[items[i].ID]
	}
	return items, nil
}
