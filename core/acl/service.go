package acl

import (
	"context"
	"fmt"

	"driveshare/core/errs"
	"driveshare/core/store"
)

func (e *Engine) FindOne(ctx context.Context, serviceID, key, org string) (*store.ACL, error) {
	return e.store.FindOne(ctx, store.ACLQuery{ServiceID: serviceID, ServiceKey: key, Organization: org})
}

func (e *Engine) Get(ctx context.Context, id string) (*store.ACL, error) {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("acl %s: %w", id, errs.ErrNotFound)
	}
	return item, nil
}

func (e *Engine) FindByUser(ctx context.Context, user, org string) ([]store.ACL, error) {
	return e.store.ListByUser(ctx, user, org)
}

func (e *Engine) FindOneByService(ctx context.Context, serviceID, key string) (*store.ACL, error) {
	return e.store.FindOneByService(ctx, serviceID, key)
}

func (e *Engine) FindServiceKeys(ctx context.Context, user, serviceID, org string) ([]store.ServiceKey, error) {
	return e.store.ServiceKeys(ctx, user, serviceID, org)
}

// Create upserts a grant keyed by user, organization and service binding.
func (e *Engine) Create(ctx context.Context, item *store.ACL) (*store.ACL, error) {
	if err := validate(item); err != nil {
		return nil, err
	}
	if _, err := e.store.Upsert(ctx, item); err != nil {
		e.logger.Errorf("acl upsert %s/%s: %v", item.Service.ID, item.Service.Key, err)
		return nil, err
	}
	return e.store.Get(ctx, item.ID)
}

func (e *Engine) Update(ctx context.Context, item *store.ACL) (*store.ACL, error) {
	existing, err := e.store.Get(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errs.ErrNotFound
	}
	if err := validate(item); err != nil {
		return nil, err
	}
	if err := e.store.Update(ctx, item); err != nil {
		return nil, err
	}
	return e.store.Get(ctx, item.ID)
}

func (e *Engine) Remove(ctx context.Context, id string) error {
	existing, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.ErrNotFound
	}
	return e.store.Delete(ctx, id)
}

func validate(item *store.ACL) error {
	if item == nil || item.Service.ID == "" {
		return fmt.Errorf("%w: service id is required", errs.ErrValidation)
	}
	if item.Level == "" {
		item.Level = store.LevelRead
	}
	if !ValidLevel(item.Level) {
		return fmt.Errorf("%w: unknown level %q", errs.ErrValidation, item.Level)
	}
	if item.User == "" && !item.Public {
		return fmt.Errorf("%w: a grant needs a user or the public flag", errs.ErrValidation)
	}
	return nil
}
