package docs

import (
	"context"
	"fmt"

	"driveshare/core/errs"
	"driveshare/core/store"
)

// ListControls returns the placement controls of a document. With
// withSignature each signature control carries its signature record.
func (s *Service) ListControls(ctx context.Context, caller Caller, documentID string, withSignature bool) ([]store.DocumentControl, error) {
	if _, _, err := s.requireDocument(ctx, caller, documentID, store.LevelRead); err != nil {
		return nil, err
	}
	items, err := s.controls.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !withSignature {
		return items, nil
	}
	for i := range items {
		if items[i].SignatureID == "" {
			continue
		}
		sig, err := s.signatures.FindByID(ctx, items[i].SignatureID)
		if err != nil {
			s.logger.Errorf("control %s signature: %v", items[i].ID, err)
			continue
		}
		items[i].Signature = sig
	}
	return items, nil
}

// SaveControl creates or updates a control on a document the caller can
// write to. A signature control may only reference the caller's own
// signature.
func (s *Service) SaveControl(ctx context.Context, caller Caller, c *store.DocumentControl) (*store.DocumentControl, error) {
	if !c.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown control type %q", errs.ErrValidation, c.Type)
	}
	if c.ID != "" {
		existing, err := s.controls.Get(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil || existing.DocumentID != c.DocumentID {
			return nil, fmt.Errorf("control %s: %w", c.ID, errs.ErrNotFound)
		}
	}
	if _, _, err := s.requireDocument(ctx, caller, c.DocumentID, store.LevelWrite); err != nil {
		return nil, err
	}
	if c.SignatureID != "" {
		sig, err := s.signatures.FindByID(ctx, c.SignatureID)
		if err != nil {
			return nil, err
		}
		if sig.UserID != caller.userID() {
			return nil, errs.ErrAccessDenied
		}
	}
	if _, err := s.controls.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) RemoveControl(ctx context.Context, caller Caller, documentID, controlID string) error {
	c, err := s.controls.Get(ctx, controlID)
	if err != nil {
		return err
	}
	if c == nil || c.DocumentID != documentID {
		return fmt.Errorf("control %s: %w", controlID, errs.ErrNotFound)
	}
	if _, _, err := s.requireDocument(ctx, caller, documentID, store.LevelWrite); err != nil {
		return err
	}
	return s.controls.Delete(ctx, controlID)
}
