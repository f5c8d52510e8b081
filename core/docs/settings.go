package docs

import (
	"context"
	"fmt"

	"driveshare/core/errs"
	"driveshare/core/store"
)

// FindSettings returns the storage settings of a user, or of the organization
// when org is set. Missing rows yield the default quota with nothing used.
func (s *Service) FindSettings(ctx context.Context, user, org string) (*store.UserSettings, error) {
	settings, err := s.settings.Find(ctx, user, org)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return &store.UserSettings{
			User:         user,
			Organization: org,
			Space:        store.Space{Used: 0, Total: s.cfg.Docs.DefaultSpaceTotal},
		}, nil
	}
	return settings, nil
}

func (s *Service) SaveSettings(ctx context.Context, settings *store.UserSettings) (*store.UserSettings, error) {
	if settings.User == "" && settings.Organization == "" {
		return nil, fmt.Errorf("%w: settings need a user or an organization", errs.ErrValidation)
	}
	if settings.Space.Total < 0 || settings.Space.Used < 0 {
		return nil, fmt.Errorf("%w: space must not be negative", errs.ErrValidation)
	}
	if err := s.settings.Save(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Service) addUsage(ctx context.Context, user, org string, bytes int64) error {
	if user == "" && org == "" {
		return nil
	}
	return s.settings.AddUsage(ctx, user, org, bytes, s.cfg.Docs.DefaultSpaceTotal)
}
