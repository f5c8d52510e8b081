package share

import (
	"context"
	"fmt"
	"net/url"

	"driveshare/core/mail"
	"driveshare/core/store"
)

func (s *Service) sharedPath(target store.ShareTarget) string {
	return fmt.Sprintf("/drive/shared/%s/%s", target.Kind, target.ID)
}

func (s *Service) itemName(ctx context.Context, target store.ShareTarget) string {
	switch target.Kind {
	case store.TargetDocument:
		if doc, err := s.docs.Get(ctx, target.ID); err == nil && doc != nil {
			return doc.Name
		}
	case store.TargetFolder:
		if f, err := s.folders.Get(ctx, target.ID); err == nil {
			if f.Name != "" {
				return f.Name
			}
			return f.DynamicName
		}
	}
	return target.ID
}

// notify mails registered recipients a link to the item and invites
// unregistered email recipients to sign up. Failures are logged only.
func (s *Service) notify(ctx context.Context, target store.ShareTarget, sharer *store.User, added []store.Share) {
	var userIDs []string
	var invites []store.Share
	for _, sh := range added {
		switch sh.SharedTo.Kind() {
		case store.RecipientUser:
			userIDs = append(userIDs, sh.SharedTo.User)
		case store.RecipientEmail:
			invites = append(invites, sh)
		}
	}
	if len(userIDs) == 0 && len(invites) == 0 {
		return
	}
	name := s.itemName(ctx, target)
	kind := string(target.Kind)
	path := s.sharedPath(target)

	if len(userIDs) > 0 {
		users, err := s.users.FindByIDs(ctx, userIDs)
		if err != nil {
			s.logger.Errorf("share notify: load recipients: %v", err)
		}
		link := fmt.Sprintf("https://%s%s", s.cfg.Domain, path)
		subject := fmt.Sprintf("Shared %s - %s", kind, name)
		for _, u := range users {
			html, err := mail.RenderShare(mail.ShareNotice{RecipientName: u.FullName(), SharerName: sharer.FullName(), Kind: kind, ItemName: name, Link: link})
			if err != nil {
				s.logger.Errorf("share notify: render: %v", err)
				continue
			}
			to := fmt.Sprintf("%q <%s>", u.FullName(), u.Email)
			if err := s.mailer.Send(ctx, mail.Message{To: to, From: s.cfg.Mail.From, Subject: subject, HTML: html}); err != nil {
				s.logger.Errorf("share notify %s: %v", u.Email, err)
			}
		}
	}

	subject := fmt.Sprintf("Invite for %s - %s", kind, name)
	for _, sh := range invites {
		link := fmt.Sprintf("https://%s/users/signup#returnUrl=%s&inviteEmail=%s", s.cfg.Domain, path, url.QueryEscape(sh.SharedTo.Email))
		html, err := mail.RenderInvite(mail.ShareNotice{SharerName: sharer.FullName(), Kind: kind, ItemName: name, Link: link})
		if err != nil {
			s.logger.Errorf("share invite: render: %v", err)
			continue
		}
		if err := s.mailer.Send(ctx, mail.Message{To: sh.SharedTo.Email, From: s.cfg.Mail.From, Subject: subject, HTML: html}); err != nil {
			s.logger.Errorf("share invite %s: %v", sh.SharedTo.Email, err)
		}
	}
}
