package core

import (
	"context"

	"whalewatcher/pkg/domain"
)

// AddNotification records an outbound message for a case. The channel
// defaults to in-app and the read flag always starts cleared.
func (s *Service) AddNotification(ctx context.Context, n Notification) (Notification, Result, error) {
	if n.CaseID == "" {
		return Notification{}, Result{}, invalidf("notification case id is required")
	}
	switch n.Channel {
	case "":
		n.Channel = domain.ChannelInApp
	case domain.ChannelInApp, domain.ChannelEmail:
	default:
		return Notification{}, Result{}, invalidf("notification channel %q", n.Channel)
	}
	n.Read = false
	var created Notification
	res, err := s.run(ctx, "add_notification", func(a *action) error {
		if _, ok := a.tx.Snapshot().FindCase(n.CaseID); !ok {
			return a.missing(domain.EntityCase, n.CaseID)
		}
		var err error
		created, err = a.tx.CreateNotification(n)
		if err != nil {
			return err
		}
		a.notifications = append(a.notifications, created)
		return a.auditAs(n.CaseID, domain.AuditNotificationSent,
			"Notification sent to "+n.RecipientRole+": "+n.Subject, ref(domain.EntityNotification, created.ID))
	})
	return created, res, err
}

// MarkNotificationRead sets the read flag. It is the only change a
// notification accepts after creation and it is not audited.
func (s *Service) MarkNotificationRead(ctx context.Context, id string) (Notification, Result, error) {
	var updated Notification
	res, err := s.run(ctx, "mark_notification_read", func(a *action) error {
		n, ok := a.tx.Snapshot().FindNotification(id)
		if !ok {
			return a.missing(domain.EntityNotification, id)
		}
		if n.Read {
			updated = n
			return nil
		}
		var err error
		updated, err = a.tx.UpdateNotification(id, func(n *domain.Notification) error {
			n.Read = true
			return nil
		})
		return err
	})
	return updated, res, err
}
