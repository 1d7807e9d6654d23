package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dalemusser/coachhub/internal/app/system/mailer"
	"github.com/dalemusser/coachhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// LogSender writes notifications to the log. Used when SMTP is not configured.
type LogSender struct {
	Log *zap.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
	}
	if !n.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", n.UserID.Hex()))
	}
	if rel := n.Payload[KeyRelationshipID]; rel != "" {
		fields = append(fields, zap.String("relationship_id", rel))
	}
	s.Log.Info("notification", fields...)
	return nil
}

// UserLookup resolves a recipient's email address.
type UserLookup interface {
	ResolveByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// EmailSender is the subset of *mailer.Mailer used by MailSender.
type EmailSender interface {
	Send(ctx context.Context, e mailer.Email) error
}

// MailSender delivers notifications as email.
type MailSender struct {
	mail     EmailSender
	users    UserLookup
	siteName string
	baseURL  string
}

// NewMailSender creates a MailSender. baseURL is used to build links.
func NewMailSender(mail EmailSender, users UserLookup, siteName, baseURL string) *MailSender {
	if siteName == "" {
		siteName = "CoachHub"
	}
	return &MailSender{
		mail:     mail,
		users:    users,
		siteName: siteName,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

var errNoAddress = errors.New("notify: recipient has no email address")

// Send implements Sender.
func (s *MailSender) Send(ctx context.Context, n Notification) error {
	to := n.Payload[KeyEmail]
	if to == "" && !n.UserID.IsZero() {
		u, err := s.users.ResolveByID(ctx, n.UserID)
		if err != nil {
			return fmt.Errorf("resolve recipient: %w", err)
		}
		to = u.Email
	}
	if to == "" {
		return errNoAddress
	}

	data := mailer.ConnectionEmailData{
		SiteName:     s.siteName,
		FromName:     n.Payload[KeyFromName],
		Relationship: n.Payload[KeyRelationshipID],
		ExpiresIn:    n.Payload[KeyExpiresIn],
	}

	var e mailer.Email
	switch n.Kind {
	case KindConnectionRequested:
		data.ActionURL = s.baseURL + "/relationships"
		e = mailer.BuildConnectionRequestEmail(data)
	case KindInvitationSent:
		data.ActionURL = s.baseURL + "/auth/login?invite=" + url.QueryEscape(n.Payload[KeyToken])
		e = mailer.BuildInvitationEmail(data)
	case KindConnectionAccepted, KindConnectionDeclined:
		data.Accepted = n.Kind == KindConnectionAccepted
		data.ActionURL = s.baseURL + "/relationships"
		e = mailer.BuildConnectionResponseEmail(data)
	default:
		return fmt.Errorf("notify: unknown kind %q", n.Kind)
	}
	e.To = to
	return s.mail.Send(ctx, e)
}
