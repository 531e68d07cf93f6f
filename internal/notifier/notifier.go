package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prudhvinik1/vigil/internal/models"
	"github.com/prudhvinik1/vigil/internal/utils"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Kind selects the message template.
type Kind string

const (
	KindAlert    Kind = "alert"
	KindResolved Kind = "resolved"
)

const senderName = "Vigil"

// Notifier delivers alert/resolved emails to a user's emergency contacts.
// Send reports success as a boolean; callers must treat false as "retry
// later", never as fatal.
type Notifier interface {
	Send(ctx context.Context, user *models.User, kind Kind, inactiveFor time.Duration) bool
}

type SMTPNotifier struct {
	host     string
	port     int
	username string
	password string
	cipher   *utils.SecretCipher
	logger   *zap.Logger
}

func NewSMTPNotifier(host string, port int, username, password string, cipher *utils.SecretCipher, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		cipher:   cipher,
		logger:   logger,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, user *models.User, kind Kind, inactiveFor time.Duration) bool {
	if n.username == "" || n.password == "" {
		n.logger.Error("email credentials missing, cannot send",
			zap.String("device_id", user.DeviceID),
			zap.String("kind", string(kind)),
		)
		return false
	}

	recipients, ok := n.recipients(user)
	if !ok {
		return false
	}

	subject, body := BuildMessage(user, kind, inactiveFor, time.Now())

	msg := mail.NewMsg()
	if err := msg.FromFormat(senderName, n.username); err != nil {
		n.logger.Error("invalid sender address", zap.Error(err))
		return false
	}
	if err := msg.To(recipients...); err != nil {
		n.logger.Error("invalid recipient address",
			zap.String("device_id", user.DeviceID),
			zap.Error(err),
		)
		return false
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(n.host,
		mail.WithPort(n.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.username),
		mail.WithPassword(n.password),
	)
	if err != nil {
		n.logger.Error("failed to create smtp client", zap.Error(err))
		return false
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		n.logger.Error("failed to send email",
			zap.String("device_id", user.DeviceID),
			zap.String("user_name", user.UserName),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return false
	}

	n.logger.Info("email sent",
		zap.String("device_id", user.DeviceID),
		zap.String("kind", string(kind)),
		zap.Int("recipients", len(recipients)),
	)
	return true
}

// recipients decrypts the stored contact string and splits the
// comma-joined destinations.
func (n *SMTPNotifier) recipients(user *models.User) ([]string, bool) {
	if user.EncryptedContact == nil || *user.EncryptedContact == "" {
		n.logger.Warn("user has no emergency contact configured",
			zap.String("device_id", user.DeviceID),
		)
		return nil, false
	}

	contact, err := n.cipher.Decrypt(*user.EncryptedContact)
	if err != nil {
		n.logger.Error("failed to decrypt emergency contact",
			zap.String("device_id", user.DeviceID),
			zap.Error(err),
		)
		return nil, false
	}

	addrs := SplitRecipients(contact)
	if len(addrs) == 0 {
		return nil, false
	}
	return addrs, true
}

// SplitRecipients parses a comma-joined destination string.
func SplitRecipients(contact string) []string {
	var addrs []string
	for _, part := range strings.Split(contact, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// BuildMessage renders the subject and plain-text body for one kind. The
// alert template includes the elapsed hours; the resolved one does not.
func BuildMessage(user *models.User, kind Kind, inactiveFor time.Duration, now time.Time) (subject, body string) {
	timeStr := now.Format("2006-01-02 15:04:05")
	lastActiveStr := user.LastHeartbeat.Format("2006-01-02 15:04:05")

	if kind == KindAlert {
		hours := int(inactiveFor.Hours())
		subject = fmt.Sprintf("[EMERGENCY] %s has been unreachable for %d hours", user.UserName, hours)
		body = fmt.Sprintf(`EMERGENCY NOTICE
================

The Vigil service detected that %s has not used their phone for an
extended period and may need help.

User:         %s
Unreachable:  %d hours
Last active:  %s
Detected at:  %s

Please try to contact %s as soon as possible and confirm they are safe.

---
Sent automatically by the Vigil server`,
			user.UserName, user.UserName, hours, lastActiveStr, timeStr, user.UserName)
		return subject, body
	}

	subject = fmt.Sprintf("[RESOLVED] %s is active again", user.UserName)
	body = fmt.Sprintf(`ALERT RESOLVED
==============

%s reconnected at %s and is currently active.

Last active:  %s

No action is needed; monitoring continues.

---
Sent automatically by the Vigil server`,
		user.UserName, timeStr, lastActiveStr)
	return subject, body
}
