// internal/messaging/notifications.go

package messaging

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fcm "firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"google.golang.org/api/option"
	"gopkg.in/gomail.v2"
)

// OfflineNotice tells a recipient with no open connection that a message arrived
type OfflineNotice struct {
	Recipient      *Contact
	SenderName     string
	AdTitle        string
	ConversationID string
	MessageID      string
	Preview        string
}

func (n *OfflineNotice) title() string {
	if n.AdTitle != "" {
		return fmt.Sprintf("%s · %s", n.SenderName, n.AdTitle)
	}
	return n.SenderName
}

// Notifier delivers offline notices over one channel
type Notifier interface {
	Channel() string
	Notify(ctx context.Context, notice *OfflineNotice) error
}

type pushTokenStore interface {
	GetPushTokens(ctx context.Context, userID string) ([]*PushToken, error)
	DeletePushToken(ctx context.Context, token string) error
}

type pushNotifier struct {
	client *fcm.Client
	tokens pushTokenStore
	logger zerolog.Logger
}

// NewPushNotifier sends FCM notifications to every registered device of the recipient
func NewPushNotifier(ctx context.Context, credentialsPath string, tokens pushTokenStore, logger zerolog.Logger) (Notifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &pushNotifier{client: client, tokens: tokens, logger: logger}, nil
}

func (p *pushNotifier) Channel() string { return "push" }

func (p *pushNotifier) Notify(ctx context.Context, notice *OfflineNotice) error {
	tokens, err := p.tokens.GetPushTokens(ctx, notice.Recipient.ID)
	if err != nil {
		return fmt.Errorf("failed to get push tokens: %w", err)
	}

	var sendErr error
	for _, token := range tokens {
		message := &fcm.Message{
			Token: token.Token,
			Notification: &fcm.Notification{
				Title: notice.title(),
				Body:  notice.Preview,
			},
			Data: map[string]string{
				"type":            "chat_message",
				"conversation_id": notice.ConversationID,
				"message_id":      notice.MessageID,
			},
		}

		switch token.Platform {
		case "ios":
			message.APNS = &fcm.APNSConfig{
				Payload: &fcm.APNSPayload{
					Aps: &fcm.Aps{Sound: "default", ThreadID: notice.ConversationID},
				},
			}
		case "android":
			message.Android = &fcm.AndroidConfig{
				Priority: "high",
				Notification: &fcm.AndroidNotification{
					Tag:      notice.ConversationID,
					Priority: fcm.PriorityHigh,
				},
			}
		}

		if _, err := p.client.Send(ctx, message); err != nil {
			if fcm.IsRegistrationTokenNotRegistered(err) {
				p.logger.Info().Str("platform", token.Platform).Msg("Removing unregistered push token")
				if delErr := p.tokens.DeletePushToken(ctx, token.Token); delErr != nil {
					p.logger.Warn().Err(delErr).Msg("Failed to delete push token")
				}
				continue
			}
			sendErr = errors.Join(sendErr, err)
		}
	}
	return sendErr
}

type sendGridNotifier struct {
	client *sendgrid.Client
	from   string
}

func NewSendGridNotifier(apiKey, from string) Notifier {
	return &sendGridNotifier{client: sendgrid.NewSendClient(apiKey), from: from}
}

func (s *sendGridNotifier) Channel() string { return "email" }

func (s *sendGridNotifier) Notify(ctx context.Context, notice *OfflineNotice) error {
	if notice.Recipient.Email == nil || *notice.Recipient.Email == "" {
		return nil
	}

	from := mail.NewEmail("Jootiya", s.from)
	to := mail.NewEmail(notice.Recipient.DisplayName, *notice.Recipient.Email)
	subject, body := emailContent(notice)

	response, err := s.client.SendWithContext(ctx, mail.NewSingleEmail(from, subject, to, body, ""))
	if err != nil {
		return fmt.Errorf("failed to send email via SendGrid: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid returned error status: %d", response.StatusCode)
	}
	return nil
}

type smtpNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPNotifier(host string, port int, username, password, from string) Notifier {
	dialer := gomail.NewDialer(host, port, username, password)
	dialer.TLSConfig = &tls.Config{ServerName: host}
	return &smtpNotifier{dialer: dialer, from: from}
}

func (s *smtpNotifier) Channel() string { return "email" }

func (s *smtpNotifier) Notify(ctx context.Context, notice *OfflineNotice) error {
	if notice.Recipient.Email == nil || *notice.Recipient.Email == "" {
		return nil
	}

	subject, body := emailContent(notice)
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.from, "Jootiya"))
	m.SetHeader("To", *notice.Recipient.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email via SMTP: %w", err)
	}
	return nil
}

func emailContent(notice *OfflineNotice) (string, string) {
	subject := fmt.Sprintf("New message from %s", notice.SenderName)
	body := fmt.Sprintf("%s wrote:\n\n%s\n", notice.SenderName, notice.Preview)
	if notice.AdTitle != "" {
		body = fmt.Sprintf("About \"%s\"\n\n%s", notice.AdTitle, body)
	}
	return subject, body
}

type twilioNotifier struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioNotifier(accountSID, authToken, from string) Notifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &twilioNotifier{client: client, from: from}
}

func (t *twilioNotifier) Channel() string { return "sms" }

func (t *twilioNotifier) Notify(ctx context.Context, notice *OfflineNotice) error {
	if notice.Recipient.Phone == nil || *notice.Recipient.Phone == "" {
		return nil
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(*notice.Recipient.Phone)
	params.SetFrom(t.from)
	params.SetBody(fmt.Sprintf("Jootiya - %s: %s", notice.SenderName, notice.Preview))

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS via Twilio: %w", err)
	}
	return nil
}

type logNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier only records notices; used in development
func NewLogNotifier(logger zerolog.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (l *logNotifier) Channel() string { return "log" }

func (l *logNotifier) Notify(ctx context.Context, notice *OfflineNotice) error {
	l.logger.Info().
		Str("recipient_id", notice.Recipient.ID).
		Str("conversation_id", notice.ConversationID).
		Str("message_id", notice.MessageID).
		Str("preview", notice.Preview).
		Msg("Offline notice")
	return nil
}

// MultiNotifier fans a notice out to every configured channel
type MultiNotifier struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewMultiNotifier(logger zerolog.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: logger}
}

func (m *MultiNotifier) Channel() string { return "multi" }

// Notify tries every channel; one failing channel does not stop the others
func (m *MultiNotifier) Notify(ctx context.Context, notice *OfflineNotice) error {
	var errs error
	for _, n := range m.notifiers {
		err := n.Notify(ctx, notice)
		notificationsSent.WithLabelValues(n.Channel(), outcome(err)).Inc()
		if err != nil {
			m.logger.Warn().Err(err).Str("channel", n.Channel()).
				Str("recipient_id", notice.Recipient.ID).Msg("Offline notice failed")
			errs = errors.Join(errs, fmt.Errorf("%s: %w", n.Channel(), err))
		}
	}
	return errs
}

func (m *MultiNotifier) Len() int {
	return len(m.notifiers)
}
