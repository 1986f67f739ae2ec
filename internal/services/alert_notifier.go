package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/containrrr/shoutrrr"
)

// AlertNotifier delivers attack alerts to operators
type AlertNotifier interface {
	NotifyAttack(ctx context.Context, alert models.AttackAlert) error
}

func alertSubject(alert models.AttackAlert) string {
	return fmt.Sprintf("[quizgate] %d failed access code attempts in the last window", alert.FailedAttempts)
}

func alertBody(alert models.AttackAlert) string {
	return fmt.Sprintf(`Possible brute force against the access code endpoint.

Alert ID:        %s
Failed attempts: %d
Total attempts:  %d
Threshold:       %d
Window ended:    %s

Review blocked clients at GET /api/admin/security.
`, alert.ID, alert.FailedAttempts, alert.TotalAttempts, alert.Threshold, alert.WindowEnd.UTC().Format("2006-01-02 15:04:05 MST"))
}

// LogAlertNotifier writes alerts to the structured log
type LogAlertNotifier struct {
	logger *slog.Logger
}

func NewLogAlertNotifier(logger *slog.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{logger: logger}
}

func (n *LogAlertNotifier) NotifyAttack(ctx context.Context, alert models.AttackAlert) error {
	n.logger.Error("SECURITY ALERT: access code attack threshold exceeded",
		slog.String("alert_id", alert.ID),
		slog.Int64("failed_attempts", alert.FailedAttempts),
		slog.Int64("total_attempts", alert.TotalAttempts),
		slog.Int64("threshold", alert.Threshold),
		slog.Time("window_end", alert.WindowEnd))
	return nil
}

// SESAPI is the subset of the SES client used for alert mail
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlertNotifier e-mails alerts through AWS SES
type SESAlertNotifier struct {
	client      SESAPI
	fromAddress string
	recipients  []string
	logger      *slog.Logger
}

// NewSESAlertNotifier loads the default AWS credential chain for region
func NewSESAlertNotifier(ctx context.Context, region, fromAddress string, recipients []string, logger *slog.Logger) (*SESAlertNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESAlertNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, recipients, logger), nil
}

// NewSESAlertNotifierWithClient wraps an existing SES client
func NewSESAlertNotifierWithClient(client SESAPI, fromAddress string, recipients []string, logger *slog.Logger) *SESAlertNotifier {
	return &SESAlertNotifier{
		client:      client,
		fromAddress: fromAddress,
		recipients:  recipients,
		logger:      logger,
	}
}

func (n *SESAlertNotifier) NotifyAttack(ctx context.Context, alert models.AttackAlert) error {
	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: n.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(alertSubject(alert)),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(alertBody(alert)),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	n.logger.Info("attack alert email sent",
		slog.String("alert_id", alert.ID),
		slog.Int("recipients", len(n.recipients)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// ShoutrrrAlertNotifier posts alerts to chat and webhook services addressed
// by shoutrrr URLs (slack://, discord://, generic+https://, ...)
type ShoutrrrAlertNotifier struct {
	urls   []string
	send   func(url, message string) error
	logger *slog.Logger
}

func NewShoutrrrAlertNotifier(urls []string, logger *slog.Logger) *ShoutrrrAlertNotifier {
	return &ShoutrrrAlertNotifier{urls: urls, send: shoutrrr.Send, logger: logger}
}

func (n *ShoutrrrAlertNotifier) NotifyAttack(ctx context.Context, alert models.AttackAlert) error {
	msg := fmt.Sprintf("%s\n\n%s", alertSubject(alert), alertBody(alert))

	var errs []error
	for i, url := range n.urls {
		if err := n.send(url, msg); err != nil {
			// URLs carry tokens, so only the index is logged
			n.logger.Error("failed to send alert notification", slog.Int("target", i), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("target %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// MultiAlertNotifier fans an alert out to every configured notifier
type MultiAlertNotifier []AlertNotifier

func (m MultiAlertNotifier) NotifyAttack(ctx context.Context, alert models.AttackAlert) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyAttack(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
