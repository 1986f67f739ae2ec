package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleAlert = models.AttackAlert{
	ID:             "alert-1",
	FailedAttempts: 73,
	TotalAttempts:  80,
	Threshold:      50,
	WindowEnd:      time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC),
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type mockSES struct {
	input *ses.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESAlertNotifier(t *testing.T) {
	client := &mockSES{}
	n := NewSESAlertNotifierWithClient(client, "alerts@example.com", []string{"ops@example.com"}, discardLogger())

	require.NoError(t, n.NotifyAttack(context.Background(), sampleAlert))
	require.NotNil(t, client.input)
	assert.Equal(t, "alerts@example.com", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"ops@example.com"}, client.input.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(client.input.Message.Subject.Data), "73 failed")
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "alert-1")
}

func TestSESAlertNotifier_Error(t *testing.T) {
	client := &mockSES{err: errors.New("throttled")}
	n := NewSESAlertNotifierWithClient(client, "a@example.com", []string{"b@example.com"}, discardLogger())

	err := n.NotifyAttack(context.Background(), sampleAlert)
	assert.ErrorContains(t, err, "throttled")
}

func TestShoutrrrAlertNotifier(t *testing.T) {
	var sent []string
	n := NewShoutrrrAlertNotifier([]string{"slack://a", "discord://b"}, discardLogger())
	n.send = func(url, message string) error {
		sent = append(sent, url)
		if url == "discord://b" {
			return errors.New("bad token")
		}
		assert.Contains(t, message, "Alert ID:        alert-1")
		return nil
	}

	err := n.NotifyAttack(context.Background(), sampleAlert)
	assert.Equal(t, []string{"slack://a", "discord://b"}, sent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target 1")
}

func TestMultiAlertNotifier(t *testing.T) {
	first := &MockAlertNotifier{}
	failing := &MockAlertNotifier{Err: errors.New("down")}
	last := &MockAlertNotifier{}

	multi := MultiAlertNotifier{first, failing, NewLogAlertNotifier(discardLogger()), last}
	err := multi.NotifyAttack(context.Background(), sampleAlert)

	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 1, first.Count())
	assert.Equal(t, 1, last.Count(), "a failing notifier does not stop the rest")
}
