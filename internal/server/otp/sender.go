package otp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/iudanet/clinicauth/internal/validation"
)

// Sender доставляет код пациенту
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// messageText текст SMS с кодом
func messageText(code string) string {
	return fmt.Sprintf("Код для входа в личный кабинет: %s", code)
}

// LogSender пишет код в лог вместо отправки SMS.
// Используется, когда Twilio не настроен.
type LogSender struct {
	logger *slog.Logger
	// ExposeCode выводить сам код (только вне production)
	ExposeCode bool
}

// NewLogSender создает LogSender
func NewLogSender(logger *slog.Logger, exposeCode bool) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, ExposeCode: exposeCode}
}

// Send implements Sender
func (s *LogSender) Send(ctx context.Context, phone, code string) error {
	attrs := []any{slog.String("phone", validation.MaskPhone(phone))}
	if s.ExposeCode {
		attrs = append(attrs, slog.String("code", code))
	}
	s.logger.InfoContext(ctx, "sms delivery is not configured, otp logged", attrs...)
	return nil
}

// messageCreator часть API Twilio, используемая отправителем
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender отправляет коды через Twilio Messages API
type TwilioSender struct {
	api    messageCreator
	logger *slog.Logger
	from   string
}

// NewTwilioSender создает отправителя с учетными данными аккаунта Twilio
func NewTwilioSender(accountSID, authToken, from string, logger *slog.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &TwilioSender{
		api:    client.Api,
		from:   from,
		logger: logger,
	}
}

// Send implements Sender
func (s *TwilioSender) Send(ctx context.Context, phone, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("+7" + phone)
	params.SetFrom(s.from)
	params.SetBody(messageText(code))

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	attrs := []any{slog.String("phone", validation.MaskPhone(phone))}
	if msg != nil && msg.Sid != nil {
		attrs = append(attrs, slog.String("sid", *msg.Sid))
	}
	s.logger.InfoContext(ctx, "sms sent", attrs...)

	return nil
}
