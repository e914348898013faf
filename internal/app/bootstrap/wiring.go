package bootstrap

import (
	"fmt"
	"log/slog"

	eventadapter "github.com/viralforge/porter-dispatch/internal/adapters/events"
	"github.com/viralforge/porter-dispatch/internal/adapters/gateway"
	"github.com/viralforge/porter-dispatch/internal/adapters/notify"
	"github.com/viralforge/porter-dispatch/internal/adapters/security"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

func newTokenSigner(cfg Config, logger *slog.Logger) (*security.TokenSigner, error) {
	signer, err := security.NewTokenSigner(cfg.JWTIssuer, cfg.JWTKeyID, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
	if err == nil {
		return signer, nil
	}
	if !cfg.AllowEphemeralJWT {
		return nil, fmt.Errorf("init jwt signer: %w", err)
	}
	logger.Warn("using ephemeral JWT keys for local/dev runtime")
	signer, err = security.NewEphemeralTokenSigner(cfg.JWTIssuer, cfg.JWTKeyID)
	if err != nil {
		return nil, fmt.Errorf("init ephemeral jwt signer: %w", err)
	}
	return signer, nil
}

func newGateway(cfg Config, logger *slog.Logger) (ports.PaymentGateway, error) {
	if cfg.GatewayMode == GatewayRazorpay {
		client, err := gateway.NewClient(gateway.Config{
			BaseURL:   cfg.GatewayBaseURL,
			KeyID:     cfg.GatewayKeyID,
			KeySecret: cfg.GatewayKeySecret,
			Timeout:   cfg.GatewayTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init payment gateway: %w", err)
		}
		return client, nil
	}
	if cfg.GatewayKeySecret == "" {
		return nil, fmt.Errorf("sandbox gateway needs GATEWAY_KEY_SECRET to sign confirmations")
	}
	logger.Warn("using sandbox payment gateway")
	return gateway.NewSandbox(cfg.GatewayKeyID, cfg.GatewayKeySecret), nil
}

// newSender picks SMTP when a relay is configured and logs messages otherwise.
func newSender(cfg Config, logger *slog.Logger) (notify.Sender, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, notifications are logged only")
		return notify.NewLoggingSender(logger), nil
	}
	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("init smtp sender: %w", err)
	}
	return sender, nil
}

func newPublisher(cfg Config, logger *slog.Logger) (ports.EventPublisher, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, outbox events are logged only")
		return eventadapter.NewLoggingPublisher(logger), func() {}, nil
	}
	publisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaDefaultTopic, cfg.KafkaTopics)
	if err != nil {
		return nil, nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	return publisher, func() { _ = publisher.Close() }, nil
}
