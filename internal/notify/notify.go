package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

var tracer = otel.Tracer("github.com/Additional-Code/orderdesk/notify")

// TypeVerification marks registration code emails.
const TypeVerification = "verification"

// Module provides the email dispatcher to Fx.
var Module = fx.Provide(NewDispatcher)

// Email is the webhook payload understood by the email-dispatch service.
type Email struct {
	To               string `json:"to"`
	From             string `json:"from"`
	Subject          string `json:"subject"`
	VerificationCode string `json:"verificationCode"`
	UserName         string `json:"userName"`
	Type             string `json:"type"`
}

// Dispatcher posts emails to the dispatch webhook. Delivery is best effort:
// failures are logged and never reported back to the code issuer.
type Dispatcher struct {
	client  *http.Client
	url     string
	from    string
	subject string
	timeout time.Duration
	logger  *zap.Logger

	wg sync.WaitGroup
}

// NewDispatcher wires a Dispatcher and drains in-flight sends on shutdown.
func NewDispatcher(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		client:  &http.Client{Timeout: cfg.Email.Timeout},
		url:     cfg.Email.WebhookURL,
		from:    cfg.Email.From,
		subject: cfg.Email.Subject,
		timeout: cfg.Email.Timeout,
		logger:  logger,
	}
	if d.url == "" {
		logger.Info("email webhook not configured; verification emails are disabled")
	}
	lc.Append(fx.Hook{OnStop: d.Drain})
	return d
}

// SendVerificationCode queues a verification email and returns immediately.
func (d *Dispatcher) SendVerificationCode(to, userName, code string) {
	if d.url == "" {
		return
	}
	email := Email{
		To:               to,
		From:             d.from,
		Subject:          d.subject,
		VerificationCode: code,
		UserName:         userName,
		Type:             TypeVerification,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// Detached from the request: the response is sent before delivery completes.
		ctx, cancel := context.WithTimeout(context.Background(), 3*d.timeout)
		defer cancel()
		if err := d.Send(ctx, email); err != nil {
			d.logger.Warn("verification email not delivered", zap.String("to", to), zap.Error(err))
			return
		}
		d.logger.Debug("verification email dispatched", zap.String("to", to))
	}()
}

// Send posts one email, retrying server errors twice.
func (d *Dispatcher) Send(ctx context.Context, email Email) error {
	ctx, span := tracer.Start(ctx, "EmailDispatcher.Send")
	defer span.End()
	span.SetAttributes(attribute.String("email.type", email.Type))

	body, err := json.Marshal(email)
	if err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("email webhook returned %d", resp.StatusCode))
		case resp.StatusCode >= 300:
			return fmt.Errorf("email webhook returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
	}
	return err
}

// Drain waits for queued sends to finish or for ctx to end.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
