package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/ports"
)

// SMSAdapter sends SMS messages via the Twilio REST API. Calls go
// through a circuit breaker so a gateway outage does not pile up
// blocked OTP requests.
type SMSAdapter struct {
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger
}

// NewSMSAdapter creates a new Twilio SMS adapter
func NewSMSAdapter(accountSID, authToken, fromNumber string, log *zap.Logger) *SMSAdapter {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "twilio-sms",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("SMS circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &SMSAdapter{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    breaker,
		log:        log,
	}
}

// SendSMS sends a single SMS message via Twilio
func (a *SMSAdapter) SendSMS(ctx context.Context, to, message string) error {
	if a.accountSID == "" || a.authToken == "" {
		a.log.Warn("SMS adapter not configured, skipping send", zap.String("to", to))
		return nil
	}

	_, err := a.breaker.Execute(func() (interface{}, error) {
		return nil, a.send(ctx, to, message)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		a.log.Warn("SMS circuit breaker open, message dropped", zap.String("to", to))
		return fmt.Errorf("sms: gateway unavailable")
	}
	return err
}

func (a *SMSAdapter) send(ctx context.Context, to, message string) error {
	apiURL := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", a.accountSID)

	data := url.Values{}
	data.Set("To", to)
	data.Set("From", a.fromNumber)
	data.Set("Body", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("sms: create request: %w", err)
	}

	req.SetBasicAuth(a.accountSID, a.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.log.Error("Failed to send SMS", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("sms: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var twilioErr struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		}
		json.NewDecoder(resp.Body).Decode(&twilioErr)
		a.log.Error("Twilio API error",
			zap.Int("status", resp.StatusCode),
			zap.String("message", twilioErr.Message),
			zap.Int("twilio_code", twilioErr.Code),
		)
		return fmt.Errorf("sms: twilio error %d: %s", twilioErr.Code, twilioErr.Message)
	}

	a.log.Info("SMS sent successfully", zap.String("to", to))
	return nil
}

var _ ports.SMSSender = (*SMSAdapter)(nil)
