package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorcrm/motorcrm/internal/i18n"
	_ "github.com/motorcrm/motorcrm/testing"
)

type recordingSender struct {
	sent []SendRequest
}

func (r *recordingSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	r.sent = append(r.sent, req)
	return SendResult{MessageID: "msg-1"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMailerRendersLocalizedProviderRequest(t *testing.T) {
	sender := &recordingSender{}
	mailer, err := NewMailer(sender, i18n.New("en"), discardLogger())
	require.NoError(t, err)

	res, err := mailer.Deliver(context.Background(), Email{
		Template: TemplateProviderRequest,
		To:       []string{"riad@example.com"},
		Locale:   "fr",
		Key:      "bs-12-1",
		Data: map[string]any{
			"ProviderName":  "Riad Atlas",
			"Organization":  "Acme Travel",
			"BookingNumber": "BK-202603-0007",
			"ServiceName":   "Double room",
			"Quantity":      "2",
			"TripStart":     "02 Apr 2026",
			"TripEnd":       "05 Apr 2026",
			"Pax":           "2",
			"Link":          "https://crm.example.com/respond/abc",
			"ExpiresOn":     "16 Mar 2026",
			"Reminder":      false,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", res.MessageID)

	require.Len(t, sender.sent, 1)
	req := sender.sent[0]
	assert.Equal(t, "Demande de prestation pour la réservation BK-202603-0007", req.Subject)
	assert.Equal(t, []string{"riad@example.com"}, req.To)
	assert.Equal(t, "bs-12-1", req.RefID)
	assert.Contains(t, req.HTML, `href="https://crm.example.com/respond/abc"`)
	assert.Contains(t, req.HTML, "Acme Travel vous demande")
}

func TestMailerRendersJSONDecodedData(t *testing.T) {
	mailer, err := NewMailer(&recordingSender{}, i18n.New("en"), discardLogger())
	require.NoError(t, err)

	var email Email
	payload := `{"template":"booking_needs_changes","to":["jane@example.com"],"locale":"en",
		"data":{"CustomerName":"Jane","BookingNumber":"BK-1","TripStart":"02 Apr 2026","TripEnd":"05 Apr 2026",
		"Organization":"Acme Travel","Lines":[{"Name":"Desert camp","Note":"Fully booked"}]}}`
	require.NoError(t, json.Unmarshal([]byte(payload), &email))

	req, err := mailer.Render(email)
	require.NoError(t, err)
	assert.Equal(t, "Booking BK-1 needs changes", req.Subject)
	assert.Contains(t, req.HTML, "<strong>Desert camp</strong>: Fully booked")

	_, err = mailer.Render(Email{Template: "missing"})
	assert.Error(t, err)
}

func TestResendSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re-msg-42"}`))
	}))
	defer srv.Close()

	sender := NewResendSender("re_test", "MotorCRM <noreply@example.com>")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	sender.client.BaseURL = base

	res, err := sender.Send(context.Background(), SendRequest{
		To: []string{"jane@example.com"}, Subject: "Hi", HTML: "<p>Hi</p>", RefID: "bk-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "re-msg-42", res.MessageID)
	assert.Equal(t, "MotorCRM <noreply@example.com>", got["from"])
	assert.Equal(t, "Hi", got["subject"])
	assert.Equal(t, map[string]any{"X-Entity-Ref-ID": "bk-1"}, got["headers"])

	_, err = sender.Send(context.Background(), SendRequest{Subject: "Hi"})
	assert.Error(t, err)
}

func TestNoopSender(t *testing.T) {
	res, err := NewNoopSender(discardLogger()).Send(context.Background(), SendRequest{To: []string{"a@example.com"}})
	require.NoError(t, err)
	assert.Contains(t, res.MessageID, "noop-")
}
