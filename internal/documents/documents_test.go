package documents

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/motorcrm/motorcrm/internal/i18n"
	"github.com/motorcrm/motorcrm/internal/shared"
	_ "github.com/motorcrm/motorcrm/testing"
)

func fakeGotenberg(t *testing.T, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/forms/chromium/convert/html":
			require.NoError(t, r.ParseMultipartForm(10<<20))
			if check != nil {
				check(r)
			}
			_, _ = w.Write([]byte("%PDF-FAKE"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOptionsFormFields(t *testing.T) {
	top := 1.25
	fields := Options{PaperSize: PaperLetter, Landscape: true, MarginTop: &top, Scale: 0.8}.FormFields()
	assert.Equal(t, "8.5", fields["paperWidth"])
	assert.Equal(t, "11", fields["paperHeight"])
	assert.Equal(t, "1.25", fields["marginTop"])
	assert.Equal(t, "0.4", fields["marginBottom"])
	assert.Equal(t, "true", fields["landscape"])
	assert.Equal(t, "false", fields["printBackground"])
	assert.Equal(t, "0.8", fields["scale"])

	defaults := Options{}.FormFields()
	assert.Equal(t, "8.27", defaults["paperWidth"])
	assert.Equal(t, "1", defaults["scale"])
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	assert.NoError(t, Options{}.Validate())

	tooWide := 3.5
	err := Options{MarginLeft: &tooWide}.Validate()
	require.Error(t, err)
	assert.Contains(t, shared.FieldErrors(err), "MarginLeft")

	assert.Error(t, Options{Scale: 2.5}.Validate())
	assert.Error(t, Options{PaperSize: "A3"}.Validate())
}

func TestClientConvertSendsHTMLAndOptions(t *testing.T) {
	srv := fakeGotenberg(t, func(r *http.Request) {
		file, header, err := r.FormFile("files")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "index.html", header.Filename)
		body, _ := io.ReadAll(file)
		assert.Equal(t, "<h1>Hello</h1>", string(body))
		assert.Equal(t, "5.83", r.FormValue("paperWidth"))
		assert.Equal(t, "true", r.FormValue("printBackground"))
	})
	client := NewClient(srv.URL + "/")

	pdf, err := client.Convert(context.Background(), "<h1>Hello</h1>", Options{PaperSize: PaperA5, PrintBackground: true})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-FAKE", string(pdf))
	assert.NoError(t, client.Ping(context.Background()))
}

func TestClientConvertUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid HTML"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Convert(context.Background(), "<p>", Options{})
	require.ErrorIs(t, err, ErrRenderFailed)
	assert.Contains(t, err.Error(), "gotenberg response 400: Invalid HTML")

	_, err = NewClient("").Convert(context.Background(), "<p>", Options{})
	assert.ErrorIs(t, err, ErrRenderFailed)
}

type captureConverter struct {
	html string
	opts Options
}

func (c *captureConverter) Convert(ctx context.Context, html string, opts Options) ([]byte, error) {
	c.html = html
	c.opts = opts
	return []byte("%PDF"), nil
}

func TestRendererContract(t *testing.T) {
	conv := &captureConverter{}
	r, err := NewRenderer(conv, i18n.New("en"))
	require.NoError(t, err)

	pdf, err := r.Contract(context.Background(), ContractData{
		Locale:       language.French,
		Organization: "Acme Motors",
		DocNumber:    "DEAL-202603-0001",
		Date:         time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Customer:     Party{Code: "CUST-00001", Name: "Jane Doe"},
		Vehicle:      "Honda Accord",
		VIN:          "1HGCM82633A004352",
		SalePrice:    decimal.RequireFromString("18500"),
		DownPayment:  decimal.RequireFromString("2500"),
		Balance:      decimal.RequireFromString("16000"),
		Terms:        "Delivery within **7 days**.\n\n<script>alert(1)</script>",
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(pdf))
	assert.Equal(t, PaperA4, conv.opts.PaperSize)

	assert.Contains(t, conv.html, "DEAL-202603-0001")
	assert.Contains(t, conv.html, "16,000.00")
	assert.Contains(t, conv.html, "<strong>7 days</strong>")
	assert.NotContains(t, conv.html, "<script>alert(1)</script>")
	assert.Contains(t, conv.html, `lang="fr"`)
	assert.Contains(t, conv.html, "Client", "labels follow the document locale")
}

func TestRendererInvoice(t *testing.T) {
	conv := &captureConverter{}
	r, err := NewRenderer(conv, i18n.New("en"))
	require.NoError(t, err)

	_, err = r.Invoice(context.Background(), InvoiceData{
		DocNumber: "BK-202603-0007",
		Customer:  Party{Name: "Jane Doe"},
		Pax:       2,
		Lines: []InvoiceLine{
			{Name: "Riad", Quantity: 2, UnitPrice: decimal.NewFromInt(120), Total: decimal.NewFromInt(240)},
		},
		Total: decimal.NewFromInt(240),
	})
	require.NoError(t, err)
	assert.Contains(t, conv.html, "BK-202603-0007")
	assert.Contains(t, conv.html, "Riad")
	assert.Contains(t, conv.html, "240.00")

	_, err = r.HTML("missing", language.English, nil)
	assert.Error(t, err)
}

func TestRenderEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := fakeGotenberg(t, nil)
	h := NewHandler(NewClient(srv.URL), logger)

	rec := httptest.NewRecorder()
	h.Render(rec, httptest.NewRequest(http.MethodPost, "/api/documents/render", strings.NewReader(`{"html":"<p>x</p>","options":{"paperSize":"LEGAL","landscape":true}}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-FAKE", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Render(rec, httptest.NewRequest(http.MethodPost, "/api/documents/render", strings.NewReader(`{"html":"<p>x</p>","options":{"scale":9}}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Scale")

	rec = httptest.NewRecorder()
	h.Render(rec, httptest.NewRequest(http.MethodPost, "/api/documents/render", strings.NewReader(`{"options":{}}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	down := NewHandler(NewClient("http://127.0.0.1:1"), logger)
	rec = httptest.NewRecorder()
	down.Render(rec, httptest.NewRequest(http.MethodPost, "/api/documents/render", strings.NewReader(`{"html":"<p>x</p>"}`)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
