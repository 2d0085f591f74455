package translation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openbiblio/zotero-harvester/internal/metrics"
	"github.com/openbiblio/zotero-harvester/internal/report"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	metrics.Init()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	c, err := New(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestNewValidatesBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: ""}, nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "localhost:1969"}, nil)
	require.Error(t, err)

	c, err := New(Config{BaseURL: "http://localhost:1969"}, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestWebSuccess(t *testing.T) {
	t.Parallel()

	var gotPath, gotContentType, gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `[{"itemType":"journalArticle","title":"A"}]`)
	}, Config{UserAgent: "harvester-test/1.0"})

	res, err := c.Web(context.Background(), "https://journal.test/article/1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.False(t, res.MultipleCandidates())
	require.Contains(t, string(res.Body), "journalArticle")
	require.Equal(t, "/web", gotPath)
	require.Equal(t, "text/plain", gotContentType)
	require.Equal(t, "https://journal.test/article/1", gotBody)
}

func TestWebJSONResubmitsPayload(t *testing.T) {
	t.Parallel()

	var gotContentType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `[{"title":"resolved"}]`)
	}, Config{})

	res, err := c.WebJSON(context.Background(), []byte(`{"url":"https://x.test","items":{}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "application/json", gotContentType)
}

func TestWebMultipleCandidates(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultipleChoices)
		io.WriteString(w, `{"https://a.test/1":"First","https://a.test/2":"Second"}`)
	}, Config{})

	res, err := c.Web(context.Background(), "https://a.test/toc")
	require.NoError(t, err)
	require.True(t, res.MultipleCandidates())
}

func TestWebUnsupportedPage(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	}, Config{})

	_, err := c.Web(context.Background(), "https://a.test/about")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnsupportedPage))
}

func TestWebServerErrorClassifiesAsConversionFailure(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "translator crashed")
	}, Config{})

	_, err := c.Web(context.Background(), "https://a.test/broken")
	require.Error(t, err)
	require.Equal(t, report.KindConversionFailed, report.Classify(err))
	require.Contains(t, err.Error(), "translator crashed")
}

func TestWebEmptyBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "  \n")
	}, Config{})

	_, err := c.Web(context.Background(), "https://a.test/empty")
	require.Error(t, err)
	require.Equal(t, report.KindEmptyResponse, report.Classify(err))
}

func TestExport(t *testing.T) {
	t.Parallel()

	var gotPath, gotFormat, gotContentType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("format")
		gotContentType = r.Header.Get("Content-Type")
		io.WriteString(w, "TY  - JOUR\nER  -\n")
	}, Config{})

	out, err := c.Export(context.Background(), "RIS", []byte(`[{"title":"A"}]`))
	require.NoError(t, err)
	require.Contains(t, string(out), "TY  - JOUR")
	require.Equal(t, "/export", gotPath)
	require.Equal(t, "ris", gotFormat)
	require.Equal(t, "application/json", gotContentType)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server")
	}, Config{})

	_, err := c.Export(context.Background(), "docx", []byte(`[]`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported export format")
}

func TestImport(t *testing.T) {
	t.Parallel()

	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `[{"itemType":"journalArticle"}]`)
	}, Config{})

	out, err := c.Import(context.Background(), []byte("TY  - JOUR\nER  -\n"))
	require.NoError(t, err)
	require.Contains(t, string(out), "journalArticle")
	require.Equal(t, "/import", gotPath)
}

func TestMinProcessingTimeGate(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{}]`)
	}, Config{MinProcessingTime: 60 * time.Millisecond})

	start := time.Now()
	_, err := c.Web(context.Background(), "https://a.test/1")
	require.NoError(t, err)
	_, err = c.Web(context.Background(), "https://a.test/2")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSupportedExportFormats(t *testing.T) {
	t.Parallel()

	require.True(t, SupportedExportFormat("ris"))
	require.True(t, SupportedExportFormat("BibTeX"))
	require.False(t, SupportedExportFormat("marc21"))
	require.Contains(t, ExportFormats(), "tei")
}
