package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/types"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

// newCASServer serves the two-page search fixture. Postbacks must echo the
// form state of the first page.
func newCASServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var postbacks []string
	mux := http.NewServeMux()
	mux.HandleFunc("/SearchAlerts.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write(fixture(t, "cas_page1.html"))
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("__VIEWSTATE") != "vs-page1" ||
			r.PostForm.Get("__EVENTVALIDATION") != "ev-page1" ||
			r.PostForm.Get("__VIEWSTATEGENERATOR") != "gen-1" ||
			r.PostForm.Get("__EVENTTARGET") != casPagerTarget {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		postbacks = append(postbacks, r.PostForm.Get("__EVENTARGUMENT"))
		_, _ = w.Write(fixture(t, "cas_page2.html"))
	})
	mux.HandleFunc("/ViewAlert.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("AlertID") == "101" {
			_, _ = w.Write(fixture(t, "cas_detail.html"))
			return
		}
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &postbacks
}

func casConfig(srv *httptest.Server) config.SourceConfig {
	return config.SourceConfig{
		Enabled:       true,
		URL:           srv.URL + "/SearchAlerts.aspx",
		EnrichDetails: true,
	}
}

func TestCASScrapeAllPages(t *testing.T) {
	srv, postbacks := newCASServer(t)
	s := NewCASScraper(NewClient(testClientConfig(), nil), casConfig(srv), nil)

	alerts, err := s.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 3, "the row with an unparseable date is skipped")
	assert.Equal(t, []string{"Page$2"}, *postbacks)

	first := alerts[0]
	assert.Equal(t, "NatPSA/2025/001", first.Reference)
	assert.Equal(t, "Insulin pump fault", first.Title)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), first.IssueDate)
	assert.Equal(t, "Active", first.Status)
	assert.Equal(t, "National Patient Safety Alert", first.AlertType)
	assert.Equal(t, types.SourceCAS, first.Source)
	assert.Equal(t, srv.URL+"/ViewAlert.aspx?AlertID=101", first.URL)

	// Detail page values
	assert.Equal(t, "National Patient Safety Alert (MHRA)", first.Originator)
	assert.Equal(t, "Action required", first.ActionCategory)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", first.BroadcastContent)
	assert.Equal(t, "See attached guidance.", first.AdditionalInfo)
	assert.Equal(t, "22-Jan-2025", first.ActionUnderwayDeadline)
	assert.Equal(t, "15-Feb-2025", first.ActionCompleteDeadline)
	assert.Equal(t, "Alert letter (/files/alert.pdf), FAQ (/files/faq.docx)", first.Attachments)

	// The hash covers the enriched originator
	assert.Equal(t,
		types.ComputeHash(first.Reference, first.Title, first.Originator, first.IssueDate),
		first.HashID)

	second := alerts[1]
	assert.Equal(t, "CMO/2025/002", second.Reference)
	assert.Equal(t, "CMO Messaging", second.AlertType)
	assert.Equal(t, "CMO Messaging", second.Originator, "failed enrichment keeps list values")
	assert.Empty(t, second.BroadcastContent)

	third := alerts[2]
	assert.Equal(t, "EFA/2025/004", third.Reference)
	assert.Equal(t, "Field safety notice for infusion sets", third.Title)
	assert.Equal(t, "Unknown", third.AlertType)
	assert.Equal(t, "Closed", third.Status)
	assert.Empty(t, third.URL)
}

func TestCASScrapeMaxPages(t *testing.T) {
	srv, postbacks := newCASServer(t)
	cfg := casConfig(srv)
	cfg.MaxPages = 1
	cfg.EnrichDetails = false
	s := NewCASScraper(NewClient(testClientConfig(), nil), cfg, nil)

	alerts, err := s.Scrape(context.Background())
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
	assert.Empty(t, *postbacks)
	assert.Equal(t, "National Patient Safety Alert", alerts[0].Originator)
}

func TestCASScrapeBackups(t *testing.T) {
	srv, _ := newCASServer(t)
	cc := testClientConfig()
	cc.BackupDir = t.TempDir()
	cfg := casConfig(srv)
	cfg.EnrichDetails = false
	s := NewCASScraper(NewClient(cc, nil), cfg, nil)

	_, err := s.Scrape(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(cc.BackupDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Len(t, names, 2)
	assert.True(t, strings.HasPrefix(names[0], "cas_mhra_initial_"), names[0])
	assert.True(t, strings.HasPrefix(names[1], "cas_mhra_page_Page_2_"), names[1])
}

func TestCASScrapeFirstPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cc := testClientConfig()
	cc.MaxRetries = 0
	s := NewCASScraper(NewClient(cc, nil), config.SourceConfig{URL: srv.URL}, nil)

	alerts, err := s.Scrape(context.Background())
	require.Error(t, err)
	assert.Nil(t, alerts)
	assert.Contains(t, err.Error(), "failed to fetch CAS search page")
}

func TestCASScrapeMissingViewState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>maintenance</p></body></html>"))
	}))
	defer srv.Close()

	s := NewCASScraper(NewClient(testClientConfig(), nil), config.SourceConfig{URL: srv.URL}, nil)
	_, err := s.Scrape(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoViewState)
}

func TestCASScrapeLaterPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write(fixture(t, "cas_page1.html"))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.SourceConfig{URL: srv.URL}
	s := NewCASScraper(NewClient(testClientConfig(), nil), cfg, nil)

	alerts, err := s.Scrape(context.Background())
	require.NoError(t, err, "later page failures stop pagination without failing the scrape")
	assert.Len(t, alerts, 2)
}

func TestCASAlertType(t *testing.T) {
	tests := []struct {
		originator string
		want       string
	}{
		{"National Patient Safety Alert", "National Patient Safety Alert"},
		{"NHS England National Patient Safety Alert", "National Patient Safety Alert"},
		{"CMO Messaging", "CMO Messaging"},
		{"MHRA", "Unknown"},
		{"", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.originator, func(t *testing.T) {
			assert.Equal(t, tt.want, casAlertType(tt.originator))
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	client := NewClient(testClientConfig(), nil)
	sources := config.SourcesConfig{
		CAS:   config.SourceConfig{Enabled: true, URL: config.DefaultCASURL},
		GOVUK: config.SourceConfig{Enabled: true, URL: config.DefaultGOVUKURL},
	}

	scrapers := NewFromConfig(sources, client, nil)
	require.Len(t, scrapers, 2)
	assert.Equal(t, types.SourceCAS, scrapers[0].Source())
	assert.Equal(t, types.SourceGOVUK, scrapers[1].Source())

	only := Filter(scrapers, types.SourceGOVUK)
	require.Len(t, only, 1)
	assert.Equal(t, types.SourceGOVUK, only[0].Source())

	sources.CAS.Enabled = false
	assert.Len(t, NewFromConfig(sources, client, nil), 1)
}
