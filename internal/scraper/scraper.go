// Package scraper collects alert listings from the CAS MHRA and GOV.UK sites.
//
// Each site gets its own Scraper implementation; they share a Client that owns
// rate limiting, retries and raw-page backups. Scrapers fill every field they can
// find, including detail-page enrichment, before constructing the alert, so the
// identity hash always covers the final field values. Rows that lack a title or a
// parseable issue date are logged and skipped.
package scraper

import (
	"context"
	"errors"
	"log/slog"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/types"
)

// ErrNoViewState is returned when the CAS search page lacks the ASP.NET form state
var ErrNoViewState = errors.New("viewstate or eventvalidation not found")

// Scraper collects alerts from one source site
type Scraper interface {
	// Source returns the tag stamped on every alert this scraper produces
	Source() types.Source

	// Scrape walks the site's listing and returns the alerts found, in page order.
	// An error means the listing could not be read at all; later-page failures
	// are logged and the alerts gathered so far are returned.
	Scrape(ctx context.Context) ([]*types.Alert, error)
}

// NewFromConfig builds a scraper for every enabled source
func NewFromConfig(sources config.SourcesConfig, client *Client, logger *slog.Logger) []Scraper {
	var scrapers []Scraper
	if sources.CAS.Enabled {
		scrapers = append(scrapers, NewCASScraper(client, sources.CAS, logger))
	}
	if sources.GOVUK.Enabled {
		scrapers = append(scrapers, NewGOVUKScraper(client, sources.GOVUK, logger))
	}
	return scrapers
}

// Filter keeps only the scrapers for the given source
func Filter(scrapers []Scraper, source types.Source) []Scraper {
	var out []Scraper
	for _, s := range scrapers {
		if s.Source() == source {
			out = append(out, s)
		}
	}
	return out
}

// build constructs an alert from scraped fields, logging and dropping invalid ones
func build(fields types.Alert, logger *slog.Logger) *types.Alert {
	alert, err := types.NewAlert(fields)
	if err != nil {
		logger.Warn("skipping alert with invalid fields",
			"reference", fields.Reference, "title", fields.Title, "error", err)
		return nil
	}
	return alert
}
