package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/types"
)

const (
	govukOriginator = "MHRA/GOV.UK"
	govukStatus     = "Issued"
	govukDateLayout = "2 January 2006"
)

var dmrcPattern = regexp.MustCompile(`DMRC[-\s:]?\d+`)

var _ Scraper = (*GOVUKScraper)(nil)

// GOVUKScraper reads the GOV.UK drug and device alerts finder, which paginates
// through ordinary "next page" links.
type GOVUKScraper struct {
	client   *Client
	baseURL  string
	maxPages int
	enrich   bool
	logger   *slog.Logger
}

// NewGOVUKScraper creates a GOV.UK scraper
func NewGOVUKScraper(client *Client, cfg config.SourceConfig, logger *slog.Logger) *GOVUKScraper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GOVUKScraper{
		client:   client,
		baseURL:  cfg.URL,
		maxPages: cfg.MaxPages,
		enrich:   cfg.EnrichDetails,
		logger:   logger.With("component", "scraper", "source", types.SourceGOVUK),
	}
}

// Source returns types.SourceGOVUK
func (s *GOVUKScraper) Source() types.Source {
	return types.SourceGOVUK
}

// Scrape follows next-page links from the base URL until none remain
func (s *GOVUKScraper) Scrape(ctx context.Context) ([]*types.Alert, error) {
	var alerts []*types.Alert
	visited := make(map[string]bool)
	current := s.baseURL
	page := 0

	for current != "" {
		if s.maxPages > 0 && page >= s.maxPages {
			s.logger.Info("page limit reached", "max_pages", s.maxPages)
			break
		}
		if visited[current] {
			s.logger.Warn("next page link loops back, stopping pagination", "url", current)
			break
		}
		visited[current] = true
		page++

		body, err := s.client.Get(ctx, current)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("failed to fetch GOV.UK alert list: %w", err)
			}
			if ctx.Err() != nil {
				return alerts, ctx.Err()
			}
			s.logger.Warn("failed to fetch page, stopping pagination", "url", current, "error", err)
			break
		}
		s.client.Backup(fmt.Sprintf("govuk_list_%d", page), body)

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("failed to parse GOV.UK alert list: %w", err)
			}
			s.logger.Warn("failed to parse page, stopping pagination", "url", current, "error", err)
			break
		}

		alerts = append(alerts, s.parsePage(ctx, doc)...)
		current = s.nextPageURL(doc, current)
	}

	s.logger.Info("finished scraping", "alerts", len(alerts), "pages", page)
	return alerts, nil
}

func (s *GOVUKScraper) nextPageURL(doc *goquery.Document, current string) string {
	link := doc.Find(".govuk-pagination__next a, .pagination__next a").First()
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return resolveURL(current, href)
}

func (s *GOVUKScraper) parsePage(ctx context.Context, doc *goquery.Document) []*types.Alert {
	items := doc.Find(".gem-c-document-list__item")
	if items.Length() == 0 {
		s.logger.Warn("no alert items found on page")
		return nil
	}

	var alerts []*types.Alert
	items.Each(func(_ int, item *goquery.Selection) {
		fields, ok := s.parseItem(item)
		if !ok {
			return
		}
		if s.enrich {
			s.enrichFromDetail(ctx, &fields)
		}
		if alert := build(fields, s.logger); alert != nil {
			alerts = append(alerts, alert)
		}
	})
	return alerts
}

func (s *GOVUKScraper) parseItem(item *goquery.Selection) (types.Alert, bool) {
	link := item.Find(".gem-c-document-list__item-title a").First()
	title := cleanText(link.Text())
	alertURL := ""
	if href, ok := link.Attr("href"); ok {
		alertURL = resolveURL(s.baseURL, href)
	}

	// Metadata is type, then an optional specialty, then the issue date last
	meta := item.Find(".gem-c-document-list__item-metadata dd")
	alertType := "Unknown"
	specialty := ""
	rawDate := ""
	if meta.Length() > 0 {
		alertType = cleanText(meta.First().Text())
		rawDate = cleanText(meta.Last().Text())
	}
	if meta.Length() > 2 {
		specialty = cleanText(meta.Eq(1).Text())
	}

	issueDate, err := parseDate(rawDate, govukDateLayout)
	if title == "" || alertURL == "" || err != nil {
		s.logger.Warn("skipping alert with missing essential data",
			"title", title, "url", alertURL, "raw_date", rawDate)
		return types.Alert{}, false
	}

	return types.Alert{
		Title:            title,
		Originator:       govukOriginator,
		IssueDate:        issueDate,
		Status:           govukStatus,
		AlertType:        alertType,
		Source:           types.SourceGOVUK,
		URL:              alertURL,
		MedicalSpecialty: specialty,
	}, true
}

// enrichFromDetail reads the alert page for a DMRC reference, a more precise
// title and date, and the advice sections.
func (s *GOVUKScraper) enrichFromDetail(ctx context.Context, fields *types.Alert) {
	body, err := s.client.Get(ctx, fields.URL)
	if err != nil {
		s.logger.Warn("failed to enrich alert from detail page", "url", fields.URL, "error", err)
		return
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("failed to parse detail page", "url", fields.URL, "error", err)
		return
	}

	if h1 := cleanText(doc.Find("h1").First().Text()); h1 != "" {
		fields.Title = h1
	}
	if dt, ok := doc.Find(`time[data-module="govuk-datetime"]`).First().Attr("datetime"); ok && len(dt) >= 10 {
		if d, err := parseDate(dt[:10], types.DateLayout); err == nil {
			fields.IssueDate = d
		}
	}
	if ref := dmrcPattern.FindString(multilineText(doc.Find("body"))); ref != "" {
		fields.Reference = ref
	}

	fields.AdditionalInfo = section(doc, "Additional information")
	fields.BroadcastContent = section(doc, "Background")
	fields.ActionCategory = section(doc, "Advice for Healthcare Professionals")
	fields.Attachments = linkList(doc.Find("a[href]"), func(text, href string) bool {
		return strings.Contains(strings.ToLower(text), "download") || strings.HasSuffix(href, ".pdf")
	})
}

// section returns the text between the first h2/h3 mentioning heading and the next h2/h3
func section(doc *goquery.Document, heading string) string {
	want := strings.ToLower(heading)
	header := doc.Find("h2, h3").FilterFunction(func(_ int, h *goquery.Selection) bool {
		return strings.Contains(strings.ToLower(cleanText(h.Text())), want)
	}).First()
	if header.Length() == 0 {
		return ""
	}

	var parts []string
	header.NextAll().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
		if sib.Is("h2, h3") {
			return false
		}
		if text := multilineText(sib); text != "" {
			parts = append(parts, text)
		}
		return true
	})
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
