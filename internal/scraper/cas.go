package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/steveyegge/casalert/internal/config"
	"github.com/steveyegge/casalert/internal/types"
)

const (
	casTableSelector = "#ctl00_ContentPlaceHolder1_AlertSearchResults1_gvwAlertList"
	casPagerTarget   = "ctl00$ContentPlaceHolder1$AlertSearchResults1$gvwAlertList"
	casDateLayout    = "02-Jan-2006"
)

var casDatePattern = regexp.MustCompile(`^\d{2}-[A-Za-z]{3}-\d{4}$`)

var _ Scraper = (*CASScraper)(nil)

// CASScraper reads the CAS MHRA alert search results, an ASP.NET GridView
// paginated through form postbacks.
type CASScraper struct {
	client   *Client
	baseURL  string
	maxPages int
	enrich   bool
	logger   *slog.Logger
}

// NewCASScraper creates a CAS scraper
func NewCASScraper(client *Client, cfg config.SourceConfig, logger *slog.Logger) *CASScraper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CASScraper{
		client:   client,
		baseURL:  cfg.URL,
		maxPages: cfg.MaxPages,
		enrich:   cfg.EnrichDetails,
		logger:   logger.With("component", "scraper", "source", types.SourceCAS),
	}
}

// Source returns types.SourceCAS
func (s *CASScraper) Source() types.Source {
	return types.SourceCAS
}

// formState carries the hidden ASP.NET fields a postback must echo
type formState struct {
	viewState          string
	eventValidation    string
	viewStateGenerator string
}

func parseFormState(doc *goquery.Document) (formState, error) {
	viewState, vsOK := doc.Find(`input[name="__VIEWSTATE"]`).Attr("value")
	eventValidation, evOK := doc.Find(`input[name="__EVENTVALIDATION"]`).Attr("value")
	if !vsOK || !evOK {
		return formState{}, ErrNoViewState
	}
	generator, _ := doc.Find(`input[name="__VIEWSTATEGENERATOR"]`).Attr("value")
	return formState{viewState: viewState, eventValidation: eventValidation, viewStateGenerator: generator}, nil
}

func (f formState) postback(target, argument string) url.Values {
	form := url.Values{
		"__EVENTTARGET":     {target},
		"__EVENTARGUMENT":   {argument},
		"__VIEWSTATE":       {f.viewState},
		"__EVENTVALIDATION": {f.eventValidation},
	}
	if f.viewStateGenerator != "" {
		form.Set("__VIEWSTATEGENERATOR", f.viewStateGenerator)
	}
	return form
}

// Scrape fetches the first results page, then posts back for every other page
// number listed in its pager.
func (s *CASScraper) Scrape(ctx context.Context) ([]*types.Alert, error) {
	body, err := s.client.Get(ctx, s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch CAS search page: %w", err)
	}
	s.client.Backup("cas_mhra_initial", body)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse CAS search page: %w", err)
	}
	state, err := parseFormState(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to read CAS form state: %w", err)
	}

	alerts := s.parsePage(ctx, doc)
	pages := pagerPages(doc)
	s.logger.Info("found pagination links", "pages", pages)

	fetched := 1
	for _, page := range pages {
		if s.maxPages > 0 && fetched >= s.maxPages {
			s.logger.Info("page limit reached", "max_pages", s.maxPages)
			break
		}
		argument := "Page$" + strconv.Itoa(page)
		body, err := s.client.PostForm(ctx, s.baseURL, state.postback(casPagerTarget, argument))
		if err != nil {
			if ctx.Err() != nil {
				return alerts, ctx.Err()
			}
			s.logger.Warn("failed to fetch page, stopping pagination", "page", page, "error", err)
			break
		}
		s.client.Backup("cas_mhra_page_"+argument, body)

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			s.logger.Warn("failed to parse page, stopping pagination", "page", page, "error", err)
			break
		}
		// The server issues fresh form state with every response
		if next, err := parseFormState(doc); err == nil {
			state = next
		}
		alerts = append(alerts, s.parsePage(ctx, doc)...)
		fetched++
	}

	s.logger.Info("finished scraping", "alerts", len(alerts), "pages", fetched)
	return alerts, nil
}

// pagerPages returns the sorted numeric page links other than the current page
func pagerPages(doc *goquery.Document) []int {
	current := strings.TrimSpace(doc.Find(".gridview_pager span").First().Text())
	seen := make(map[int]struct{})
	doc.Find(casTableSelector + " a").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		if text == current {
			return
		}
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 {
			return
		}
		seen[n] = struct{}{}
	})
	pages := make([]int, 0, len(seen))
	for n := range seen {
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages
}

func (s *CASScraper) parsePage(ctx context.Context, doc *goquery.Document) []*types.Alert {
	table := doc.Find(casTableSelector)
	if table.Length() == 0 {
		s.logger.Warn("alert table not found on page")
		return nil
	}

	var alerts []*types.Alert
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if row.HasClass("gridview_pager") || row.ParentsFiltered(".gridview_pager").Length() > 0 {
			return
		}
		if row.ChildrenFiltered("th").Length() > 0 {
			return
		}
		fields, ok := s.parseRow(row)
		if !ok {
			return
		}
		if s.enrich && fields.URL != "" {
			s.enrichFromDetail(ctx, &fields)
		}
		if alert := build(fields, s.logger); alert != nil {
			alerts = append(alerts, alert)
		}
	})
	return alerts
}

func (s *CASScraper) parseRow(row *goquery.Selection) (types.Alert, bool) {
	cols := row.ChildrenFiltered("td")
	if cols.Length() < 5 {
		return types.Alert{}, false
	}

	reference := cleanText(cols.Eq(0).Text())
	titleCell := cols.Eq(1)
	title := cleanText(titleCell.Text())
	alertURL := ""
	if link := titleCell.Find("a").First(); link.Length() > 0 {
		title = cleanText(link.Text())
		if href, ok := link.Attr("href"); ok {
			alertURL = resolveURL(s.baseURL, href)
		}
	}
	originator := cleanText(cols.Eq(2).Text())
	rawDate := cleanText(cols.Eq(3).Text())
	status := cleanText(cols.Eq(4).Text())

	if !casDatePattern.MatchString(rawDate) {
		s.logger.Warn("skipping alert with invalid date", "reference", reference, "title", title, "raw_date", rawDate)
		return types.Alert{}, false
	}
	issueDate, err := parseDate(rawDate, casDateLayout)
	if err != nil {
		s.logger.Warn("skipping alert with invalid date", "reference", reference, "title", title, "error", err)
		return types.Alert{}, false
	}

	return types.Alert{
		Reference:  reference,
		Title:      title,
		Originator: originator,
		IssueDate:  issueDate,
		Status:     status,
		AlertType:  casAlertType(originator),
		Source:     types.SourceCAS,
		URL:        alertURL,
	}, true
}

// casAlertType infers the alert type from the originator column
func casAlertType(originator string) string {
	switch {
	case strings.Contains(originator, "National Patient Safety Alert"):
		return "National Patient Safety Alert"
	case strings.Contains(originator, "CMO Messaging"):
		return "CMO Messaging"
	}
	return "Unknown"
}

// enrichFromDetail fills the optional fields from the alert's detail page.
// The detail page lays fields out as a label element followed by a value element.
func (s *CASScraper) enrichFromDetail(ctx context.Context, fields *types.Alert) {
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

	text := func(label string) string {
		if v := labelledValue(doc, label); v != nil {
			return compactText(v)
		}
		return ""
	}

	if originator := text("Originator:"); originator != "" {
		fields.Originator = originator
	}
	fields.ActionCategory = text("Action category:")
	if v := labelledValue(doc, "Broadcast content:"); v != nil {
		fields.BroadcastContent = multilineText(v)
	}
	fields.AdditionalInfo = text("Additional information:")
	fields.ActionUnderwayDeadline = text("Action underway deadline:")
	fields.ActionCompleteDeadline = text("Action complete deadline:")
	if v := labelledValue(doc, "Attachments:"); v != nil {
		fields.Attachments = linkList(v.Find("a[href]"), nil)
	}
}
