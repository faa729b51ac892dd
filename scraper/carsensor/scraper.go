package carsensor

import (
	"context"
	"fmt"
	"time"

	"carsensor-mirror/models"
	"carsensor-mirror/telemetry"
	"carsensor-mirror/utils"
)

// PageArchiver keeps a copy of every fetched search page.
type PageArchiver interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
}

// Stats summarises one pass over the search pages.
type Stats struct {
	Pages       int
	PagesFailed int
	Found       int
	Dropped     int
}

// Scraper drives the page loop: fetch, extract, accumulate.
type Scraper struct {
	fetcher   Fetcher
	extractor *Extractor
	pacer     *utils.Pacer
	logger    *utils.Logger
	archive   PageArchiver
}

// New creates a Scraper. pacer spaces out every outbound request,
// including detail fetches during the image pass.
func New(fetcher Fetcher, extractor *Extractor, pacer *utils.Pacer, logger *utils.Logger) *Scraper {
	return &Scraper{
		fetcher:   fetcher,
		extractor: extractor,
		pacer:     pacer,
		logger:    logger,
	}
}

// WithArchive enables raw page archiving.
func (s *Scraper) WithArchive(a PageArchiver) *Scraper {
	s.archive = a
	return s
}

// Scrape fetches and extracts each URL in order. A page that cannot be
// fetched is logged and skipped. Only cancellation of ctx stops the loop
// early, in which case the context error is returned.
func (s *Scraper) Scrape(ctx context.Context, runID string, urls []string) ([]*models.Listing, Stats, error) {
	var (
		stats Stats
		all   []*models.Listing
	)

	for i, u := range urls {
		if err := s.pacer.Wait(ctx); err != nil {
			return all, stats, fmt.Errorf("scrape interrupted before page %d: %w", i+1, err)
		}

		stats.Pages++
		s.logger.Info("[carsensor] Fetching page %d/%d: %s", i+1, len(urls), u)

		markup, err := s.fetcher.Fetch(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return all, stats, fmt.Errorf("scrape interrupted on page %d: %w", i+1, ctx.Err())
			}
			stats.PagesFailed++
			telemetry.PagesFetched.WithLabelValues("failed").Inc()
			s.logger.Error("[carsensor] Page %d skipped: %v", i+1, err)
			continue
		}
		telemetry.PagesFetched.WithLabelValues("ok").Inc()

		s.archivePage(ctx, runID, i+1, markup)

		listings, errs := s.extractor.ExtractListing(u, markup)
		for _, e := range errs {
			s.logger.Debug("[carsensor] %v", e)
		}
		stats.Found += len(listings)
		stats.Dropped += len(errs)
		all = append(all, listings...)

		s.logger.Info("[carsensor] Page %d done: %d listings, %d dropped, %d so far",
			i+1, len(listings), len(errs), len(all))
	}

	return all, stats, nil
}

func (s *Scraper) archivePage(ctx context.Context, runID string, page int, markup string) {
	if s.archive == nil {
		return
	}
	key := fmt.Sprintf("%s/%s/page-%03d.html", time.Now().UTC().Format("2006-01-02"), runID, page)
	loc, err := s.archive.Put(ctx, key, []byte(markup))
	if err != nil {
		s.logger.Warn("[carsensor] Archive page %d failed: %v", page, err)
		return
	}
	s.logger.Debug("[carsensor] Archived page %d to %s", page, loc)
}

// EnrichImages visits each listing's detail page once and replaces the
// listing-page thumbnail with the primary photo when one is found. Failures
// leave the listing as it was. It returns the number of images set.
func (s *Scraper) EnrichImages(ctx context.Context, listings []*models.Listing) (int, error) {
	visited := utils.NewURLSet()
	found := 0

	for i, l := range listings {
		if l.URL == "" || !visited.Add(l.URL) {
			continue
		}
		if err := s.pacer.Wait(ctx); err != nil {
			return found, fmt.Errorf("image pass interrupted at %d/%d: %w", i+1, len(listings), err)
		}

		markup, err := s.fetcher.Fetch(ctx, l.URL)
		if err != nil {
			if ctx.Err() != nil {
				return found, fmt.Errorf("image pass interrupted at %d/%d: %w", i+1, len(listings), ctx.Err())
			}
			s.logger.Warn("[carsensor] Detail %s skipped: %v", l.ExternalID, err)
			continue
		}

		img, ok := ExtractPrimaryImage(l.URL, markup)
		if !ok {
			s.logger.Debug("[carsensor] No primary image on %s", l.URL)
			continue
		}
		l.ImageURL = &img
		found++
	}

	s.logger.Info("[carsensor] Image pass done: %d/%d listings have a detail image", found, len(listings))
	return found, nil
}
