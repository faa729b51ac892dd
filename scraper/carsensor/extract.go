package carsensor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"carsensor-mirror/models"
)

// Normalizer maps site-language tokens to canonical labels.
// Unknown tokens must come back unchanged.
type Normalizer interface {
	NormalizeBrand(token string) string
	NormalizeModel(brand string, rest []string) string
	BrandFromCode(code string) (string, bool)
	NormalizeColor(token string) string
	NormalizeBodyType(token string) string
}

const (
	blockSelector  = ".cassetteMain, .cassette_list > li"
	anchorSelector = `h3 a[href*="/usedcar/detail/"]`
)

// Extractor turns search result markup into candidate listings.
type Extractor struct {
	dict Normalizer
}

// NewExtractor creates an Extractor using dict for brand and model labels.
func NewExtractor(dict Normalizer) *Extractor {
	return &Extractor{dict: dict}
}

// ExtractListing parses every listing block on a search page. Blocks that
// lack an id, brand, model or price are dropped and reported as
// *ExtractionError; the remaining blocks are unaffected.
func (e *Extractor) ExtractListing(pageURL, markup string) ([]*models.Listing, []error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, []error{&ExtractionError{PageURL: pageURL, Block: -1, Field: "document", Reason: err.Error()}}
	}

	brandOverride := ""
	if code := BrandCodeFromURL(pageURL); code != "" {
		brandOverride, _ = e.dict.BrandFromCode(code)
	}

	var (
		out  []*models.Listing
		errs []error
	)
	for i, block := range listingBlocks(doc) {
		l, err := e.extractBlock(pageURL, i, block, brandOverride)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, l)
	}
	return out, errs
}

// listingBlocks finds the result containers. When the page carries none of
// the known container classes it falls back to the nearest div around each
// detail link.
func listingBlocks(doc *goquery.Document) []*goquery.Selection {
	var blocks []*goquery.Selection
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		blocks = append(blocks, s)
	})
	if len(blocks) > 0 {
		return blocks
	}

	var nodes []*goquery.Selection
	doc.Find(anchorSelector).Each(func(_ int, a *goquery.Selection) {
		div := a.Closest("div")
		if div.Length() == 0 {
			return
		}
		for _, prev := range nodes {
			if prev.IsSelection(div) {
				return
			}
		}
		nodes = append(nodes, div)
	})
	return nodes
}

func (e *Extractor) extractBlock(pageURL string, idx int, block *goquery.Selection, brandOverride string) (l *models.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			l = nil
			err = &ExtractionError{PageURL: pageURL, Block: idx, Field: "block", Reason: fmt.Sprint(r)}
		}
	}()

	fail := func(field, reason string) (*models.Listing, error) {
		return nil, &ExtractionError{PageURL: pageURL, Block: idx, Field: field, Reason: reason}
	}

	href := firstOf(block, detailLinkStrategies)
	externalID, ok := extractID(href)
	if !ok {
		return fail("external_id", "no detail link")
	}

	brand, model := e.brandAndModel(block)
	if brandOverride != "" {
		brand = brandOverride
	}
	if brand == "" {
		return fail("brand", "not found")
	}
	if model == "" {
		return fail("model", "not found")
	}

	price, ok := priceRule.resolve(block)
	if !ok {
		return fail("price", "missing or out of range")
	}

	year, _ := yearRule.resolve(block)
	mileage, _ := mileageRule.resolve(block)
	transmission, _ := transmissionRule.resolve(block)
	fuel, _ := fuelRule.resolve(block)
	bodyType, _ := bodyTypeRule.resolve(block)
	color, _ := colorRule.resolve(block)
	location, _ := locationRule.resolve(block)
	description, _ := descriptionRule.resolve(block)

	listing := &models.Listing{
		ExternalID:   externalID,
		Brand:        brand,
		Model:        model,
		Year:         year,
		Price:        price,
		Mileage:      mileage,
		Transmission: transmission,
		FuelType:     fuel,
		BodyType:     e.dict.NormalizeBodyType(bodyType),
		Color:        e.dict.NormalizeColor(color),
		Location:     location,
		Description:  description,
		URL:          resolveURL(pageURL, href),
	}
	if src := firstOf(block, listingImageStrategies); src != "" {
		if img := resolveURL(pageURL, src); img != "" {
			listing.ImageURL = &img
		}
	}
	return listing, nil
}

// brandAndModel prefers dedicated maker/model elements and otherwise splits
// the title, whose first token is the maker.
func (e *Extractor) brandAndModel(block *goquery.Selection) (string, string) {
	if maker, ok := makerRule.resolve(block); ok {
		brand := e.dict.NormalizeBrand(maker)
		if m, ok := modelRule.resolve(block); ok {
			return brand, e.dict.NormalizeModel(brand, strings.Fields(m))
		}
	}

	title, ok := titleRule.resolve(block)
	if !ok {
		return "", ""
	}
	tokens := strings.Fields(title)
	if len(tokens) < 2 {
		return e.dict.NormalizeBrand(tokens[0]), ""
	}
	brand := e.dict.NormalizeBrand(tokens[0])
	return brand, e.dict.NormalizeModel(brand, tokens[1:])
}

func firstOf(block *goquery.Selection, strategies []strategy) string {
	for _, s := range strategies {
		if v, ok := s(block); ok {
			return v
		}
	}
	return ""
}

// BrandCodeFromURL returns the BRDC query value of a search URL, if any.
func BrandCodeFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(u.Query().Get("BRDC")))
}
