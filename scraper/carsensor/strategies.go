package carsensor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// strategy pulls one raw value out of a listing block. Strategies are pure
// and know nothing about the field they serve.
type strategy func(block *goquery.Selection) (string, bool)

// fieldRule tries its strategies in order and keeps the first raw value
// that also parses.
type fieldRule[T any] struct {
	name       string
	strategies []strategy
	parse      func(string) (T, bool)
}

func (r fieldRule[T]) resolve(block *goquery.Selection) (T, bool) {
	for _, s := range r.strategies {
		raw, ok := s(block)
		if !ok {
			continue
		}
		if v, ok := r.parse(raw); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// selectText returns the trimmed text of the first non-empty match.
func selectText(selector string) strategy {
	return func(block *goquery.Selection) (string, bool) {
		var out string
		block.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = normaliseText(s.Text())
			return out == ""
		})
		return out, out != ""
	}
}

// selectAttr returns the first non-empty attribute among attrs on the first match.
func selectAttr(selector string, attrs ...string) strategy {
	return func(block *goquery.Selection) (string, bool) {
		sel := block.Find(selector).First()
		for _, a := range attrs {
			if v, ok := sel.Attr(a); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}
}

// labelValue reads definition-list and table pairs such as <dt>年式</dt><dd>2025(R07)年</dd>.
// A label cell equal to label wins over one that only contains it.
func labelValue(label string) strategy {
	return func(block *goquery.Selection) (string, bool) {
		if v, ok := labelCell(block, func(text string) bool { return text == label }); ok {
			return v, true
		}
		return labelCell(block, func(text string) bool { return strings.Contains(text, label) })
	}
}

// exactLabel is labelValue without the substring fallback, for short
// labels like 色 that also occur inside other labels (内装色).
func exactLabel(label string) strategy {
	return func(block *goquery.Selection) (string, bool) {
		return labelCell(block, func(text string) bool { return text == label })
	}
}

func labelCell(block *goquery.Selection, match func(string) bool) (string, bool) {
	var out string
	block.Find("dt, th").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !match(normaliseText(s.Text())) {
			return true
		}
		out = normaliseText(s.NextFiltered("dd, td").Text())
		return out == ""
	})
	return out, out != ""
}

// nthItem returns the text of the idx-th element matched by selector.
func nthItem(selector string, idx int) strategy {
	return func(block *goquery.Selection) (string, bool) {
		items := block.Find(selector)
		if idx >= items.Length() {
			return "", false
		}
		out := normaliseText(items.Eq(idx).Text())
		return out, out != ""
	}
}

// textMatch runs re over the whole block text and returns the full match.
func textMatch(re *regexp.Regexp) strategy {
	return func(block *goquery.Selection) (string, bool) {
		m := re.FindString(normaliseText(block.Text()))
		return m, m != ""
	}
}

func keepText(s string) (string, bool) {
	s = normaliseText(s)
	return s, s != ""
}

var (
	totalPriceRegexp  = regexp.MustCompile(`支払総額[^0-9０-９]{0,10}[0-9０-９][0-9０-９,.．]*\s*万円?`)
	basePriceRegexp   = regexp.MustCompile(`車両本体価格[^0-9０-９]{0,10}[0-9０-９][0-9０-９,.．]*\s*万円?`)
	anyPriceRegexp    = regexp.MustCompile(`[0-9０-９][0-9０-９,.．]*\s*万円`)
	mileageTextRegexp = regexp.MustCompile(`(?i)[0-9０-９][0-9０-９,.．]*\s*万?\s*km`)
	eraYearRegexp     = regexp.MustCompile(`(?:19|20)\d{2}\s*\([HRS]\d{1,2}\)\s*年`)
	transTextRegexp   = regexp.MustCompile(`(?:CVT|[0-9]?MT|フロアAT|インパネAT|コラムAT|\bAT\b)`)
	fuelTextRegexp    = regexp.MustCompile(`(?:ハイブリッド|ディーゼル|ガソリン|電気自動車)`)
	prefectureRegexp  = regexp.MustCompile(`(?:北海道|東京都|(?:京都|大阪)府|\p{Han}{2,3}県)`)
)

var (
	detailLinkStrategies = []strategy{
		selectAttr(`a[href*="/usedcar/detail/"]`, "href"),
		selectAttr("h3 a, h2 a, .cassetteMain__title a", "href"),
		selectAttr("a", "href"),
	}

	titleRule = fieldRule[string]{
		name: "title",
		strategies: []strategy{
			selectText(".cassetteMain__title a"),
			selectText(`h3 a[href*="/usedcar/detail/"]`),
			selectText("h2, h3, .title"),
		},
		parse: keepText,
	}

	makerRule = fieldRule[string]{
		name:       "brand",
		strategies: []strategy{selectText(".brand, .maker, .carName")},
		parse:      keepText,
	}

	modelRule = fieldRule[string]{
		name:       "model",
		strategies: []strategy{selectText(".model, .carModel")},
		parse:      keepText,
	}

	priceRule = fieldRule[int64]{
		name: "price",
		strategies: []strategy{
			selectText(".totalPrice, .priceArea, .price"),
			labelValue("支払総額"),
			labelValue("車両本体価格"),
			textMatch(totalPriceRegexp),
			textMatch(basePriceRegexp),
			textMatch(anyPriceRegexp),
		},
		parse: parsePrice,
	}

	yearRule = fieldRule[int]{
		name: "year",
		strategies: []strategy{
			selectText(".year, .model-year"),
			labelValue("年式"),
			textMatch(eraYearRegexp),
		},
		parse: parseYear,
	}

	mileageRule = fieldRule[int]{
		name: "mileage",
		strategies: []strategy{
			selectText(".mileage, .distance"),
			labelValue("走行距離"),
			textMatch(mileageTextRegexp),
		},
		parse: parseMileage,
	}

	transmissionRule = fieldRule[string]{
		name: "transmission",
		strategies: []strategy{
			selectText(".transmission"),
			labelValue("ミッション"),
			labelValue("変速機"),
			textMatch(transTextRegexp),
		},
		parse: parseTransmission,
	}

	fuelRule = fieldRule[string]{
		name: "fuel_type",
		strategies: []strategy{
			selectText(".fuel"),
			labelValue("燃料"),
			labelValue("エンジン種別"),
			textMatch(fuelTextRegexp),
		},
		parse: parseFuelType,
	}

	bodyTypeRule = fieldRule[string]{
		name: "body_type",
		strategies: []strategy{
			selectText(".bodyType, .carType"),
			labelValue("ボディタイプ"),
			nthItem("ul li", 0),
		},
		parse: keepText,
	}

	colorRule = fieldRule[string]{
		name: "color",
		strategies: []strategy{
			selectText(".color, .bodyColor"),
			labelValue("ボディカラー"),
			labelValue("外装色"),
			exactLabel("色"),
			nthItem("ul li", 1),
		},
		parse: keepText,
	}

	locationRule = fieldRule[string]{
		name: "location",
		strategies: []strategy{
			selectText(".location, .shopArea, .prefecture"),
			labelValue("地域"),
			textMatch(prefectureRegexp),
		},
		parse: keepText,
	}

	descriptionRule = fieldRule[string]{
		name:       "description",
		strategies: []strategy{selectText(".description, .comment, .cassetteMain__subText")},
		parse:      keepText,
	}

	listingImageStrategies = []strategy{
		imageAttr("img"),
	}
)

// imageAttr picks the first usable image source, preferring the lazy-load
// attributes over src, which usually holds a placeholder.
func imageAttr(selector string) strategy {
	return func(block *goquery.Selection) (string, bool) {
		var out string
		block.Find(selector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			for _, attr := range []string{"data-original", "data-src", "src"} {
				v, ok := img.Attr(attr)
				v = strings.TrimSpace(v)
				if !ok || v == "" || isPlaceholder(v) {
					continue
				}
				out = v
				return false
			}
			return true
		})
		return out, out != ""
	}
}

var placeholderMarkers = []string{"noimage", "no_image", "blank", "spacer", "loading", "dummy", "data:image"}

func isPlaceholder(src string) bool {
	s := strings.ToLower(src)
	for _, m := range placeholderMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
