package carsensor

import (
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// detailImageStrategies run against the whole detail document, in order.
var detailImageStrategies = []strategy{
	galleryImage,
	metaImage,
	widestImage,
}

// ExtractPrimaryImage picks the main photo from a detail page.
// pageURL is used to resolve relative sources.
func ExtractPrimaryImage(pageURL, markup string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", false
	}
	src := firstOf(doc.Selection, detailImageStrategies)
	if src == "" {
		return "", false
	}
	img := resolveURL(pageURL, src)
	return img, img != ""
}

func galleryImage(doc *goquery.Selection) (string, bool) {
	return imageAttr(".detailSlider__mainImg, #js-mainPhoto img")(doc)
}

func metaImage(doc *goquery.Selection) (string, bool) {
	return selectAttr(`meta[property="og:image"], meta[name="twitter:image"]`, "content")(doc)
}

// widestImage falls back to the largest declared width, skipping logos and icons.
func widestImage(doc *goquery.Selection) (string, bool) {
	var (
		best  string
		bestW int
	)
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" || isPlaceholder(src) {
			return
		}
		name := strings.ToLower(path.Base(src))
		if strings.Contains(name, "logo") || strings.Contains(name, "icon") {
			return
		}
		w, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(img.AttrOr("width", "")), "px"))
		if err != nil || w <= 0 {
			return
		}
		if w > bestW {
			best, bestW = src, w
		}
	})
	return best, best != ""
}
