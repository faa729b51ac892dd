package carsensor

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultBaseURL is the marketplace root.
	DefaultBaseURL = "https://www.carsensor.net"

	searchPath = "/usedcar/search.php"
	searchSTID = "CS210610"
)

// SearchURLs builds the result page URLs for pages 1..pages. A non-empty
// brandCode narrows the search to one maker.
func SearchURLs(base string, pages int, brandCode string) []string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if pages < 1 {
		pages = 1
	}

	urls := make([]string, 0, pages)
	for p := 1; p <= pages; p++ {
		q := url.Values{}
		q.Set("STID", searchSTID)
		q.Set("page", strconv.Itoa(p))
		if brandCode != "" {
			q.Set("BRDC", strings.ToUpper(brandCode))
		}
		urls = append(urls, base+searchPath+"?"+q.Encode())
	}
	return urls
}
