package sources

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
)

const mwisForecastsURL = "https://www.mwis.org.uk/forecasts"

var mwisPDFLink = regexp.MustCompile(`(?i)href="([^"]+\.pdf)"`)

// FetchMWISLinks scrapes the Mountain Weather Information Service
// forecasts page for its latest PDF links. Failure is non-fatal; the
// briefing just omits the section content.
func FetchMWISLinks(ctx context.Context, client *http.Client, limit int) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mwisForecastsURL, nil)
	if err != nil {
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	for _, match := range mwisPDFLink.FindAllStringSubmatch(string(body), -1) {
		href := match[1]
		if !strings.Contains(strings.ToLower(href), "mwi") {
			continue
		}
		if strings.HasPrefix(href, "/") {
			href = "https://www.mwis.org.uk" + href
		}
		if seen[href] {
			continue
		}
		seen[href] = true
		links = append(links, href)
		if len(links) >= limit {
			break
		}
	}
	return links
}
