package fetch

import (
	"strings"
	"time"

	"github.com/ezetheking/tube-snatch/internal/tube"
)

const (
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	androidUserAgent = "com.google.android.youtube/17.36.4 (Linux; U; Android 12) gzip"
)

// DefaultEarlyStopThreshold bounds worst-case fetch latency on very large
// channels. Empirically tuned, overridable via config.
const DefaultEarlyStopThreshold = 50

// DefaultCatalog returns the ordered strategy list, most-likely-to-succeed-
// at-scale first. Timeouts and entry caps are tuned for channels with
// thousands of uploads; later strategies trade coverage for speed.
func DefaultCatalog() []tube.StrategyConfig {
	return []tube.StrategyConfig{
		{
			Name: "mega-channel",
			Profile: tube.ClientProfile{
				UserAgent:     desktopUserAgent,
				PlayerClients: []string{"web"},
				PlayerSkip:    []string{"configs"},
				ForceTab:      true,
			},
			Timeout:    40 * time.Second,
			MaxEntries: 2000,
		},
		{
			Name: "web-fast",
			Profile: tube.ClientProfile{
				UserAgent:     desktopUserAgent,
				PlayerClients: []string{"web"},
				PlayerSkip:    []string{"configs"},
			},
			Timeout:    20 * time.Second,
			MaxEntries: 1500,
		},
		{
			Name: "android",
			Profile: tube.ClientProfile{
				UserAgent:     androidUserAgent,
				PlayerClients: []string{"android"},
			},
			Timeout:    15 * time.Second,
			MaxEntries: 1800,
		},
		{
			Name: "combined-clients",
			Profile: tube.ClientProfile{
				UserAgent:     desktopUserAgent,
				PlayerClients: []string{"web", "android"},
				PlayerSkip:    []string{"configs", "webpage"},
				ForceTab:      true,
			},
			Timeout:    25 * time.Second,
			MaxEntries: 1800,
		},
		{
			Name:       "basic",
			Profile:    tube.ClientProfile{},
			Timeout:    12 * time.Second,
			MaxEntries: 1800,
		},
	}
}

// knownSuffixes are category tails clients paste along with channel URLs.
var knownSuffixes = []string{"/videos", "/shorts", "/streams", "/live"}

// NormalizeLocator strips a single trailing category suffix so variant
// construction starts from the bare channel address.
func NormalizeLocator(raw string) string {
	trimmed := strings.TrimRight(raw, "/")
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(trimmed, suffix) {
			return strings.TrimSuffix(trimmed, suffix)
		}
	}
	return trimmed
}

// LocatorVariants returns the candidate locators for a category in priority
// order. The first variant is the listing most likely to carry the wanted
// category; the bare locator is kept as a fallback because some channel URL
// forms 404 on tab suffixes.
func LocatorVariants(locator string, category tube.Category) []string {
	base := strings.TrimRight(locator, "/")
	switch category {
	case tube.CategoryShorts:
		return []string{base + "/shorts", base, base + "/videos"}
	case tube.CategoryStreams:
		return []string{base + "/streams", base + "/live", base}
	default:
		return []string{base + "/videos", base, base + "/featured"}
	}
}
