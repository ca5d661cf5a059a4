package service

import (
	"net/url"
	"strings"
)

// Signals are the raw, untrusted request inputs the extractor reads.
type Signals struct {
	UserAgent  string
	Referrer   string
	RequestURL string
	Country    string
}

// Attributes is the classification output. Every field degrades to nil (or
// "other") independently; extraction never fails.
type Attributes struct {
	Device          *string
	Browser         *string
	OperatingSystem *string
	Referrer        *string
	Country         *string
	UTMSource       *string
	UTMMedium       *string
	UTMCampaign     *string
	UTMTerm         *string
	UTMContent      *string
	IsBot           bool
}

var botTokens = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget", "python", "java",
	"go-http", "httpie", "postman", "insomnia", "headless", "phantom", "selenium",
	"webdriver", "puppeteer", "playwright", "googlebot", "bingbot", "slurp",
	"duckduckbot", "baiduspider", "yandexbot", "sogou", "exabot", "facebot",
	"ia_archiver", "archive.org_bot", "msnbot", "ahrefs", "semrush", "mj12bot",
}

var tabletTokens = []string{"tablet", "ipad", "playbook", "silk"}

var mobileTokens = []string{
	"mobile", "android", "iphone", "ipod", "blackberry", "iemobile", "opera mini",
}

// ExtractAttributes classifies the request signals with fixed,
// case-insensitive substring rules.
func ExtractAttributes(sig Signals) Attributes {
	utmURL := sig.RequestURL
	if utmURL == "" {
		utmURL = sig.Referrer
	}
	utm := parseUTMParameters(utmURL)

	return Attributes{
		Device:          detectDevice(sig.UserAgent),
		Browser:         detectBrowser(sig.UserAgent),
		OperatingSystem: detectOperatingSystem(sig.UserAgent),
		Referrer:        referrerCategory(sig.Referrer),
		Country:         nilIfEmpty(sig.Country),
		UTMSource:       utm["utm_source"],
		UTMMedium:       utm["utm_medium"],
		UTMCampaign:     utm["utm_campaign"],
		UTMTerm:         utm["utm_term"],
		UTMContent:      utm["utm_content"],
		IsBot:           IsBotUserAgent(sig.UserAgent),
	}
}

// IsBotUserAgent reports whether the user agent matches the known bot and
// automation token list. Heuristic only; it never blocks ingestion.
func IsBotUserAgent(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, token := range botTokens {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return false
}

// detectDevice picks tablet over mobile when explicit tablet tokens are
// present, otherwise mobile over desktop.
func detectDevice(userAgent string) *string {
	if userAgent == "" {
		return nil
	}
	ua := strings.ToLower(userAgent)
	for _, token := range tabletTokens {
		if strings.Contains(ua, token) {
			return label("tablet")
		}
	}
	for _, token := range mobileTokens {
		if strings.Contains(ua, token) {
			return label("mobile")
		}
	}
	return label("desktop")
}

// detectBrowser applies ordered precedence checks: Edge ships a Chrome
// token and Chrome ships a Safari token, so order matters.
func detectBrowser(userAgent string) *string {
	if userAgent == "" {
		return nil
	}
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "edg/"):
		return label("edge")
	case strings.Contains(ua, "chrome/"):
		if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") {
			return label("mobile chrome")
		}
		return label("chrome")
	case strings.Contains(ua, "firefox/"):
		return label("firefox")
	case strings.Contains(ua, "safari/"):
		if strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") {
			return label("mobile safari")
		}
		return label("safari")
	case strings.Contains(ua, "opera/") || strings.Contains(ua, "opr/"):
		return label("opera")
	case strings.Contains(ua, "msie") || strings.Contains(ua, "trident/"):
		return label("ie")
	case strings.Contains(ua, "twitter"):
		return label("twitter")
	case strings.Contains(ua, "linkedin"):
		return label("linkedin")
	case strings.Contains(ua, "facebook"):
		return label("facebook")
	}
	return label("other")
}

func detectOperatingSystem(userAgent string) *string {
	if userAgent == "" {
		return nil
	}
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "windows"):
		// All NT versions collapse to one label.
		return label("windows")
	case strings.Contains(ua, "macintosh") || strings.Contains(ua, "mac os x"):
		return label("macos")
	case strings.Contains(ua, "android"):
		return label("android")
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ipod"):
		return label("ios")
	case strings.Contains(ua, "cros"):
		return label("chrome os")
	case strings.Contains(ua, "linux"):
		if strings.Contains(ua, "ubuntu") {
			return label("ubuntu")
		}
		return label("linux")
	}
	return label("other")
}

// referrerCategory maps the referrer to a short canonical label, the bare
// hostname for unknown hosts, or "direct" when absent. Unparsable values
// pass through untouched.
func referrerCategory(referrer string) *string {
	if referrer == "" {
		return label("direct")
	}

	parsed, err := url.Parse(referrer)
	if err != nil || parsed.Hostname() == "" {
		return label(referrer)
	}
	hostname := strings.ToLower(parsed.Hostname())

	switch {
	case strings.Contains(hostname, "twitter.com") || strings.Contains(hostname, "x.com"):
		return label("twitter")
	case strings.Contains(hostname, "linkedin.com"):
		return label("linkedin")
	case strings.Contains(hostname, "facebook.com"):
		return label("facebook")
	case strings.Contains(hostname, "youtube.com") || strings.Contains(hostname, "youtu.be"):
		return label("youtube")
	case strings.Contains(hostname, "google.com") || strings.Contains(hostname, "google.co"):
		return label("google")
	case strings.Contains(hostname, "bing.com"):
		return label("bing")
	case strings.Contains(hostname, "reddit.com"):
		return label("reddit")
	case strings.Contains(hostname, "instagram.com"):
		return label("instagram")
	}
	return label(hostname)
}

func parseUTMParameters(rawURL string) map[string]*string {
	keys := []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}
	result := make(map[string]*string, len(keys))

	if rawURL == "" {
		return result
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return result
	}

	query := parsed.Query()
	for _, key := range keys {
		if value := query.Get(key); value != "" {
			result[key] = label(value)
		}
	}
	return result
}

func label(s string) *string {
	return &s
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
