package service

import "testing"

const (
	uaIPhoneSafari  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/605.1.15"
	uaWindowsChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaWindowsEdge   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	uaAndroidChrome = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	uaIPadSafari    = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/605.1.15"
	uaUbuntuFirefox = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaMacSafari     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"
)

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func TestExtractAttributes_Classification(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		device  string
		browser string
		os      string
	}{
		{"iphone safari", uaIPhoneSafari, "mobile", "mobile safari", "ios"},
		{"windows chrome", uaWindowsChrome, "desktop", "chrome", "windows"},
		{"edge before chrome", uaWindowsEdge, "desktop", "edge", "windows"},
		{"android chrome", uaAndroidChrome, "mobile", "mobile chrome", "android"},
		{"ipad takes tablet", uaIPadSafari, "tablet", "mobile safari", "ios"},
		{"ubuntu firefox", uaUbuntuFirefox, "desktop", "firefox", "ubuntu"},
		{"mac safari", uaMacSafari, "desktop", "safari", "macos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := ExtractAttributes(Signals{UserAgent: tt.ua})
			if got := strOrEmpty(attrs.Device); got != tt.device {
				t.Errorf("device = %q, want %q", got, tt.device)
			}
			if got := strOrEmpty(attrs.Browser); got != tt.browser {
				t.Errorf("browser = %q, want %q", got, tt.browser)
			}
			if got := strOrEmpty(attrs.OperatingSystem); got != tt.os {
				t.Errorf("os = %q, want %q", got, tt.os)
			}
		})
	}
}

func TestExtractAttributes_EmptyUserAgent(t *testing.T) {
	attrs := ExtractAttributes(Signals{})
	if attrs.Device != nil || attrs.Browser != nil || attrs.OperatingSystem != nil {
		t.Fatalf("expected nil labels for empty user agent, got %+v", attrs)
	}
	if attrs.IsBot {
		t.Fatal("empty user agent must not classify as bot")
	}
}

func TestIsBotUserAgent(t *testing.T) {
	if !IsBotUserAgent("curl/8.4.0") {
		t.Error("curl should classify as bot")
	}
	if !IsBotUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1)") {
		t.Error("googlebot should classify as bot")
	}
	if IsBotUserAgent(uaIPhoneSafari) {
		t.Error("iphone safari should not classify as bot")
	}
}

func TestReferrerCategory(t *testing.T) {
	tests := []struct {
		referrer string
		want     string
	}{
		{"", "direct"},
		{"https://www.youtube.com/watch?v=abc", "youtube"},
		{"https://x.com/someone/status/1", "twitter"},
		{"https://www.google.co.uk/search", "google"},
		{"https://news.ycombinator.com/item?id=1", "news.ycombinator.com"},
		{"not a url", "not a url"},
	}

	for _, tt := range tests {
		if got := strOrEmpty(referrerCategory(tt.referrer)); got != tt.want {
			t.Errorf("referrerCategory(%q) = %q, want %q", tt.referrer, got, tt.want)
		}
	}
}

func TestExtractAttributes_UTMParameters(t *testing.T) {
	attrs := ExtractAttributes(Signals{
		RequestURL: "https://bio.example.com/u/alice?utm_source=newsletter&utm_campaign=launch",
	})
	if got := strOrEmpty(attrs.UTMSource); got != "newsletter" {
		t.Errorf("utm_source = %q, want %q", got, "newsletter")
	}
	if got := strOrEmpty(attrs.UTMCampaign); got != "launch" {
		t.Errorf("utm_campaign = %q, want %q", got, "launch")
	}
	if attrs.UTMMedium != nil || attrs.UTMTerm != nil || attrs.UTMContent != nil {
		t.Error("absent utm parameters must stay nil")
	}
}

func TestExtractAttributes_UTMFallsBackToReferrer(t *testing.T) {
	attrs := ExtractAttributes(Signals{
		Referrer: "https://twitter.com/post?utm_source=twitter&utm_medium=social",
	})
	if got := strOrEmpty(attrs.UTMSource); got != "twitter" {
		t.Errorf("utm_source = %q, want %q", got, "twitter")
	}
	if got := strOrEmpty(attrs.UTMMedium); got != "social" {
		t.Errorf("utm_medium = %q, want %q", got, "social")
	}
}
