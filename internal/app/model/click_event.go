package model

import "time"

// ClickEvent is one deduplicated visit-through on a profile link. Rows are
// immutable once created; the unique idempotency key is what makes two
// racing inserts of the same logical click collapse into one row.
type ClickEvent struct {
	ID     string `json:"id" gorm:"primaryKey;size:36"`
	LinkID string `json:"link_id" gorm:"size:36;not null;index:idx_click_window,priority:1"`

	// Raw request signals, kept for fingerprinting and classification only.
	IPAddress *string `json:"ip_address,omitempty" gorm:"size:64"`
	UserAgent *string `json:"user_agent,omitempty" gorm:"size:512"`

	// Classification output. Each label is nil when undetectable.
	Country         *string `json:"country,omitempty" gorm:"size:8"`
	Device          *string `json:"device,omitempty" gorm:"size:16"`
	Browser         *string `json:"browser,omitempty" gorm:"size:32"`
	OperatingSystem *string `json:"operating_system,omitempty" gorm:"size:32"`

	// Normalized referrer category ("direct", a known short label, or a
	// bare hostname), never the raw URL.
	Referrer *string `json:"referrer,omitempty" gorm:"size:255"`

	// Campaign parameters, parsed verbatim from the tracked URL.
	UTMSource   *string `json:"utm_source,omitempty" gorm:"column:utm_source;size:255"`
	UTMMedium   *string `json:"utm_medium,omitempty" gorm:"column:utm_medium;size:255"`
	UTMCampaign *string `json:"utm_campaign,omitempty" gorm:"column:utm_campaign;size:255"`
	UTMTerm     *string `json:"utm_term,omitempty" gorm:"column:utm_term;size:255"`
	UTMContent  *string `json:"utm_content,omitempty" gorm:"column:utm_content;size:255"`

	// Cookie-free pseudo-identity, the unique-visitor proxy.
	SessionFingerprint string `json:"session_fingerprint" gorm:"size:16;not null;index:idx_click_window,priority:2"`

	// At-most-once guarantee lives in this unique index.
	IdempotencyKey string `json:"idempotency_key" gorm:"size:32;not null;uniqueIndex"`

	// Bot clicks are stored for audit but excluded from default aggregates.
	IsBot bool `json:"is_bot" gorm:"not null;default:false"`

	ClickedAt time.Time `json:"clicked_at" gorm:"not null;index:idx_click_window,priority:3"`
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.tracked"
	ClickConsumerName   = "live-counter"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
