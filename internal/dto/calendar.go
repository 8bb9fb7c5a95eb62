package dto

// ── 日历导出 DTO ──

// FeedURLResponse 日历订阅链接
type FeedURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}
