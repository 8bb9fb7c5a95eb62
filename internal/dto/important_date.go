package dto

// ── 重要日期模块 DTO ──

// OccurrenceResponse 重要日期的一次出现
type OccurrenceResponse struct {
	ID        string `json:"id"`        // sourceID:yyyy 或 sourceID:yyyy-MM-dd
	SourceID  string `json:"source_id"`
	Title     string `json:"title"`
	Kind      string `json:"kind,omitempty"`
	Date      string `json:"date"`
	Recurring bool   `json:"recurring"`
	DaysUntil *int   `json:"days_until,omitempty"`
}
