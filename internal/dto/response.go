package dto

// ── 分页请求 ──

// PaginationRequest 通用分页参数
type PaginationRequest struct {
	Page     int `form:"page"      binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// GetPage 获取页码（含默认值）
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页数量（含默认值）
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 20
	}
	return p.PageSize
}

// GetOffset 计算偏移量
func (p *PaginationRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// ── 日期区间请求 ──

// DateRangeRequest 日期区间查询参数（yyyy-MM-dd，闭区间）
type DateRangeRequest struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to"   binding:"required"`
}

// DaysRequest 未来 N 天查询参数
type DaysRequest struct {
	Days int `form:"days" binding:"omitempty,min=1,max=366"`
}

// GetDays 获取天数（含默认值）
func (r *DaysRequest) GetDays(def int) int {
	if r.Days <= 0 {
		return def
	}
	return r.Days
}
