package model

import "github.com/samber/mo"

// RankingResult 单个关键词的排名结果；Found 为 false 时 Rank 必须缺省
type RankingResult struct {
	Position       int            `json:"-"` // 关键词在提交列表中的下标
	Keyword        string         `json:"keyword"`
	TargetBusiness string         `json:"target_business"`
	Found          bool           `json:"found"`
	Rank           mo.Option[int] `json:"rank"`
	TotalResults   int            `json:"total_results"`
	PagesChecked   int            `json:"pages_checked"`
	ProcessingTime float64        `json:"processing_time"`
	Error          string         `json:"error,omitempty"`
}

// MarkFound 记录命中位置，保证 Found 与 Rank 一致
func (r *RankingResult) MarkFound(rank int) {
	r.Found = true
	r.Rank = mo.Some(rank)
}

// MarkNotFound 未命中或失败
func (r *RankingResult) MarkNotFound() {
	r.Found = false
	r.Rank = mo.None[int]()
}

// RankValue 未命中时返回 0
func (r RankingResult) RankValue() int {
	return r.Rank.OrEmpty()
}
