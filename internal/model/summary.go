package model

import "math"

// Summary 综合结果的汇总数据
type Summary struct {
	Listing *ListingSummary `json:"place_summary,omitempty"`
	Ranking *RankingSummary `json:"ranking_summary,omitempty"`
}

type ListingSummary struct {
	BusinessName  string   `json:"business_name"`
	Category      string   `json:"category"`
	Completeness  int      `json:"completeness_score"`
	Grade         string   `json:"grade"`
	MissingFields []string `json:"missing_fields"`
	Strategy      Strategy `json:"strategy"`
}

type RankingSummary struct {
	TotalKeywords   int      `json:"total_keywords"`
	FirstPlaceCount int      `json:"first_place_count"`
	TopTenCount     int      `json:"top_ten_count"`
	FoundCount      int      `json:"found_count"`
	FailedCount     int      `json:"failed_count"`
	SuccessRate     float64  `json:"success_rate"`
	TopKeywords     []string `json:"top_performing_keywords"`
}

// Grade 完整度评级
func Grade(score int) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "fair"
	default:
		return "needs_improvement"
	}
}

// Summarize 根据已完成的结果生成汇总
func Summarize(results JobResults) Summary {
	var s Summary

	if l := results.Listing; l != nil {
		score := l.Completeness()
		s.Listing = &ListingSummary{
			BusinessName:  l.Name,
			Category:      l.Category,
			Completeness:  score,
			Grade:         Grade(score),
			MissingFields: l.MissingFields(),
			Strategy:      l.Strategy,
		}
	}

	if n := len(results.Rankings); n > 0 {
		rs := &RankingSummary{TotalKeywords: n, TopKeywords: []string{}}
		for _, r := range results.Rankings {
			if r.Error != "" {
				rs.FailedCount++
			}
			rank, ok := r.Rank.Get()
			if !r.Found || !ok {
				continue
			}
			rs.FoundCount++
			if rank == 1 {
				rs.FirstPlaceCount++
			}
			if rank <= 10 {
				rs.TopTenCount++
			}
			if rank <= 3 && len(rs.TopKeywords) < 3 {
				rs.TopKeywords = append(rs.TopKeywords, r.Keyword)
			}
		}
		rs.SuccessRate = math.Round(float64(rs.FoundCount)/float64(n)*1000) / 10
		s.Ranking = rs
	}

	return s
}
