package model

import "strings"

// NotAvailable 字段无法抽取时的占位值，区别于"抽取成功但为空"
const NotAvailable = "not available"

// Strategy 抽取时实际使用的文档结构
type Strategy string

const (
	StrategyFrame  Strategy = "frame"
	StrategyDirect Strategy = "direct"
)

// ListingRecord 一个业务详情页的结构化抽取结果，所有字段始终存在
type ListingRecord struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Address     string   `json:"address"`
	Phone       string   `json:"phone"`
	Hours       string   `json:"hours"`
	Rating      string   `json:"rating"`
	ReviewCount string   `json:"review_count"`
	Description string   `json:"description"`
	Facilities  []string `json:"facilities"`
	Programs    []string `json:"programs"`
	Images      []string `json:"images"`
	Coupons     []string `json:"coupons"`
	Keywords    []string `json:"keywords"`
	Pricing     []string `json:"pricing"`
	Strategy    Strategy `json:"strategy"`
	SourceURL   string   `json:"source_url"`
}

// Unavailable 列表字段的占位值
func Unavailable() []string {
	return []string{NotAvailable}
}

// SplitList 把分节抽取的拼接文本还原为列表，占位值保持为占位列表
func SplitList(text, sep string) []string {
	if text == "" || text == NotAvailable {
		return Unavailable()
	}
	parts := strings.Split(text, sep)
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	if len(items) == 0 {
		return Unavailable()
	}
	return items
}

// IsAvailable 标量字段是否抽取成功
func IsAvailable(value string) bool {
	return value != "" && value != NotAvailable
}

// ListAvailable 列表字段是否抽取成功
func ListAvailable(items []string) bool {
	return len(items) > 0 && !(len(items) == 1 && items[0] == NotAvailable)
}

func (l *ListingRecord) Clone() *ListingRecord {
	if l == nil {
		return nil
	}
	c := *l
	c.Facilities = append([]string(nil), l.Facilities...)
	c.Programs = append([]string(nil), l.Programs...)
	c.Images = append([]string(nil), l.Images...)
	c.Coupons = append([]string(nil), l.Coupons...)
	c.Keywords = append([]string(nil), l.Keywords...)
	c.Pricing = append([]string(nil), l.Pricing...)
	return &c
}

// Completeness 已抽取字段占全部字段的百分比
func (l *ListingRecord) Completeness() int {
	scalars := []string{l.Name, l.Category, l.Address, l.Phone, l.Hours, l.Rating, l.ReviewCount, l.Description}
	lists := [][]string{l.Facilities, l.Programs, l.Images, l.Coupons, l.Keywords, l.Pricing}

	filled := 0
	for _, v := range scalars {
		if IsAvailable(v) {
			filled++
		}
	}
	for _, v := range lists {
		if ListAvailable(v) {
			filled++
		}
	}
	return filled * 100 / (len(scalars) + len(lists))
}

// MissingFields 未抽取到的字段名
func (l *ListingRecord) MissingFields() []string {
	missing := []string{}
	scalars := []struct {
		name  string
		value string
	}{
		{"name", l.Name}, {"category", l.Category}, {"address", l.Address}, {"phone", l.Phone},
		{"hours", l.Hours}, {"rating", l.Rating}, {"review_count", l.ReviewCount}, {"description", l.Description},
	}
	for _, s := range scalars {
		if !IsAvailable(s.value) {
			missing = append(missing, s.name)
		}
	}
	lists := []struct {
		name  string
		items []string
	}{
		{"facilities", l.Facilities}, {"programs", l.Programs}, {"images", l.Images},
		{"coupons", l.Coupons}, {"keywords", l.Keywords}, {"pricing", l.Pricing},
	}
	for _, s := range lists {
		if !ListAvailable(s.items) {
			missing = append(missing, s.name)
		}
	}
	return missing
}
