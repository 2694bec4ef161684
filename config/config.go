package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Redis      RedisConfig      `mapstructure:"redis"`
	OSS        OSSConfig        `mapstructure:"oss"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// RedisConfig Host 为空时不启用 Redis，进度只推送给本进程的 WebSocket
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type JobsConfig struct {
	MaxWorkers           int `mapstructure:"max_workers"`
	QueueSize            int `mapstructure:"queue_size"`
	DefaultConcurrency   int `mapstructure:"default_concurrency"`
	RetentionMinutes     int `mapstructure:"retention_minutes"`      // 终态任务保留时间
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"` // 过期任务清理间隔
}

type BrowserConfig struct {
	Headless            bool   `mapstructure:"headless"`
	ExecutablePath      string `mapstructure:"executable_path"`
	LaunchAttempts      int    `mapstructure:"launch_attempts"`
	NavigationTimeoutMs int    `mapstructure:"navigation_timeout_ms"`
}

type ExtractionConfig struct {
	FrameTimeoutMs      int              `mapstructure:"frame_timeout_ms"`
	FrameReadyTimeoutMs int              `mapstructure:"frame_ready_timeout_ms"`
	FieldTimeoutMs      int              `mapstructure:"field_timeout_ms"`
	SectionTimeoutMs    int              `mapstructure:"section_timeout_ms"`
	Selectors           ListingSelectors `mapstructure:"selectors"`
}

// ListingSelectors 业务详情页的定位器集合
type ListingSelectors struct {
	Frame          string `mapstructure:"frame"`
	FrameReady     string `mapstructure:"frame_ready"`
	MainContent    string `mapstructure:"main_content"`
	Name           string `mapstructure:"name"`
	Category       string `mapstructure:"category"`
	DirectName     string `mapstructure:"direct_name"`
	DirectCategory string `mapstructure:"direct_category"`
	Address        string `mapstructure:"address"`
	Phone          string `mapstructure:"phone"`
	Hours          string `mapstructure:"hours"`
	Rating         string `mapstructure:"rating"`
	ReviewCount    string `mapstructure:"review_count"`
	Description    string `mapstructure:"description"`
	Facilities     string `mapstructure:"facilities"`
	FacilityItem   string `mapstructure:"facility_item"`
	Programs       string `mapstructure:"programs"`
	ProgramItem    string `mapstructure:"program_item"`
	Images         string `mapstructure:"images"`
	ImageItem      string `mapstructure:"image_item"`
	Coupons        string `mapstructure:"coupons"`
	CouponItem     string `mapstructure:"coupon_item"`
	Keywords       string `mapstructure:"keywords"`
	KeywordItem    string `mapstructure:"keyword_item"`
	Pricing        string `mapstructure:"pricing"`
	PricingItem    string `mapstructure:"pricing_item"`
}

// RankingConfig 搜索结果页配置，SearchURL 支持 {query} {page} {lat} {lng} 占位符，
// 不含 {lat} 时坐标以查询参数附加
type RankingConfig struct {
	SearchURL       string `mapstructure:"search_url"`
	SearchFrame     string `mapstructure:"search_frame"`
	ResultList      string `mapstructure:"result_list"`
	ResultItem      string `mapstructure:"result_item"`
	ResultName      string `mapstructure:"result_name"`
	ResultCount     string `mapstructure:"result_count"`
	FrameTimeoutMs  int    `mapstructure:"frame_timeout_ms"`
	ListTimeoutMs   int    `mapstructure:"list_timeout_ms"`
	NameTimeoutMs   int    `mapstructure:"name_timeout_ms"`
	PageTimeoutMs   int    `mapstructure:"page_timeout_ms"`
	DefaultMaxPages int    `mapstructure:"default_max_pages"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization"})

	v.SetDefault("jobs.max_workers", 4)
	v.SetDefault("jobs.queue_size", 100)
	v.SetDefault("jobs.default_concurrency", 3)
	v.SetDefault("jobs.retention_minutes", 60)
	v.SetDefault("jobs.sweep_interval_minutes", 5)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.launch_attempts", 3)
	v.SetDefault("browser.navigation_timeout_ms", 90000)

	v.SetDefault("extraction.frame_timeout_ms", 10000)
	v.SetDefault("extraction.frame_ready_timeout_ms", 20000)
	v.SetDefault("extraction.field_timeout_ms", 3000)
	v.SetDefault("extraction.section_timeout_ms", 3000)

	sel := DefaultListingSelectors()
	v.SetDefault("extraction.selectors.frame", sel.Frame)
	v.SetDefault("extraction.selectors.frame_ready", sel.FrameReady)
	v.SetDefault("extraction.selectors.main_content", sel.MainContent)
	v.SetDefault("extraction.selectors.name", sel.Name)
	v.SetDefault("extraction.selectors.category", sel.Category)
	v.SetDefault("extraction.selectors.direct_name", sel.DirectName)
	v.SetDefault("extraction.selectors.direct_category", sel.DirectCategory)
	v.SetDefault("extraction.selectors.address", sel.Address)
	v.SetDefault("extraction.selectors.phone", sel.Phone)
	v.SetDefault("extraction.selectors.hours", sel.Hours)
	v.SetDefault("extraction.selectors.rating", sel.Rating)
	v.SetDefault("extraction.selectors.review_count", sel.ReviewCount)
	v.SetDefault("extraction.selectors.description", sel.Description)
	v.SetDefault("extraction.selectors.facilities", sel.Facilities)
	v.SetDefault("extraction.selectors.facility_item", sel.FacilityItem)
	v.SetDefault("extraction.selectors.programs", sel.Programs)
	v.SetDefault("extraction.selectors.program_item", sel.ProgramItem)
	v.SetDefault("extraction.selectors.images", sel.Images)
	v.SetDefault("extraction.selectors.image_item", sel.ImageItem)
	v.SetDefault("extraction.selectors.coupons", sel.Coupons)
	v.SetDefault("extraction.selectors.coupon_item", sel.CouponItem)
	v.SetDefault("extraction.selectors.keywords", sel.Keywords)
	v.SetDefault("extraction.selectors.keyword_item", sel.KeywordItem)
	v.SetDefault("extraction.selectors.pricing", sel.Pricing)
	v.SetDefault("extraction.selectors.pricing_item", sel.PricingItem)

	rk := DefaultRankingConfig()
	v.SetDefault("ranking.search_url", rk.SearchURL)
	v.SetDefault("ranking.search_frame", rk.SearchFrame)
	v.SetDefault("ranking.result_list", rk.ResultList)
	v.SetDefault("ranking.result_item", rk.ResultItem)
	v.SetDefault("ranking.result_name", rk.ResultName)
	v.SetDefault("ranking.result_count", rk.ResultCount)
	v.SetDefault("ranking.frame_timeout_ms", rk.FrameTimeoutMs)
	v.SetDefault("ranking.list_timeout_ms", rk.ListTimeoutMs)
	v.SetDefault("ranking.name_timeout_ms", rk.NameTimeoutMs)
	v.SetDefault("ranking.page_timeout_ms", rk.PageTimeoutMs)
	v.SetDefault("ranking.default_max_pages", rk.DefaultMaxPages)
}

// DefaultListingSelectors Naver Place 详情页的默认定位器
func DefaultListingSelectors() ListingSelectors {
	return ListingSelectors{
		Frame:          "#entryIframe",
		FrameReady:     "#_title",
		MainContent:    "#app-root > div > div > div:nth-child(6)",
		Name:           "#_title > div > span.GHAhO",
		Category:       "#_title > div > span.lnJFt",
		DirectName:     "h1",
		DirectCategory: ".category",
		Address:        ".LDgIH",
		Phone:          ".xlx7Q",
		Hours:          ".A_cdD",
		Rating:         ".PXMot.LXIwF > em",
		ReviewCount:    ".PXMot > a",
		Description:    ".zPfVt",
		Facilities:     ".Uv6Eo",
		FacilityItem:   "span",
		Programs:       ".place_section.program",
		ProgramItem:    "li",
		Images:         ".place_section.photo",
		ImageItem:      ".tab_name",
		Coupons:        ".place_section.coupon",
		CouponItem:     ".coupon_title",
		Keywords:       ".place_section.keyword",
		KeywordItem:    "span",
		Pricing:        ".tXI2c",
		PricingItem:    "li",
	}
}

// DefaultRankingConfig 地图搜索结果页的默认配置
func DefaultRankingConfig() RankingConfig {
	return RankingConfig{
		SearchURL:       "https://map.naver.com/p/search/{query}?page={page}",
		SearchFrame:     "#searchIframe",
		ResultList:      "#_pcmap_list_scroll_container",
		ResultItem:      "li.UEzoS",
		ResultName:      ".TYaxT",
		ResultCount:     ".place_section_count",
		FrameTimeoutMs:  10000,
		ListTimeoutMs:   10000,
		NameTimeoutMs:   1000,
		PageTimeoutMs:   60000,
		DefaultMaxPages: 3,
	}
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
