package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/config"
	"github.com/qs3c/place_rank_server/internal/pkg/logger"
	"github.com/qs3c/place_rank_server/internal/pkg/oss"
)

var (
	configPath = flag.String("config", "config.yaml", "path to config file")
	dryRun     = flag.Bool("dry-run", true, "Dry run mode, don't actually delete reports")
	expireDays = flag.Int("expire-days", 30, "Days to keep archived reports")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	if !oss.Enabled(&cfg.OSS) {
		zl.Fatal("oss is not configured, nothing to clean")
	}
	client, err := oss.NewClient(&cfg.OSS)
	if err != nil {
		zl.Fatal("failed to init OSS client", zap.Error(err))
	}

	zl.Info("starting report cleanup",
		zap.Bool("dry_run", *dryRun),
		zap.Int("expire_days", *expireDays),
	)

	objects, err := client.ListReports()
	if err != nil {
		zl.Fatal("failed to list reports", zap.Error(err))
	}

	before := time.Now().Add(-time.Duration(*expireDays) * 24 * time.Hour)
	expired := oss.ExpiredReports(objects, before)

	var freed int64
	deleted := 0
	for _, obj := range expired {
		zl.Info("expired report",
			zap.String("key", obj.Key),
			zap.String("size", formatSize(obj.Size)),
			zap.Duration("age", time.Since(obj.LastModified).Round(time.Hour)),
		)
		if *dryRun {
			continue
		}
		if err := client.Delete(obj.Key); err != nil {
			zl.Warn("failed to delete report", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		deleted++
		freed += obj.Size
	}

	zl.Info("cleanup summary",
		zap.Int("total_reports", len(objects)),
		zap.Int("expired_reports", len(expired)),
		zap.Int("deleted_reports", deleted),
		zap.String("freed", formatSize(freed)),
		zap.Bool("dry_run", *dryRun),
	)
}

// formatSize 格式化文件大小
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
