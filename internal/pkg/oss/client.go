package oss

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/place_rank_server/config"
)

// Client 分析报告归档
type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

// Enabled 是否配置了 OSS
func Enabled(cfg *config.OSSConfig) bool {
	return cfg.Endpoint != "" && cfg.BucketName != ""
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

const reportPrefix = "reports/"

// ReportObject 已归档的报告对象
type ReportObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ReportKey 报告的对象路径
func ReportKey(jobID string, at time.Time) string {
	return fmt.Sprintf("%s%s/%d.json", reportPrefix, jobID, at.Unix())
}

// ExpiredReports 筛出 before 之前最后修改的报告
func ExpiredReports(objects []ReportObject, before time.Time) []ReportObject {
	var expired []ReportObject
	for _, obj := range objects {
		if obj.LastModified.Before(before) {
			expired = append(expired, obj)
		}
	}
	return expired
}

// ListReports 分页列出报告目录下的全部对象
func (c *Client) ListReports() ([]ReportObject, error) {
	var objects []ReportObject
	marker := ""
	for {
		result, err := c.bucket.ListObjects(oss.Prefix(reportPrefix), oss.Marker(marker))
		if err != nil {
			return nil, fmt.Errorf("failed to list reports: %w", err)
		}
		for _, obj := range result.Objects {
			objects = append(objects, ReportObject{
				Key:          obj.Key,
				Size:         obj.Size,
				LastModified: obj.LastModified,
			})
		}
		if !result.IsTruncated {
			return objects, nil
		}
		marker = result.NextMarker
	}
}

// UploadReport 上传任务结果 JSON，返回访问 URL
func (c *Client) UploadReport(jobID string, data []byte) (string, error) {
	objectKey := ReportKey(jobID, time.Now())

	err := c.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType("application/json"))
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	return c.GetURL(objectKey), nil
}

// DeleteReport 按 URL 删除已归档的报告
func (c *Client) DeleteReport(url string) error {
	return c.Delete(c.ExtractObjectKey(url))
}

// Delete 删除文件
func (c *Client) Delete(objectKey string) error {
	err := c.bucket.DeleteObject(objectKey)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetURL 获取文件访问 URL
func (c *Client) GetURL(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.%s/%s", c.bucketName, c.client.Config.Endpoint, objectKey)
}

// ExtractObjectKey 从 URL 中提取 object key
func (c *Client) ExtractObjectKey(url string) string {
	// 处理 CDN 域名
	if c.cdnDomain != "" {
		prefix := fmt.Sprintf("https://%s/", c.cdnDomain)
		if strings.HasPrefix(url, prefix) {
			return url[len(prefix):]
		}
	}

	// 处理标准 OSS URL: https://bucket-name.endpoint/path/to/object
	parts := strings.Split(url, "/")
	if len(parts) >= 4 {
		return strings.Join(parts[3:], "/")
	}

	return path.Base(url)
}
