// internal/services/report_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/config"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
)

var ErrReportingDisabled = errors.New("report export is not configured")

// SyncReport is the exported snapshot of a group's sync health.
type SyncReport struct {
	GroupID     uuid.UUID                   `json:"group_id"`
	GeneratedAt time.Time                   `json:"generated_at"`
	Analytics   *GroupAnalytics             `json:"analytics"`
	Operations  []models.SyncOperation      `json:"operations"`
	Conflicts   []models.ConflictResolution `json:"conflicts"`
}

// ReportService exports group sync reports to S3. Without AWS credentials the
// service constructs with a nil client and export calls fail cleanly.
type ReportService struct {
	db         *gorm.DB
	aggregator *AggregatorService
	s3Client   s3iface.S3API
	bucket     string
}

func NewReportService(db *gorm.DB, aggregator *AggregatorService, cfg config.AWSConfig) *ReportService {
	svc := &ReportService{
		db:         db,
		aggregator: aggregator,
		bucket:     cfg.S3ReportBucket,
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" && cfg.S3ReportBucket != "" {
		sess, err := session.NewSession(&aws.Config{
			Region:      aws.String(cfg.Region),
			Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		})
		if err != nil {
			logrus.WithError(err).Warn("Failed to create AWS session, report export disabled")
		} else {
			svc.s3Client = s3.New(sess)
		}
	}

	return svc
}

// NewReportServiceWithClient injects the S3 API; used by tests.
func NewReportServiceWithClient(db *gorm.DB, aggregator *AggregatorService, client s3iface.S3API, bucket string) *ReportService {
	return &ReportService{
		db:         db,
		aggregator: aggregator,
		s3Client:   client,
		bucket:     bucket,
	}
}

// BuildSyncReport assembles the report for one group over the window.
func (s *ReportService) BuildSyncReport(groupID uuid.UUID, start, end time.Time) (*SyncReport, error) {
	analytics, err := s.aggregator.GenerateMultiStoreAnalytics(groupID, start, end)
	if err != nil {
		return nil, err
	}

	var operations []models.SyncOperation
	if err := s.db.Where("group_id = ? AND created_at BETWEEN ? AND ?", groupID, start, end).
		Order("created_at DESC").Find(&operations).Error; err != nil {
		return nil, fmt.Errorf("failed to load operations: %w", err)
	}

	var conflicts []models.ConflictResolution
	if err := s.db.Where("group_id = ? AND created_at BETWEEN ? AND ?", groupID, start, end).
		Order("created_at DESC").Find(&conflicts).Error; err != nil {
		return nil, fmt.Errorf("failed to load conflicts: %w", err)
	}

	return &SyncReport{
		GroupID:     groupID,
		GeneratedAt: time.Now(),
		Analytics:   analytics,
		Operations:  operations,
		Conflicts:   conflicts,
	}, nil
}

// ExportSyncReport writes the report as JSON to the configured bucket and
// returns the object key.
func (s *ReportService) ExportSyncReport(ctx context.Context, groupID uuid.UUID, start, end time.Time) (string, error) {
	if s.s3Client == nil {
		return "", ErrReportingDisabled
	}

	report, err := s.BuildSyncReport(groupID, start, end)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	key := fmt.Sprintf("sync-reports/%s/%s.json", groupID, report.GeneratedAt.Format("2006-01-02T15-04-05"))
	_, err = s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"group_id": groupID,
		"key":      key,
		"bytes":    len(data),
	}).Info("Sync report exported")

	return key, nil
}
