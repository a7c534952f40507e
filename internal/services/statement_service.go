// internal/services/statement_service.go
package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/vetlink/vetlink-backend/internal/config"
	"github.com/vetlink/vetlink-backend/internal/models"
)

// StatementService renders closing batches as CSV statements and stores
// them in S3 so clinics can hand professionals a payout breakdown.
type StatementService struct {
	s3Client *s3.S3
	config   *config.Config
}

func NewStatementService(config *config.Config) (*StatementService, error) {
	if config.AWS.AccessKeyID == "" {
		// Return service without S3 for local development
		return &StatementService{config: config}, nil
	}

	// Create AWS session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StatementService{
		s3Client: s3.New(sess),
		config:   config,
	}, nil
}

// RenderClosingStatement produces the CSV body for one closing batch: one
// row per ledger entry plus a total row.
func RenderClosingStatement(batch *models.ClosingBatch) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"entry_id", "sale_line_id", "rule_id", "amount", "created_at"}); err != nil {
		return nil, err
	}
	for _, entry := range batch.Entries {
		record := []string{
			entry.ID.String(),
			entry.SaleLineID.String(),
			entry.RuleID.String(),
			entry.Amount.StringFixed(2),
			entry.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	if err := w.Write([]string{"total", "", "", batch.TotalAmount.StringFixed(2), ""}); err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UploadClosingStatement stores the rendered statement and returns its URL.
// Without S3 configured it is a no-op so local development closes still work.
func (s *StatementService) UploadClosingStatement(batch *models.ClosingBatch) (string, error) {
	body, err := RenderClosingStatement(batch)
	if err != nil {
		return "", fmt.Errorf("failed to render closing statement: %w", err)
	}

	key := fmt.Sprintf("statements/%s/%s.csv", batch.ClinicID, batch.PayoutReference)

	if s.s3Client == nil {
		return "", nil
	}

	_, err = s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("text/csv"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload statement to S3: %w", err)
	}

	return s.statementURL(key), nil
}

func (s *StatementService) statementURL(key string) string {
	if s.config.AWS.CloudFrontURL != "" {
		return strings.TrimRight(s.config.AWS.CloudFrontURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.config.AWS.S3Bucket, s.config.AWS.Region, key)
}

// PresignStatement produces a short-lived download link for a stored
// statement.
func (s *StatementService) PresignStatement(key string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url, nil
}
