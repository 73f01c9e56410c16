package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// S3Config holds configuration for the S3 object source
type S3Config struct {
	Region          string        `json:"region"`
	AccessKeyID     string        `json:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty"`
	Endpoint        string        `json:"endpoint,omitempty"`
	ForcePathStyle  bool          `json:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl"`
	MaxRetries      int           `json:"max_retries"`
	MaxBytes        int64         `json:"max_bytes"`
	PresignExpiry   time.Duration `json:"presign_expiry"`
}

// S3Source fetches CSV objects from S3 compatible storage and issues
// pre-signed GET URLs for them
type S3Source struct {
	config     *S3Config
	s3Client   *s3.S3
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.RWMutex
	metrics    *sourceMetrics
}

type sourceMetrics struct {
	readOps    int64
	errorCount int64
	bytesRead  int64
	mu         sync.Mutex
}

// NewS3Source creates a new S3 source; call Connect before use
func NewS3Source(config *S3Config, logger *logrus.Logger) (*S3Source, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "S3 config cannot be nil")
	}

	if config.Region == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "S3 region is required")
	}

	if config.MaxBytes <= 0 {
		config.MaxBytes = constants.DefaultLoaderMaxBytes
	}

	if config.PresignExpiry <= 0 {
		config.PresignExpiry = constants.DefaultPresignExpiry
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &S3Source{
		config:  config,
		logger:  logger,
		metrics: &sourceMetrics{},
	}, nil
}

// Connect creates the AWS session. No request is sent: bucket access is
// checked lazily on the first fetch.
func (s *S3Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.s3Client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:     aws.String(s.config.Region),
		MaxRetries: aws.Int(s.config.MaxRetries),
	}

	if s.config.AccessKeyID != "" && s.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID,
			s.config.SecretAccessKey,
			s.config.SessionToken,
		)
	}

	// S3 compatible services (MinIO, LocalStack)
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(s.config.ForcePathStyle)
	}

	if s.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, "SESSION_FAILED", "Failed to create AWS session")
	}

	s.s3Client = s3.New(sess)
	s.downloader = s3manager.NewDownloader(sess)

	s.logger.WithFields(logrus.Fields{
		"region":   s.config.Region,
		"endpoint": s.config.Endpoint,
	}).Info("S3 source ready")

	return nil
}

// Fetch downloads an object into memory. Keys ending in .gz are decompressed.
func (s *S3Source) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	downloader := s.downloader
	s.mu.RUnlock()

	if downloader == nil {
		return nil, errors.NewStorageError("NOT_CONNECTED", "S3 not connected")
	}

	start := time.Now()
	buf := aws.NewWriteAtBuffer([]byte{})
	n, err := downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.incrementErrorCount()
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == s3.ErrCodeNoSuchBucket) {
			return nil, errors.NewDataLoadError(errors.CodeFetchFailed,
				fmt.Sprintf("object s3://%s/%s not found", bucket, key))
		}
		return nil, errors.WrapFetchError(err, "s3://"+bucket+"/"+key, 0)
	}

	if n > s.config.MaxBytes {
		s.incrementErrorCount()
		return nil, errors.NewDataLoadError(errors.CodeFetchFailed, "object exceeds maximum size").
			WithContext("bytes", n).WithContext("max_bytes", s.config.MaxBytes)
	}

	data := buf.Bytes()
	if strings.HasSuffix(key, ".gz") {
		gzReader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			s.incrementErrorCount()
			return nil, errors.WrapError(err, errors.ErrorTypeDataLoad, errors.CodeParseFailed, "Failed to decompress object")
		}
		defer gzReader.Close()

		decompressed, err := io.ReadAll(io.LimitReader(gzReader, s.config.MaxBytes+1))
		if err != nil {
			s.incrementErrorCount()
			return nil, errors.WrapError(err, errors.ErrorTypeDataLoad, errors.CodeParseFailed, "Failed to read decompressed object")
		}
		if int64(len(decompressed)) > s.config.MaxBytes {
			return nil, errors.NewDataLoadError(errors.CodeFetchFailed, "decompressed object exceeds maximum size")
		}
		data = decompressed
	}

	s.metrics.mu.Lock()
	s.metrics.readOps++
	s.metrics.bytesRead += int64(len(data))
	s.metrics.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"bucket":   bucket,
		"key":      key,
		"bytes":    len(data),
		"duration": time.Since(start),
	}).Debug("Fetched S3 object")

	return data, nil
}

// PresignGet returns a URL that grants GET access to the object until expiry.
// A non-positive expiry uses the configured default.
func (s *S3Source) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	s.mu.RLock()
	client := s.s3Client
	s.mu.RUnlock()

	if client == nil {
		return "", errors.NewStorageError("NOT_CONNECTED", "S3 not connected")
	}

	if expiry <= 0 {
		expiry = s.config.PresignExpiry
	}

	req, _ := client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)

	signed, err := req.Presign(expiry)
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeStorage, "PRESIGN_FAILED", "Failed to presign S3 object")
	}
	return signed, nil
}

// ParseURI splits an s3://bucket/key URI
func ParseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" {
		return "", "", errors.NewDataLoadError(errors.CodeUnsupportedSource, "not an s3:// URI").
			WithContext("source", uri)
	}

	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", errors.NewDataLoadError(errors.CodeUnsupportedSource, "s3 URI requires bucket and key").
			WithContext("source", uri)
	}
	return bucket, key, nil
}

func (s *S3Source) incrementErrorCount() {
	s.metrics.mu.Lock()
	s.metrics.errorCount++
	s.metrics.mu.Unlock()
}
