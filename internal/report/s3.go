package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrArchiveNotFound is returned when a run or file is absent from the bucket.
var ErrArchiveNotFound = errors.New("report: archive object not found")

// S3Config carries bucket access settings, typically from the environment.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3ConfigFromEnv reads REPORT_S3_* variables. Enabled is false when no
// endpoint is configured.
func S3ConfigFromEnv() (S3Config, bool) {
	cfg := S3Config{
		Endpoint:  strings.TrimSpace(os.Getenv("REPORT_S3_ENDPOINT")),
		Region:    strings.TrimSpace(os.Getenv("REPORT_S3_REGION")),
		AccessKey: strings.TrimSpace(os.Getenv("REPORT_S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("REPORT_S3_SECRET_KEY")),
		Bucket:    strings.TrimSpace(os.Getenv("REPORT_S3_BUCKET")),
		UseSSL:    strings.EqualFold(strings.TrimSpace(os.Getenv("REPORT_S3_USE_SSL")), "true"),
	}
	return cfg, cfg.Endpoint != ""
}

// S3Archive uploads a run's report files to a bucket, keyed run_id/file.
type S3Archive struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

// NewS3Archive validates cfg and builds the client. The bucket is created
// lazily on first use.
func NewS3Archive(cfg S3Config) (*S3Archive, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Archive{client: client, bucket: bucket, region: region}, nil
}

func (a *S3Archive) ensureBucket(ctx context.Context) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("archive is nil")
	}
	a.initOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.initErr = err
			return
		}
		if exists {
			return
		}
		a.initErr = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region})
	})
	return a.initErr
}

// Put uploads one report file under runID.
func (a *S3Archive) Put(ctx context.Context, runID, name string, content []byte) error {
	runID = strings.TrimSpace(runID)
	name = strings.TrimSpace(name)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if name == "" {
		return fmt.Errorf("file name is required")
	}
	if err := a.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	if content == nil {
		content = []byte{}
	}
	_, err := a.client.PutObject(ctx, a.bucket, archiveKey(runID, name),
		bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
			ContentType: "text/csv",
		})
	return err
}

// Get downloads one archived report file.
func (a *S3Archive) Get(ctx context.Context, runID, name string) ([]byte, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := a.client.GetObject(ctx, a.bucket, archiveKey(runID, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, ErrArchiveNotFound
		}
		return nil, err
	}
	return data, nil
}

// List returns the archived file names of one run, sorted.
func (a *S3Archive) List(ctx context.Context, runID string) ([]string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if err := a.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	prefix := strings.TrimSuffix(runID, "/") + "/"
	names := make([]string, 0, 8)
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key == "" {
			continue
		}
		names = append(names, strings.TrimPrefix(obj.Key, prefix))
	}
	sort.Strings(names)
	return names, nil
}

// URL returns a presigned download link valid for one hour.
func (a *S3Archive) URL(ctx context.Context, runID, name string) (string, error) {
	if a == nil || a.client == nil {
		return "", fmt.Errorf("archive is nil")
	}
	u, err := a.client.PresignedGetObject(ctx, a.bucket, archiveKey(runID, name), time.Hour, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func archiveKey(runID, name string) string {
	return strings.TrimSpace(runID) + "/" + strings.TrimLeft(strings.TrimSpace(name), "/")
}
