package workspace

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/signalnine/simharness/internal/config"
)

// PutObjectAPI is the part of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads job tarballs to s3://Bucket/Prefix<job>.tar.gz.
type S3Archiver struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
}

func NewS3Archiver(ctx context.Context, cfg config.S3Settings) (*S3Archiver, error) {
	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3Archiver{
		Client: s3.NewFromConfig(awsCfg, clientOpts...),
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
	}, nil
}

func (a *S3Archiver) Archive(ctx context.Context, dir string) (string, error) {
	var buf bytes.Buffer
	if err := WriteTarGz(&buf, dir); err != nil {
		return "", err
	}
	key := a.key(filepath.Base(dir))
	_, err := a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading to s3://%s/%s: %w", a.Bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.Bucket, key), nil
}

func (a *S3Archiver) key(job string) string {
	prefix := a.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + job + ".tar.gz"
}
