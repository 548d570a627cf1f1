package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credit-ledger/internal/infrastructure/config"
)

// MaxDocumentSize 読み込むCVファイルの上限サイズ
const MaxDocumentSize = 10 << 20

// ErrDocumentTooLarge ファイルが上限サイズを超えた
var ErrDocumentTooLarge = errors.New("document too large")

// ObjectGetter S3のGetObject（*s3.Clientが満たす）
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Document 読み込んだCV
type Document struct {
	Name string
	MIME string
	Text string
}

// Loader ローカルパスまたはs3://bucket/keyからCVを読み込む
type Loader struct {
	s3     ObjectGetter
	tracer trace.Tracer
}

// NewLoader 新しいLoaderを作成
// s3Clientがnilの場合、s3://の読み込みはエラーになる
func NewLoader(s3Client ObjectGetter) *Loader {
	return &Loader{
		s3:     s3Client,
		tracer: otel.Tracer("document-loader"),
	}
}

// NewS3Client 設定からS3クライアントを作成
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Load CVを読み込みテキストを抽出する
func (l *Loader) Load(ctx context.Context, source string) (*Document, error) {
	ctx, span := l.tracer.Start(ctx, "Loader.Load")
	defer span.End()

	span.SetAttributes(attribute.String("document.source", source))

	name, data, err := l.read(ctx, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	mime := DetectMIME(name, data)
	span.SetAttributes(
		attribute.String("document.mime", mime),
		attribute.Int("document.size", len(data)),
	)

	text, err := ExtractText(mime, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to extract text from %s: %w", source, err)
	}

	return &Document{Name: name, MIME: mime, Text: text}, nil
}

func (l *Loader) read(ctx context.Context, source string) (string, []byte, error) {
	if strings.HasPrefix(source, "s3://") {
		bucket, key, ok := ParseS3URI(source)
		if !ok {
			return "", nil, fmt.Errorf("invalid s3 uri %q: expected s3://bucket/key", source)
		}
		data, err := l.readS3(ctx, bucket, key)
		return path.Base(key), data, err
	}

	f, err := os.Open(source)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open %s: %w", source, err)
	}
	defer f.Close()

	data, err := readLimited(f)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return source, data, nil
}

func (l *Loader) readS3(ctx context.Context, bucket, key string) ([]byte, error) {
	if l.s3 == nil {
		return nil, fmt.Errorf("s3 is not configured for s3://%s/%s", bucket, key)
	}

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := readLimited(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxDocumentSize {
		return nil, ErrDocumentTooLarge
	}
	return data, nil
}

// ParseS3URI s3://bucket/keyを分解する
func ParseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
