// Package r2client stores zstd-compressed documents in Cloudflare R2 through
// the S3 API.
package r2client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/klauspost/compress/zstd"
)

// maxObjectBytes caps a downloaded object before decompression.
const maxObjectBytes = 64 << 20

const metaRawBytes = "raw-bytes"

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("r2client: object not found")

// Config holds R2 client configuration.
type Config struct {
	Endpoint    string // https://<account-id>.r2.cloudflarestorage.com
	AccessKeyID string
	SecretKey   string
	BucketName  string
}

// EndpointForAccount builds the R2 endpoint of a Cloudflare account.
func EndpointForAccount(accountID string) string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
}

// s3API is the part of *s3.Client this package calls.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Client reads and writes compressed objects in one bucket.
type Client struct {
	api    s3API
	bucket string
	codec  *Codec
}

// New creates a client for the configured bucket.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretKey == "" || cfg.BucketName == "" {
		return nil, errors.New("r2client: endpoint, credentials and bucket are required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("r2client: load aws config: %w", err)
	}
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return newClient(api, cfg.BucketName)
}

func newClient(api s3API, bucket string) (*Client, error) {
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}
	return &Client{api: api, bucket: bucket, codec: codec}, nil
}

// Put compresses doc and stores it under key. It returns the object ETag.
func (c *Client) Put(ctx context.Context, key string, doc []byte, contentType string) (string, error) {
	body := c.codec.Compress(doc)
	in := &s3.PutObjectInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentEncoding: aws.String("zstd"),
		Metadata:        map[string]string{metaRawBytes: strconv.Itoa(len(doc))},
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	out, err := c.api.PutObject(ctx, in)
	if err != nil {
		return "", fmt.Errorf("r2client: put %q: %w", key, err)
	}
	return strings.Trim(aws.ToString(out.ETag), `"`), nil
}

// Get downloads the object at key and returns the decompressed document.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("r2client: get %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxObjectBytes+1))
	if err != nil {
		return nil, fmt.Errorf("r2client: read %q: %w", key, err)
	}
	if len(body) > maxObjectBytes {
		return nil, fmt.Errorf("r2client: %q exceeds %d bytes", key, maxObjectBytes)
	}
	doc, err := c.codec.Decompress(body)
	if err != nil {
		return nil, fmt.Errorf("r2client: %q: %w", key, err)
	}
	return doc, nil
}

// ListKeys returns every key under prefix.
func (c *Client) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("r2client: list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if k := aws.ToString(obj.Key); k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

// Codec compresses documents with zstd. It is safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec creates a Codec tuned for small JSON documents.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("r2client: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(4*maxObjectBytes))
	if err != nil {
		return nil, fmt.Errorf("r2client: zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Compress returns the zstd frame of doc.
func (c *Codec) Compress(doc []byte) []byte {
	return c.enc.EncodeAll(doc, make([]byte, 0, len(doc)/4))
}

// Decompress reverses Compress.
func (c *Codec) Decompress(frame []byte) ([]byte, error) {
	doc, err := c.dec.DecodeAll(frame, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return doc, nil
}
