// Package media turns stored object keys of image payloads into URLs the
// client can load.
package media

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"chat-sync-engine/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Presigner is the part of the S3 presign client the signer needs
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options configures the bucket access
type Options struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Endpoint points at an S3-compatible store instead of AWS
	Endpoint string
	URLTTL   time.Duration
}

type signed struct {
	url     string
	expires time.Time
}

// Signer presigns GET requests for image keys. Signed URLs are reused until
// half of their lifetime has passed so that a conversation does not change
// on every poll.
type Signer struct {
	presigner Presigner
	bucket    string
	ttl       time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]signed
}

// New creates a signer backed by a real S3 client
func New(ctx context.Context, opts Options) (*Signer, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithPresigner(s3.NewPresignClient(client), opts.Bucket, opts.URLTTL), nil
}

// NewWithPresigner creates a signer on top of an existing presigner
func NewWithPresigner(p Presigner, bucket string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Signer{
		presigner: p,
		bucket:    bucket,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]signed),
	}
}

// Resolve returns a loadable URL for ref. Absolute http(s) URLs and empty
// references are returned unchanged; anything else is an object key.
func (s *Signer) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	key := strings.TrimPrefix(ref, "/")

	s.mu.Lock()
	if c, ok := s.cache[key]; ok && s.now().Before(c.expires) {
		s.mu.Unlock()
		return c.url, nil
	}
	s.mu.Unlock()

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = s.ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = signed{url: req.URL, expires: s.now().Add(s.ttl / 2)}
	s.mu.Unlock()
	return req.URL, nil
}

// SignMessages resolves image references of msgs in place. An image whose
// key cannot be signed is left without a URL and is not displayed.
func (s *Signer) SignMessages(ctx context.Context, msgs []models.Message) {
	for i := range msgs {
		m := &msgs[i]
		if m.Kind == models.KindImage {
			url, err := s.Resolve(ctx, m.ImageURL)
			if err != nil {
				log.Warn().Err(err).Str("message_id", m.ID).Msg("Failed to sign image")
			}
			m.ImageURL = url
		}
		if m.Plan != nil && m.Plan.ImageURL != "" {
			plan := *m.Plan
			url, err := s.Resolve(ctx, plan.ImageURL)
			if err != nil {
				log.Warn().Err(err).Str("message_id", m.ID).Msg("Failed to sign plan image")
			}
			plan.ImageURL = url
			m.Plan = &plan
		}
	}
}
