package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/domainwatch/internal/config"
	"github.com/ignite/domainwatch/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client we call.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends through AWS SES v2.
type SESMailer struct {
	client  SESAPI
	from    string
	timeout time.Duration
}

// NewSESMailer uses static credentials when both keys are set and the
// default AWS chain otherwise.
func NewSESMailer(ctx context.Context, cfg config.MailConfig) (*SESMailer, error) {
	region := cfg.SESRegion
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.SESAccessKey != "" && cfg.SESSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SESAccessKey, cfg.SESSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewSESMailerWithClient(sesv2.NewFromConfig(awsCfg), cfg.From, cfg.Timeout()), nil
}

// NewSESMailerWithClient wraps an existing client.
func NewSESMailerWithClient(client SESAPI, from string, timeout time.Duration) *SESMailer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SESMailer{client: client, from: from, timeout: timeout}
}

// Send implements Mailer.
func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	if m.client == nil || m.from == "" {
		return &MailError{Backend: config.MailBackendSES, To: msg.To, Err: ErrNotConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(headerSafe(msg.Subject)), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return &MailError{Backend: config.MailBackendSES, To: msg.To, Err: err}
	}
	logger.Debug("ses message accepted", "recipient", msg.To, "message_id", aws.ToString(out.MessageId))
	return nil
}
