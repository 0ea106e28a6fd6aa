// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/easysmtp/internal/email"
	"github.com/shineum/easysmtp/internal/provider"
	"github.com/shineum/easysmtp/internal/render"
	"github.com/shineum/easysmtp/internal/transport"
)

// Name is the mailer name of the SES provider.
const Name = "ses"

// Config holds the configuration for creating a Provider.
type Config struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	ConfigurationSet string
}

// SendEmailAPI is the subset of the SES v2 client the provider uses.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Provider sends emails via the AWS SES v2 API.
type Provider struct {
	client           SendEmailAPI
	configurationSet string
	logger           *slog.Logger
}

// New creates a Provider. Static credentials are used when both keys are
// set, otherwise the default AWS credential chain.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		// One attempt per send; failures are reported, not resubmitted.
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(sesv2.NewFromConfig(awsCfg), cfg.ConfigurationSet, logger), nil
}

// NewWithClient creates a Provider around an existing client.
func NewWithClient(client SendEmailAPI, configurationSet string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{client: client, configurationSet: configurationSet, logger: logger}
}

// Send makes one SendEmail call. Messages with attachments are sent as raw
// MIME, everything else as simple content.
func (p *Provider) Send(ctx context.Context, t *transport.Transport) error {
	recipients := t.Recipients()
	if len(recipients) == 0 {
		return provider.ErrNoRecipients
	}

	msg := t.Email()
	var (
		input *sesv2.SendEmailInput
		err   error
	)
	if len(msg.Attachments) > 0 {
		input, err = buildRawInput(msg)
		if err != nil {
			return err
		}
	} else {
		input = buildSimpleInput(msg)
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("SES API request failed: %w", err)
	}
	p.logger.DebugContext(ctx, "sent via SES",
		"message_id", aws.ToString(out.MessageId),
		"recipients", len(recipients),
	)
	return nil
}

func (p *Provider) Name() string {
	return Name
}

func destination(msg *email.Email) *types.Destination {
	return &types.Destination{
		ToAddresses:  msg.To,
		CcAddresses:  msg.Cc,
		BccAddresses: msg.Bcc,
	}
}

// buildSimpleInput creates a SES SendEmailInput for emails without attachments.
func buildSimpleInput(msg *email.Email) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.HtmlBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HtmlBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.TextBody != "" || msg.HtmlBody == "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	var replyTo []string
	for _, a := range msg.ReplyTo {
		replyTo = append(replyTo, render.Format(a))
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(render.Format(msg.From)),
		Destination:      destination(msg),
		ReplyToAddresses: replyTo,
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}

// buildRawInput renders the full MIME message. Bcc recipients only appear in
// the destination.
func buildRawInput(msg *email.Email) (*sesv2.SendEmailInput, error) {
	raw, err := render.Raw(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to build raw message: %w", err)
	}
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(render.Format(msg.From)),
		Destination:      destination(msg),
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}, nil
}
