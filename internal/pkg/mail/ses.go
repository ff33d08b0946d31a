package mail

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// ErrSESEmptyMessageID is returned when SES accepts a message without returning its id.
var ErrSESEmptyMessageID = errors.New("mail: ses returned empty message id")

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures the Amazon SES v2 driver.
type SESConfig struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
	// From is the default sender when Message.From is empty.
	From string
	// ConfigurationSet routes delivery events to the SNS topic behind the webhook.
	ConfigurationSet string
}

// SES is a Mail implementation backed by Amazon SES v2.
type SES struct {
	client           sesAPI
	defaultFrom      string
	configurationSet string
}

// NewSES loads AWS configuration and constructs the driver.
func NewSES(ctx context.Context, cfg SESConfig) (*SES, error) {
	cfgOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		cfgOpts = append(cfgOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, err
	}

	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &SES{client: client, defaultFrom: cfg.From, configurationSet: cfg.ConfigurationSet}, nil
}

// Send delivers msg through SES and returns the SES message id.
func (s *SES) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.recipients()) == 0 {
		return "", ErrNoRecipients
	}

	from := msg.From
	if from == "" {
		from = s.defaultFrom
	}
	if from == "" {
		return "", ErrNoSender
	}

	body := &types.Body{}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}
	if msg.TextBody != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}
	for k, v := range msg.Tags {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String(k), Value: aws.String(v)})
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", err
	}

	id := aws.ToString(out.MessageId)
	if id == "" {
		return "", ErrSESEmptyMessageID
	}

	return id, nil
}

// Close implements io.Closer; the SES client holds no connections of its own.
func (s *SES) Close() error {
	return nil
}
