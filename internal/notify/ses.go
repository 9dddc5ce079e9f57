package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/sungwon/dining-concierge/internal/config"
	"github.com/sungwon/dining-concierge/internal/metrics"
	"github.com/sungwon/dining-concierge/internal/upstream"
)

const sesService = "ses"

// sesAPI is the subset of the SES v2 client used by SES.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES sends email through the AWS SES v2 SendEmail API.
type SES struct {
	client sesAPI
	from   string
}

// NewSES creates an SES sender using the default AWS credential chain.
func NewSES(ctx context.Context, cfg config.NotifyConfig) (*SES, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &SES{client: client, from: cfg.Sender}, nil
}

// Send delivers msg as simple UTF-8 text content.
func (s *SES) Send(ctx context.Context, msg Message) (rcpt Receipt, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(sesService, start, err) }()

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return Receipt{}, classifySESError(err)
	}
	return Receipt{Provider: sesService, MessageID: aws.ToString(out.MessageId)}, nil
}

// classifySESError marks rejections that will not change on redelivery as
// permanent. Throttling, service and network errors stay transient.
func classifySESError(err error) *upstream.Error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "MessageRejected", "MailFromDomainNotVerifiedException", "BadRequestException",
			"AccountSuspendedException", "SendingPausedException", "NotFoundException":
			return upstream.Permanent(sesService, "send_email", err)
		}
	}
	return upstream.Transient(sesService, "send_email", err)
}
