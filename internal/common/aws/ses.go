// internal/common/aws/ses.go
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the slice of the SES client the mailer needs.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Mailer sends plain-text email from a fixed sender.
type Mailer struct {
	client SESService
	from   string
}

func NewMailer(client SESService, from string) *Mailer {
	return &Mailer{client: client, from: from}
}

// NewSESMailer builds a Mailer over a real SES client.
func NewSESMailer(cfg aws.Config, from string) *Mailer {
	return NewMailer(ses.NewFromConfig(cfg), from)
}

// Send delivers one message to every address in to and returns the SES
// message id.
func (m *Mailer) Send(ctx context.Context, to []string, subject, body string) (string, error) {
	if len(to) == 0 {
		return "", fmt.Errorf("no email recipients")
	}
	out, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: to,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(m.from),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
