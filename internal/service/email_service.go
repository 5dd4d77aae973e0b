package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"quizzies/internal/models"
	"quizzies/internal/rewards"
)

// emailSender is the SES call the service makes
type emailSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client     emailSender
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	debug      bool
}

// NewEmailService creates a new email service. Without a from address the
// service is disabled and every send is a logged no-op.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string, debug bool) (*EmailService, error) {
	if fromEmail == "" {
		log.Println("Email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false, debug: debug}, nil
	}

	if debug {
		log.Printf("[DEBUG] Initializing email service: region=%s from=%s base=%s", awsRegion, fromEmail, appBaseURL)
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Email service enabled: from=%s, region=%s", fromEmail, awsRegion)
	return newEmailService(sesv2.NewFromConfig(cfg), fromEmail, fromName, appBaseURL, debug), nil
}

func newEmailService(client emailSender, fromEmail, fromName, appBaseURL string, debug bool) *EmailService {
	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		enabled:    true,
		debug:      debug,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s != nil && s.enabled
}

const emailLayout = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #f5a623; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #fffaf0; padding: 30px; border-radius: 0 0 5px 5px; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header"><h1>%s</h1></div>
		<div class="content">%s</div>
		<div class="footer"><p>This is an automated email from Quizzies. Please do not reply.</p></div>
	</div>
</body>
</html>
`

// SendWelcomeEmail sends a welcome email to new users
func (s *EmailService) SendWelcomeEmail(ctx context.Context, toEmail, toName string) error {
	if !s.IsEnabled() {
		log.Printf("Skipping email send (service disabled): welcome to %s", toEmail)
		return nil
	}

	subject := "Welcome to Quizzies!"
	content := fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>Your Quizzies account is ready. Every new word you spell and every sum you solve earns a star.</p>
			<ul>
				<li>Log in every day to grow your streak</li>
				<li>Finish daily challenges for bonus stars</li>
				<li>Collect achievements as you learn</li>
			</ul>
			<p><a href="%s">Start playing</a></p>`,
		html.EscapeString(toName), html.EscapeString(s.appBaseURL))

	textBody := fmt.Sprintf(`Hi %s,

Your Quizzies account is ready. Every new word you spell and every sum you solve earns a star.

- Log in every day to grow your streak
- Finish daily challenges for bonus stars
- Collect achievements as you learn

Start playing: %s
`, toName, s.appBaseURL)

	return s.sendEmail(ctx, toEmail, subject, fmt.Sprintf(emailLayout, "Welcome to Quizzies!", content), textBody)
}

// SendAchievementEmail tells a player about newly unlocked achievements
func (s *EmailService) SendAchievementEmail(ctx context.Context, toEmail, toName string, achievements []models.Achievement) error {
	if !s.IsEnabled() {
		log.Printf("Skipping email send (service disabled): achievements to %s", toEmail)
		return nil
	}
	if len(achievements) == 0 {
		return nil
	}

	var items, lines strings.Builder
	for _, a := range achievements {
		fmt.Fprintf(&items, "<li><strong>%s</strong>: %s</li>", html.EscapeString(a.Name), html.EscapeString(a.Description))
		fmt.Fprintf(&lines, "- %s: %s\n", a.Name, a.Description)
	}

	subject := fmt.Sprintf("You unlocked %s!", achievements[0].Name)
	if len(achievements) > 1 {
		subject = fmt.Sprintf("You unlocked %d achievements!", len(achievements))
	}

	content := fmt.Sprintf(`
			<p>Well done %s!</p>
			<ul>%s</ul>`, html.EscapeString(toName), items.String())
	textBody := fmt.Sprintf("Well done %s!\n\n%s", toName, lines.String())

	return s.sendEmail(ctx, toEmail, subject, fmt.Sprintf(emailLayout, "New achievement!", content), textBody)
}

// AchievementNotifier returns a listener that emails users about unlocks.
// Sending happens in the background so ledger events never wait on SES.
func (s *EmailService) AchievementNotifier(lookup func(ctx context.Context, userID string) (*models.User, error)) AchievementListener {
	return func(userID string, ids []string) {
		if !s.IsEnabled() {
			return
		}
		var unlocked []models.Achievement
		for _, id := range ids {
			if a, ok := rewards.FindAchievement(id); ok {
				unlocked = append(unlocked, a)
			}
		}
		if len(unlocked) == 0 {
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			user, err := lookup(ctx, userID)
			if err != nil {
				log.Printf("Failed to look up user %s for achievement email: %v", userID, err)
				return
			}
			if user == nil || user.Email == "" {
				return
			}
			if err := s.SendAchievementEmail(ctx, user.Email, user.Username, unlocked); err != nil {
				log.Printf("Failed to send achievement email to user %s: %v", userID, err)
			}
		}()
	}
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	if s.debug {
		log.Printf("[DEBUG] Sending email: from=%s to=%s subject=%s html=%dB text=%dB",
			fromAddress, toEmail, subject, len(htmlBody), len(textBody))
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	if s.debug && result.MessageId != nil {
		log.Printf("[DEBUG] Message ID: %s", *result.MessageId)
	}
	log.Printf("Email sent successfully: to=%s, subject=%s", toEmail, subject)
	return nil
}
