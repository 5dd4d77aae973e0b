package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"quizzies/internal/models"
	"quizzies/internal/rewards"
)

type fakeSender struct {
	mu     sync.Mutex
	inputs []*sesv2.SendEmailInput
	err    error
	sent   chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan struct{}, 8)}
}

func (f *fakeSender) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	f.sent <- struct{}{}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func (f *fakeSender) last(t *testing.T) *sesv2.SendEmailInput {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		t.Fatal("no email sent")
	}
	return f.inputs[len(f.inputs)-1]
}

func TestDisabledEmailService(t *testing.T) {
	svc, err := NewEmailService(context.Background(), "us-east-1", "", "", "", false)
	if err != nil {
		t.Fatalf("NewEmailService() error = %v", err)
	}
	if svc.IsEnabled() {
		t.Error("service without from address should be disabled")
	}
	if err := svc.SendWelcomeEmail(context.Background(), "a@example.com", "A"); err != nil {
		t.Errorf("SendWelcomeEmail() on disabled service error = %v", err)
	}

	var nilSvc *EmailService
	if nilSvc.IsEnabled() {
		t.Error("nil service reported enabled")
	}
}

func TestSendWelcomeEmail(t *testing.T) {
	sender := newFakeSender()
	svc := newEmailService(sender, "hello@quizzies.app", "Quizzies", "https://quizzies.app/", false)

	if err := svc.SendWelcomeEmail(context.Background(), "kid@example.com", "<Maya>"); err != nil {
		t.Fatalf("SendWelcomeEmail() error = %v", err)
	}

	in := sender.last(t)
	if got := aws.ToString(in.FromEmailAddress); got != "Quizzies <hello@quizzies.app>" {
		t.Errorf("from = %q", got)
	}
	if in.Destination.ToAddresses[0] != "kid@example.com" {
		t.Errorf("to = %v", in.Destination.ToAddresses)
	}
	htmlBody := aws.ToString(in.Content.Simple.Body.Html.Data)
	if strings.Contains(htmlBody, "<Maya>") || !strings.Contains(htmlBody, "&lt;Maya&gt;") {
		t.Error("name was not escaped in the HTML body")
	}
	if !strings.Contains(aws.ToString(in.Content.Simple.Body.Text.Data), "https://quizzies.app") {
		t.Error("text body is missing the app link")
	}
}

func TestSendEmailError(t *testing.T) {
	sender := newFakeSender()
	sender.err = errors.New("throttled")
	svc := newEmailService(sender, "hello@quizzies.app", "", "https://quizzies.app", false)

	if err := svc.SendWelcomeEmail(context.Background(), "kid@example.com", "Maya"); err == nil {
		t.Error("SendWelcomeEmail() should surface SES errors")
	}
}

func TestAchievementNotifier(t *testing.T) {
	sender := newFakeSender()
	svc := newEmailService(sender, "hello@quizzies.app", "", "https://quizzies.app", false)

	lookup := func(ctx context.Context, userID string) (*models.User, error) {
		if userID == "u-1" {
			return &models.User{ID: "u-1", Email: "maya@example.com", Username: "Maya"}, nil
		}
		return nil, nil
	}
	notify := svc.AchievementNotifier(lookup)

	notify("u-1", []string{"streak_3", "not-a-real-id"})
	select {
	case <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("achievement email was not sent")
	}

	a, _ := rewards.FindAchievement("streak_3")
	in := sender.last(t)
	if got := aws.ToString(in.Content.Simple.Subject.Data); !strings.Contains(got, a.Name) {
		t.Errorf("subject = %q, want it to name %q", got, a.Name)
	}

	// unknown users and unknown achievements send nothing
	notify("u-2", []string{"streak_3"})
	notify("u-1", []string{"nope"})
	select {
	case <-sender.sent:
		t.Error("unexpected email sent")
	case <-time.After(100 * time.Millisecond):
	}
}
