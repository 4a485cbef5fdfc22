package managers

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/matcornic/hermes/v2"
	log "github.com/sirupsen/logrus"
)

// MailMgr is an interface that outlines the contract for email management.
// It includes methods for sending confirmation and welcome emails.
type MailMgr interface {
	SendConfirmationMail(email, username, confirmationId string) error
	SendWelcomeMail(email, username string) error
}

// MailManager is a concrete implementation of the MailMgr interface.
// It uses the Mailgun service for sending emails and the Hermes package for formatting emails.
type MailManager struct {
	Hermes      *hermes.Hermes
	Mailgun     *mailgun.MailgunImpl
	environment string
}

var from = "Imago <team@mail.imago.app>"

// SendConfirmationMail sends a registration confirmation email with the link
// the user has to follow to activate the account.
func (mm *MailManager) SendConfirmationMail(email, username, confirmationId string) error {
	if mm.environment != "production" {
		log.Info("Skipping confirmation mail in development mode")
		return nil
	}

	mailBody := hermes.Email{
		Body: hermes.Body{
			Name: username,
			Intros: []string{
				"Welcome to Imago! We're very excited to have you on board.",
				"If you have any questions, feel free to reach out to us at any time via team@mail.imago.app.",
			},
			Actions: []hermes.Action{
				{
					Instructions: "To activate your account, please click the button below:",
					Button: hermes.Button{
						Text: "Confirm your account",
						Link: fmt.Sprintf("https://imago.app/confirm/%s", confirmationId),
					},
				},
			},
			Outros: []string{
				"The confirmation link expires after 24 hours. You can request a new one at any time.",
			},
		},
	}

	return mm.send(email, "Confirm your account", mailBody)
}

// SendWelcomeMail sends a confirmation notice once the account has been activated.
func (mm *MailManager) SendWelcomeMail(email, username string) error {
	if mm.environment != "production" {
		log.Info("Skipping welcome mail in development mode")
		return nil
	}

	mailBody := hermes.Email{
		Body: hermes.Body{
			Name: username,
			Intros: []string{
				"Your account has been successfully activated!",
				"If you have any questions, feel free to reach out to us at any time via team@mail.imago.app.",
			},
			Outros: []string{
				"Have fun using Imago!",
			},
		},
	}

	return mm.send(email, "Account successfully activated", mailBody)
}

func (mm *MailManager) send(email, subject string, mailBody hermes.Email) error {
	emailBody, err := mm.Hermes.GenerateHTML(mailBody)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(2*time.Second))
	defer cancel()

	message := mm.Mailgun.NewMessage(from, subject, "", email)
	message.SetHtml(emailBody)
	_, _, err = mm.Mailgun.Send(ctx, message)
	if err != nil {
		log.Warning("Error sending mail: " + err.Error())
		return err
	}
	log.Debug("Mail sent to ", email)

	return nil
}

// NewMailManager initializes a new MailManager instance with configured Mailgun and Hermes settings.
// Outside the production environment mails are logged and skipped.
func NewMailManager(domain, apiKey, environment string) MailMgr {
	log.Info("Initializing mail manager")

	if environment != "production" {
		log.Println("Running in development mode, email will not be sent to users")
	}

	mailgunInstance := mailgun.NewMailgun(domain, apiKey)
	mailgunInstance.SetAPIBase(mailgun.APIBaseEU)

	mm := &MailManager{
		Hermes: &hermes.Hermes{
			Theme:         new(hermes.Default),
			TextDirection: hermes.TDLeftToRight,
			Product: hermes.Product{
				Name:        "Imago",
				Link:        "https://imago.app/",
				Copyright:   "© Imago",
				TroubleText: "If you’re having trouble with the button '{ACTION}', copy and paste the URL below into your web browser.",
			},
		},
		Mailgun:     mailgunInstance,
		environment: environment,
	}
	log.Info("Initialized mail manager")
	return mm
}
