package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

// EmailSender is satisfied by gmailclient.Client.
type EmailSender interface {
	SendEmail(to, subject, body string) error
}

// Notifier emails participants about the outcome of signup and disposition
// actions. It runs post-commit off the bus; a failed send is logged and never
// affects the action that triggered it.
type Notifier struct {
	sender EmailSender
	logger *zap.Logger
}

func NewNotifier(sender EmailSender, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

// Register subscribes the notifier to a bus.
func (n *Notifier) Register(bus *Bus) {
	bus.Subscribe(n.Handle)
}

// Handle sends the email matching the event, if any. Participants without an
// email address are skipped.
func (n *Notifier) Handle(ctx context.Context, event ParticipationEvent) {
	if event.Participant.Email == "" {
		return
	}
	subject, body, ok := composeEmail(event)
	if !ok {
		return
	}
	if err := n.sender.SendEmail(event.Participant.Email, subject, body); err != nil {
		n.logger.Error("failed to send notification email",
			zap.String("shift_id", event.Shift.ID),
			zap.String("owner", event.Participation.Owner.Key()),
			zap.Error(err))
		return
	}
	n.logger.Debug("notification email sent",
		zap.String("shift_id", event.Shift.ID),
		zap.String("owner", event.Participation.Owner.Key()))
}

func composeEmail(event ParticipationEvent) (subject, body string, ok bool) {
	when := event.Shift.TimeDisplay()
	switch event.Type {
	case EventAwaitsDisposition:
		subject = "Your signup request was received"
		body = fmt.Sprintf(
			"Hi %s,\n\nyour request to take part in the shift on %s was received and awaits confirmation. You will be notified once a decision has been made.\n",
			event.Participant.FirstName, when)
		return subject, body, true
	case EventStateChanged:
		switch event.Participation.State {
		case model.StateConfirmed:
			subject = "Your participation was confirmed"
			body = fmt.Sprintf(
				"Hi %s,\n\nyou are confirmed for the shift on %s. See you there!\n",
				event.Participant.FirstName, when)
			return subject, body, true
		case model.StateResponsibleRejected:
			subject = "Your signup request was rejected"
			body = fmt.Sprintf(
				"Hi %s,\n\nunfortunately your request for the shift on %s was rejected.\n",
				event.Participant.FirstName, when)
			return subject, body, true
		case model.StateUserDeclined:
			subject = "Your decline was recorded"
			body = fmt.Sprintf(
				"Hi %s,\n\nyou declined the shift on %s. Thanks for letting us know.\n",
				event.Participant.FirstName, when)
			return subject, body, true
		}
	}
	return "", "", false
}
