package tgbot

import (
	"context"
	"errors"
	"fmt"

	"startup-spark/internal/notify"
)

// Notify tells every admin chat about the event.
func (a *App) Notify(_ context.Context, ev notify.Event) error {
	text := eventText(ev)
	if text == "" {
		return nil
	}
	var errList []error
	for _, id := range a.adminIDs() {
		if err := a.SendText(id, text); err != nil {
			errList = append(errList, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errList...)
}

func eventText(ev notify.Event) string {
	switch ev.Kind {
	case notify.KindTeamRegistered:
		if ev.Team == nil {
			return ""
		}
		return fmt.Sprintf("New team: %s (%s), %d members, Rs. %s payable",
			ev.Team.TeamName, ev.Team.RegistrationID, ev.Team.TeamSize, ev.AmountPayable)
	case notify.KindTeamPaid:
		if ev.Team == nil {
			return ""
		}
		return fmt.Sprintf("Payment confirmed: %s (%s)", ev.Team.TeamName, ev.Team.RegistrationID)
	case notify.KindPaymentReceived:
		if ev.Payment == nil {
			return ""
		}
		p := ev.Payment
		return fmt.Sprintf("Payment %s: Rs. %s from %s <%s> [%s]", p.PaymentID, p.Amount, p.BuyerName, p.Email, p.Status)
	}
	return ""
}
