package alerts

import (
	"fmt"

	"github.com/subwatch/subwatch/internal/domain"
)

const dateFormat = "2006-01-02"

// noteOrPlaceholder returns the subscription note, or "-" when absent.
func noteOrPlaceholder(sub *domain.Subscription) string {
	if sub.Note != nil && *sub.Note != "" {
		return *sub.Note
	}
	return "-"
}

func manualNote(sub *domain.Subscription) string {
	if sub.Note != nil && *sub.Note != "" {
		return *sub.Note
	}
	return "No additional notes"
}

// BuildMessage renders the scheduled reminder for one subscription at one
// offset. Pure function; missing optional fields never fail it.
func BuildMessage(sub *domain.Subscription, user *domain.User, offset int) (subject, body string) {
	subject = fmt.Sprintf("Reminder: '%s' renews in %d day(s)", sub.Name, offset)
	body = fmt.Sprintf(
		"Hi %s,\n\n"+
			"This is a reminder that your subscription '%s' will renew on %s (in %d day(s)).\n\n"+
			"Note: %s\n\n"+
			"Please take action if you wish to cancel or update your payment.\n\n"+
			"Best regards,\nSubscription Reminder Service",
		user.Email,
		sub.Name,
		sub.RenewalDate.Format(dateFormat),
		offset,
		noteOrPlaceholder(sub),
	)
	return subject, body
}

// BuildManualMessage renders the on-demand alert triggered by the user.
func BuildManualMessage(sub *domain.Subscription, user *domain.User) (subject, body string) {
	subject = fmt.Sprintf("Subscription Renewal Alert: %s", sub.Name)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"This is a reminder that your subscription '%s' needs to be renewed.\n\n"+
			"Renewal Date: %s\n"+
			"Notes: %s\n\n"+
			"Please take action to renew your subscription before the renewal date.\n\n"+
			"Best regards,\nSubscription Reminder Service",
		user.Email,
		sub.Name,
		sub.RenewalDate.Format(dateFormat),
		manualNote(sub),
	)
	return subject, body
}
