package enums

// NotificationType identifies in-app notification categories.
type NotificationType string

const (
	NotificationTypePaymentFailed        NotificationType = "billing_payment_failed"
	NotificationTypePaymentRecovered     NotificationType = "billing_payment_recovered"
	NotificationTypeSubscriptionCanceled NotificationType = "billing_subscription_canceled"
	NotificationTypeDunningReminder      NotificationType = "billing_dunning_reminder"
	NotificationTypeCalendarReauth       NotificationType = "calendar_reauth_required"
)

func (t NotificationType) String() string {
	return string(t)
}
