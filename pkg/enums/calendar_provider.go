package enums

// CalendarProvider identifies the external calendar a practitioner linked.
type CalendarProvider string

const (
	CalendarProviderGoogle  CalendarProvider = "google"
	CalendarProviderOutlook CalendarProvider = "outlook"
)

func (p CalendarProvider) String() string {
	return string(p)
}
