// Package signal defines the raw output of one scrape attempt.
package signal

// Bundle is what the producer hands to the reconciliation pipeline for one
// profile. Fields is keyed by canonical column name; values are raw scrape
// text and are cleaned downstream. A Bundle is never persisted as-is.
type Bundle struct {
	Fields map[string]string

	// FailureReason is set when the profile page could not be scraped
	// (e.g. "Page timeout", "Profile not found").
	FailureReason string
	// Label is the lifecycle label observed on the page
	// ("verified", "unverified", "banned", ...).
	Label string
	// Bio is the free-text biography content.
	Bio string

	// SourceTag identifies the scrape source (queue name, search page...).
	SourceTag string
	// QueueRef is the queue row the bundle was produced for, -1 when the
	// bundle did not come from the queue.
	QueueRef int
}

// Field returns a raw field value, "" when absent.
func (b Bundle) Field(name string) string {
	if b.Fields == nil {
		return ""
	}
	return b.Fields[name]
}
