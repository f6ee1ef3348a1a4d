package enums

import "fmt"

// SiteStatus captures a site's verification lifecycle. Only verified sites may
// receive webhooks or open notification streams.
type SiteStatus string

const (
	SiteStatusPendingVerification SiteStatus = "pending_verification"
	SiteStatusVerified            SiteStatus = "verified"
	SiteStatusDisabled            SiteStatus = "disabled"
)

var validSiteStatuses = []SiteStatus{
	SiteStatusPendingVerification,
	SiteStatusVerified,
	SiteStatusDisabled,
}

// String implements fmt.Stringer.
func (s SiteStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SiteStatus.
func (s SiteStatus) IsValid() bool {
	for _, candidate := range validSiteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSiteStatus converts raw input into a SiteStatus.
func ParseSiteStatus(value string) (SiteStatus, error) {
	for _, candidate := range validSiteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid site status %q", value)
}
