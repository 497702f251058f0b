// ABOUTME: Helpers for classifying gateway contact identifiers (JIDs)
// ABOUTME: Distinguishes opaque linked ids, group ids and plain phone numbers

package gwclient

import "strings"

// Identifier suffixes used by the gateway.
const (
	OpaqueSuffix = "@lid"
	GroupSuffix  = "@g.us"
	UserSuffix   = "@c.us"
	legacySuffix = "@s.whatsapp.net"
)

// IsOpaque reports whether id is a linked identifier that needs resolution
// before it can be used as a phone number.
func IsOpaque(id string) bool {
	return strings.Contains(id, OpaqueSuffix)
}

// IsGroup reports whether id names a group chat.
func IsGroup(id string) bool {
	return strings.HasSuffix(id, GroupSuffix)
}

// PhoneFromJID strips the user suffix from a JID. Other forms are returned as is.
func PhoneFromJID(id string) string {
	id = strings.TrimSpace(id)
	for _, suffix := range []string{UserSuffix, legacySuffix} {
		if strings.HasSuffix(id, suffix) {
			return strings.TrimSuffix(id, suffix)
		}
	}
	return id
}
