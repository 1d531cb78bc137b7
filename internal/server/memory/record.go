package memory

import (
	"fmt"
	"strings"
)

const (
	ownerPrefix    = "owner/"
	exchangeMarker = "/exchange/"
)

// RecordID derives the memory record id for an exchange. It is a pure
// function of the pair, so upserts are idempotent and deletes need no
// lookup table.
func RecordID(ownerID, exchangeID string) string {
	return ownerPrefix + ownerID + exchangeMarker + exchangeID
}

// ParseRecordID reverses RecordID.
func ParseRecordID(id string) (ownerID, exchangeID string, ok bool) {
	if !strings.HasPrefix(id, ownerPrefix) {
		return "", "", false
	}
	i := strings.LastIndex(id, exchangeMarker)
	if i < len(ownerPrefix) {
		return "", "", false
	}
	ownerID = id[len(ownerPrefix):i]
	exchangeID = id[i+len(exchangeMarker):]
	if ownerID == "" || exchangeID == "" {
		return "", "", false
	}
	return ownerID, exchangeID, true
}

// DocumentText is the text embedded and later injected as a snippet.
func DocumentText(message, response string) string {
	return fmt.Sprintf("User said: %s\nAI replied: %s", message, response)
}
