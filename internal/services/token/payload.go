package token

import (
	"strconv"
	"strings"
)

// ephemeralFields are the values embedded in a login payload.
type ephemeralFields struct {
	Username     string
	PasswordHash string
	Nonce        string
	IssuedAt     int64
}

// parseEphemeralPayload extracts the tagged fields from a login payload.
// Generation writes fields in a fixed order, but parsing goes by tag so a
// reordered payload with the same hash still reads correctly. Returns false
// if any required field is missing or the timestamp is not numeric.
func parseEphemeralPayload(payload string) (ephemeralFields, bool) {
	var fields ephemeralFields
	var haveUser, havePwdh, haveTS, haveNonce bool

	for _, segment := range strings.Split(payload, "|") {
		switch {
		case strings.HasPrefix(segment, "USR="):
			fields.Username = strings.TrimPrefix(segment, "USR=")
			haveUser = fields.Username != ""
		case strings.HasPrefix(segment, "PWDH="):
			fields.PasswordHash = strings.TrimPrefix(segment, "PWDH=")
			havePwdh = fields.PasswordHash != ""
		case strings.HasPrefix(segment, "TS="):
			ts, err := strconv.ParseInt(strings.TrimPrefix(segment, "TS="), 10, 64)
			if err != nil {
				return ephemeralFields{}, false
			}
			fields.IssuedAt = ts
			haveTS = true
		case strings.HasPrefix(segment, "NONCE="):
			fields.Nonce = strings.TrimPrefix(segment, "NONCE=")
			haveNonce = fields.Nonce != ""
		}
	}

	if !haveUser || !havePwdh || !haveTS || !haveNonce {
		return ephemeralFields{}, false
	}
	return fields, true
}
