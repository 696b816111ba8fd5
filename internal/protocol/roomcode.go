package protocol

import (
	"regexp"
	"strings"
)

// Room codes are exchanged as 6-character alphanumeric, case-insensitive
// strings, normalized to uppercase before use.
const RoomCodeLength = 6

var roomCodePattern = regexp.MustCompile(`[A-Za-z0-9]{6}`)

// NormalizeRoomCode trims and uppercases a user-supplied room code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ExtractRoomCode pulls the first contiguous 6-character alphanumeric run
// out of arbitrary scanned text (QR payloads, pasted links).
func ExtractRoomCode(text string) (string, bool) {
	m := roomCodePattern.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.ToUpper(m), true
}
