package workflow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	firstNumber = regexp.MustCompile(`\d+`)
	uuidText    = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
)

// selectionID pulls an explicit entity id out of the structured selection
// payload, accepting either of the given keys.
func selectionID(selection map[string]any, keys ...string) (uuid.UUID, bool) {
	for _, key := range keys {
		raw, ok := selection[key]
		if !ok {
			continue
		}
		if s, ok := raw.(string); ok {
			if id, err := uuid.Parse(strings.TrimSpace(s)); err == nil {
				return id, true
			}
		}
	}
	return uuid.Nil, false
}

// messageID pulls a raw entity id typed directly into the message text. It
// must be checked before messageIndex: the digit runs inside a UUID would
// otherwise be misread as a choice number.
func messageID(message string) (uuid.UUID, bool) {
	match := uuidText.FindString(message)
	if match == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(match)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// messageIndex reads a 1-based choice index out of free text ("2", "number 2",
// "option 2 please"). Returns false when the text holds no usable number or
// the number is out of range.
func messageIndex(message string, max int) (int, bool) {
	match := firstNumber.FindString(message)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

// isConfirmation reports whether the message is a bare confirmation of the
// single presented option.
func isConfirmation(message string) bool {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "confirm", "yes", "ok", "okay", "sure", "book", "book it", "1":
		return true
	default:
		return false
	}
}
