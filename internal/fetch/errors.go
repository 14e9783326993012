package fetch

import "strings"

// friendlyRewrites maps known upstream error substrings to user-facing text.
// Matching is for message translation only, never for control flow.
var friendlyRewrites = []struct {
	substrings []string
	message    string
}{
	{
		substrings: []string{"could not find match for patterns"},
		message:    "Could not access this channel. Try using a different channel URL format or a different channel.",
	},
	{
		substrings: []string{"channel", "not found"},
		message:    "Channel not found. Please check the URL and try again.",
	},
}

// FriendlyError rewrites known upstream error text into friendlier wording.
// Unrecognized errors pass through verbatim.
func FriendlyError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, rw := range friendlyRewrites {
		all := true
		for _, sub := range rw.substrings {
			if !strings.Contains(lower, sub) {
				all = false
				break
			}
		}
		if all {
			return rw.message
		}
	}
	return msg
}
