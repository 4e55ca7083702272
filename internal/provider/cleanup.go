package provider

import "strings"

// cleanReply normalizes raw model output into something a game chat box
// or a speech synthesizer can take: quotes stripped (models love to
// quote themselves), everything from the first '#' dropped (hashtag
// tails), emoji removed (game chat cannot render them), whitespace
// trimmed.
func cleanReply(text string) string {
	text = strings.NewReplacer(`"`, "", "'", "").Replace(text)
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	text = stripEmoji(text)
	return strings.TrimSpace(text)
}

// emojiRanges covers the common emoji blocks: emoticons, pictographs,
// transport, flags, dingbats, misc symbols, and the supplemental plane.
var emojiRanges = [][2]rune{
	{0x1F600, 0x1F64F},
	{0x1F300, 0x1F5FF},
	{0x1F680, 0x1F6FF},
	{0x1F1E0, 0x1F1FF},
	{0x2700, 0x27BF},
	{0x2600, 0x26FF},
	{0x1F900, 0x1F9FF},
}

func stripEmoji(text string) string {
	return strings.Map(func(r rune) rune {
		for _, rng := range emojiRanges {
			if r >= rng[0] && r <= rng[1] {
				return -1
			}
		}
		return r
	}, text)
}
