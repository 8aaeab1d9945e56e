package medication

import "strings"

var unreadablePhrases = []string{
	"cannot read",
	"unreadable",
	"illegible",
	"unclear",
	"not legible",
	"can't make out",
	"difficult to read",
	"unable to read",
	"not clear enough",
	"too blurry",
	"poor quality",
	"can't see",
}

// IsUnreadable reports whether a transcription signals that the model could
// not read the image. Missed signals are tolerated; the extraction step
// catches them when it finds no medications.
func IsUnreadable(transcription string) bool {
	text := strings.ToLower(transcription)
	for _, p := range unreadablePhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
