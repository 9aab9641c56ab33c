package rag

import "strings"

// languageInstruction turns a tenant's ordered preferred-languages list
// into the directive embedded in the generation prompt. The first entry is
// the primary language; remaining entries are offered as acceptable
// fallbacks if the user writes in one of them.
func languageInstruction(preferred []string) string {
	if len(preferred) == 0 {
		return "Respond in the same language the user wrote in."
	}
	primary := preferred[0]
	if len(preferred) == 1 {
		return "Respond in " + primary + ", unless the user's message is written in a different language, in which case respond in that language instead."
	}
	return "Respond in " + primary + ". If the user writes in " + strings.Join(preferred[1:], " or ") + ", respond in that language instead."
}
