package telegram

import "strings"

// MessageLimit максимальная длина сообщения Telegram в рунах.
const MessageLimit = 4096

// SplitMessage делит текст на части не длиннее MessageLimit.
func SplitMessage(text string) []string {
	return Split(text, MessageLimit)
}

// Split делит текст на части не длиннее limit рун. Разрез ищется сначала на границе
// карточек (пустая строка), затем на переводе строки, затем на пробеле.
func Split(text string, limit int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if limit <= 0 || len(runes) <= limit {
		return []string{string(runes)}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = appendChunk(parts, runes)
			break
		}
		cut := cutPoint(runes[:limit])
		parts = appendChunk(parts, runes[:cut])
		runes = []rune(strings.TrimLeft(string(runes[cut:]), "\n "))
	}
	return parts
}

func cutPoint(window []rune) int {
	if i := lastIndex(window, []rune("\n\n")); i > 0 {
		return i
	}
	for _, sep := range []rune{'\n', ' '} {
		for i := len(window) - 1; i > 0; i-- {
			if window[i] == sep {
				return i
			}
		}
	}
	return len(window)
}

func lastIndex(window, sep []rune) int {
	for i := len(window) - len(sep); i > 0; i-- {
		if string(window[i:i+len(sep)]) == string(sep) {
			return i
		}
	}
	return -1
}

func appendChunk(parts []string, chunk []rune) []string {
	trimmed := strings.TrimSpace(string(chunk))
	if trimmed == "" {
		return parts
	}
	return append(parts, trimmed)
}
