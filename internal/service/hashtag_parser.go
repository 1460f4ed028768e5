package service

import (
	"strings"
	"unicode"
)

// maxHashtagRunes 与 hashtags.name 列宽一致，超长的标签直接忽略。
const maxHashtagRunes = 140

// ParseHashtags 提取文案中的 #话题，去掉 # 并统一小写，按首次出现顺序去重。
func ParseHashtags(caption string) []string {
	tags := make([]string, 0)
	if strings.TrimSpace(caption) == "" {
		return tags
	}

	seen := make(map[string]struct{})
	runes := []rune(caption)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '#' {
			continue
		}
		j := i + 1
		for j < len(runes) && isHashtagRune(runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		if j-i-1 > maxHashtagRunes {
			i = j - 1
			continue
		}
		name := strings.ToLower(string(runes[i+1 : j]))
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			tags = append(tags, name)
		}
		i = j - 1
	}
	return tags
}

func isHashtagRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
