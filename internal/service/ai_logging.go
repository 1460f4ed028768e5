package service

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const aiLogSnippetRunes = 1024

// logAIExchange 以 debug 级别记录提示词或模型输出，过长内容截断。
func logAIExchange(logger *zap.Logger, kind, phase, content string) {
	content = strings.TrimSpace(content)
	fields := []zap.Field{zap.String("kind", kind), zap.String("phase", phase)}

	n := utf8.RuneCountInString(content)
	switch {
	case n == 0:
		fields = append(fields, zap.Bool("empty", true))
	case n > aiLogSnippetRunes:
		fields = append(fields, zap.Int("runes", n), zap.String("content", string([]rune(content)[:aiLogSnippetRunes])+"…"))
	default:
		fields = append(fields, zap.Int("runes", n), zap.String("content", content))
	}
	logger.Debug("ai exchange", fields...)
}
