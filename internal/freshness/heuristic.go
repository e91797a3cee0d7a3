package freshness

import (
	"fmt"
	"regexp"
	"strings"
)

// FreeChatHeuristic decides from a title whether a video looks like a free
// chat room rather than a scheduled stream.
type FreeChatHeuristic interface {
	IsFreeChat(title string) bool
}

// DefaultFreeChatKeywords are matched case-insensitively anywhere in a title.
var DefaultFreeChatKeywords = []string{
	"free chat",
	"freechat",
	"フリーチャット",
	"フリートーク",
	"ふりーちゃっと",
	"schedule",
	"スケジュール",
}

// KeywordHeuristic matches a title against a fixed list of keywords.
type KeywordHeuristic struct {
	re *regexp.Regexp
}

// NewKeywordHeuristic compiles keywords into a single case-insensitive
// pattern. Blank keywords are skipped.
func NewKeywordHeuristic(keywords []string) (*KeywordHeuristic, error) {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(k))
	}
	if len(quoted) == 0 {
		return &KeywordHeuristic{}, nil
	}
	re, err := regexp.Compile("(?i)" + strings.Join(quoted, "|"))
	if err != nil {
		return nil, fmt.Errorf("compile free chat keywords: %w", err)
	}
	return &KeywordHeuristic{re: re}, nil
}

// IsFreeChat reports whether title contains one of the keywords.
func (h *KeywordHeuristic) IsFreeChat(title string) bool {
	if h == nil || h.re == nil {
		return false
	}
	return h.re.MatchString(title)
}
