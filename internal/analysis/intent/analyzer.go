// Package intent 提供无需调用大模型的意图与 persona 关键词分析。
package intent

import (
	"regexp"
	"sort"
	"strings"

	"github.com/zhouzirui/boardroom/internal/model/persona"
)

// Label 表示消息的意图类别。
type Label string

const (
	Decision   Label = "decision"
	Analysis   Label = "analysis"
	Planning   Label = "planning"
	Brainstorm Label = "brainstorm"
	CheckIn    Label = "check-in"
)

// MaxPersonas caps how many advisors a keyword match may select.
const MaxPersonas = 3

// Score 为单个 persona 的关键词命中情况。
type Score struct {
	Key   persona.Key
	Score int
	Hits  []string
}

// Result 汇总一次关键词分析的结果。
type Result struct {
	Intent   Label
	Scores   []Score
	Selected []persona.Key
}

var intentBuckets = []struct {
	label    Label
	keywords []string
}{
	{Decision, []string{"should we", "should i", "decide", "decision", "whether", "or not", "choose", "versus", "vs", "worth it"}},
	{Planning, []string{"plan", "roadmap", "timeline", "next steps", "how do i", "how should", "prepare", "milestone", "90 days"}},
	{Brainstorm, []string{"ideas", "brainstorm", "what if", "creative", "options for", "alternatives"}},
	{CheckIn, []string{"update", "progress", "check in", "check-in", "status", "how am i doing"}},
}

// ClassifyIntent 根据关键词猜测意图，没有命中时视为 analysis。
func ClassifyIntent(text string) Label {
	normalized := normalize(text)
	best, bestScore := Analysis, 0
	for _, bucket := range intentBuckets {
		score := 0
		for _, kw := range bucket.keywords {
			if containsWord(normalized, kw) {
				score++
			}
		}
		// 同分时保留先出现的桶，保证结果稳定。
		if score > bestScore {
			best, bestScore = bucket.label, score
		}
	}
	return best
}

// Analyze 对消息做意图分类并按触发词为 persona 打分。
func Analyze(text string, personas []persona.Persona) Result {
	normalized := normalize(text)
	result := Result{Intent: ClassifyIntent(text)}

	for _, p := range personas {
		s := Score{Key: p.Key}
		for _, kw := range p.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || !containsWord(normalized, kw) {
				continue
			}
			// 多词短语比单词更具指向性。
			weight := 1
			if strings.Contains(kw, " ") {
				weight = 2
			}
			s.Score += weight
			s.Hits = append(s.Hits, kw)
		}
		if s.Score > 0 {
			result.Scores = append(result.Scores, s)
		}
	}

	sort.SliceStable(result.Scores, func(i, j int) bool {
		return result.Scores[i].Score > result.Scores[j].Score
	})

	if len(result.Scores) == 0 {
		return result
	}
	best := result.Scores[0].Score
	for _, s := range result.Scores {
		if len(result.Selected) == MaxPersonas || s.Score*2 < best {
			break
		}
		result.Selected = append(result.Selected, s.Key)
	}
	return result
}

var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z][A-Za-z0-9_-]*)`)

// ParseMentions 返回消息中的 @TAG 标记（不含 @），按出现顺序去重，忽略大小写。
// 邮箱地址中的 @ 不会被识别。
func ParseMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := m[1]
		lower := strings.ToLower(tag)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// StripMentions 去掉所有 @TAG 标记并压缩空白，用于给 persona 的提问。
func StripMentions(text string) string {
	stripped := mentionPattern.ReplaceAllStringFunc(text, func(m string) string {
		if idx := strings.Index(m, "@"); idx > 0 {
			return m[:idx]
		}
		return ""
	})
	return strings.Join(strings.Fields(stripped), " ")
}

func normalize(text string) string {
	lower := strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(lower) + 2)
	b.WriteByte(' ')
	for _, r := range lower {
		switch {
		case r == '&' || r == '-' || r == ':':
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// don't -> dont
		case isWordRune(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	b.WriteByte(' ')
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsWord 以整词方式匹配关键词，避免 "it" 命中 "with"。
func containsWord(normalized, keyword string) bool {
	keyword = normalize(keyword)
	if keyword == "" {
		return false
	}
	return strings.Contains(" "+normalized+" ", " "+keyword+" ")
}

func isWordRune(r rune) bool {
	return r == '_' || r == '$' || r == '+' || r == '/' ||
		('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 0x7f
}
