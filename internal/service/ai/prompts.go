package ai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zhouzirui/boardroom/internal/model/chat"
	"github.com/zhouzirui/boardroom/internal/model/orchestration"
	"github.com/zhouzirui/boardroom/internal/model/persona"
)

// ConversationContext 为一次运行共享的上下文：用户档案、记忆与近期对话。
type ConversationContext struct {
	Profile map[string]string
	// Fields 决定档案字段的输出顺序，未列出的字段按字母序追加。
	Fields   []string
	Memories []chat.Memory
	History  []chat.Message
}

// Render 生成发送给模型的上下文块。
func (c ConversationContext) Render() string {
	var b strings.Builder
	if profile := c.RenderProfile(); profile != "" {
		b.WriteString("USER PROFILE:\n")
		b.WriteString(profile)
	}
	if memories := c.RenderMemories(); memories != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("RELEVANT MEMORIES:\n")
		b.WriteString(memories)
	}
	if history := c.RenderHistory(); history != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("RECENT CONVERSATION:\n")
		b.WriteString(history)
	}
	return b.String()
}

// RenderProfile 以 "Name: value" 行输出档案。
func (c ConversationContext) RenderProfile() string {
	if len(c.Profile) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(c.Profile))
	var lines []string
	add := func(field string) {
		if _, ok := seen[field]; ok {
			return
		}
		seen[field] = struct{}{}
		value := strings.TrimSpace(c.Profile[field])
		if value == "" {
			return
		}
		lines = append(lines, fmt.Sprintf("%s: %s", fieldLabel(field), value))
	}
	for _, field := range c.Fields {
		add(field)
	}
	rest := make([]string, 0, len(c.Profile))
	for field := range c.Profile {
		if _, ok := seen[field]; !ok {
			rest = append(rest, field)
		}
	}
	sort.Strings(rest)
	for _, field := range rest {
		add(field)
	}
	return strings.Join(lines, "\n")
}

// RenderMemories lists memory notes oldest first.
func (c ConversationContext) RenderMemories() string {
	lines := make([]string, 0, len(c.Memories))
	for _, m := range c.Memories {
		if content := strings.TrimSpace(m.Content); content != "" {
			lines = append(lines, "- "+strings.ReplaceAll(content, "\n", " | "))
		}
	}
	return strings.Join(lines, "\n")
}

// RenderHistory formats recent turns as "User:" / "Board:" lines.
func (c ConversationContext) RenderHistory() string {
	lines := make([]string, 0, len(c.History))
	for _, msg := range c.History {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := "User"
		if msg.Role == chat.RoleAssistant {
			role = "Board"
			if msg.Agent != "" {
				role = "Board (" + msg.Agent + ")"
			}
		}
		lines = append(lines, role+": "+content)
	}
	return strings.Join(lines, "\n")
}

func fieldLabel(field string) string {
	words := strings.Fields(strings.ReplaceAll(field, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// PersonaSystemPrompt 组合 persona 的系统提示。
func PersonaSystemPrompt(p persona.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s (%s) on the user's executive advisory board.\n", p.Name, p.Key)
	if p.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", p.Role)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(p.Prompt))
	b.WriteString("\n\nStay inside your domain. Be specific to the user's situation, concise and direct. Other board members cover other domains.")
	return b.String()
}

// PersonaUserPrompt 生成 persona 需要回答的问题。
func PersonaUserPrompt(sq orchestration.SubQuery) string {
	query := strings.TrimSpace(sq.Query)
	focus := strings.TrimSpace(sq.Focus)
	if focus == "" || strings.EqualFold(focus, query) {
		return query
	}
	return fmt.Sprintf("%s\n\nFocus your answer on: %s", query, focus)
}

// Contribution is one successful persona answer fed into synthesis.
type Contribution struct {
	Persona persona.Persona
	Content string
}

const synthesisSystemPrompt = `You are the chair of an executive advisory board. Several board members answered the user's question from their own domains.
Write one unifying executive summary: reconcile agreements and tensions between the advisors, then give a single prioritized recommendation and the next steps.
Do not repeat each answer in full. Where an advisor was unavailable, do not invent their view.`

// SynthesisRequest 构造汇总调用的提示。
func SynthesisRequest(message string, contributions []Contribution, unavailable []persona.Persona) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "USER QUESTION:\n%s\n\nBOARD RESPONSES:\n\n", strings.TrimSpace(message))
	b.WriteString(JoinContributions(contributions))
	if len(unavailable) > 0 {
		names := make([]string, len(unavailable))
		for i, p := range unavailable {
			names[i] = p.Label()
		}
		fmt.Fprintf(&b, "\n\nUNAVAILABLE: %s did not respond in time.", strings.Join(names, ", "))
	}
	b.WriteString("\n\nProvide the unified executive summary.")
	return synthesisSystemPrompt, b.String()
}

// JoinContributions 以 "=== emoji name ===" 分隔各成员回答，合成失败时也直接作为聚合答案。
func JoinContributions(contributions []Contribution) string {
	blocks := make([]string, 0, len(contributions))
	for _, c := range contributions {
		blocks = append(blocks, fmt.Sprintf("=== %s ===\n%s", c.Persona.Label(), strings.TrimSpace(c.Content)))
	}
	return strings.Join(blocks, "\n\n")
}

// FallbackSystemPrompt 为所有 persona 都失败后的通才兜底提示。
func FallbackSystemPrompt(generalist persona.Persona) string {
	return PersonaSystemPrompt(generalist) +
		"\n\nThe specialist advisors could not answer this time. Give the most useful general answer you can."
}
