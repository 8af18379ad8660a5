package tutor

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/language-partner/backend/internal/model/tutor"
)

// PromptBuilder renders the system prompts sent to the chat model.
type PromptBuilder struct {
	rules []string
}

// NewPromptBuilder creates a builder with the default conversation rules.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		rules: []string{
			"Reply only in the target language, never in the student's language.",
			"Keep each reply to two or three short sentences.",
			"End with a question so the student keeps talking.",
			"If the student makes a mistake, repeat the sentence correctly before continuing.",
		},
	}
}

// SystemPrompt builds the tutor system prompt for a profile.
func (b *PromptBuilder) SystemPrompt(profile tutor.Profile) string {
	language := languageName(profile)

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a language tutor, having a conversation in %s with a student. Ask questions, and be friendly.", language)
	if profile.Name != "" {
		fmt.Fprintf(&sb, "\nYour name is %s", profile.Name)
		if profile.Title != "" {
			fmt.Fprintf(&sb, ", %s", profile.Title)
		}
		sb.WriteString(".")
	}
	if profile.Scenario != "" {
		fmt.Fprintf(&sb, "\n\nScenario: %s", profile.Scenario)
	}
	if profile.PromptHint != "" {
		fmt.Fprintf(&sb, "\nStyle: %s", profile.PromptHint)
	}
	sb.WriteString("\n\nRules:\n- ")
	sb.WriteString(strings.Join(b.rules, "\n- "))
	if profile.OpeningLine != "" {
		fmt.Fprintf(&sb, "\n\nYou opened the conversation with: %s", profile.OpeningLine)
	}
	return sb.String()
}

// KeywordPrompt builds the instruction for the vocabulary extraction call.
func (b *PromptBuilder) KeywordPrompt(profile tutor.Profile) string {
	return fmt.Sprintf(`You are a linguistic expert. Extract the important vocabulary words (nouns, verbs and adverbs) from the following %s text that a student should learn.
Copy each word exactly as it is written in the text.
Reply with the words separated by commas, as plain text, without numbering, translations or explanations.`, languageName(profile))
}

func languageName(profile tutor.Profile) string {
	if profile.LanguageName != "" {
		return profile.LanguageName
	}
	if profile.Language != "" {
		return profile.Language
	}
	return "Japanese"
}
