// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"strings"
)

// Category labels the kind of work a request represents.
type Category string

const (
	CategoryCrisis           Category = "crisis"
	CategoryMetaCoordination Category = "meta_coordination"
	CategoryCodeGeneration   Category = "code_generation"
	CategoryComplex          Category = "complex"
	CategorySummarization    Category = "summarization"
	CategoryClassification   Category = "classification"
	CategoryExtraction       Category = "extraction"
	CategorySimpleResponse   Category = "simple_response"
	CategoryGeneral          Category = "general"
)

// Complexity grades how demanding a request is.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

// Message is one turn of the conversation being classified.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestContext carries everything the classifier inspects. It is built
// per request by the caller and never retained.
type RequestContext struct {
	// Messages is the ordered conversation history; the latest user
	// message drives keyword rules.
	Messages []Message `json:"messages"`

	// TaskCategory, when set, bypasses all heuristics.
	TaskCategory Category `json:"task_category,omitempty"`

	// Tools lists tool names attached to the request.
	Tools []string `json:"tools,omitempty"`

	// TierOverride, when set, replaces the suggested tier (clamped to 0-4).
	TierOverride *int `json:"tier_override,omitempty"`
}

// Result is the classifier's decision. Created fresh per request,
// immutable, consumed immediately by the router.
type Result struct {
	Category      Category   `json:"category"`
	SuggestedTier int        `json:"suggested_tier"`
	Complexity    Complexity `json:"complexity"`
	Confidence    float64    `json:"confidence"`
}

// Confidence levels per rule kind. Keyword matches must exceed the
// default so callers can log low-confidence routings.
const (
	confidenceOverride = 1.0
	confidenceKeyword  = 0.85
	confidenceDefault  = 0.5
)

// Thresholds for the complexity escalation rule.
const (
	longContentThreshold = 10000 // combined message characters
	manyToolsThreshold   = 3
)

// Keyword sets are bilingual (English/Spanish), matched case-insensitively
// against the latest user message.
var (
	crisisKeywords = []string{
		"suicide", "suicidal", "kill myself", "self-harm", "self harm",
		"hurt myself", "end my life", "want to die",
		"suicidio", "suicidarme", "matarme", "quitarme la vida",
		"hacerme daño", "quiero morir",
	}

	metaKeywords = []string{
		"rethink the strategy", "rethink our strategy", "coordinate agents",
		"coordinate the agents", "multi-agent", "orchestrate", "replan",
		"replantear la estrategia", "coordinar agentes", "reorganizar el plan",
	}

	greetings = []string{
		"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
		"thanks", "thank you",
		"hola", "buenos días", "buenas tardes", "buenas noches", "gracias",
	}

	yesNoMarkers = []string{"yes or no", "yes/no", "sí o no", "si o no"}

	extractionFields = []string{
		"email", "date", "name", "phone",
		"correo", "fecha", "nombre", "teléfono",
	}

	codeKeywords = []string{
		"write a function", "implement", "refactor", "debug", "write code",
		"unit test", "stack trace",
		"escribe una función", "implementa", "código",
	}

	summaryKeywords = []string{
		"summarize", "summary", "tl;dr", "key points",
		"resume", "resumen", "resumir", "puntos clave",
	}
)

// TierTable maps a category to its resource tier. Exposed so the model
// registry and the classifier agree on a single source of truth.
var TierTable = map[Category]int{
	CategoryCrisis:           4,
	CategoryMetaCoordination: 4,
	CategoryCodeGeneration:   3,
	CategoryComplex:          3,
	CategorySummarization:    2,
	CategoryGeneral:          2,
	CategoryClassification:   1,
	CategoryExtraction:       1,
	CategorySimpleResponse:   1,
}

// DefaultTier is used for any category missing from TierTable.
const DefaultTier = 2

// TierForCategory resolves a category to its tier via TierTable, falling
// back to DefaultTier for unmapped categories.
func TierForCategory(category Category) int {
	if tier, ok := TierTable[category]; ok {
		return tier
	}
	return DefaultTier
}

// Classify assigns a category, complexity, suggested tier and confidence
// to a request without any model call.
//
// Rules run in a fixed order and the first match wins; the ordering is a
// contract, not an implementation detail:
//
//  1. explicit category override
//  2. crisis detection
//  3. meta-coordination detection
//  4. simple-task detection (yes/no, greeting, field extraction)
//  5. complexity escalation (long content or many tools)
//  6. summarization detection
//  7. default
//
// Classification never fails: every input reaches the default rule.
func Classify(reqCtx RequestContext) Result {
	result := classify(reqCtx)

	if reqCtx.TierOverride != nil {
		tier := *reqCtx.TierOverride
		if tier < 0 {
			tier = 0
		}
		if tier > 4 {
			tier = 4
		}
		result.SuggestedTier = tier
	}

	return result
}

func classify(reqCtx RequestContext) Result {
	// Rule 1: explicit override.
	if reqCtx.TaskCategory != "" {
		return Result{
			Category:      reqCtx.TaskCategory,
			SuggestedTier: TierForCategory(reqCtx.TaskCategory),
			Complexity:    complexityForTier(TierForCategory(reqCtx.TaskCategory)),
			Confidence:    confidenceOverride,
		}
	}

	latest := strings.ToLower(latestUserMessage(reqCtx.Messages))

	// Rule 2: crisis indicators override every other signal.
	if containsAny(latest, crisisKeywords) {
		return Result{
			Category:      CategoryCrisis,
			SuggestedTier: 4,
			Complexity:    ComplexityCritical,
			Confidence:    confidenceKeyword,
		}
	}

	// Rule 3: strategy/coordination requests.
	if containsAny(latest, metaKeywords) {
		return Result{
			Category:      CategoryMetaCoordination,
			SuggestedTier: 4,
			Complexity:    ComplexityComplex,
			Confidence:    confidenceKeyword,
		}
	}

	// Rule 4: simple tasks.
	if isYesNoQuestion(latest) {
		return Result{
			Category:      CategoryClassification,
			SuggestedTier: 1,
			Complexity:    ComplexitySimple,
			Confidence:    confidenceKeyword,
		}
	}
	if isGreeting(latest) {
		return Result{
			Category:      CategorySimpleResponse,
			SuggestedTier: 1,
			Complexity:    ComplexitySimple,
			Confidence:    confidenceKeyword,
		}
	}
	if isFieldExtraction(latest) {
		return Result{
			Category:      CategoryExtraction,
			SuggestedTier: 1,
			Complexity:    ComplexitySimple,
			Confidence:    confidenceKeyword,
		}
	}

	// Rule 5: long content or many tools escalate.
	if totalContentLength(reqCtx.Messages) > longContentThreshold || len(reqCtx.Tools) > manyToolsThreshold {
		category := CategoryComplex
		if containsAny(latest, codeKeywords) {
			category = CategoryCodeGeneration
		}
		return Result{
			Category:      category,
			SuggestedTier: 3,
			Complexity:    ComplexityComplex,
			Confidence:    confidenceKeyword,
		}
	}

	// Rule 6: summarization.
	if containsAny(latest, summaryKeywords) {
		return Result{
			Category:      CategorySummarization,
			SuggestedTier: 2,
			Complexity:    ComplexityModerate,
			Confidence:    confidenceKeyword,
		}
	}

	// Rule 7: the catch-all. Never leaves the tier unset.
	return Result{
		Category:      CategoryGeneral,
		SuggestedTier: 2,
		Complexity:    ComplexityModerate,
		Confidence:    confidenceDefault,
	}
}

// latestUserMessage returns the content of the most recent user turn,
// falling back to the last message of any role.
func latestUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}

func totalContentLength(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func isYesNoQuestion(text string) bool {
	if !strings.Contains(text, "?") {
		return false
	}
	return containsAny(text, yesNoMarkers)
}

func isGreeting(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 60 {
		return false
	}
	// Word-level match so "hi" does not fire inside "this".
	words := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
	})
	for _, greeting := range greetings {
		if strings.Contains(greeting, " ") {
			if strings.Contains(trimmed, greeting) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == greeting {
				return true
			}
		}
	}
	return false
}

func isFieldExtraction(text string) bool {
	if !strings.Contains(text, "extract") && !strings.Contains(text, "extrae") {
		return false
	}
	return containsAny(text, extractionFields)
}

func complexityForTier(tier int) Complexity {
	switch {
	case tier >= 4:
		return ComplexityCritical
	case tier == 3:
		return ComplexityComplex
	case tier <= 1:
		return ComplexitySimple
	default:
		return ComplexityModerate
	}
}
