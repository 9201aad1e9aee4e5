package perception

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"fintrack/internal/logging"
	"fintrack/internal/types"
)

const classifierSystemPrompt = `You classify user messages for a personal finance assistant.
Given a message, decide whether the user wants to:
1. Read or summarize existing data -> answer QUERY
2. Create or modify data -> answer MUTATION
3. Something unrelated to their finances, or unintelligible -> answer INVALID

Examples:
"Show me my expenses last month" -> QUERY
"How much did I spend on groceries?" -> QUERY
"Add a $50 dinner expense" -> MUTATION
"Rename my 'Food' category to 'Groceries'" -> MUTATION
"Tell me a joke" -> INVALID

Answer with exactly one word: QUERY, MUTATION, or INVALID.`

// Classification is the classifier's total result. TransportFailure is set
// when the completion service failed and the intent was forced to INVALID.
type Classification struct {
	Intent           types.Intent
	TransportFailure bool
}

// Classifier maps a user message to one of the closed set of intents.
// It never fails: every outcome is a valid Classification.
type Classifier struct {
	llm CompletionClient
	log *zap.Logger
}

// NewClassifier creates a classifier over the given completion client.
func NewClassifier(llm CompletionClient, log *zap.Logger) *Classifier {
	return &Classifier{llm: llm, log: logging.OrNop(log)}
}

// Classify determines the intent of message. Empty input short-circuits to
// INVALID without spending a model call; completion failures are recovered
// as INVALID with the transport flag set.
func (c *Classifier) Classify(ctx context.Context, message string) Classification {
	if strings.TrimSpace(message) == "" {
		return Classification{Intent: types.IntentInvalid}
	}

	completion, err := c.llm.CompleteWithSystem(ctx, classifierSystemPrompt, message)
	if err != nil {
		c.log.Warn("intent classification failed, treating as invalid", zap.Error(err))
		return Classification{Intent: types.IntentInvalid, TransportFailure: true}
	}

	return Classification{Intent: mapCompletion(completion)}
}

// mapCompletion maps completion text onto the closed intent vocabulary with
// case-insensitive prefix matching. Anything unrecognized is INVALID.
func mapCompletion(completion string) types.Intent {
	text := strings.ToUpper(strings.TrimSpace(completion))
	switch {
	case strings.HasPrefix(text, string(types.IntentQuery)):
		return types.IntentQuery
	case strings.HasPrefix(text, string(types.IntentMutation)):
		return types.IntentMutation
	default:
		return types.IntentInvalid
	}
}
