package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fintrack/internal/logging"
	"fintrack/internal/observability"
	"fintrack/internal/perception"
	"fintrack/internal/session"
	"fintrack/internal/types"
)

// Stage names the step a message is in while moving through the pipeline.
type Stage string

const (
	StageClassifying  Stage = "classifying"
	StageSynthesizing Stage = "synthesizing"
	StageValidating   Stage = "validating"
	StageExecuting    Stage = "executing"
	StageFormatting   Stage = "formatting"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// IntentClassifier decides what kind of request a message is.
type IntentClassifier interface {
	Classify(ctx context.Context, message string) perception.Classification
}

// Synthesizer proposes a candidate operation for a message.
type Synthesizer interface {
	Synthesize(ctx context.Context, message string, userID int64) (types.CandidateOperation, error)
}

// Deps carries everything the orchestrator needs.
type Deps struct {
	Classifier IntentClassifier
	Queries    Synthesizer
	Mutations  Synthesizer
	Validator  *Validator
	Executor   *Executor
	Sessions   *session.Registry
	Logger     *zap.Logger
}

// Orchestrator drives one message through classify, synthesize, validate,
// execute, and format. Handle never returns an error: every failure mode
// collapses into a generic chat response while detail goes to the logs.
type Orchestrator struct {
	classifier IntentClassifier
	queries    Synthesizer
	mutations  Synthesizer
	validator  *Validator
	executor   *Executor
	formatter  *Formatter
	sessions   *session.Registry
	log        *zap.Logger
}

// NewOrchestrator wires the pipeline from its dependencies.
func NewOrchestrator(deps Deps) *Orchestrator {
	o := &Orchestrator{
		classifier: deps.Classifier,
		queries:    deps.Queries,
		mutations:  deps.Mutations,
		validator:  deps.Validator,
		executor:   deps.Executor,
		formatter:  NewFormatter(),
		sessions:   deps.Sessions,
		log:        logging.OrNop(deps.Logger),
	}
	if o.sessions == nil {
		o.sessions = session.NewRegistry(0)
	}
	if o.executor != nil && o.executor.Retried == nil {
		o.executor.Retried = observability.RecordExecutorRetry
	}
	return o
}

// Handle processes one message for one user and always produces a
// response.
func (o *Orchestrator) Handle(ctx context.Context, message string, userID int64) types.ChatResponse {
	start := time.Now()
	log := o.log.With(
		zap.String("request_id", uuid.NewString()),
		zap.Int64("user_id", userID),
	)

	stage := StageClassifying
	classification := o.classifier.Classify(ctx, message)
	observability.RecordRequest(string(classification.Intent))

	var resp types.ChatResponse
	switch classification.Intent {
	case types.IntentQuery, types.IntentMutation:
		resp = o.run(ctx, log, classification.Intent, message, userID, &stage)
	default:
		stage = StageFailed
		resp = o.formatter.InvalidRequest()
		log.Info("message not actionable",
			zap.Bool("transport_failure", classification.TransportFailure))
	}

	outcome := "success"
	if !resp.Success {
		outcome = "failure"
	}
	observability.ObserveDuration(outcome, time.Since(start))
	log.Info("message handled",
		zap.String("intent", string(classification.Intent)),
		zap.String("stage", string(stage)),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", time.Since(start)))

	o.sessions.Add(userID, session.Interaction{
		Message:  message,
		Intent:   string(classification.Intent),
		Response: resp.Response,
		Success:  resp.Success,
	})
	return resp
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, intent types.Intent, message string, userID int64, stage *Stage) types.ChatResponse {
	*stage = StageSynthesizing
	synth := o.queries
	if intent == types.IntentMutation {
		synth = o.mutations
	}
	candidate, err := synth.Synthesize(ctx, message, userID)
	if err != nil {
		*stage = StageFailed
		observability.RecordSynthesisFailure()
		log.Warn("synthesis rejected", zap.Error(err))
		return o.formatter.SynthesisFailed()
	}

	*stage = StageValidating
	op, err := o.validator.Validate(candidate, intent, userID)
	if err != nil {
		*stage = StageFailed
		rule := "unknown"
		var valErr *types.ValidationError
		if errors.As(err, &valErr) {
			rule = string(valErr.Rule)
		}
		observability.RecordValidationFailure(rule)
		log.Warn("operation rejected",
			zap.String("rule", rule),
			zap.String("table", candidate.Table),
			zap.Error(err))
		return o.formatter.ValidationFailed()
	}

	*stage = StageExecuting
	result, err := o.executor.Execute(ctx, op)
	if err != nil {
		*stage = StageFailed
		cause := types.CauseUnknown
		var execErr *types.ExecutionError
		if errors.As(err, &execErr) {
			cause = execErr.Cause
		}
		observability.RecordExecutionFailure(string(cause))
		log.Error("execution failed",
			zap.String("table", op.Table),
			zap.String("cause", string(cause)),
			zap.Error(err))
		return o.formatter.ExecutionFailed(cause)
	}

	*stage = StageFormatting
	var resp types.ChatResponse
	if intent == types.IntentQuery {
		resp = o.formatter.FormatQuery(result)
	} else {
		resp = o.formatter.FormatMutation(op, result)
	}
	*stage = StageDone
	return resp
}

// Reset clears the user's conversation history. Resetting twice in a row
// behaves the same as resetting once.
func (o *Orchestrator) Reset(_ context.Context, userID int64) types.ChatResponse {
	o.sessions.Clear(userID)
	return types.ChatResponse{
		Response: "Okay, I've cleared our conversation. What would you like to do?",
		Success:  true,
	}
}

// History returns the user's recent interactions, oldest first.
func (o *Orchestrator) History(userID int64, n int) []session.Interaction {
	return o.sessions.Recent(userID, n)
}
