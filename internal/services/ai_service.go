package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"skylearn-chat/internal/llm"
	"skylearn-chat/pkg/logger"
)

// Tone values for the optional reply transformation.
const (
	ToneProfessional = "professional"
	ToneFriendly     = "friendly"
	ToneCasual       = "casual"
	ToneFormal       = "formal"
)

// Auto-respond policies for ShouldRespond.
const (
	PolicyAlways     = "always"
	PolicyOffline    = "offline"
	PolicyBusy       = "busy"
	PolicyAfterHours = "afterHours"
)

const degradedConfidence = 0.3

// AIConfig controls one auto-respond invocation. An empty Policy responds
// unconditionally, like PolicyAlways.
type AIConfig struct {
	Enabled             bool
	ConfidenceThreshold float64
	Tone                string
	ResponseDelay       time.Duration
	Policy              string
}

// AIReply is the orchestrator's output. A degraded reply (produced after a
// timeout or provider failure) has the same shape as a normal one, but a
// deliberately low confidence that operator tooling can key on.
type AIReply struct {
	Content      string
	Confidence   float64
	Intent       string
	IsAI         bool
	Degraded     bool
	QuickReplies []string
}

// AIOrchestrator runs the auto-responder pipeline: classify under a hard
// timeout, gate on confidence, generate under a second timeout, and apply
// tone/delay adjustments. Failures are contained; callers never see an
// error, only a reply or nil.
type AIOrchestrator struct {
	generator        llm.TextGenerator
	classifyTimeout  time.Duration
	generateTimeout  time.Duration
	defaultThreshold float64
	log              *logger.Logger
	now              func() time.Time
}

func NewAIOrchestrator(generator llm.TextGenerator, classifyTimeout, generateTimeout time.Duration, defaultThreshold float64, log *logger.Logger) *AIOrchestrator {
	if classifyTimeout <= 0 {
		classifyTimeout = 10 * time.Second
	}
	if generateTimeout <= 0 {
		generateTimeout = 15 * time.Second
	}
	if defaultThreshold <= 0 {
		defaultThreshold = 0.4
	}
	return &AIOrchestrator{
		generator:        generator,
		classifyTimeout:  classifyTimeout,
		generateTimeout:  generateTimeout,
		defaultThreshold: defaultThreshold,
		log:              log,
		now:              time.Now,
	}
}

// Respond produces an automated reply for a user message, or nil when the
// classified confidence falls below the threshold. Any classify/generate
// failure, including timeout, yields a degraded canned reply instead of an
// error.
func (o *AIOrchestrator) Respond(ctx context.Context, userMessage string, history []llm.Message, cfg AIConfig) *AIReply {
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = o.defaultThreshold
	}

	cls, err := raceTimeout(ctx, o.classifyTimeout, func(ctx context.Context) (llm.Classification, error) {
		return o.generator.Classify(ctx, userMessage)
	})
	if err != nil {
		if o.log != nil {
			o.log.Warnf("ai: classification failed: %v", err)
		}
		return o.degradedReply(err)
	}

	// A confidence exactly at the threshold qualifies.
	if cls.Confidence < threshold {
		return nil
	}

	text, err := raceTimeout(ctx, o.generateTimeout, func(ctx context.Context) (string, error) {
		return o.generator.Generate(ctx, userMessage, history)
	})
	if err != nil {
		if o.log != nil {
			o.log.Warnf("ai: generation failed: %v", err)
		}
		return o.degradedReply(err)
	}

	text = ApplyTone(text, cfg.Tone)

	if cfg.ResponseDelay > 0 {
		select {
		case <-time.After(cfg.ResponseDelay):
		case <-ctx.Done():
		}
	}

	return &AIReply{
		Content:    text,
		Confidence: cls.Confidence,
		Intent:     cls.Intent,
		IsAI:       true,
	}
}

// degradedReply distinguishes timeout from provider error in wording only,
// for operator diagnostics; the shape is that of a normal reply.
func (o *AIOrchestrator) degradedReply(cause error) *AIReply {
	content := "I'm having trouble reaching our assistant service right now. A member of our support team will follow up with you shortly."
	if errors.Is(cause, context.DeadlineExceeded) {
		content = "Our assistant is taking longer than expected to respond. A member of our support team will follow up with you shortly."
	}
	return &AIReply{
		Content:    content,
		Confidence: degradedConfidence,
		Intent:     "degraded",
		IsAI:       true,
		Degraded:   true,
	}
}

// raceTimeout bounds fn by the timeout. On losing the race the eventual
// result of fn is discarded, not cancelled at the transport level; the
// buffered channel lets the late goroutine finish and be collected.
func raceTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(callCtx)
		ch <- outcome{value: v, err: err}
	}()

	select {
	case out := <-ch:
		return out.value, out.err
	case <-callCtx.Done():
		var zero T
		return zero, context.DeadlineExceeded
	}
}

// ShouldRespond is the pure decision table mapping the current support
// status and the configured policy to an auto-respond verdict.
func (o *AIOrchestrator) ShouldRespond(supportStatus, policy string) bool {
	switch policy {
	case PolicyAlways:
		return true
	case PolicyOffline:
		return supportStatus == "offline"
	case PolicyBusy:
		return supportStatus == "busy" || supportStatus == "offline"
	case PolicyAfterHours:
		hour := o.now().Hour()
		return hour < 9 || hour >= 17 || supportStatus == "offline"
	default:
		return false
	}
}

var toneSubstitutions = map[string][][2]string{
	ToneProfessional: {
		{"yeah", "yes"},
		{"nope", "no"},
		{"thanks", "thank you"},
		{"hi", "hello"},
	},
	ToneFriendly: {
		{"hello", "hi there"},
		{"regards", "cheers"},
	},
	ToneCasual: {
		{"hello", "hey"},
		{"thank you", "thanks"},
		{"certainly", "sure"},
	},
	ToneFormal: {
		{"hi", "good day"},
		{"thanks", "thank you kindly"},
		{"sure", "certainly"},
	},
}

// ApplyTone rewrites a reply with the lexical substitutions of the selected
// tone. Unknown or empty tones leave the text untouched.
func ApplyTone(text, tone string) string {
	subs, ok := toneSubstitutions[tone]
	if !ok {
		return text
	}
	for _, pair := range subs {
		text = replaceWord(text, pair[0], pair[1])
	}
	return text
}

// replaceWord does a whole-word, case-insensitive replacement.
func replaceWord(text, from, to string) string {
	var b strings.Builder
	words := strings.Split(text, " ")
	for i, w := range words {
		if i > 0 {
			b.WriteString(" ")
		}
		trimmed := strings.Trim(w, ".,!?;:")
		if strings.EqualFold(trimmed, from) {
			b.WriteString(strings.Replace(w, trimmed, to, 1))
		} else {
			b.WriteString(w)
		}
	}
	return b.String()
}
