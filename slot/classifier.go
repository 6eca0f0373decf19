package slot

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/logging"
	"github.com/hupe1980/slotflow/oracle"
	"github.com/hupe1980/slotflow/workflow"
)

var _ workflow.Classifier = (*IntentClassifier)(nil)

// IntentClassifier implements workflow.Classifier: the secondary judgment of
// whether an utterance that failed slot resolution is a deviation or a
// mangled selection attempt. It shares the resolver's oracle fallback
// infrastructure; when the oracle is down a keyword heuristic answers.
type IntentClassifier struct {
	oracle oracle.Oracle
	opts   Options
	logger logging.Logger
}

// NewIntentClassifier constructs a classifier backed by the given oracle. A
// nil oracle is allowed; classification then uses only the heuristic.
func NewIntentClassifier(orc oracle.Oracle, optFns ...func(o *Options)) *IntentClassifier {
	opts := Options{
		OracleTimeout: 10 * time.Second,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &IntentClassifier{oracle: orc, opts: opts, logger: opts.Logger}
}

// classifierReply is the structured reply format requested from the oracle.
type classifierReply struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classify implements workflow.Classifier. Never errors for oracle trouble.
func (c *IntentClassifier) Classify(ctx context.Context, utterance string, stage workflow.Stage) (*core.Classification, error) {
	if c.oracle != nil {
		if cls, ok := c.oracleClassify(ctx, utterance, stage); ok {
			return cls, nil
		}
	}
	return c.heuristic(utterance), nil
}

func (c *IntentClassifier) oracleClassify(ctx context.Context, utterance string, stage workflow.Stage) (*core.Classification, bool) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.OracleTimeout)
	defer cancel()

	instructions := "The user is currently being asked: " + stage.Prompt +
		" (options: " + stage.ChoiceList() + ").\n" +
		`Classify their reply into exactly one category: "selection" (an attempt, however clumsy, to pick an option), "question" (asking about the data or anything else), "visualization" (asking for a plot/map/chart), or "navigation" (asking to go back, skip or stop).` +
		` Reply with a single JSON object and nothing else: {"category": <category>, "confidence": <0.0-1.0>}.`

	resp, err := c.oracle.Complete(callCtx, oracle.Request{
		Instructions: instructions,
		Turns:        []core.Turn{core.NewUserTurn(utterance)},
	})
	if err != nil {
		c.logger.Warn("slot.classify.oracle_unavailable", "error", err.Error())
		return nil, false
	}

	var reply classifierReply
	if err := decodeJSONObject(resp.Text, &reply); err != nil {
		c.logger.Warn("slot.classify.unparseable", "error", err.Error())
		return nil, false
	}

	category := strings.ToLower(strings.TrimSpace(reply.Category))
	switch category {
	case "question", "visualization", "navigation":
		return &core.Classification{Deviation: true, Confidence: clamp01(reply.Confidence), Category: category}, true
	case "selection":
		return &core.Classification{Deviation: false, Confidence: clamp01(reply.Confidence), Category: category}, true
	default:
		c.logger.Warn("slot.classify.unknown_category", "category", reply.Category)
		return nil, false
	}
}

// heuristic is the degraded keyword classifier. Deliberately conservative:
// when nothing indicates a deviation, the utterance is treated as a selection
// attempt so the user gets a clarification instead of a tangent.
func (c *IntentClassifier) heuristic(utterance string) *core.Classification {
	norm := Normalize(utterance)

	vizWords := []string{"plot", "map", "chart", "graph", "visualize", "visualise", "draw", "show me"}
	for _, w := range vizWords {
		if strings.Contains(norm, w) {
			return &core.Classification{Deviation: true, Confidence: 0.7, Category: "visualization"}
		}
	}

	if strings.Contains(utterance, "?") {
		return &core.Classification{Deviation: true, Confidence: 0.7, Category: "question"}
	}
	questionWords := []string{"what", "why", "how", "which", "when", "where", "who", "can you", "could you", "tell me"}
	for _, w := range questionWords {
		if strings.HasPrefix(norm, w+" ") || norm == w {
			return &core.Classification{Deviation: true, Confidence: 0.6, Category: "question"}
		}
	}

	navWords := []string{"go back", "skip", "restart", "start over", "previous"}
	for _, w := range navWords {
		if strings.Contains(norm, w) {
			return &core.Classification{Deviation: true, Confidence: 0.6, Category: "navigation"}
		}
	}

	return &core.Classification{Deviation: false, Confidence: 0.6, Category: "selection"}
}
