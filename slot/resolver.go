// Package slot resolves free text into one canonical choice for a workflow
// stage. Resolution is two-tier: a fast normalized exact-match path that
// never touches the network, then an oracle fallback with a conservative
// keyword-containment baseline when the oracle is unavailable. The secondary
// deviation classifier (classifier.go) shares the same oracle infrastructure.
package slot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/slotflow/core"
	"github.com/hupe1980/slotflow/logging"
	"github.com/hupe1980/slotflow/oracle"
	"github.com/hupe1980/slotflow/workflow"
)

// baselineConfidence is reported by the keyword-containment fallback. It sits
// below any sensible accept threshold so degraded resolutions always end in
// clarification, never a silent wrong pick.
const baselineConfidence = 0.4

// Options configures the resolver.
type Options struct {
	// OracleTimeout bounds the fallback oracle call. Timeout degrades to the
	// keyword baseline instead of failing the turn.
	OracleTimeout time.Duration
	Logger        logging.Logger
}

var _ workflow.SlotResolver = (*Resolver)(nil)

// Resolver implements workflow.SlotResolver.
type Resolver struct {
	oracle oracle.Oracle
	opts   Options
	logger logging.Logger
}

// NewResolver constructs a resolver backed by the given oracle. A nil oracle
// is allowed; resolution then consists of the fast path plus the baseline.
func NewResolver(orc oracle.Oracle, optFns ...func(o *Options)) *Resolver {
	opts := Options{
		OracleTimeout: 10 * time.Second,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{oracle: orc, opts: opts, logger: opts.Logger}
}

// Resolve implements workflow.SlotResolver. It never returns an error for
// oracle trouble or unmatchable input; those terminate in a low-confidence
// resolution whose rationale feeds the clarification prompt.
func (r *Resolver) Resolve(ctx context.Context, utterance string, stage workflow.Stage, rctx workflow.ResolveContext) (*core.SlotResolution, error) {
	if value, ok := fastMatch(utterance, stage); ok {
		r.logger.Debug("slot.resolve.fastpath", "stage", stage.Name, "value", value)
		return &core.SlotResolution{Value: value, Confidence: 1.0}, nil
	}

	if r.oracle != nil {
		if res, ok := r.oracleResolve(ctx, utterance, stage, rctx); ok {
			return res, nil
		}
	}

	return r.baseline(utterance, stage), nil
}

// fastMatch checks the normalized utterance against every choice value and
// alias. A hit is confidence 1.0 with zero oracle invocations.
func fastMatch(utterance string, stage workflow.Stage) (string, bool) {
	norm := Normalize(utterance)
	if norm == "" {
		return "", false
	}
	sq := squash(utterance)

	for _, c := range stage.Choices {
		for _, token := range append([]string{c.Value}, c.Aliases...) {
			if norm == Normalize(token) || (sq != "" && sq == squash(token)) {
				return c.Value, true
			}
		}
	}
	return "", false
}

// oracleReply is the structured reply format requested from the oracle.
type oracleReply struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// oracleResolve asks the oracle to map the utterance onto the closed choice
// list. ok=false (timeout, API failure, unparseable reply) sends the caller
// to the baseline.
func (r *Resolver) oracleResolve(ctx context.Context, utterance string, stage workflow.Stage, rctx workflow.ResolveContext) (*core.SlotResolution, bool) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.OracleTimeout)
	defer cancel()

	start := time.Now()
	resp, err := r.oracle.Complete(callCtx, oracle.Request{
		Instructions: resolveInstructions(stage, rctx),
		Turns:        []core.Turn{core.NewUserTurn(utterance)},
	})
	if err != nil {
		r.logger.Warn("slot.resolve.oracle_unavailable", "stage", stage.Name, "duration", time.Since(start).String(), "error", err.Error())
		return nil, false
	}

	var reply oracleReply
	if err := decodeJSONObject(resp.Text, &reply); err != nil {
		r.logger.Warn("slot.resolve.unparseable", "stage", stage.Name, "error", err.Error())
		return nil, false
	}

	res := &core.SlotResolution{Confidence: clamp01(reply.Confidence), Rationale: reply.Rationale}
	if reply.Value != nil {
		// The oracle must answer from the closed set; anything else is
		// treated as unresolved.
		if canonical, ok := fastMatch(*reply.Value, stage); ok {
			res.Value = canonical
		} else {
			r.logger.Warn("slot.resolve.off_list", "stage", stage.Name, "value", *reply.Value)
			res.Confidence = 0
			if res.Rationale == "" {
				res.Rationale = "I couldn't match that to one of the available options."
			}
		}
	}
	r.logger.Debug("slot.resolve.oracle", "stage", stage.Name, "value", res.Value, "confidence", res.Confidence)
	return res, true
}

// resolveInstructions builds the slot-filling system prompt: slot type,
// closed choice list and prior selections for context.
func resolveInstructions(stage workflow.Stage, rctx workflow.ResolveContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You map a user's reply onto exactly one canonical value for the slot %q.\n", stage.Name)
	fmt.Fprintf(&b, "Legal values: %s.\n", stage.ChoiceList())
	if len(rctx.Selections) > 0 {
		fmt.Fprintf(&b, "Choices made so far: %v.\n", rctx.Selections)
	}
	b.WriteString(`Reply with a single JSON object and nothing else: {"value": <legal value or null>, "confidence": <0.0-1.0>, "rationale": <short explanation>}. Use null when the reply is not an attempt to pick one of the legal values.`)
	return b.String()
}

// baseline is the conservative keyword-containment classifier used when the
// oracle is unavailable or its reply was unusable. A single unambiguous
// containment hit yields a low-confidence candidate; anything else is
// unresolved.
func (r *Resolver) baseline(utterance string, stage workflow.Stage) *core.SlotResolution {
	norm := Normalize(utterance)
	if norm == "" {
		return &core.SlotResolution{Rationale: "I didn't catch a choice in that."}
	}

	var hits []string
	for _, c := range stage.Choices {
		for _, token := range append([]string{c.Value}, c.Aliases...) {
			t := Normalize(token)
			if t != "" && strings.Contains(" "+norm+" ", " "+t+" ") {
				hits = append(hits, c.Value)
				break
			}
		}
	}

	switch len(hits) {
	case 1:
		r.logger.Debug("slot.resolve.baseline", "stage", stage.Name, "value", hits[0])
		return &core.SlotResolution{
			Value:      hits[0],
			Confidence: baselineConfidence,
			Rationale:  fmt.Sprintf("I think you mean %q, but I'm not certain.", hits[0]),
		}
	case 0:
		return &core.SlotResolution{Rationale: "I couldn't match that to one of the available options."}
	default:
		return &core.SlotResolution{Rationale: fmt.Sprintf("That could mean any of %s.", strings.Join(hits, ", "))}
	}
}

// decodeJSONObject extracts and decodes the first JSON object embedded in
// text, tolerating prose around it.
func decodeJSONObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in oracle reply")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
