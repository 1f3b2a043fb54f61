package limitimer

import (
	"strings"
	"sync/atomic"
)

// Delimiter terminates every token in both directions.
const Delimiter = "\r"

// effectKind tags what a token does to the state.
type effectKind uint8

const (
	effectLED effectKind = iota + 1
	effectFlag
	effectPulse
)

// effect is one entry of the token table.
type effect struct {
	kind  effectKind
	field Field
	led   LEDState
	flag  bool
}

func ledEffect(f Field, s LEDState) effect { return effect{kind: effectLED, field: f, led: s} }
func flagEffect(f Field, v bool) effect    { return effect{kind: effectFlag, field: f, flag: v} }

// exactTokens maps every fixed inbound token to its effect.
var exactTokens = map[string]effect{
	"P1LEDON": ledEffect(FieldProgram1LED, LEDOn),
	"P1LEDDM": ledEffect(FieldProgram1LED, LEDDim),
	"P1LEDOF": ledEffect(FieldProgram1LED, LEDOff),

	"P2LEDON": ledEffect(FieldProgram2LED, LEDOn),
	"P2LEDDM": ledEffect(FieldProgram2LED, LEDDim),
	"P2LEDOF": ledEffect(FieldProgram2LED, LEDOff),

	"P3LEDON": ledEffect(FieldProgram3LED, LEDOn),
	"P3LEDDM": ledEffect(FieldProgram3LED, LEDDim),
	"P3LEDOF": ledEffect(FieldProgram3LED, LEDOff),

	"SESLEDON": ledEffect(FieldSessionLED, LEDOn),
	"SESLEDDM": ledEffect(FieldSessionLED, LEDDim),
	"SESLEDOF": ledEffect(FieldSessionLED, LEDOff),

	"BPLEDON":  flagEffect(FieldBeepLED, true),
	"BPLEDOF":  flagEffect(FieldBeepLED, false),
	"BKLEDON":  flagEffect(FieldBlinkLED, true),
	"BKLEDOF":  flagEffect(FieldBlinkLED, false),
	"GRNLEDON": flagEffect(FieldGreenLED, true),
	"GRNLEDOF": flagEffect(FieldGreenLED, false),
	"YELLEDON": flagEffect(FieldYellowLED, true),
	"YELLEDOF": flagEffect(FieldYellowLED, false),
	"REDLEDON": flagEffect(FieldRedLED, true),
	"REDLEDOF": flagEffect(FieldRedLED, false),
	"SMON":     flagEffect(FieldSecondsMode, true),
	"SMOF":     flagEffect(FieldSecondsMode, false),

	"BEEP": {kind: effectPulse},
}

// prefixTokens are checked in order when no exact token matches. The payload
// after the prefix is stored verbatim.
var prefixTokens = []struct {
	prefix string
	field  Field
}{
	{"TTSTR=", FieldTotalTime},
	{"STSTR=", FieldSumUpTime},
	{"RTSTR=", FieldRemainingTime},
}

// Outcome describes what Decode did with a line.
type Outcome uint8

const (
	// OutcomeIgnored means the line was empty after cleanup.
	OutcomeIgnored Outcome = iota
	// OutcomeApplied means a field changed or a pulse fired.
	OutcomeApplied
	// OutcomeUnchanged means the token was valid but the field already held
	// the decoded value.
	OutcomeUnchanged
	// OutcomeUnknown means the token matched nothing and was dropped.
	OutcomeUnknown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeApplied:
		return "applied"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// DecoderStats counts decode outcomes.
type DecoderStats struct {
	Applied   uint64 `json:"applied"`
	Unchanged uint64 `json:"unchanged"`
	Unknown   uint64 `json:"unknown"`
	Ignored   uint64 `json:"ignored"`
}

// Decoder applies inbound tokens to a State.
//
// Decode must only be called from the single writer goroutine that owns the
// State. Stats is safe from any goroutine.
type Decoder struct {
	state  *State
	logger Logger

	applied   atomic.Uint64
	unchanged atomic.Uint64
	unknown   atomic.Uint64
	ignored   atomic.Uint64
}

// NewDecoder returns a Decoder writing into state. logger may be nil.
func NewDecoder(state *State, logger Logger) *Decoder {
	return &Decoder{state: state, logger: logger}
}

// Decode cleans one raw line and applies its effect.
//
// The delimiter is removed and surrounding whitespace trimmed. Empty lines
// are ignored. Unrecognised tokens are logged at warning level and dropped;
// they never return an error.
func (d *Decoder) Decode(raw string) Outcome {
	token := strings.TrimSpace(strings.ReplaceAll(raw, Delimiter, ""))
	if token == "" {
		d.ignored.Add(1)
		return OutcomeIgnored
	}

	outcome := d.apply(token)
	switch outcome {
	case OutcomeApplied:
		d.applied.Add(1)
	case OutcomeUnchanged:
		d.unchanged.Add(1)
	case OutcomeUnknown:
		d.unknown.Add(1)
		if d.logger != nil {
			d.logger.Warn("unknown feedback token", "token", token)
		}
	}
	return outcome
}

func (d *Decoder) apply(token string) Outcome {
	if e, ok := exactTokens[token]; ok {
		return d.applyEffect(e)
	}

	for _, p := range prefixTokens {
		if strings.HasPrefix(token, p.prefix) {
			return changed(d.state.times[p.field].Set(token[len(p.prefix):]))
		}
	}

	return OutcomeUnknown
}

func (d *Decoder) applyEffect(e effect) Outcome {
	switch e.kind {
	case effectLED:
		return changed(d.state.leds[e.field].Set(e.led))
	case effectFlag:
		return changed(d.state.flags[e.field].Set(e.flag))
	case effectPulse:
		d.state.beep.Fire()
		return OutcomeApplied
	default:
		return OutcomeUnknown
	}
}

func changed(ok bool) Outcome {
	if ok {
		return OutcomeApplied
	}
	return OutcomeUnchanged
}

// Stats returns the decode counters.
func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		Applied:   d.applied.Load(),
		Unchanged: d.unchanged.Load(),
		Unknown:   d.unknown.Load(),
		Ignored:   d.ignored.Load(),
	}
}
