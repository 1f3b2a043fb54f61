package limitimer

import (
	"fmt"
	"sort"
)

// Action is a front-panel command that can be sent to the device.
type Action string

// Supported actions. The string value is the name accepted at the command
// boundary.
const (
	ActionProgram1       Action = "program1"
	ActionProgram2       Action = "program2"
	ActionProgram3       Action = "program3"
	ActionSession4       Action = "session4"
	ActionBeep           Action = "beep"
	ActionBeep1          Action = "beep1"
	ActionBlink          Action = "blink"
	ActionStartStop      Action = "startStop"
	ActionRepeat         Action = "repeat"
	ActionClear          Action = "clear"
	ActionTotalTimePlus  Action = "totalTimePlus"
	ActionTotalTimeMinus Action = "totalTimeMinus"
	ActionSumTimePlus    Action = "sumTimePlus"
	ActionSumTimeMinus   Action = "sumTimeMinus"
	ActionSetSeconds     Action = "setSeconds"
)

// actionTokens maps each action to its wire token. An empty token marks an
// action the device does not implement.
var actionTokens = map[Action]string{
	ActionProgram1:       "PRG1",
	ActionProgram2:       "PRG2",
	ActionProgram3:       "PRG3",
	ActionSession4:       "SESS",
	ActionBeep:           "BEEP",
	ActionBeep1:          "",
	ActionBlink:          "BLNK",
	ActionStartStop:      "STOP",
	ActionRepeat:         "REPT",
	ActionClear:          "CLR",
	ActionTotalTimePlus:  "TTUP",
	ActionTotalTimeMinus: "TTDN",
	ActionSumTimePlus:    "STUP",
	ActionSumTimeMinus:   "STDN",
	ActionSetSeconds:     "SSEC",
}

// Actions returns every known action sorted by name.
func Actions() []Action {
	out := make([]Action, 0, len(actionTokens))
	for a := range actionTokens {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseAction validates an action name.
func ParseAction(name string) (Action, error) {
	a := Action(name)
	if _, ok := actionTokens[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return a, nil
}

// Supported reports whether a has a wire token.
func (a Action) Supported() bool {
	return actionTokens[a] != ""
}

// Encode returns the delimited wire bytes for a.
//
// Returns:
//   - ErrUnknownAction if a is not in the catalog
//   - ErrUnsupportedAction if the device has no token for a
func Encode(a Action) ([]byte, error) {
	token, ok := actionTokens[a]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, string(a))
	}
	if token == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, string(a))
	}
	return []byte(token + Delimiter), nil
}

// EncodeText returns text with the delimiter appended. Empty text yields nil.
func EncodeText(text string) []byte {
	if text == "" {
		return nil
	}
	return []byte(text + Delimiter)
}
