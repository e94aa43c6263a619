// Package gesture turns per-frame hand landmarks into smoothed,
// hysteresis-guarded gesture events.
package gesture

import (
	"encoding/json"
	"math"
)

const (
	// Smoothing is the per-frame exponential smoothing factor.
	Smoothing = 0.25
	// PinchEnter is the normalized distance below which a pinch starts.
	PinchEnter = 0.22
	// PinchExit is the normalized distance above which a pinch ends.
	PinchExit = 0.32
	// JoinDistance is the palm distance at which both hands count as joined.
	JoinDistance = 0.15
)

// Event is the gesture signal for one hand in one frame. An event with
// Detected false means no hand was present; HandsJoined marks the recenter
// signal and carries nothing else.
type Event struct {
	PanX        float64 `json:"panX"`
	PanY        float64 `json:"panY"`
	IsPinching  bool    `json:"isPinching"`
	KnobDelta   float64 `json:"knobDelta"`
	HandSize    float64 `json:"handSize"`
	IsLeftHand  bool    `json:"isLeftHand"`
	IsRightHand bool    `json:"isRightHand"`
	Detected    bool    `json:"detected"`
	HandsJoined bool    `json:"handsJoined,omitempty"`
}

// MarshalJSON emits the short forms for the no-hand and joined signals.
func (e Event) MarshalJSON() ([]byte, error) {
	switch {
	case e.HandsJoined:
		return []byte(`{"handsJoined":true}`), nil
	case !e.Detected:
		return []byte(`{"detected":false}`), nil
	}
	type plain Event
	return json.Marshal(plain(e))
}

// HandState is the tracked state of one hand role.
type HandState struct {
	X, Y      float64 // Smoothed palm centroid
	PinchDist float64
	Knob      float64
	Size      float64
	PrevKnob  float64
	HasPrev   bool // PrevKnob is valid
	Pinching  bool
	Active    bool
	seeded    bool
}

// UpdatePinch applies pinch hysteresis to a smoothed distance.
func UpdatePinch(pinching bool, dist float64) bool {
	if pinching {
		return dist <= PinchExit
	}
	return dist < PinchEnter
}

// Smooth moves prev toward raw by factor.
func Smooth(prev, raw, factor float64) float64 {
	return prev + (raw-prev)*factor
}

// Update folds one sample of an active hand into s and returns its event.
func (s *HandState) Update(h Hand) Event {
	lm := h.Landmarks
	c := Centroid(lm)
	size := HandSize(lm)
	pinch := PinchDistance(lm)
	knob := KnobAngle(lm)

	if !s.seeded {
		s.X, s.Y, s.Size, s.PinchDist, s.Knob = c.X, c.Y, size, pinch, knob
		s.seeded = true
	} else {
		s.X = Smooth(s.X, c.X, Smoothing)
		s.Y = Smooth(s.Y, c.Y, Smoothing)
		s.Size = Smooth(s.Size, size, Smoothing)
		s.PinchDist = Smooth(s.PinchDist, pinch, Smoothing)
		s.Knob = WrapAngle(s.Knob + WrapAngle(knob-s.Knob)*Smoothing)
	}

	was := s.Pinching
	s.Pinching = UpdatePinch(s.Pinching, s.PinchDist)

	var delta float64
	if s.Pinching && was && s.HasPrev {
		delta = WrapAngle(s.Knob - s.PrevKnob)
	}
	if s.Pinching {
		s.PrevKnob, s.HasPrev = s.Knob, true
	} else {
		s.HasPrev = false
	}

	return Event{
		PanX:        clamp(s.X*2-1, -1, 1),
		PanY:        clamp(1-s.Y*2, -1, 1),
		IsPinching:  s.Pinching,
		KnobDelta:   delta,
		HandSize:    s.Size,
		IsLeftHand:  h.Role == Left,
		IsRightHand: h.Role == Right,
		Detected:    true,
	}
}

// Deactivate drops activation and pinch tracking but keeps the smoothed
// position so a returning hand does not jump.
func (s *HandState) Deactivate() {
	s.Active = false
	s.Pinching = false
	s.HasPrev = false
}

// Interpreter tracks both hand roles. It is not safe for concurrent use.
type Interpreter struct {
	hands map[Role]*HandState
}

// NewInterpreter returns an interpreter with both hands inactive.
func NewInterpreter() *Interpreter {
	in := &Interpreter{}
	in.Reset()
	return in
}

// Reset clears all hand state.
func (in *Interpreter) Reset() {
	in.hands = map[Role]*HandState{Left: {}, Right: {}}
}

// State returns a copy of the state for role.
func (in *Interpreter) State(role Role) HandState {
	if s, ok := in.hands[role]; ok {
		return *s
	}
	return HandState{}
}

// Process consumes one frame. It returns a single undetected event when the
// frame has no hands, otherwise one event per active hand plus a joined
// event when both active hands are close together. Only the first hand
// reported for each role is used.
func (in *Interpreter) Process(f Frame) []Event {
	present := make(map[Role]bool, 2)
	var hands []Hand
	for _, h := range f.Hands {
		if len(h.Landmarks) < NumLandmarks || in.hands[h.Role] == nil || present[h.Role] {
			continue
		}
		present[h.Role] = true
		hands = append(hands, h)
	}

	if len(hands) == 0 {
		for _, s := range in.hands {
			s.Deactivate()
		}
		return []Event{{Detected: false}}
	}

	for role, s := range in.hands {
		if !present[role] {
			s.Deactivate()
		}
	}

	var events []Event
	for _, h := range hands {
		s := in.hands[h.Role]
		if !s.Active {
			if !PalmFacing(h) {
				continue
			}
			s.Active = true
		}
		events = append(events, s.Update(h))
	}

	l, r := in.hands[Left], in.hands[Right]
	if l.Active && r.Active && math.Hypot(l.X-r.X, l.Y-r.Y) < JoinDistance {
		events = append(events, Event{HandsJoined: true})
	}
	return events
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
