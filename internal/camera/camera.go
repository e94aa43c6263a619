// Package camera turns gesture events into orbit camera poses.
//
// A Camera holds a target pose that gestures move immediately and a current
// pose that eases toward the target on every Tick. All methods take the
// current time explicitly and must be called from a single goroutine.
package camera

import (
	"math"
	"time"

	"github.com/phobologic/repoorbit/internal/gesture"
)

const (
	// Easing is the per-tick smoothing factor from current toward target.
	Easing = 0.1

	MinDistance = 120.0
	MaxDistance = 1200.0

	// FarHandSize and NearHandSize are the hand sizes that map onto
	// MaxDistance and MinDistance.
	FarHandSize  = 0.12
	NearHandSize = 0.35

	// RotationScale is radians of orbit per unit of pan axis.
	RotationScale = math.Pi
	// PanScale is look-at units per unit of pan axis.
	PanScale = 300.0

	MaxPhi = 0.45 * math.Pi

	IdleTimeout      = 3 * time.Second
	RecenterInterval = 1500 * time.Millisecond
)

var (
	// Default is the pose gestures start from and recenter to.
	Default = Pose{Theta: 0, Phi: 0.15 * math.Pi, Distance: 400}
	// Overview is the pose the camera flies to when gesture control ends.
	Overview = Pose{Theta: 0, Phi: 0.2 * math.Pi, Distance: 700}
)

// Pose is an orbit camera position.
type Pose struct {
	Theta    float64 `json:"theta"`
	Phi      float64 `json:"phi"`
	Distance float64 `json:"distance"`
	LookAtX  float64 `json:"lookAtX"`
	LookAtY  float64 `json:"lookAtY"`
}

// State is the control state of a Camera.
type State int

const (
	Idle State = iota
	HandControlling
)

func (s State) String() string {
	if s == HandControlling {
		return "hand-controlling"
	}
	return "idle"
}

// Rig receives the side effects of a Camera: toggling the renderer's own
// orbit controls and moving the view.
type Rig interface {
	SetControlsEnabled(enabled bool)
	SetAutoRotate(enabled bool)
	FlyTo(p Pose)
	SetPose(p Pose)
}

// anchor records where a drag started: the gesture position and the target
// values at that moment.
type anchor struct {
	set   bool
	x, y  float64
	baseA float64
	baseB float64
}

func (a *anchor) clear() { a.set = false }

// drag returns the anchored values for gesture position (x, y), anchoring
// at baseA and baseB on the first call after a clear.
func (a *anchor) drag(x, y, baseA, baseB, scale float64) (float64, float64) {
	if !a.set {
		*a = anchor{set: true, x: x, y: y, baseA: baseA, baseB: baseB}
	}
	return a.baseA + (x-a.x)*scale, a.baseB + (y-a.y)*scale
}

// Camera is the gesture camera state machine.
type Camera struct {
	rig     Rig
	state   State
	current Pose
	target  Pose

	lastHand     time.Time
	lastRecenter time.Time

	leftRotate  anchor
	rightRotate anchor
	rightPan    anchor
	rightPinch  bool
}

// New returns an idle camera at the default pose.
func New(rig Rig) *Camera {
	return &Camera{rig: rig, current: Default, target: Default}
}

// State reports the control state.
func (c *Camera) State() State { return c.state }

// Target returns the pose gestures are steering toward.
func (c *Camera) Target() Pose { return c.target }

// Current returns the displayed pose.
func (c *Camera) Current() Pose { return c.current }

// Activate hands the view over to gestures.
func (c *Camera) Activate(now time.Time) {
	c.lastHand = now
	if c.state == HandControlling {
		return
	}
	c.state = HandControlling
	c.clearAnchors()
	c.rig.SetControlsEnabled(false)
	c.rig.SetAutoRotate(false)
}

// Deactivate returns the view to the renderer's own controls and flies to
// the overview pose. It does nothing when already idle.
func (c *Camera) Deactivate() {
	if c.state == Idle {
		return
	}
	c.state = Idle
	c.clearAnchors()
	c.rightPinch = false
	c.current, c.target = Overview, Overview
	c.rig.SetControlsEnabled(true)
	c.rig.SetAutoRotate(true)
	c.rig.FlyTo(Overview)
}

func (c *Camera) clearAnchors() {
	c.leftRotate.clear()
	c.rightRotate.clear()
	c.rightPan.clear()
}

// HandleFrame applies one frame of gesture events. Events for the same role
// are applied in order; when both hands rotate, the later one wins. A frame
// without the undetected event still has hands in view, which holds off the
// idle timeout even when none of them is active.
func (c *Camera) HandleFrame(events []gesture.Event, now time.Time) {
	var left, right, joined, empty bool
	for _, e := range events {
		switch {
		case e.HandsJoined:
			joined = true
		case !e.Detected:
			empty = true
		case e.IsLeftHand:
			left = true
		case e.IsRightHand:
			right = true
		}
	}
	if !empty && c.state == HandControlling {
		c.lastHand = now
	}

	if !left {
		c.leftRotate.clear()
	}
	if !right {
		c.rightRotate.clear()
		c.rightPan.clear()
		c.rightPinch = false
	}
	if !left && !right {
		return
	}
	c.Activate(now)

	for _, e := range events {
		switch {
		case !e.Detected:
		case e.IsLeftHand:
			c.rotate(&c.leftRotate, e)
			c.target.Distance = ZoomDistance(e.HandSize)
		case e.IsRightHand:
			if e.IsPinching != c.rightPinch {
				c.rightPinch = e.IsPinching
				c.rightRotate.clear()
				c.rightPan.clear()
			}
			if e.IsPinching {
				c.target.LookAtX, c.target.LookAtY = c.rightPan.drag(e.PanX, e.PanY, c.target.LookAtX, c.target.LookAtY, PanScale)
			} else {
				c.rotate(&c.rightRotate, e)
			}
		}
	}

	if joined {
		c.recenter(now)
	}
}

func (c *Camera) rotate(a *anchor, e gesture.Event) {
	theta, phi := a.drag(e.PanX, e.PanY, c.target.Theta, c.target.Phi, RotationScale)
	c.target.Theta = theta
	c.target.Phi = clamp(phi, -MaxPhi, MaxPhi)
}

// recenter resets orientation and look-at to the defaults, keeping the zoom.
// Requests closer than RecenterInterval to the previous one are refused.
func (c *Camera) recenter(now time.Time) bool {
	if !c.lastRecenter.IsZero() && now.Sub(c.lastRecenter) < RecenterInterval {
		return false
	}
	c.lastRecenter = now
	c.target.Theta = Default.Theta
	c.target.Phi = Default.Phi
	c.target.LookAtX = Default.LookAtX
	c.target.LookAtY = Default.LookAtY
	c.clearAnchors()
	return true
}

// Tick advances the displayed pose one animation frame. While gestures are
// in control the current pose eases toward the target and is pushed to the
// rig; once no hand has been seen for IdleTimeout the camera deactivates.
func (c *Camera) Tick(now time.Time) Pose {
	if c.state != HandControlling {
		return c.current
	}
	if now.Sub(c.lastHand) >= IdleTimeout {
		c.Deactivate()
		return c.current
	}
	c.current = Pose{
		Theta:    gesture.Smooth(c.current.Theta, c.target.Theta, Easing),
		Phi:      gesture.Smooth(c.current.Phi, c.target.Phi, Easing),
		Distance: gesture.Smooth(c.current.Distance, c.target.Distance, Easing),
		LookAtX:  gesture.Smooth(c.current.LookAtX, c.target.LookAtX, Easing),
		LookAtY:  gesture.Smooth(c.current.LookAtY, c.target.LookAtY, Easing),
	}
	c.rig.SetPose(c.current)
	return c.current
}

// ZoomDistance maps a hand size onto an orbit distance: a small (far) hand
// gives MaxDistance and a large (near) hand gives MinDistance.
func ZoomDistance(handSize float64) float64 {
	t := clamp((handSize-FarHandSize)/(NearHandSize-FarHandSize), 0, 1)
	return MaxDistance - t*(MaxDistance-MinDistance)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
