package gesture

import "math"

// Landmark indices of the 21-point hand model.
const (
	Wrist     = 0
	ThumbTip  = 4
	IndexMCP  = 5
	IndexPIP  = 6
	IndexTip  = 8
	MiddleMCP = 9
	MiddlePIP = 10
	MiddleTip = 12
	RingMCP   = 13
	RingPIP   = 14
	RingTip   = 16
	PinkyMCP  = 17
	PinkyPIP  = 18
	PinkyTip  = 20

	NumLandmarks = 21
)

// Point is a landmark in normalized image coordinates; y grows downward.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Role identifies a hand.
type Role string

const (
	Left  Role = "Left"
	Right Role = "Right"
)

// Hand is one tracked hand in a frame.
type Hand struct {
	Role      Role    `json:"handedness"`
	Landmarks []Point `json:"landmarks"`
}

// Frame is one detection result.
type Frame struct {
	// T is the capture time in milliseconds. The interpreter ignores it.
	T     float64 `json:"t"`
	Hands []Hand  `json:"hands"`
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Centroid averages the wrist and the four finger MCP joints.
func Centroid(lm []Point) Point {
	var c Point
	for _, i := range [...]int{Wrist, IndexMCP, MiddleMCP, RingMCP, PinkyMCP} {
		c.X += lm[i].X
		c.Y += lm[i].Y
	}
	c.X /= 5
	c.Y /= 5
	return c
}

// HandSize is the wrist to middle fingertip distance.
func HandSize(lm []Point) float64 {
	return dist(lm[Wrist], lm[MiddleTip])
}

// PinchDistance is the thumb to index fingertip distance relative to the
// hand size.
func PinchDistance(lm []Point) float64 {
	size := HandSize(lm)
	if size < 1e-6 {
		size = 1e-6
	}
	return dist(lm[ThumbTip], lm[IndexTip]) / size
}

// KnobAngle is the angle of the thumb to index fingertip segment.
func KnobAngle(lm []Point) float64 {
	return math.Atan2(lm[IndexTip].Y-lm[ThumbTip].Y, lm[IndexTip].X-lm[ThumbTip].X)
}

// PalmFacing reports whether an upright open palm faces the camera: the
// wrist is below the middle finger base, at least three fingers are
// extended, and the palm normal points at the camera for the hand's role.
func PalmFacing(h Hand) bool {
	lm := h.Landmarks
	if len(lm) < NumLandmarks {
		return false
	}
	if lm[Wrist].Y <= lm[MiddleMCP].Y {
		return false
	}

	extended := 0
	for _, f := range [...][2]int{{IndexTip, IndexPIP}, {MiddleTip, MiddlePIP}, {RingTip, RingPIP}, {PinkyTip, PinkyPIP}} {
		if lm[f[0]].Y < lm[f[1]].Y {
			extended++
		}
	}
	if extended < 3 {
		return false
	}

	ax, ay := lm[IndexMCP].X-lm[Wrist].X, lm[IndexMCP].Y-lm[Wrist].Y
	bx, by := lm[PinkyMCP].X-lm[Wrist].X, lm[PinkyMCP].Y-lm[Wrist].Y
	z := ax*by - ay*bx
	if h.Role == Left {
		return z > 0
	}
	return z < 0
}

// WrapAngle maps a to [-π, π].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
