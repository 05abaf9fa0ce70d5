package engine

import (
	"math"
	"sync/atomic"
)

// Axis indexes the shared input array.
type Axis uint8

const (
	AxisForward Axis = iota
	AxisRight
	AxisYaw
	AxisJump
	AxisSprint
	axisCount
)

// SharedState is the only memory contexts share directly: the player pose and
// the input axes, stored as float bits behind atomic loads and stores. Writers
// publish whole values; readers may see a position from one tick and a rotation
// from the next.
type SharedState struct {
	position [3]atomic.Uint32
	rotation [4]atomic.Uint32
	input    [axisCount]atomic.Uint32
}

func NewSharedState() *SharedState {
	s := &SharedState{}
	s.rotation[3].Store(math.Float32bits(1))
	return s
}

func (s *SharedState) Position() (out [3]float32) {
	for i := range out {
		out[i] = math.Float32frombits(s.position[i].Load())
	}
	return out
}

func (s *SharedState) SetPosition(v [3]float32) {
	for i, f := range v {
		s.position[i].Store(math.Float32bits(f))
	}
}

// Rotation is a quaternion in x, y, z, w order.
func (s *SharedState) Rotation() (out [4]float32) {
	for i := range out {
		out[i] = math.Float32frombits(s.rotation[i].Load())
	}
	return out
}

func (s *SharedState) SetRotation(q [4]float32) {
	for i, f := range q {
		s.rotation[i].Store(math.Float32bits(f))
	}
}

func (s *SharedState) Input(a Axis) float32 {
	if a >= axisCount {
		return 0
	}
	return math.Float32frombits(s.input[a].Load())
}

func (s *SharedState) SetInput(a Axis, v float32) {
	if a < axisCount {
		s.input[a].Store(math.Float32bits(v))
	}
}

// ResetInput zeroes every axis.
func (s *SharedState) ResetInput() {
	for i := range s.input {
		s.input[i].Store(0)
	}
}
