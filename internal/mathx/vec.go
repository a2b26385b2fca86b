package mathx

import "math"

// Vec2i is a 2D integer vector. Chunk keys use it.
type Vec2i struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Vec3i is an integer voxel coordinate. Z is up.
type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Vec3 is a float vector for positions, velocities and orientations.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float32) Vec3 {
	return Vec3{a.X * s, a.Y * s, a.Z * s}
}

func (a Vec3) Len() float32 {
	return float32(math.Sqrt(float64(a.X*a.X + a.Y*a.Y + a.Z*a.Z)))
}

// Floor returns the voxel containing a.
func (a Vec3) Floor() Vec3i {
	return Vec3i{
		X: int(math.Floor(float64(a.X))),
		Y: int(math.Floor(float64(a.Y))),
		Z: int(math.Floor(float64(a.Z))),
	}
}

// Center returns the middle of the voxel.
func (v Vec3i) Center() Vec3 {
	return Vec3{float32(v.X) + 0.5, float32(v.Y) + 0.5, float32(v.Z) + 0.5}
}
