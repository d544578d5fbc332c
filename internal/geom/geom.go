// Package geom provides the small geometric value types shared by the
// tracking model and the sensor boundary: 3D vectors in millimetres and
// unit quaternions for orientations.
package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Vector3 is a position, direction or velocity in sensor space.
// Components are carried through the pipeline verbatim; non-finite
// values from the sensor are passed along rather than rejected.
type Vector3 struct {
	X float64 `msgpack:"x" json:"x"`
	Y float64 `msgpack:"y" json:"y"`
	Z float64 `msgpack:"z" json:"z"`
}

// Add returns v + w.
func (v Vector3) Add(w Vector3) Vector3 {
	return Vector3{X: v.X + w.X, Y: v.Y + w.Y, Z: v.Z + w.Z}
}

// Sub returns v - w.
func (v Vector3) Sub(w Vector3) Vector3 {
	return Vector3{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
}

// Scale returns v scaled by s.
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Norm returns the Euclidean length of v.
func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized returns v scaled to unit length. The zero vector is
// returned unchanged.
func (v Vector3) Normalized() Vector3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// Quaternion is a rotation in sensor space using the sensor's component
// order (x, y, z, w).
type Quaternion struct {
	X float64 `msgpack:"x" json:"x"`
	Y float64 `msgpack:"y" json:"y"`
	Z float64 `msgpack:"z" json:"z"`
	W float64 `msgpack:"w" json:"w"`
}

// Identity returns the no-rotation quaternion.
func Identity() Quaternion {
	return Quaternion{W: 1}
}

// FromAxisAngle returns the quaternion rotating by angle radians about
// axis. The axis need not be unit length.
func FromAxisAngle(axis Vector3, angle float64) Quaternion {
	u := axis.Normalized()
	s := math.Sin(angle / 2)
	return Quaternion{
		X: u.X * s,
		Y: u.Y * s,
		Z: u.Z * s,
		W: math.Cos(angle / 2),
	}
}

// Mul returns the composed rotation q then r applied in r-then-q order,
// matching quaternion multiplication q*r.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	n := quat.Mul(q.number(), r.number())
	return fromNumber(n)
}

// Rotate applies the rotation to v. The quaternion is assumed to be
// close to unit norm; no normalisation is performed.
func (q Quaternion) Rotate(v Vector3) Vector3 {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	n := quat.Mul(quat.Mul(q.number(), p), quat.Conj(q.number()))
	return Vector3{X: n.Imag, Y: n.Jmag, Z: n.Kmag}
}

func (q Quaternion) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}
