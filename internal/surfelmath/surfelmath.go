// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

// Package surfelmath implements the first/second-order moment
// accumulator merge (§4.4.3) and the closed-form eigen decomposition of
// the resulting symmetric 3x3 covariance matrix.
//
// No linear-algebra library appears anywhere in the retrieval pack (no
// gonum, no BLAS binding), so this is one of the few places the
// implementation reaches for the standard library only; see
// DESIGN.md for the justification.
package surfelmath

import "math"

// Accumulator is a first/second-order moment accumulator over 3D
// points: n observations, their vector sum, and the six distinct
// entries of the upper triangle of their scatter matrix, the sum of
// outer products of each point's deviation from the mean (xx, xy, xz,
// yy, yz, zz). A one-point accumulator has zero scatter.
type Accumulator struct {
	N     uint32
	Sum   [3]float64
	SumSq [6]float64 // xx, xy, xz, yy, yz, zz
}

// Merge combines a and b with the numerically stable (Chan/Welford
// style) update given in §4.4.3, without ever dividing by the raw
// point count of either operand alone.
func Merge(a, b Accumulator) Accumulator {
	if a.N == 0 {
		return b
	}
	if b.N == 0 {
		return a
	}

	n1, n2 := float64(a.N), float64(b.N)
	alpha := 1.0 / (n1 * n2 * (n1 + n2))

	var beta [3]float64
	for k := 0; k < 3; k++ {
		beta[k] = a.Sum[k]*n2 - b.Sum[k]*n1
	}

	// index pairs (i,j) for the six upper-triangle entries, in the
	// fixed order xx, xy, xz, yy, yz, zz.
	pairs := [6][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 1}, {1, 2}, {2, 2}}

	var out Accumulator
	out.N = a.N + b.N
	for k := 0; k < 3; k++ {
		out.Sum[k] = a.Sum[k] + b.Sum[k]
	}
	for k, p := range pairs {
		out.SumSq[k] = a.SumSq[k] + b.SumSq[k] + alpha*beta[p[0]]*beta[p[1]]
	}

	return out
}

// IsEmpty reports whether the accumulator has seen no points.
func (a Accumulator) IsEmpty() bool { return a.N == 0 }

// Equal reports exact equality, used by the collapsible check for
// already-identical (typically both-empty) surfels.
func (a Accumulator) Equal(b Accumulator) bool {
	return a == b
}

// Mergeable reports whether a and b may be merged with "zero residual"
// per §4.3.4's default surfel collapsible rule: usually true only when
// at most one of the two holds a point.
func Mergeable(a, b Accumulator) bool {
	return a.N == 0 || b.N == 0
}

// Covariance returns the 3x3 symmetric covariance matrix (as its six
// upper-triangle entries, same order as SumSq) of the accumulated
// points, or ok=false if fewer than 2 points were accumulated.
func (a Accumulator) Covariance() (cov [6]float64, ok bool) {
	if a.N < 2 {
		return cov, false
	}

	n := float64(a.N)
	for k := range cov {
		cov[k] = a.SumSq[k] / n
	}

	return cov, true
}

// Eigen holds the ascending-order eigenvalues and the eigenvector of
// the smallest eigenvalue (the surfel normal) of a symmetric 3x3
// matrix.
type Eigen struct {
	Values  [3]float64 // ascending: lambda0 <= lambda1 <= lambda2
	Normal  [3]float64 // unit eigenvector of lambda0
}

// EigenSymmetric3 computes the eigenvalues/normal of the symmetric 3x3
// matrix given by its six upper-triangle entries (xx, xy, xz, yy, yz,
// zz), using the closed-form trigonometric solution for symmetric 3x3
// matrices (Smith's method), avoiding an iterative solver entirely.
func EigenSymmetric3(m [6]float64) Eigen {
	axx, axy, axz, ayy, ayz, azz := m[0], m[1], m[2], m[3], m[4], m[5]

	p1 := axy*axy + axz*axz + ayz*ayz
	q := (axx + ayy + azz) / 3

	if p1 == 0 {
		// already diagonal
		vals := sortAsc([3]float64{axx, ayy, azz})
		return Eigen{Values: vals, Normal: normalFor(m, vals[0])}
	}

	p2 := (axx-q)*(axx-q) + (ayy-q)*(ayy-q) + (azz-q)*(azz-q) + 2*p1
	p := math.Sqrt(p2 / 6)

	// B = (1/p) * (A - q*I)
	b := [6]float64{
		(axx - q) / p, axy / p, axz / p,
		(ayy - q) / p, ayz / p,
		(azz - q) / p,
	}

	detB := det3(b)
	r := detB / 2
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}

	phi := math.Acos(r) / 3

	eig2 := q + 2*p*math.Cos(phi)
	eig0 := q + 2*p*math.Cos(phi+2*math.Pi/3)
	eig1 := 3*q - eig0 - eig2

	vals := sortAsc([3]float64{eig0, eig1, eig2})
	return Eigen{Values: vals, Normal: normalFor(m, vals[0])}
}

func det3(m [6]float64) float64 {
	axx, axy, axz, ayy, ayz, azz := m[0], m[1], m[2], m[3], m[4], m[5]
	return axx*(ayy*azz-ayz*ayz) - axy*(axy*azz-ayz*axz) + axz*(axy*ayz-ayy*axz)
}

func sortAsc(v [3]float64) [3]float64 {
	if v[0] > v[1] {
		v[0], v[1] = v[1], v[0]
	}
	if v[1] > v[2] {
		v[1], v[2] = v[2], v[1]
	}
	if v[0] > v[1] {
		v[0], v[1] = v[1], v[0]
	}
	return v
}

// normalFor recovers a unit eigenvector for eigenvalue lambda of the
// symmetric matrix m via (A - lambda*I)'s null space, using the cross
// product of two independent rows.
func normalFor(m [6]float64, lambda float64) [3]float64 {
	axx, axy, axz, ayy, ayz, azz := m[0], m[1], m[2], m[3], m[4], m[5]

	row0 := [3]float64{axx - lambda, axy, axz}
	row1 := [3]float64{axy, ayy - lambda, ayz}
	row2 := [3]float64{axz, ayz, azz - lambda}

	candidates := [][2][3]float64{{row0, row1}, {row0, row2}, {row1, row2}}

	best := [3]float64{0, 0, 1}
	bestLen := -1.0

	for _, c := range candidates {
		v := cross(c[0], c[1])
		l := length(v)
		if l > bestLen {
			bestLen = l
			best = v
		}
	}

	if bestLen <= 1e-12 {
		return [3]float64{0, 0, 1}
	}

	return [3]float64{best[0] / bestLen, best[1] / bestLen, best[2] / bestLen}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func length(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Planarity computes 2(lambda1-lambda0)/(lambda0+lambda1+lambda2) per
// §4.4.3, or 0 if the eigenvalue sum is ~0 (degenerate/empty surfel).
func (e Eigen) Planarity() float64 {
	sum := e.Values[0] + e.Values[1] + e.Values[2]
	if sum <= 1e-12 {
		return 0
	}
	return 2 * (e.Values[1] - e.Values[0]) / sum
}
