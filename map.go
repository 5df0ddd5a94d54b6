// Copyright (c) 2024 The UFOMap Authors
// SPDX-License-Identifier: MIT

package ufomap

import "io"

// MapOption configures a façade constructor, the functional-options
// idiom the teacher's tree does not need (Table[V] takes no options)
// but scigolib-hdf5's rebalancing_options.go applies throughout; §2 of
// SPEC_FULL.md calls for carrying that idiom here regardless.
type MapOption func(*mapConfig)

type mapConfig struct {
	reuse    bool
	lockless bool
	occ      OccupancyParams
}

func defaultMapConfig() mapConfig {
	return mapConfig{reuse: true, occ: DefaultOccupancyParams()}
}

// WithReuse toggles the arena's free-stack block recycler (§3.3).
func WithReuse(reuse bool) MapOption {
	return func(c *mapConfig) { c.reuse = reuse }
}

// WithLockless puts the map in single-writer mode (§4.2, §5): no
// per-depth creation locks, no free-stack locks.
func WithLockless() MapOption {
	return func(c *mapConfig) { c.lockless = true }
}

// WithOccupancyParams overrides the default occupancy clamp/threshold
// configuration (§4.4.1).
func WithOccupancyParams(p OccupancyParams) MapOption {
	return func(c *mapConfig) { c.occ = p }
}

// occupancyBlock is the leaf/single-parent payload of a bare
// occupancy-only map: one log-odds value per slot.
type occupancyBlock struct {
	LogOdds [8]Occupancy
}

// OccupancyMap is the minimal façade (C8): occupancy only, the §4.4.1
// attribute every concrete map composes in.
type OccupancyMap struct {
	*Tree[occupancyBlock]
	params OccupancyParams
}

// NewOccupancyMap builds an occupancy-only map over the given
// geometry.
func NewOccupancyMap(geom Geometry, opts ...MapOption) (*OccupancyMap, error) {
	cfg := defaultMapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	layers := []Layer[occupancyBlock]{
		NewScalarLayer("occupancy", func(b *occupancyBlock) *[8]Occupancy { return &b.LogOdds }, cfg.occ.AggregationCriterion),
	}

	t, err := NewTree(geom, layers, cfg.reuse, cfg.lockless)
	if err != nil {
		return nil, err
	}

	return &OccupancyMap{Tree: t, params: cfg.occ}, nil
}

// InsertHit integrates a sensor hit at p: the occupied-direction
// log-odds delta is added and clamped (§4.4.1's "Integration of a hit
// or miss is the additive log_odds += Δ, clamp").
func (m *OccupancyMap) InsertHit(p Point3) error {
	return m.integrate(p, m.params.ProbHit)
}

// InsertMiss integrates a sensor miss at p.
func (m *OccupancyMap) InsertMiss(p Point3) error {
	return m.integrate(p, m.params.ProbMiss)
}

func (m *OccupancyMap) integrate(p Point3, delta float32) error {
	code, err := codeFor(m.Geometry(), p)
	if err != nil {
		return err
	}

	return m.Apply(code, func(payload *occupancyBlock, slot uint8) {
		v := payload.LogOdds[slot] + delta
		payload.LogOdds[slot] = clampOccupancy(v, m.params.ClampMin, m.params.ClampMax)
	}, nil, false)
}

// At returns the occupancy classification at p, if the voxel exists.
func (m *OccupancyMap) At(p Point3) (Classification, bool) {
	code, err := codeFor(m.Geometry(), p)
	if err != nil {
		return Unknown, false
	}

	payload, depth, ok := m.FindNode(code)
	if !ok {
		return Unknown, false
	}

	return m.params.Classify(payload.LogOdds[code.Index(depth)]), true
}

// Serialize writes m's tree shape and occupancy payload to w (§4.6, §6.1).
func (m *OccupancyMap) Serialize(w io.Writer, compressed bool) error {
	return Serialize(w, m.Tree, compressed)
}

// SerializeModifiedOnly writes m's write-only-modified delta stream
// (§4.6) to w: only slots dirtied since the last clear are emitted.
func (m *OccupancyMap) SerializeModifiedOnly(w io.Writer, compressed, clearModified bool) error {
	return SerializeModifiedOnly(w, m.Tree, compressed, clearModified)
}

// MergeModified reads a delta stream written by SerializeModifiedOnly
// and merges it into m in place.
func (m *OccupancyMap) MergeModified(r io.Reader) error {
	return MergeModified(r, m.Tree)
}

// DeserializeOccupancyMap reads a stream written by (*OccupancyMap).Serialize.
func DeserializeOccupancyMap(r io.Reader, opts ...MapOption) (*OccupancyMap, error) {
	cfg := defaultMapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	layers := []Layer[occupancyBlock]{
		NewScalarLayer("occupancy", func(b *occupancyBlock) *[8]Occupancy { return &b.LogOdds }, cfg.occ.AggregationCriterion),
	}

	t, err := Deserialize(r, layers, cfg.reuse, cfg.lockless)
	if err != nil {
		return nil, err
	}

	return &OccupancyMap{Tree: t, params: cfg.occ}, nil
}

// codeFor quantizes p to a depth-0 Code, rejecting coordinates outside
// the root cube per §3 ("coordinates outside the root's cube are
// rejected").
func codeFor(geom Geometry, p Point3) (Code, error) {
	key, ok := geom.ToKeyChecked(p, 0)
	if !ok {
		return Code{}, ErrOutOfBounds
	}
	return key.ToCode(), nil
}

// colorOccupancyBlock composes occupancy and color, the §4.7 "tuple of
// the enabled layers' leaf forms" for the second-smallest façade.
type colorOccupancyBlock struct {
	LogOdds [8]Occupancy
	Color   [8]RGB
}

// OccupancyColorMap is occupancy + color (§4.4.1, §4.4.2).
type OccupancyColorMap struct {
	*Tree[colorOccupancyBlock]
	params OccupancyParams
}

// NewOccupancyColorMap builds an occupancy+color map.
func NewOccupancyColorMap(geom Geometry, opts ...MapOption) (*OccupancyColorMap, error) {
	cfg := defaultMapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	layers := []Layer[colorOccupancyBlock]{
		NewScalarLayer("occupancy", func(b *colorOccupancyBlock) *[8]Occupancy { return &b.LogOdds }, cfg.occ.AggregationCriterion),
		NewColorLayer(func(b *colorOccupancyBlock) *[8]RGB { return &b.Color }),
	}

	t, err := NewTree(geom, layers, cfg.reuse, cfg.lockless)
	if err != nil {
		return nil, err
	}

	return &OccupancyColorMap{Tree: t, params: cfg.occ}, nil
}

// InsertHit integrates a sensor hit at p with the given observed color.
func (m *OccupancyColorMap) InsertHit(p Point3, color RGB) error {
	code, err := codeFor(m.Geometry(), p)
	if err != nil {
		return err
	}

	return m.Apply(code, func(payload *colorOccupancyBlock, slot uint8) {
		v := payload.LogOdds[slot] + m.params.ProbHit
		payload.LogOdds[slot] = clampOccupancy(v, m.params.ClampMin, m.params.ClampMax)
		payload.Color[slot] = color
	}, nil, false)
}

// InsertMiss integrates a sensor miss at p (color unaffected).
func (m *OccupancyColorMap) InsertMiss(p Point3) error {
	code, err := codeFor(m.Geometry(), p)
	if err != nil {
		return err
	}

	return m.Apply(code, func(payload *colorOccupancyBlock, slot uint8) {
		v := payload.LogOdds[slot] + m.params.ProbMiss
		payload.LogOdds[slot] = clampOccupancy(v, m.params.ClampMin, m.params.ClampMax)
	}, nil, false)
}

// Serialize writes m's tree shape and occupancy+color payload to w.
func (m *OccupancyColorMap) Serialize(w io.Writer, compressed bool) error {
	return Serialize(w, m.Tree, compressed)
}

// SerializeModifiedOnly writes m's write-only-modified delta stream to w.
func (m *OccupancyColorMap) SerializeModifiedOnly(w io.Writer, compressed, clearModified bool) error {
	return SerializeModifiedOnly(w, m.Tree, compressed, clearModified)
}

// MergeModified reads a delta stream written by SerializeModifiedOnly
// and merges it into m in place.
func (m *OccupancyColorMap) MergeModified(r io.Reader) error {
	return MergeModified(r, m.Tree)
}

// DeserializeOccupancyColorMap reads a stream written by
// (*OccupancyColorMap).Serialize.
func DeserializeOccupancyColorMap(r io.Reader, opts ...MapOption) (*OccupancyColorMap, error) {
	cfg := defaultMapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	layers := []Layer[colorOccupancyBlock]{
		NewScalarLayer("occupancy", func(b *colorOccupancyBlock) *[8]Occupancy { return &b.LogOdds }, cfg.occ.AggregationCriterion),
		NewColorLayer(func(b *colorOccupancyBlock) *[8]RGB { return &b.Color }),
	}

	t, err := Deserialize(r, layers, cfg.reuse, cfg.lockless)
	if err != nil {
		return nil, err
	}

	return &OccupancyColorMap{Tree: t, params: cfg.occ}, nil
}

// fullBlock composes every attribute layer this pack implements:
// occupancy, time, intensity, hit/miss counts, reflectance, color,
// surfel, and semantic, per §4.4's full attribute list.
type fullBlock struct {
	LogOdds     [8]Occupancy
	TimeStamp   [8]float64
	Intensity   [8]float32
	HitCount    [8]uint32
	MissCount   [8]uint32
	Reflectance [8]float32
	Color       [8]RGB
	Surfel      [8]Surfel
	Semantic    SemanticBlock8
}

// FullMap composes every attribute layer (§4.4), the maximal façade
// SPEC_FULL.md's domain stack calls for to exercise every layer's wire
// methods and propagation rule in one concrete type.
type FullMap struct {
	*Tree[fullBlock]
	params OccupancyParams
}

// NewFullMap builds a map with every attribute layer enabled.
func NewFullMap(geom Geometry, semanticCrit SemanticAggregation, opts ...MapOption) (*FullMap, error) {
	cfg := defaultMapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	layers := []Layer[fullBlock]{
		NewScalarLayer("occupancy", func(b *fullBlock) *[8]Occupancy { return &b.LogOdds }, cfg.occ.AggregationCriterion),
		NewScalarLayer("time", func(b *fullBlock) *[8]float64 { return &b.TimeStamp }, AggMax),
		NewScalarLayer("intensity", func(b *fullBlock) *[8]float32 { return &b.Intensity }, AggMean),
		NewScalarLayer("hitCount", func(b *fullBlock) *[8]uint32 { return &b.HitCount }, AggMean),
		NewScalarLayer("missCount", func(b *fullBlock) *[8]uint32 { return &b.MissCount }, AggMean),
		NewScalarLayer("reflectance", func(b *fullBlock) *[8]float32 { return &b.Reflectance }, AggMean),
		NewColorLayer(func(b *fullBlock) *[8]RGB { return &b.Color }),
		NewSurfelLayer(func(b *fullBlock) *[8]Surfel { return &b.Surfel }),
		NewSemanticLayer(func(b *fullBlock) *SemanticBlock8 { return &b.Semantic }, semanticCrit),
	}

	t, err := NewTree(geom, layers, cfg.reuse, cfg.lockless)
	if err != nil {
		return nil, err
	}

	return &FullMap{Tree: t, params: cfg.occ}, nil
}

// InsertHit integrates a sensor hit at p, bumping the hit counter and
// timestamp and clamping occupancy, leaving color/surfel/semantic to
// dedicated setters since not every hit carries every attribute.
func (m *FullMap) InsertHit(p Point3, timestamp float64) error {
	code, err := codeFor(m.Geometry(), p)
	if err != nil {
		return err
	}

	return m.Apply(code, func(payload *fullBlock, slot uint8) {
		v := payload.LogOdds[slot] + m.params.ProbHit
		payload.LogOdds[slot] = clampOccupancy(v, m.params.ClampMin, m.params.ClampMax)
		payload.HitCount[slot]++
		payload.TimeStamp[slot] = timestamp
	}, nil, false)
}

// InsertMiss integrates a sensor miss at p.
func (m *FullMap) InsertMiss(p Point3, timestamp float64) error {
	code, err := codeFor(m.Geometry(), p)
	if err != nil {
		return err
	}

	return m.Apply(code, func(payload *fullBlock, slot uint8) {
		v := payload.LogOdds[slot] + m.params.ProbMiss
		payload.LogOdds[slot] = clampOccupancy(v, m.params.ClampMin, m.params.ClampMax)
		payload.MissCount[slot]++
		payload.TimeStamp[slot] = timestamp
	}, nil, false)
}

// Serialize writes m's tree shape and every layer's payload to w.
func (m *FullMap) Serialize(w io.Writer, compressed bool) error {
	return Serialize(w, m.Tree, compressed)
}

// SerializeModifiedOnly writes m's write-only-modified delta stream to w.
func (m *FullMap) SerializeModifiedOnly(w io.Writer, compressed, clearModified bool) error {
	return SerializeModifiedOnly(w, m.Tree, compressed, clearModified)
}

// MergeModified reads a delta stream written by SerializeModifiedOnly
// and merges it into m in place.
func (m *FullMap) MergeModified(r io.Reader) error {
	return MergeModified(r, m.Tree)
}

// DeserializeFullMap reads a stream written by (*FullMap).Serialize.
// semanticCrit must match the aggregation criterion the stream was
// written with; the wire format carries no record of it (§4.6 only
// self-describes leaf_size/depth_levels, not per-layer configuration).
func DeserializeFullMap(r io.Reader, semanticCrit SemanticAggregation, opts ...MapOption) (*FullMap, error) {
	cfg := defaultMapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	layers := []Layer[fullBlock]{
		NewScalarLayer("occupancy", func(b *fullBlock) *[8]Occupancy { return &b.LogOdds }, cfg.occ.AggregationCriterion),
		NewScalarLayer("time", func(b *fullBlock) *[8]float64 { return &b.TimeStamp }, AggMax),
		NewScalarLayer("intensity", func(b *fullBlock) *[8]float32 { return &b.Intensity }, AggMean),
		NewScalarLayer("hitCount", func(b *fullBlock) *[8]uint32 { return &b.HitCount }, AggMean),
		NewScalarLayer("missCount", func(b *fullBlock) *[8]uint32 { return &b.MissCount }, AggMean),
		NewScalarLayer("reflectance", func(b *fullBlock) *[8]float32 { return &b.Reflectance }, AggMean),
		NewColorLayer(func(b *fullBlock) *[8]RGB { return &b.Color }),
		NewSurfelLayer(func(b *fullBlock) *[8]Surfel { return &b.Surfel }),
		NewSemanticLayer(func(b *fullBlock) *SemanticBlock8 { return &b.Semantic }, semanticCrit),
	}

	t, err := Deserialize(r, layers, cfg.reuse, cfg.lockless)
	if err != nil {
		return nil, err
	}

	return &FullMap{Tree: t, params: cfg.occ}, nil
}
