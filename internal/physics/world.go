// Package physics owns the kinematic capsule bodies and resolves their
// movement against the baked arena colliders. Every call happens on the
// simulation tick goroutine; the world carries no locks on purpose.
package physics

import (
	"math"

	"shooter-arena/internal/arena"
	"shooter-arena/internal/config"
)

// stepHeight is the tallest ledge a capsule walks over without blocking.
const stepHeight = 0.5

// capsule is one player body. Y never changes, so only the footprint moves.
type capsule struct {
	x, z float64
}

// World is the kinematic capsule store plus the static collider set.
type World struct {
	geo       *arena.StaticGeometry
	colliders []arena.AABB
	bodies    map[string]*capsule

	radius     float64
	halfHeight float64
	floorY     float64

	// Capsule vertical span, precomputed for collider filtering.
	bottomY float64
	topY    float64
}

// NewWorld builds a physics world over the baked geometry.
func NewWorld(geo *arena.StaticGeometry, cfg config.SimulationConfig) *World {
	w := &World{
		geo:        geo,
		colliders:  geo.Colliders(),
		bodies:     make(map[string]*capsule),
		radius:     cfg.PlayerRadius,
		halfHeight: cfg.PlayerHalfHeight,
		floorY:     geo.FloorY,
	}
	w.bottomY = geo.FloorY
	w.topY = geo.FloorY + 2*(cfg.PlayerHalfHeight+cfg.PlayerRadius)
	return w
}

// CapsuleY returns the constant body center height.
func (w *World) CapsuleY() float64 {
	return w.floorY + w.halfHeight + w.radius
}

// CreateCapsule allocates a body at the given footprint. An existing body
// with the same id is replaced.
func (w *World) CreateCapsule(id string, x, z float64) {
	w.bodies[id] = &capsule{x: x, z: z}
}

// Teleport forces a body to the given position, clearing any pending motion.
func (w *World) Teleport(id string, x, z float64) {
	if b, ok := w.bodies[id]; ok {
		b.x, b.z = x, z
	}
}

// Remove deletes a body. Removing an unknown id is a no-op.
func (w *World) Remove(id string) {
	delete(w.bodies, id)
}

// Position returns a body's footprint.
func (w *World) Position(id string) (x, z float64, ok bool) {
	b, exists := w.bodies[id]
	if !exists {
		return 0, 0, false
	}
	return b.x, b.z, true
}

// MoveCapsule applies a displacement with wall sliding and returns the
// resulting footprint. Each axis resolves independently so a capsule pushed
// into a wall keeps its tangential motion.
func (w *World) MoveCapsule(id string, dx, dz float64) (float64, float64) {
	b, ok := w.bodies[id]
	if !ok {
		return 0, 0
	}

	if !isFinite(dx) || !isFinite(dz) {
		return b.x, b.z
	}

	newX := w.resolveAxisX(b.x, b.z, dx)
	newZ := w.resolveAxisZ(newX, b.z, dz)

	newX, newZ = w.resolvePenetration(newX, newZ)
	newX = clamp(newX, w.geo.MinX+w.radius, w.geo.MaxX-w.radius)
	newZ = clamp(newZ, w.geo.MinZ+w.radius, w.geo.MaxZ-w.radius)

	if !isFinite(newX) || !isFinite(newZ) {
		return b.x, b.z
	}

	b.x, b.z = newX, newZ
	return b.x, b.z
}

// resolveAxisX sweeps along X, stopping at the first collider face.
func (w *World) resolveAxisX(x, z, dx float64) float64 {
	newX := x + dx
	if dx == 0 {
		return newX
	}

	for _, c := range w.colliders {
		if !w.blocks(c) {
			continue
		}
		// Only colliders whose Z band overlaps the capsule matter.
		if z+w.radius <= c.MinZ || z-w.radius >= c.MaxZ {
			continue
		}
		if dx > 0 && x+w.radius <= c.MinX && newX+w.radius > c.MinX {
			newX = c.MinX - w.radius
		} else if dx < 0 && x-w.radius >= c.MaxX && newX-w.radius < c.MaxX {
			newX = c.MaxX + w.radius
		}
	}
	return newX
}

// resolveAxisZ sweeps along Z, stopping at the first collider face.
func (w *World) resolveAxisZ(x, z, dz float64) float64 {
	newZ := z + dz
	if dz == 0 {
		return newZ
	}

	for _, c := range w.colliders {
		if !w.blocks(c) {
			continue
		}
		if x+w.radius <= c.MinX || x-w.radius >= c.MaxX {
			continue
		}
		if dz > 0 && z+w.radius <= c.MinZ && newZ+w.radius > c.MinZ {
			newZ = c.MinZ - w.radius
		} else if dz < 0 && z-w.radius >= c.MaxZ && newZ-w.radius < c.MaxZ {
			newZ = c.MaxZ + w.radius
		}
	}
	return newZ
}

// resolvePenetration pushes a capsule out of any collider it ended up
// overlapping, choosing the cheapest face. Covers spawn placement and
// corner cases the axis sweeps cannot see.
func (w *World) resolvePenetration(x, z float64) (float64, float64) {
	for _, c := range w.colliders {
		if !w.blocks(c) {
			continue
		}
		if !c.ContainsXZ(x, z, w.radius) {
			continue
		}

		pushWest := (x + w.radius) - c.MinX
		pushEast := c.MaxX - (x - w.radius)
		pushNorth := (z + w.radius) - c.MinZ
		pushSouth := c.MaxZ - (z - w.radius)

		minPush := math.Min(math.Min(pushWest, pushEast), math.Min(pushNorth, pushSouth))
		switch minPush {
		case pushWest:
			x = c.MinX - w.radius
		case pushEast:
			x = c.MaxX + w.radius
		case pushNorth:
			z = c.MinZ - w.radius
		default:
			z = c.MaxZ + w.radius
		}
	}
	return x, z
}

// blocks reports whether a collider intersects the capsule's vertical span.
// Ledges below stepHeight are walked over; overhead geometry is ignored.
func (w *World) blocks(c arena.AABB) bool {
	if c.MaxY <= w.bottomY+stepHeight {
		return false
	}
	if c.MinY >= w.topY {
		return false
	}
	return true
}

// RayFirstHit casts a horizontal ray at body center height and returns the
// distance to the first static collider, or false when the ray is clear over
// maxLen. Triangles give exact mesh hits; collider boxes catch everything
// the baked mesh approximates.
func (w *World) RayFirstHit(ox, oz, angleRad, maxLen float64) (float64, bool) {
	dirX := math.Sin(angleRad)
	dirZ := math.Cos(angleRad)
	oy := w.CapsuleY()

	best := math.Inf(1)

	for _, c := range w.colliders {
		if c.MaxY <= oy || c.MinY >= oy {
			continue
		}
		if t, ok := rayBoxXZ(ox, oz, dirX, dirZ, c); ok && t < best {
			best = t
		}
	}

	for _, tri := range w.geo.Triangles {
		if t, ok := rayTriangle(ox, oy, oz, dirX, 0, dirZ, tri); ok && t < best {
			best = t
		}
	}

	if best <= maxLen {
		return best, true
	}
	return 0, false
}

// IsInsideBuilding reports whether a footprint overlaps any building box.
func (w *World) IsInsideBuilding(x, z, radius float64) bool {
	return w.geo.IsInsideBuilding(x, z, radius)
}

// rayBoxXZ is a 2D slab test in the horizontal plane.
func rayBoxXZ(ox, oz, dx, dz float64, b arena.AABB) (float64, bool) {
	tMin := math.Inf(-1)
	tMax := math.Inf(1)

	if dx != 0 {
		t1 := (b.MinX - ox) / dx
		t2 := (b.MaxX - ox) / dx
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
	} else if ox < b.MinX || ox > b.MaxX {
		return 0, false
	}

	if dz != 0 {
		t1 := (b.MinZ - oz) / dz
		t2 := (b.MaxZ - oz) / dz
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
	} else if oz < b.MinZ || oz > b.MaxZ {
		return 0, false
	}

	if tMax < tMin || tMax < 0 {
		return 0, false
	}
	if tMin < 0 {
		// Origin inside the box.
		return 0, true
	}
	return tMin, true
}

// rayTriangle is the Moller-Trumbore intersection, horizontal ray included.
func rayTriangle(ox, oy, oz, dx, dy, dz float64, tri arena.Triangle) (float64, bool) {
	const eps = 1e-9

	e1x, e1y, e1z := tri.B.X-tri.A.X, tri.B.Y-tri.A.Y, tri.B.Z-tri.A.Z
	e2x, e2y, e2z := tri.C.X-tri.A.X, tri.C.Y-tri.A.Y, tri.C.Z-tri.A.Z

	// p = dir x e2
	px := dy*e2z - dz*e2y
	py := dz*e2x - dx*e2z
	pz := dx*e2y - dy*e2x

	det := e1x*px + e1y*py + e1z*pz
	if det > -eps && det < eps {
		return 0, false
	}
	inv := 1.0 / det

	tx, ty, tz := ox-tri.A.X, oy-tri.A.Y, oz-tri.A.Z
	u := (tx*px + ty*py + tz*pz) * inv
	if u < 0 || u > 1 {
		return 0, false
	}

	// q = t x e1
	qx := ty*e1z - tz*e1y
	qy := tz*e1x - tx*e1z
	qz := tx*e1y - ty*e1x

	v := (dx*qx + dy*qy + dz*qz) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}

	t := (e2x*qx + e2y*qy + e2z*qz) * inv
	if t < eps {
		return 0, false
	}
	return t, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
