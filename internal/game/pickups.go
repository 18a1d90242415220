package game

import (
	"fmt"
	"math"
	"math/rand"

	"shooter-arena/internal/arena"
)

// pickupClearance keeps fresh pickups from stacking on players or on
// each other. pickupHover lifts the rendered pickup off the floor.
const (
	pickupClearance = 3.0
	pickupHover     = 0.5
)

func pickupID(seq int) string {
	return fmt.Sprintf("pickup_%d", seq)
}

// WeaponPickup is a gun lying in the arena waiting to be grabbed.
type WeaponPickup struct {
	ID      string
	Type    string
	X, Y, Z float64
	Taken   bool
}

// FindPickupSpot picks a position for a fresh pickup. Spawn points not
// crowded by living players or other pickups are preferred, then any
// clear random point inside the bounds.
func FindPickupSpot(geo *arena.StaticGeometry, players []*Player, pickups []*WeaponPickup, rng *rand.Rand) (float64, float64) {
	order := rng.Perm(len(geo.SpawnPoints))
	for _, i := range order {
		sp := geo.SpawnPoints[i]
		if crowdedByPlayer(sp.X, sp.Z, players) || crowdedByPickup(sp.X, sp.Z, pickups) {
			continue
		}
		return sp.X, sp.Z
	}

	margin := 2.0
	for attempt := 0; attempt < 25; attempt++ {
		x := geo.MinX + margin + rng.Float64()*(geo.MaxX-geo.MinX-2*margin)
		z := geo.MinZ + margin + rng.Float64()*(geo.MaxZ-geo.MinZ-2*margin)
		if geo.IsInsideBuilding(x, z, 1.0) || crowdedByPickup(x, z, pickups) {
			continue
		}
		return x, z
	}

	// Arena too crowded to be picky.
	cx, cz := (geo.MinX+geo.MaxX)/2, (geo.MinZ+geo.MaxZ)/2
	return cx + rng.Float64()*4 - 2, cz + rng.Float64()*4 - 2
}

func crowdedByPlayer(x, z float64, players []*Player) bool {
	for _, p := range players {
		if !p.Alive {
			continue
		}
		if math.Hypot(p.X-x, p.Z-z) < pickupClearance {
			return true
		}
	}
	return false
}

func crowdedByPickup(x, z float64, pickups []*WeaponPickup) bool {
	for _, pk := range pickups {
		if pk.Taken {
			continue
		}
		if math.Hypot(pk.X-x, pk.Z-z) < pickupClearance {
			return true
		}
	}
	return false
}

// NearestPickup returns the closest untaken pickup within reach.
func NearestPickup(x, z, reach float64, pickups []*WeaponPickup) (*WeaponPickup, bool) {
	var best *WeaponPickup
	bestDist := math.Inf(1)
	for _, pk := range pickups {
		if pk.Taken {
			continue
		}
		dist := math.Hypot(pk.X-x, pk.Z-z)
		if dist <= reach && dist < bestDist {
			best = pk
			bestDist = dist
		}
	}
	return best, best != nil
}
