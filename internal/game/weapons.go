package game

import (
	"math"
	"math/rand"
	"time"
)

// Weapon IDs as they appear on the wire and in pickups.
const (
	WeaponKnife        = "knife"
	WeaponPistol       = "pistol"
	WeaponSMG          = "smg"
	WeaponShotgun      = "shotgun"
	WeaponAssaultRifle = "assault_rifle"
)

// AmmoUnlimited marks weapons that never consume ammo.
const AmmoUnlimited = -1

// Weapon represents a weapon configuration
type Weapon struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Damage       int     `json:"damage"`
	FireRateMs   int     `json:"fireRateMs"`
	Range        float64 `json:"range"`
	AmmoCapacity int     `json:"ammoCapacity"`
	Melee        bool    `json:"melee"`
	SpreadRad    float64 `json:"spread"`
	Pellets      int     `json:"pellets"`
	Tier         int     `json:"tier"`
}

// Weapons is the map of all available weapons
// NOTE: Range is in world units (arena is ~60 across), damage in health points
var Weapons = map[string]Weapon{
	WeaponKnife: {
		ID:           WeaponKnife,
		Name:         "Knife",
		Damage:       35,
		FireRateMs:   500,
		Range:        2.2,
		AmmoCapacity: AmmoUnlimited,
		Melee:        true,
		SpreadRad:    0,
		Pellets:      1,
		Tier:         0,
	},
	WeaponPistol: {
		ID:           WeaponPistol,
		Name:         "Pistol",
		Damage:       25,
		FireRateMs:   450,
		Range:        40,
		AmmoCapacity: 12,
		Melee:        false,
		SpreadRad:    0.015,
		Pellets:      1,
		Tier:         1,
	},
	WeaponSMG: {
		ID:           WeaponSMG,
		Name:         "SMG",
		Damage:       12,
		FireRateMs:   120,
		Range:        30,
		AmmoCapacity: 30,
		Melee:        false,
		SpreadRad:    0.035,
		Pellets:      1,
		Tier:         2,
	},
	WeaponShotgun: {
		ID:           WeaponShotgun,
		Name:         "Shotgun",
		Damage:       9,
		FireRateMs:   900,
		Range:        18,
		AmmoCapacity: 6,
		Melee:        false,
		SpreadRad:    0.09,
		Pellets:      6,
		Tier:         3,
	},
	WeaponAssaultRifle: {
		ID:           WeaponAssaultRifle,
		Name:         "Assault Rifle",
		Damage:       20,
		FireRateMs:   180,
		Range:        45,
		AmmoCapacity: 24,
		Melee:        false,
		SpreadRad:    0.02,
		Pellets:      1,
		Tier:         4,
	},
}

// GunRotation lists the pickup-able guns in tier order.
var GunRotation = []string{WeaponPistol, WeaponSMG, WeaponShotgun, WeaponAssaultRifle}

// GetWeapon returns a weapon by ID, defaults to knife
func GetWeapon(id string) Weapon {
	if w, ok := Weapons[id]; ok {
		return w
	}
	return Weapons[WeaponKnife]
}

// RandomGun picks a gun type for a fresh pickup.
func RandomGun(rng *rand.Rand) string {
	return GunRotation[rng.Intn(len(GunRotation))]
}

// CanFire reports whether a weapon with the given ammo and last shot
// time may fire now. The cooldown gate uses the weapon's fire rate.
func CanFire(w Weapon, ammo int, lastShot, now time.Time) bool {
	if w.AmmoCapacity != AmmoUnlimited && ammo <= 0 {
		return false
	}
	return now.Sub(lastShot) >= time.Duration(w.FireRateMs)*time.Millisecond
}

// ConsumeAmmo returns the ammo count after firing one shot. Unlimited
// weapons are untouched; counted weapons never go below zero.
func ConsumeAmmo(w Weapon, ammo int) int {
	if w.AmmoCapacity == AmmoUnlimited {
		return ammo
	}
	if ammo <= 1 {
		return 0
	}
	return ammo - 1
}

// ShotTarget is the shooter-visible slice of a potential victim.
type ShotTarget struct {
	ID     string
	X, Z   float64
	Radius float64
}

// RayFunc probes static geometry: it returns the distance to the first
// obstacle along the heading and whether one was found within maxLen.
type RayFunc func(ox, oz, angleRad, maxLen float64) (float64, bool)

// PelletResult is the outcome of tracing one pellet of a shot.
// EndX/EndZ give the tracer endpoint: the victim's position on a hit,
// otherwise the first wall intersection or the weapon's max range.
type PelletResult struct {
	Hit      bool
	VictimID string
	Distance float64
	EndX     float64
	EndZ     float64
}

// ResolveShot traces every pellet of one trigger pull. Each pellet aims
// at aimAngle plus spread jitter scaled by (2 - accuracy), then hits the
// nearest target that is in range, inside the angular cone subtended by
// its body radius, and not occluded by static geometry.
func ResolveShot(ox, oz, aimAngle float64, w Weapon, accuracy float64, targets []ShotTarget, ray RayFunc, rng *rand.Rand) []PelletResult {
	pellets := w.Pellets
	if pellets < 1 {
		pellets = 1
	}
	results := make([]PelletResult, 0, pellets)

	for i := 0; i < pellets; i++ {
		angle := aimAngle
		if w.SpreadRad > 0 {
			angle += w.SpreadRad * (2 - accuracy) * (rng.Float64()*2 - 1)
		}
		results = append(results, tracePellet(ox, oz, angle, w.Range, targets, ray))
	}
	return results
}

func tracePellet(ox, oz, angle, maxRange float64, targets []ShotTarget, ray RayFunc) PelletResult {
	bestIdx := -1
	bestDist := math.Inf(1)

	for i, tg := range targets {
		dx := tg.X - ox
		dz := tg.Z - oz
		dist := math.Hypot(dx, dz)
		if dist < 1e-6 || dist > maxRange {
			continue
		}

		bearing := math.Atan2(dx, dz)
		offset := math.Abs(normalizeAngle(bearing - angle))
		cone := math.Asin(math.Min(1, tg.Radius/dist))
		if offset > cone {
			continue
		}

		// Occlusion is tested along the straight line to the target,
		// not the jittered pellet heading.
		if t, blocked := ray(ox, oz, bearing, dist); blocked && t < dist {
			continue
		}

		if dist < bestDist {
			bestIdx = i
			bestDist = dist
		}
	}

	if bestIdx >= 0 {
		tg := targets[bestIdx]
		return PelletResult{
			Hit:      true,
			VictimID: tg.ID,
			Distance: bestDist,
			EndX:     tg.X,
			EndZ:     tg.Z,
		}
	}

	tracerLen := maxRange
	if t, hitWall := ray(ox, oz, angle, maxRange); hitWall {
		tracerLen = t
	}
	return PelletResult{
		EndX: ox + math.Sin(angle)*tracerLen,
		EndZ: oz + math.Cos(angle)*tracerLen,
	}
}

// ResolveMelee picks the single nearest target within reach. Melee has
// no facing requirement, the swing covers a full circle.
func ResolveMelee(ox, oz, reach float64, targets []ShotTarget) (string, float64, bool) {
	bestID := ""
	bestDist := math.Inf(1)

	for _, tg := range targets {
		dist := math.Hypot(tg.X-ox, tg.Z-oz)
		if dist > reach || dist >= bestDist {
			continue
		}
		bestID = tg.ID
		bestDist = dist
	}
	if bestID == "" {
		return "", 0, false
	}
	return bestID, bestDist, true
}

// normalizeAngle wraps an angle into [-π, π).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
