package bot

import (
	"math"
	"time"
)

const deg = math.Pi / 180

const (
	// faceOnDistance switches from gentle steering to a full 8-way
	// escape probe when an obstacle is nearly touching.
	faceOnDistance = 1.5

	reversalWindow    = 1500 * time.Millisecond
	reversalTolerance = 55 * deg
	oscillationHold   = 1800 * time.Millisecond
	standoffHold      = 1 * time.Second

	recoverBaseMs = 600
	recoverMaxMs  = 2500
)

// applyOverlays layers the movement correctors over the policy's
// desired heading, strongest first: stuck recovery, oscillation
// damping, no-LOS standoff, then obstacle steering with a short-lived
// cached adjustment.
func (b *Brain) applyOverlays(w *World, now time.Time, heading float64, moving bool) (float64, bool) {
	if !moving {
		b.stuckSince = time.Time{}
		b.lastSampleAt = time.Time{}
		b.haveHeading = false
		return heading, false
	}

	b.trackStuck(w, now, heading)
	if now.Before(b.recoverUntil) {
		return b.recoverAngle, true
	}

	heading = b.dampOscillation(now, heading)
	heading = b.applyStandoff(now, heading)
	heading = b.steerAroundObstacles(w, now, heading)
	return heading, true
}

// trackStuck samples position at a fixed cadence while the bot wants
// to move. Too little displacement for too long triggers a recovery
// run along the clearest escape heading, with escalating durations on
// repeat triggers and alternating probe sides so consecutive attempts
// explore different exits.
func (b *Brain) trackStuck(w *World, now time.Time, heading float64) {
	self := w.Self

	if b.lastSampleAt.IsZero() {
		b.lastX, b.lastZ = self.X, self.Z
		b.lastSampleAt = now
		return
	}

	if now.Sub(b.lastSampleAt) >= time.Duration(b.cfg.StuckCheckIntervalMs)*time.Millisecond {
		moved := math.Hypot(self.X-b.lastX, self.Z-b.lastZ)
		if moved < b.cfg.StuckDistanceThreshold {
			if b.stuckSince.IsZero() {
				b.stuckSince = b.lastSampleAt
			}
		} else {
			b.stuckSince = time.Time{}
			b.recoverCount = 0
		}
		b.lastX, b.lastZ = self.X, self.Z
		b.lastSampleAt = now
	}

	if b.stuckSince.IsZero() || now.Before(b.recoverUntil) {
		return
	}
	if now.Sub(b.stuckSince) < time.Duration(b.cfg.StuckTimeThresholdMs)*time.Millisecond {
		return
	}

	b.recoverCount++
	side := 1.0
	if b.recoverCount%2 == 0 {
		side = -1
	}
	b.recoverAngle = b.findLongestClearDirection(w, heading, side)

	durMs := float64(recoverBaseMs) * math.Pow(1.5, float64(b.recoverCount-1))
	if durMs > recoverMaxMs {
		durMs = recoverMaxMs
	}
	b.recoverUntil = now.Add(time.Duration(durMs) * time.Millisecond)
	b.stuckSince = time.Time{}
}

// dampOscillation counts near-reversals of the desired heading. Three
// flips in quick succession means the policy is ping-ponging between
// two pulls, so force a perpendicular heading long enough to break out.
func (b *Brain) dampOscillation(now time.Time, heading float64) float64 {
	if b.haveHeading {
		diff := math.Abs(normalizeAngle(heading - b.lastHeading))
		if diff > math.Pi-reversalTolerance {
			if now.Sub(b.lastReversal) > reversalWindow {
				b.reversals = 0
			}
			b.reversals++
			b.lastReversal = now
		}
	}
	b.lastHeading = heading
	b.haveHeading = true

	if b.reversals >= 3 && now.After(b.oscUntil) {
		side := 1.0
		if b.rng.Float64() < 0.5 {
			side = -1
		}
		b.oscAngle = heading + side*(math.Pi/2) + (b.rng.Float64()-0.5)*0.3
		b.oscUntil = now.Add(oscillationHold)
		b.reversals = 0
	}

	if now.Before(b.oscUntil) {
		return b.oscAngle
	}
	return heading
}

// applyStandoff sidesteps after staring at a wall between the bot and
// its target for too long, flushing out face-offs across a building.
func (b *Brain) applyStandoff(now time.Time, heading float64) float64 {
	if !b.losLostSince.IsZero() &&
		now.Sub(b.losLostSince) >= time.Duration(b.cfg.NoLOSStandoffMs)*time.Millisecond &&
		now.After(b.standoffUntil) {
		side := 1.0
		if b.rng.Float64() < 0.5 {
			side = -1
		}
		b.standoffAngle = heading + side*(math.Pi/2+(b.rng.Float64()-0.5)*0.35)
		b.standoffUntil = now.Add(standoffHold)
		b.losLostSince = now
	}

	if now.Before(b.standoffUntil) {
		return b.standoffAngle
	}
	return heading
}

// steerAroundObstacles keeps the desired heading unless the forward
// ray finds something within the lookahead. Near-touching obstacles
// get the full escape probe, otherwise the smallest clear turn wins.
// The result is cached briefly so the bot commits to one way around.
func (b *Brain) steerAroundObstacles(w *World, now time.Time, heading float64) float64 {
	if now.Before(b.avoidUntil) {
		return b.avoidAngle
	}

	self := w.Self
	look := b.cfg.ObstacleLookahead

	t, hit := w.Ray(self.X, self.Z, heading, look)
	if !hit {
		return heading
	}

	if t < faceOnDistance {
		side := 1.0
		if b.recoverCount%2 == 1 {
			side = -1
		}
		a := b.findLongestClearDirection(w, heading, side)
		b.cacheAvoid(now, a)
		return a
	}

	for _, off := range []float64{30 * deg, -30 * deg, 60 * deg, -60 * deg, 90 * deg, -90 * deg, 135 * deg, -135 * deg} {
		cand := heading + off
		if _, blocked := w.Ray(self.X, self.Z, cand, look); !blocked {
			b.cacheAvoid(now, cand)
			return cand
		}
	}

	a := b.findLongestClearDirection(w, heading, 1)
	b.cacheAvoid(now, a)
	return a
}

func (b *Brain) cacheAvoid(now time.Time, angle float64) {
	b.avoidAngle = angle
	b.avoidUntil = now.Add(time.Duration(b.cfg.AvoidCacheMs) * time.Millisecond)
}

// findLongestClearDirection probes eight headings around base and
// returns the one with the most clearance at an extended range. side
// mirrors the probe order so alternating calls explore both exits of
// a pocket. Ties keep the earlier candidate, which is the smaller turn.
func (b *Brain) findLongestClearDirection(w *World, base, side float64) float64 {
	self := w.Self
	probeLen := b.cfg.ObstacleLookahead * 2.5

	offsets := [8]float64{0, 45 * deg, -45 * deg, 90 * deg, -90 * deg, 135 * deg, -135 * deg, 180 * deg}

	bestAngle := base + math.Pi
	bestClear := -1.0
	for _, off := range offsets {
		cand := base + side*off
		clear := probeLen
		if t, blocked := w.Ray(self.X, self.Z, cand, probeLen); blocked {
			clear = t
		}
		if clear > bestClear {
			bestClear = clear
			bestAngle = cand
		}
	}
	return bestAngle
}

// normalizeAngle wraps an angle into [-π, π).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
