// Package bot implements the arena's built-in opponents. Brains are
// pure decision makers: each tick they read a world view and emit
// commands, the engine owns all state mutation.
package bot

import "math/rand"

// Personality tunes how a brain fights. DetectRadius and SpeedMult are
// kept for tuning parity with older builds but no longer gate anything,
// targeting works arena-wide and every body moves at arena speed.
type Personality struct {
	Name          string
	DetectRadius  float64
	PreferredDist float64
	SpeedMult     float64
	FleeHealth    int
	Accuracy      float64 // 0..1, higher means tighter aim
}

// Personalities is the roster bots are drawn from, round-robin.
var Personalities = []Personality{
	{
		Name:          "aggressive",
		DetectRadius:  25,
		PreferredDist: 6,
		SpeedMult:     1.0,
		FleeHealth:    15,
		Accuracy:      0.75,
	},
	{
		Name:          "cautious",
		DetectRadius:  30,
		PreferredDist: 14,
		SpeedMult:     1.0,
		FleeHealth:    40,
		Accuracy:      0.85,
	},
	{
		Name:          "tactical",
		DetectRadius:  28,
		PreferredDist: 10,
		SpeedMult:     1.0,
		FleeHealth:    25,
		Accuracy:      0.9,
	},
	{
		Name:          "berserker",
		DetectRadius:  20,
		PreferredDist: 3,
		SpeedMult:     1.0,
		FleeHealth:    0,
		Accuracy:      0.6,
	},
	{
		Name:          "sniper",
		DetectRadius:  35,
		PreferredDist: 18,
		SpeedMult:     1.0,
		FleeHealth:    30,
		Accuracy:      0.95,
	},
}

// PersonalityForSlot deals personalities round-robin by bot index.
func PersonalityForSlot(idx int) Personality {
	return Personalities[idx%len(Personalities)]
}

// RandomPersonality picks one uniformly.
func RandomPersonality(rng *rand.Rand) Personality {
	return Personalities[rng.Intn(len(Personalities))]
}
