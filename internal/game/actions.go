package game

// ActionKind enumerates the commands an agent can queue.
type ActionKind int

const (
	ActionMove ActionKind = iota
	ActionStop
	ActionShoot
	ActionMelee
	ActionPickup
)

// Action is one queued command. Producers are HTTP workers and bot
// brains, the tick loop is the single consumer. Within a tick, a later
// command overwrites an earlier one of the same slot: move and stop
// share the movement slot, shoot keeps only the last aim.
type Action struct {
	PlayerID string
	Kind     ActionKind
	Angle    float64 // heading for move, aim for shoot, radians

	// A shoot command may carry an explicit keep-moving or stop hint.
	HasMoveHint bool
	MoveHint    bool
}

// ParseActionKind maps wire action names onto kinds.
func ParseActionKind(s string) (ActionKind, bool) {
	switch s {
	case "move":
		return ActionMove, true
	case "stop":
		return ActionStop, true
	case "shoot":
		return ActionShoot, true
	case "melee":
		return ActionMelee, true
	case "pickup":
		return ActionPickup, true
	}
	return 0, false
}

func (k ActionKind) String() string {
	switch k {
	case ActionMove:
		return "move"
	case ActionStop:
		return "stop"
	case ActionShoot:
		return "shoot"
	case ActionMelee:
		return "melee"
	case ActionPickup:
		return "pickup"
	}
	return "unknown"
}

// apply folds one drained action into the player's movement intent and
// one-shot command slots. Movement intent persists across ticks until
// overridden, the one-shot slots are cleared after every tick.
func (a Action) apply(p *Player) {
	switch a.Kind {
	case ActionMove:
		p.moveAngle = a.Angle
		p.Angle = a.Angle
		p.Moving = true
	case ActionStop:
		p.Moving = false
	case ActionShoot:
		p.hasShoot = true
		p.shootAngle = a.Angle
		p.Angle = a.Angle
		if a.HasMoveHint {
			p.Moving = a.MoveHint
		}
	case ActionMelee:
		p.wantsMelee = true
	case ActionPickup:
		p.wantsPickup = true
	}
}
