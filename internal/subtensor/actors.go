package subtensor

import (
	"fmt"

	"github.com/gztensor/qa-automation/internal/chain"
)

// ActorSpec is the configured identity of one test actor: a named
// coldkey/hotkey pair given as derivation seeds.
type ActorSpec struct {
	Name        string
	ColdkeySeed string
	HotkeySeed  string
}

// Actor is a resolved test identity. Addresses are derived once from the
// configured seeds; nothing re-derives them at use sites.
type Actor struct {
	Name    string
	Coldkey chain.AccountID
	Hotkey  chain.AccountID
}

// BuildActors resolves the configured specs into actors. Names and
// derived addresses must be unique.
func BuildActors(specs []ActorSpec) ([]Actor, error) {
	actors := make([]Actor, 0, len(specs))
	seen := make(map[string]string)

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("actor with empty name")
		}
		if spec.ColdkeySeed == "" || spec.HotkeySeed == "" {
			return nil, fmt.Errorf("actor %s: both seeds are required", spec.Name)
		}

		a := Actor{
			Name:    spec.Name,
			Coldkey: chain.DeriveAccount(spec.ColdkeySeed),
			Hotkey:  chain.DeriveAccount(spec.HotkeySeed),
		}
		for _, id := range []string{spec.Name, string(a.Coldkey), string(a.Hotkey)} {
			if prev, dup := seen[id]; dup {
				return nil, fmt.Errorf("actor %s collides with %s on %q", spec.Name, prev, id)
			}
			seen[id] = spec.Name
		}
		actors = append(actors, a)
	}
	return actors, nil
}
