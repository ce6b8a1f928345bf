package replica

import "github.com/google/uuid"

// ActorGenerator issues replica actor IDs. An actor ID names one replica
// of a document for the lifetime of its local snapshot; it is minted on
// first run and survives restarts through the persisted document.
type ActorGenerator interface {
	NewActor() string
}

// UUIDActorGenerator issues time-ordered UUIDv7 actor IDs.
type UUIDActorGenerator struct{}

func (UUIDActorGenerator) NewActor() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedActorGenerator returns a predetermined sequence of actor IDs and
// panics when exhausted. Tests size the sequence to the scenario so an
// unexpected extra replica fails loudly.
type FixedActorGenerator struct {
	ids []string
	idx int
}

func NewFixedActorGenerator(ids ...string) *FixedActorGenerator {
	return &FixedActorGenerator{ids: ids}
}

func (g *FixedActorGenerator) NewActor() string {
	if g.idx >= len(g.ids) {
		panic("replica: fixed actor generator exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
