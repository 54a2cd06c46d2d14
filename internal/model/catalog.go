package model

// CreatureCatalog and MoveCatalog are the interfaces the engine accepts
// from an external data loader; how the stat database and move catalog
// are ingested is the loader's concern. The engine only needs to
// look a name up once, when the local driver builds the Creature/Move it
// sends in BATTLE_SETUP / ATTACK_ANNOUNCE.

type CreatureCatalog interface {
	Creature(name string) (*Creature, bool)
}

type MoveCatalog interface {
	Move(name string) (*Move, bool)
}
