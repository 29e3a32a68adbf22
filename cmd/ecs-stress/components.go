package main

import (
	"fmt"
	"os"

	"github.com/plus3/reflecs/record"
	"github.com/plus3/reflecs/refl"
)

type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Health struct {
	HP int
}

type Damage struct {
	Amount int
}

// Battle is the world-wide state of a run
type Battle struct {
	Ticks     int
	Destroyed int
}

type Team uint8

const (
	TeamRed Team = iota
	TeamBlue
)

var teamType = refl.EnumOf[Team](
	refl.Enum("Red", TeamRed),
	refl.Enum("Blue", TeamBlue),
)

// catalog lists the types a template document may name
func catalog() *refl.Catalog {
	return refl.NewCatalog(
		refl.StructOf[Position](),
		refl.StructOf[Velocity](),
		refl.StructOf[Health](),
		refl.StructOf[Damage](),
		refl.StructOf[Battle](),
		teamType,
	)
}

// defaultTemplate is the unit spawned when no template file is configured
func defaultTemplate() *record.Record {
	b := record.NewBuilder().
		Fragment(record.Named("Unit")).
		Component(refl.ValueOf(Position{})).
		Component(refl.ValueOf(Velocity{DX: 1, DY: 0.5})).
		Component(refl.ValueOf(Health{HP: 100})).
		Enum(teamType, int64(TeamRed))
	b.SubEntity("Weapon").Component(refl.ValueOf(Damage{Amount: 1}))
	return b.Build()
}

func loadTemplate(codec *record.Codec, path string) (*record.Record, error) {
	if path == "" {
		return defaultTemplate(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening template: %w", err)
	}
	defer f.Close()

	r, err := codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", path, err)
	}
	return r, nil
}
