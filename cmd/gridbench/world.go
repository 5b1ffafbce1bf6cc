package main

import (
	"math/rand/v2"

	"github.com/gogpu/hashgrid"
	"github.com/mlange-42/ark/ecs"
)

// Position is a particle position in world units.
type Position struct {
	X, Y, Z float32
}

// Velocity is a particle velocity in world units per second.
type Velocity struct {
	X, Y, Z float32
}

// Slot is the element index a particle writes in the grid data buffer.
type Slot struct {
	Index uint32
}

// World is a box of particles bouncing off its walls.
type World struct {
	world  *ecs.World
	mapper *ecs.Map3[Position, Velocity, Slot]
	filter *ecs.Filter3[Position, Velocity, Slot]

	extent [3]float32
	count  int
}

// NewWorld spawns cfg.Particles particles with uniform positions inside the
// extent and uniform velocities up to cfg.MaxSpeed per axis.
func NewWorld(cfg SimulationConfig) *World {
	world := ecs.NewWorld()
	w := &World{
		world:  world,
		mapper: ecs.NewMap3[Position, Velocity, Slot](world),
		filter: ecs.NewFilter3[Position, Velocity, Slot](world),
		extent: cfg.Extent,
		count:  cfg.Particles,
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	speed := func() float32 { return (rng.Float32()*2 - 1) * cfg.MaxSpeed }
	for i := range cfg.Particles {
		pos := Position{
			X: rng.Float32() * cfg.Extent[0],
			Y: rng.Float32() * cfg.Extent[1],
			Z: rng.Float32() * cfg.Extent[2],
		}
		vel := Velocity{X: speed(), Y: speed(), Z: speed()}
		slot := Slot{Index: uint32(i)}
		w.mapper.NewEntity(&pos, &vel, &slot)
	}
	return w
}

// Len returns the number of particles.
func (w *World) Len() int { return w.count }

// Step advances every particle by dt, reflecting it off the box walls.
func (w *World) Step(dt float32) {
	query := w.filter.Query()
	for query.Next() {
		pos, vel, _ := query.Get()
		pos.X, vel.X = reflect(pos.X+vel.X*dt, vel.X, w.extent[0])
		pos.Y, vel.Y = reflect(pos.Y+vel.Y*dt, vel.Y, w.extent[1])
		pos.Z, vel.Z = reflect(pos.Z+vel.Z*dt, vel.Z, w.extent[2])
	}
}

func reflect(p, v, extent float32) (float32, float32) {
	switch {
	case p < 0:
		return min(-p, extent), -v
	case p > extent:
		return max(2*extent-p, 0), -v
	}
	return p, v
}

// Encode writes every particle record into records, which must hold
// Len()*enc.RecordWords() words.
func (w *World) Encode(enc hashgrid.Encoding, records []uint32) {
	rw := enc.RecordWords()
	query := w.filter.Query()
	for query.Next() {
		pos, vel, slot := query.Get()
		off := slot.Index * rw
		enc.Encode(records[off:off+rw],
			hashgrid.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z},
			hashgrid.Vec3{X: vel.X, Y: vel.Y, Z: vel.Z})
	}
}
