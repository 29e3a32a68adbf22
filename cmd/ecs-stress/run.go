package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/plus3/reflecs/config"
	"github.com/plus3/reflecs/ecs"
	"github.com/plus3/reflecs/entity"
	"github.com/plus3/reflecs/query"
	"github.com/plus3/reflecs/record"
	"github.com/plus3/reflecs/refl"
	"github.com/plus3/reflecs/registry"
	"go.uber.org/zap"
)

// simulation moves units and lets their weapons wear down their health until
// they are destroyed
type simulation struct {
	reg *registry.Registry
	log *zap.Logger
	rng *rand.Rand

	movers   *query.Compiled
	position query.TermRef
	velocity query.TermRef

	weapons *query.Compiled
	damage  query.TermRef
	health  query.TermRef
	tally   query.TermRef

	battle *ecs.Singleton[Battle]

	red, blue *query.Compiled
}

func newSimulation(reg *registry.Registry, seed int64) *simulation {
	s := &simulation{
		reg: reg,
		log: reg.Logger().Named("simulation"),
		rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
	}
	s.battle = ecs.NewSingleton(reg.World(), reg.Resolve(refl.StructOf[Battle]()), Battle{})

	b := query.NewBuilder()
	s.position = b.With(query.ByStruct(refl.StructOf[Position]()))
	s.velocity = b.With(query.ByStruct(refl.StructOf[Velocity]()))
	b.InOut(s.velocity, ecs.In)
	s.movers = b.Build(reg)

	b = query.NewBuilder()
	s.damage = b.With(query.ByStruct(refl.StructOf[Damage]()))
	s.health = b.With(query.ByStruct(refl.StructOf[Health]()))
	b.Up(s.health, query.ByID(ecs.ChildOf))
	s.tally = b.With(query.ByStruct(refl.StructOf[Battle]()))
	b.Singleton(s.tally)
	s.weapons = b.Build(reg)

	s.red = teamQuery(reg, TeamRed)
	s.blue = teamQuery(reg, TeamBlue)
	return s
}

func teamQuery(reg *registry.Registry, team Team) *query.Compiled {
	b := query.NewBuilder()
	b.With(query.ByEnumConstant(teamType, int64(team)))
	return b.Build(reg)
}

// populate creates n instances of the prefab with random positions, half of
// them on the blue team
func (s *simulation) populate(prefab entity.Handle, n int) {
	for i := 0; i < n; i++ {
		e := record.Instantiate(prefab)
		if p := entity.Get[Position](e); p != nil {
			p.X = s.rng.Float32() * 100
			p.Y = s.rng.Float32() * 100
		}
		if i%2 == 1 {
			entity.SetEnum(e, TeamBlue)
		}
	}
	s.log.Info("population complete", zap.Int("entities", n), zap.Stringer("prefab", prefab))
}

// step advances the simulation once and returns the number of destroyed units
func (s *simulation) step() int {
	s.battle.Get().Ticks++

	for row := range s.movers.Iter() {
		p := query.FieldValue[Position](s.movers, row, s.position)
		v := query.FieldValue[Velocity](s.movers, row, s.velocity)
		p.X += v.DX
		p.Y += v.DY
	}

	destroyed := 0
	s.weapons.Each(func(weapon entity.Handle, row *ecs.Row) {
		h := query.FieldValue[Health](s.weapons, row, s.health)
		if h.HP <= 0 {
			return
		}
		h.HP -= query.FieldValue[Damage](s.weapons, row, s.damage).Amount
		if h.HP <= 0 {
			entity.New(s.reg, row.Src(s.weapons.Field(s.health))).Destroy()
			query.FieldValue[Battle](s.weapons, row, s.tally).Destroyed++
			destroyed++
		}
	})
	return destroyed
}

// run executes a stress test described by cfg and writes the report to w
func run(ctx context.Context, cfg config.Config, gcPauseMetrics bool, w io.Writer) error {
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := registry.New(ecs.NewWorld(), registry.FromConfig(cfg.Registry), registry.WithLogger(logger))
	types := catalog()
	for _, name := range types.Names() {
		t, _ := types.Lookup(name)
		reg.Register(t, true)
	}

	codec := record.NewCodec(query.NewLibrary(types))
	template, err := loadTemplate(codec, cfg.Stress.Template)
	if err != nil {
		return err
	}
	prefab := template.Prefab(reg, "")

	sim := newSimulation(reg, cfg.Stress.Seed)
	sim.populate(prefab, cfg.Stress.Entities)

	report := &Report{
		Template:       prefab.Path(),
		Entities:       cfg.Stress.Entities,
		Iterations:     cfg.Stress.Iterations,
		Seed:           cfg.Stress.Seed,
		GCPauseMetrics: gcPauseMetrics,
	}
	runtime.ReadMemStats(&report.MemStatsStart)

	logger.Info("running simulation", zap.Int("iterations", cfg.Stress.Iterations))
	startTime := time.Now()

Loop:
	for i := 0; i < cfg.Stress.Iterations; i++ {
		select {
		case <-ctx.Done():
			logger.Warn("simulation interrupted", zap.Error(ctx.Err()), zap.Int("iteration", i))
			break Loop
		default:
		}

		updateStart := time.Now()
		if n := sim.step(); n > 0 {
			logger.Debug("units destroyed", zap.Int("iteration", i), zap.Int("count", n))
		}
		report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
		report.TotalUpdates++
	}

	report.TotalTime = time.Since(startTime)
	report.UpdateTime.Finalize()
	battle := sim.battle.Get()
	report.Destroyed = battle.Destroyed
	report.Red, report.Blue = sim.red.Count(), sim.blue.Count()
	report.World = reg.World().Stats()
	runtime.ReadMemStats(&report.MemStatsEnd)

	logger.Info("simulation finished",
		zap.Int64("updates", report.TotalUpdates),
		zap.Int("ticks", battle.Ticks),
		zap.Duration("elapsed", report.TotalTime),
		zap.Int("destroyed", report.Destroyed),
	)

	if err := report.Generate(w); err != nil {
		return fmt.Errorf("generating report: %w", err)
	}
	return nil
}
