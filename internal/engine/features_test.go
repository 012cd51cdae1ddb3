package engine

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/cucumber/godog"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/resource"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeWorldScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

type worldContext struct {
	world   *World
	outcome Outcome
	err     error
}

func (ctx *worldContext) reset() {
	ctx.world = nil
	ctx.outcome = Outcome{}
	ctx.err = nil
}

// Given steps

func (ctx *worldContext) anEmptyWorld() error {
	ctx.world = NewWorld(DefaultOptions())
	return nil
}

func (ctx *worldContext) aBuilding(kind, id string) error {
	k, ok := building.ParseKind(kind)
	if !ok {
		return fmt.Errorf("unknown building kind %q", kind)
	}
	_, err := ctx.world.AddBuilding(building.New(id, k))
	return err
}

// mutate edits a registered building in place. Steps run between ticks, so
// holding the world lock is enough.
func (ctx *worldContext) mutate(id string, fn func(b *building.Building)) error {
	ctx.world.mu.Lock()
	defer ctx.world.mu.Unlock()
	b, ok := ctx.world.buildings[id]
	if !ok {
		return fmt.Errorf("building %q not found", id)
	}
	fn(b)
	return nil
}

func parseResource(name string) (resource.Type, error) {
	t, ok := resource.Parse(name)
	if !ok {
		return 0, fmt.Errorf("unknown resource %q", name)
	}
	return t, nil
}

func (ctx *worldContext) buildingHolds(id string, amount float64, res string) error {
	t, err := parseResource(res)
	if err != nil {
		return err
	}
	return ctx.mutate(id, func(b *building.Building) { b.Resources[t] = amount })
}

func (ctx *worldContext) buildingRequires(id string, amount float64, res string) error {
	t, err := parseResource(res)
	if err != nil {
		return err
	}
	return ctx.mutate(id, func(b *building.Building) { b.Requires[t] = amount })
}

func (ctx *worldContext) buildingProduces(id string, amount float64, res string) error {
	t, err := parseResource(res)
	if err != nil {
		return err
	}
	return ctx.mutate(id, func(b *building.Building) { b.Produces[t] = amount })
}

func (ctx *worldContext) anEdge(layer, from, to string, travel int) error {
	_, err := ctx.world.ConnectBuildings(layer, from, to, network.Overrides{TravelTime: &travel})
	return err
}

// When steps

func (ctx *worldContext) ticksPass(n int) error {
	ctx.world.Run(n)
	return nil
}

func (ctx *worldContext) isAttacked(target string, severity float64) error {
	ctx.outcome, ctx.err = ctx.world.ExecuteAttack(target, severity)
	return ctx.err
}

func (ctx *worldContext) isRecovered(target string, level float64) error {
	ctx.outcome, ctx.err = ctx.world.ExecuteRecovery(target, level)
	return ctx.err
}

// Then steps

func (ctx *worldContext) buildingShouldHold(id string, want float64, res string) error {
	t, err := parseResource(res)
	if err != nil {
		return err
	}
	b, ok := ctx.world.Building(id)
	if !ok {
		return fmt.Errorf("building %q not found", id)
	}
	if got := b.Resources.Get(t); math.Abs(got-want) > 1e-9 {
		return fmt.Errorf("building %s holds %v %s, want %v", id, got, res, want)
	}
	return nil
}

func (ctx *worldContext) buildingShouldBe(id, status string) error {
	b, ok := ctx.world.Building(id)
	if !ok {
		return fmt.Errorf("building %q not found", id)
	}
	if string(b.Status) != status {
		return fmt.Errorf("building %s is %s, want %s", id, b.Status, status)
	}
	return nil
}

func (ctx *worldContext) findEdge(key string) (*network.Edge, error) {
	for _, e := range ctx.world.Edges() {
		if e.Key() == key {
			return e, nil
		}
	}
	return nil, fmt.Errorf("edge %q not found", key)
}

func (ctx *worldContext) edgeShouldCarry(key string, want float64, res string) error {
	t, err := parseResource(res)
	if err != nil {
		return err
	}
	e, err := ctx.findEdge(key)
	if err != nil {
		return err
	}
	if got := e.InTransitTotals().Get(t); math.Abs(got-want) > 1e-9 {
		return fmt.Errorf("edge %s carries %v %s, want %v", key, got, res, want)
	}
	return nil
}

func (ctx *worldContext) edgeShouldBe(key, status string) error {
	e, err := ctx.findEdge(key)
	if err != nil {
		return err
	}
	if string(e.Attributes.Status) != status {
		return fmt.Errorf("edge %s is %s, want %s", key, e.Attributes.Status, status)
	}
	return nil
}

func (ctx *worldContext) commandShouldBeApplied() error {
	if !ctx.outcome.Applied {
		return fmt.Errorf("expected %s on %q to be applied: %+v", ctx.outcome.Kind, ctx.outcome.Target, ctx.outcome.Entities)
	}
	return nil
}

func (ctx *worldContext) commandShouldNotBeApplied() error {
	if ctx.outcome.Applied {
		return fmt.Errorf("expected %s on %q to change nothing: %+v", ctx.outcome.Kind, ctx.outcome.Target, ctx.outcome.Entities)
	}
	return nil
}

func (ctx *worldContext) summaryShouldReport(buildings, edges string) error {
	s := ctx.world.StatusSummary()
	if s.Buildings != buildings || s.Edges != edges {
		return fmt.Errorf("summary reports buildings %s and edges %s, want %s and %s", s.Buildings, s.Edges, buildings, edges)
	}
	return nil
}

// InitializeWorldScenario registers the world step definitions.
func InitializeWorldScenario(sc *godog.ScenarioContext) {
	wc := &worldContext{}

	sc.Before(func(c context.Context, s *godog.Scenario) (context.Context, error) {
		wc.reset()
		return c, nil
	})

	sc.Step(`^an empty world$`, wc.anEmptyWorld)
	sc.Step(`^an? "([^"]*)" building "([^"]*)"$`, wc.aBuilding)
	sc.Step(`^building "([^"]*)" holds (\d+(?:\.\d+)?) ([a-z_]+)$`, wc.buildingHolds)
	sc.Step(`^building "([^"]*)" requires (\d+(?:\.\d+)?) ([a-z_]+)$`, wc.buildingRequires)
	sc.Step(`^building "([^"]*)" produces (\d+(?:\.\d+)?) ([a-z_]+)$`, wc.buildingProduces)
	sc.Step(`^an? "([^"]*)" edge from "([^"]*)" to "([^"]*)" with travel time (\d+)$`, wc.anEdge)

	sc.Step(`^(\d+) ticks? pass(?:es)?$`, wc.ticksPass)
	sc.Step(`^"([^"]*)" is attacked with severity (\d+(?:\.\d+)?)$`, wc.isAttacked)
	sc.Step(`^"([^"]*)" is recovered to level (\d+(?:\.\d+)?)$`, wc.isRecovered)

	sc.Step(`^building "([^"]*)" should hold (\d+(?:\.\d+)?) ([a-z_]+)$`, wc.buildingShouldHold)
	sc.Step(`^building "([^"]*)" should be (active|degraded|offline|destroyed)$`, wc.buildingShouldBe)
	sc.Step(`^edge "([^"]*)" should carry (\d+(?:\.\d+)?) ([a-z_]+) in transit$`, wc.edgeShouldCarry)
	sc.Step(`^edge "([^"]*)" should be (active|damaged|destroyed)$`, wc.edgeShouldBe)
	sc.Step(`^the command should be applied$`, wc.commandShouldBeApplied)
	sc.Step(`^the command should not be applied$`, wc.commandShouldNotBeApplied)
	sc.Step(`^the status summary should report buildings "([^"]*)" and edges "([^"]*)"$`, wc.summaryShouldReport)
}
