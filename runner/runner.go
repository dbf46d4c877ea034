// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package runner drives the search for failing examples. A run replays
// persisted tapes, generates fresh ones along unexplored branches of the
// dead-branch trie, hill-climbs target observations, and finally shrinks
// every distinct failure it found.
package runner

import (
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/maps"
	"pgregory.net/rand"

	"github.com/conjecture-engine/conjecture/choice"
	"github.com/conjecture-engine/conjecture/data"
	"github.com/conjecture-engine/conjecture/database"
	"github.com/conjecture-engine/conjecture/pareto"
	"github.com/conjecture-engine/conjecture/shrink"
	"github.com/conjecture-engine/conjecture/tree"
)

const (
	defaultMaxExamples     = 100
	defaultBufferSize      = 8 * 1024
	defaultMaxShrinks      = 500
	defaultMaxDistinctBugs = 10

	// executionCacheSize bounds the number of results kept for replay
	// deduplication. Shrinking retries many near-identical tapes, so the
	// cache pays for itself quickly.
	executionCacheSize = 10_000

	hungTestTimeLimit = 5 * time.Minute
)

// ExitReason records why a run stopped.
type ExitReason int

const (
	// ExitUnset is the state of a run that has not finished.
	ExitUnset ExitReason = iota
	// ExitFinished means the search space was exhausted or all phases ran
	// to completion.
	ExitFinished
	// ExitMaxExamples means the valid-example budget was spent.
	ExitMaxExamples
	// ExitMaxIterations means the total execution budget was spent.
	ExitMaxIterations
	// ExitTimeout means the wall-clock budget was spent.
	ExitTimeout
	// ExitMaxShrinks means tracked failures were improved so often that
	// continuing is unlikely to help.
	ExitMaxShrinks
	// ExitFlaky means a stored failure did not replay to the same origin.
	ExitFlaky
	// ExitFailedHealthCheck means a health check aborted the run.
	ExitFailedHealthCheck
)

func (r ExitReason) String() string {
	switch r {
	case ExitUnset:
		return "unset"
	case ExitFinished:
		return "finished"
	case ExitMaxExamples:
		return "max_examples"
	case ExitMaxIterations:
		return "max_iterations"
	case ExitTimeout:
		return "timeout"
	case ExitMaxShrinks:
		return "max_shrinks"
	case ExitFlaky:
		return "flaky"
	case ExitFailedHealthCheck:
		return "failed_health_check"
	}
	return fmt.Sprintf("ExitReason(%d)", r)
}

// TestFunc is the procedure under test. It draws from the given data and
// concludes by returning normally, by marking the data invalid or
// interesting, or by overrunning the tape.
type TestFunc func(*data.ConjectureData)

// runComplete is the panic value that unwinds a run from deep inside a
// phase back to the single recovery boundary in runPhases.
type runComplete struct {
	reason ExitReason
	err    error
}

type healthCheckState struct {
	valid    int
	invalid  int
	overrun  int
	drawTime time.Duration
}

// Runner owns all state of one search: the execution cache, the dead-branch
// trie, the tracked failures per origin, and the Pareto front of valid
// examples. A Runner must not be shared between goroutines.
type Runner struct {
	test     TestFunc
	settings Settings
	rnd      *rand.Rand

	tree  *tree.Tree
	cache *lru.Cache[string, *data.Result]
	front *pareto.Front

	interesting map[data.Origin]*data.Result
	shrunk      map[data.Origin]bool
	bestTargets map[string]*data.Result

	callCount   int
	validCount  int
	shrinkCount int
	generation  uint64

	startTime  time.Time
	health     *healthCheckState
	exitReason ExitReason
}

// New creates a runner for the given procedure. The settings are normalized
// once here; the zero Settings value gives a plain bounded run.
func New(test TestFunc, settings Settings) *Runner {
	settings = settings.withDefaults()
	var rnd *rand.Rand
	switch {
	case settings.Derandomize:
		rnd = rand.New(0)
	case settings.Seed != 0:
		rnd = rand.New(settings.Seed)
	default:
		rnd = rand.New()
	}
	cache, _ := lru.New[string, *data.Result](executionCacheSize) // can only fail for non-positive size
	r := &Runner{
		test:        test,
		settings:    settings,
		rnd:         rnd,
		tree:        tree.New(),
		cache:       cache,
		front:       pareto.NewFront(rnd),
		interesting: map[data.Origin]*data.Result{},
		shrunk:      map[data.Origin]bool{},
		bestTargets: map[string]*data.Result{},
		startTime:   time.Now(),
	}
	if r.hasDatabase() {
		r.front.OnEvict(func(evicted *data.Result) {
			r.dbDelete(r.paretoKey(), evicted.Buffer)
		})
	}
	return r
}

// Run executes all enabled phases and reports the fatal condition that
// ended the run, if any. Failures found are not errors by themselves; they
// are available through Interesting afterwards.
func (r *Runner) Run() error {
	r.startTime = time.Now()
	err := r.runPhases()
	r.report(fmt.Sprintf("run complete after %d executions (%d valid) and %d shrinks: %v",
		r.callCount, r.validCount, r.shrinkCount, r.exitReason))
	if err != nil {
		return err
	}
	if r.settings.hasPhase(PhaseGenerate) && r.callCount > 0 &&
		r.validCount == 0 && len(r.interesting) == 0 {
		return ErrUnsatisfiable
	}
	if r.settings.ReportMultipleBugs && len(r.interesting) > 1 {
		return &MultipleFailuresError{Origins: r.sortedOrigins()}
	}
	return nil
}

func (r *Runner) runPhases() (err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		complete, ok := v.(runComplete)
		if !ok {
			panic(v)
		}
		r.exitReason = complete.reason
		err = complete.err
	}()
	r.reuseExistingExamples()
	r.generateNewExamples()
	r.optimiseTargets()
	r.shrinkInterestingExamples()
	if r.exitReason == ExitUnset {
		r.exitReason = ExitFinished
	}
	return nil
}

func (r *Runner) exitWith(reason ExitReason) {
	panic(runComplete{reason: reason})
}

func (r *Runner) failHealthCheck(check HealthCheck, message string) {
	if r.settings.suppressed(check) {
		return
	}
	panic(runComplete{
		reason: ExitFailedHealthCheck,
		err:    &HealthCheckError{Check: check, Message: message},
	})
}

// ---- accessors ----

// ExitReason reports why the last run stopped.
func (r *Runner) ExitReason() ExitReason { return r.exitReason }

// Calls returns the number of times the procedure was executed.
func (r *Runner) Calls() int { return r.callCount }

// ValidExamples returns the number of executions that ran to completion.
func (r *Runner) ValidExamples() int { return r.validCount }

// Shrinks returns how often a tracked failure was replaced by a smaller
// one.
func (r *Runner) Shrinks() int { return r.shrinkCount }

// Front returns the Pareto front of valid examples.
func (r *Runner) Front() *pareto.Front { return r.front }

// Interesting returns the best known result per distinct failure origin,
// ordered by the sort key of their tapes.
func (r *Runner) Interesting() []*data.Result {
	res := maps.Values(r.interesting)
	sort.Slice(res, func(i, j int) bool {
		return choice.Simpler(res[i].Buffer, res[j].Buffer)
	})
	return res
}

func (r *Runner) sortedOrigins() []data.Origin {
	origins := maps.Keys(r.interesting)
	sort.Slice(origins, func(i, j int) bool {
		return origins[i].String() < origins[j].String()
	})
	return origins
}

// Random exposes the runner's random source. Together with
// CachedTestFunction this makes the runner a shrink.Harness.
func (r *Runner) Random() *rand.Rand { return r.rnd }

func (r *Runner) report(message string) {
	if r.settings.Reporter != nil {
		r.settings.Reporter(message)
	}
}

func (r *Runner) nextGeneration() uint64 {
	r.generation++
	return r.generation
}

// ---- execution ----

// execute runs the procedure on the given data and performs all of the
// per-execution bookkeeping: caching, trie updates, failure tracking,
// Pareto front maintenance, budget checks and health checks.
func (r *Runner) execute(d *data.ConjectureData) *data.Result {
	if time.Since(r.startTime) >= hungTestTimeLimit {
		r.failHealthCheck(HealthCheckHungTest,
			"this run has been executing for over five minutes, which is probably not intended")
	}
	r.callCount++
	r.invokeTest(d)
	d.Freeze()
	result := d.AsResult()

	r.cache.Add(string(result.Buffer), result)
	r.tree.Add(result)

	if result.Status == data.StatusValid {
		r.validCount++
	}
	if result.Status >= data.StatusValid {
		r.noteTargets(result)
		if r.front.Add(result) {
			r.dbSave(r.paretoKey(), result.Buffer)
		}
	}
	if result.Status == data.StatusInteresting {
		r.noteInteresting(result)
	}

	if budget := r.settings.TimeBudget; budget > 0 && time.Since(r.startTime) >= budget {
		r.exitWith(ExitTimeout)
	}
	if r.tree.IsExhausted() {
		r.exitWith(ExitFinished)
	}
	r.recordForHealthCheck(result)
	return result
}

// invokeTest is the only place a StopTest unwind is recovered. A signal
// carrying any other generation belongs to a different attempt and is
// re-panicked.
func (r *Runner) invokeTest(d *data.ConjectureData) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		stop, ok := v.(*data.StopTest)
		if !ok || stop.Generation != d.Generation() {
			panic(v)
		}
	}()
	r.test(d)
	d.Freeze()
}

func (r *Runner) noteTargets(result *data.Result) {
	for label, score := range result.TargetObservations {
		best, seen := r.bestTargets[label]
		if !seen || score > best.TargetObservations[label] {
			r.bestTargets[label] = result
		}
	}
}

func (r *Runner) noteInteresting(result *data.Result) {
	origin := result.Origin
	existing, tracked := r.interesting[origin]
	if tracked {
		if !choice.Simpler(result.Buffer, existing.Buffer) {
			return
		}
		r.shrinkCount++
		r.dbMove(r.primaryKey(), r.secondaryKey(), existing.Buffer)
	} else if len(r.interesting) >= r.settings.MaxDistinctBugs {
		return
	}
	r.interesting[origin] = result
	delete(r.shrunk, origin)
	r.dbSave(r.primaryKey(), result.Buffer)
	if r.shrinkCount >= r.settings.MaxShrinks {
		r.exitWith(ExitMaxShrinks)
	}
}

// CachedTestFunction executes a tape, deduplicated against the execution
// cache. The tape is first canonicalized against the trie; a tape known to
// lead into a dead branch is answered with a synthesized overrun instead of
// an execution.
func (r *Runner) CachedTestFunction(buffer []byte) *data.Result {
	canonical, knownDead := r.tree.Rewrite(buffer)
	if cached, ok := r.cache.Get(string(canonical)); ok {
		return cached
	}
	if knownDead {
		result := &data.Result{Status: data.StatusOverrun, Buffer: canonical}
		r.cache.Add(string(canonical), result)
		return result
	}
	result := r.execute(data.ForBuffer(canonical, r.nextGeneration()))
	r.cache.Add(string(canonical), result)
	return result
}

// executeFresh runs the procedure on the given prefix followed by random
// bytes, up to the configured tape budget.
func (r *Runner) executeFresh(prefix []byte) *data.Result {
	d := data.New(r.settings.BufferSize, 0, r.nextGeneration(), r.prefixedSource(prefix))
	return r.execute(d)
}

func (r *Runner) prefixedSource(prefix []byte) data.ByteSource {
	return func(offset, n int) []byte {
		res := make([]byte, n)
		filled := 0
		if offset < len(prefix) {
			filled = copy(res, prefix[offset:])
		}
		r.rnd.Read(res[filled:])
		return res
	}
}

// ---- health checks ----

func (r *Runner) recordForHealthCheck(result *data.Result) {
	// Once a failure is found the health checks would only mask the more
	// important information.
	if result.Status == data.StatusInteresting {
		r.health = nil
	}
	state := r.health
	if state == nil {
		return
	}
	for _, t := range result.DrawTimes {
		state.drawTime += t
	}
	switch result.Status {
	case data.StatusValid:
		state.valid++
	case data.StatusInvalid:
		state.invalid++
	case data.StatusOverrun:
		state.overrun++
	}

	const (
		maxValidProbes   = 10
		maxInvalidProbes = 50
		maxOverrunProbes = 20
	)
	if state.valid >= maxValidProbes {
		r.health = nil
		return
	}
	if state.overrun >= maxOverrunProbes {
		r.failHealthCheck(HealthCheckDataTooLarge, fmt.Sprintf(
			"examples routinely exceed the maximum allowed size (%d overran while generating %d valid ones)",
			state.overrun, state.valid))
	}
	if state.invalid >= maxInvalidProbes {
		r.failHealthCheck(HealthCheckFilterTooMuch, fmt.Sprintf(
			"the procedure filters out too many inputs (%d invalid examples against %d valid ones)",
			state.invalid, state.valid))
	}
	if deadline := r.settings.DeadlinePerExample; deadline > 0 && result.Runtime > deadline {
		r.failHealthCheck(HealthCheckTooSlow, fmt.Sprintf(
			"a single example took %v, exceeding the deadline of %v",
			result.Runtime, deadline))
	}
	if state.drawTime > time.Second {
		r.failHealthCheck(HealthCheckTooSlow, fmt.Sprintf(
			"data generation is extremely slow: %v spent drawing for %d valid examples",
			state.drawTime, state.valid))
	}
}

// ---- database plumbing ----

func (r *Runner) hasDatabase() bool {
	return r.settings.Database != nil && len(r.settings.DatabaseKey) > 0
}

func (r *Runner) primaryKey() []byte { return r.settings.DatabaseKey }

func (r *Runner) secondaryKey() []byte {
	return append(append([]byte{}, r.settings.DatabaseKey...), []byte(".secondary")...)
}

func (r *Runner) paretoKey() []byte {
	return append(append([]byte{}, r.settings.DatabaseKey...), []byte(".pareto")...)
}

func (r *Runner) dbSave(key, value []byte) {
	if !r.hasDatabase() {
		return
	}
	if err := r.settings.Database.Save(key, value); err != nil {
		r.report(fmt.Sprintf("database save failed: %v", err))
	}
}

func (r *Runner) dbDelete(key, value []byte) {
	if !r.hasDatabase() {
		return
	}
	if err := r.settings.Database.Delete(key, value); err != nil {
		r.report(fmt.Sprintf("database delete failed: %v", err))
	}
}

func (r *Runner) dbMove(src, dest, value []byte) {
	if !r.hasDatabase() {
		return
	}
	if err := database.Move(r.settings.Database, src, dest, value); err != nil {
		r.report(fmt.Sprintf("database move failed: %v", err))
	}
}

// ---- phases ----

// reuseExistingExamples replays tapes from the database. All primary corpus
// entries are retried; the secondary and Pareto corpora are sampled down to
// a manageable size. Entries that are no longer interesting are removed.
func (r *Runner) reuseExistingExamples() {
	if !r.settings.hasPhase(PhaseReuse) || !r.hasDatabase() {
		return
	}
	corpus, err := r.settings.Database.Fetch(r.primaryKey())
	if err != nil {
		r.report(fmt.Sprintf("database fetch failed: %v", err))
		return
	}
	sortBySortKey(corpus)
	desired := max(2, r.settings.MaxExamples/10)
	for _, extraKey := range [][]byte{r.secondaryKey(), r.paretoKey()} {
		if len(corpus) >= desired {
			break
		}
		extra, err := r.settings.Database.Fetch(extraKey)
		if err != nil {
			r.report(fmt.Sprintf("database fetch failed: %v", err))
			continue
		}
		if shortfall := desired - len(corpus); len(extra) > shortfall {
			r.rnd.Shuffle(len(extra), func(i, j int) {
				extra[i], extra[j] = extra[j], extra[i]
			})
			extra = extra[:shortfall]
		}
		sortBySortKey(extra)
		corpus = append(corpus, extra...)
	}
	for _, buffer := range corpus {
		result := r.execute(data.ForBuffer(buffer, r.nextGeneration()))
		if result.Status != data.StatusInteresting {
			r.dbDelete(r.primaryKey(), buffer)
			r.dbDelete(r.secondaryKey(), buffer)
		}
	}
}

// generateNewExamples probes the all-zero tape as a sanity check and then
// keeps executing novel prefixes until a failure turns up or a budget is
// spent. Budget exhaustion here ends the phase, not the run, so targeting
// and shrinking still get their turn.
func (r *Runner) generateNewExamples() {
	if !r.settings.hasPhase(PhaseGenerate) {
		return
	}
	zero := r.CachedTestFunction(make([]byte, r.settings.BufferSize))
	if zero.Status == data.StatusOverrun ||
		(zero.Status == data.StatusValid && len(zero.Buffer)*2 > r.settings.BufferSize) {
		r.failHealthCheck(HealthCheckLargeBaseExample,
			"the smallest natural example for this procedure is extremely large, which makes both generation and shrinking ineffective")
	}

	r.health = &healthCheckState{}
	defer func() { r.health = nil }()
	for len(r.interesting) == 0 && !r.tree.IsExhausted() {
		if r.validCount >= r.settings.MaxExamples {
			r.exitReason = ExitMaxExamples
			return
		}
		if r.callCount >= r.settings.MaxIterations {
			r.exitReason = ExitMaxIterations
			return
		}
		r.executeFresh(r.tree.GenerateNovelPrefix(r.rnd))
	}
}

// optimiseTargets hill-climbs the best example recorded for every target
// label. It keeps going as long as any label improves, and stops as soon as
// a failure is found since shrinking matters more than scores from there.
func (r *Runner) optimiseTargets() {
	if !r.settings.hasPhase(PhaseTarget) {
		return
	}
	improved := true
	for improved && len(r.interesting) == 0 {
		improved = false
		labels := maps.Keys(r.bestTargets)
		sort.Strings(labels)
		for _, label := range labels {
			o := &optimiser{runner: r, current: r.bestTargets[label], target: label}
			o.run()
			if o.improved {
				improved = true
			}
			if len(r.interesting) > 0 {
				return
			}
		}
	}
}

// shrinkInterestingExamples first verifies that every tracked failure still
// reproduces, then shrinks each distinct origin, smallest first. Origins
// discovered while shrinking are queued and shrunk too.
func (r *Runner) shrinkInterestingExamples() {
	if !r.settings.hasPhase(PhaseShrink) || len(r.interesting) == 0 {
		return
	}
	for _, stored := range r.Interesting() {
		replay := r.execute(data.ForBuffer(stored.Buffer, r.nextGeneration()))
		if replay.Status != data.StatusInteresting || replay.Origin != stored.Origin {
			panic(runComplete{
				reason: ExitFlaky,
				err:    &FlakyError{Origin: stored.Origin, Status: replay.Status},
			})
		}
	}
	r.clearSecondaryKey()
	for len(r.shrunk) < len(r.interesting) {
		origin := r.nextOriginToShrink()
		target := origin
		r.report(fmt.Sprintf("shrinking %v", target))
		s := shrink.New(r, r.interesting[origin], func(res *data.Result) bool {
			return res.Status == data.StatusInteresting && res.Origin == target
		})
		s.Shrink()
		r.shrunk[origin] = true
	}
}

func (r *Runner) nextOriginToShrink() data.Origin {
	var best data.Origin
	found := false
	for origin, result := range r.interesting {
		if r.shrunk[origin] {
			continue
		}
		if !found {
			best, found = origin, true
			continue
		}
		current := r.interesting[best]
		if c := choice.Compare(result.Buffer, current.Buffer); c < 0 ||
			(c == 0 && origin.String() < best.String()) {
			best = origin
		}
	}
	return best
}

// clearSecondaryKey retries the smaller entries of the secondary corpus as
// shrink candidates and drops all of them afterwards. They are either
// promoted to primary by the retry or proven worse than what is tracked.
func (r *Runner) clearSecondaryKey() {
	if !r.hasDatabase() {
		return
	}
	corpus, err := r.settings.Database.Fetch(r.secondaryKey())
	if err != nil {
		r.report(fmt.Sprintf("database fetch failed: %v", err))
		return
	}
	sortBySortKey(corpus)
	var bound []byte
	for _, result := range r.interesting {
		if bound == nil || choice.Simpler(bound, result.Buffer) {
			bound = result.Buffer
		}
	}
	for _, buffer := range corpus {
		if choice.Compare(buffer, bound) > 0 {
			break
		}
		r.CachedTestFunction(buffer)
		r.dbDelete(r.secondaryKey(), buffer)
	}
}

func sortBySortKey(buffers [][]byte) {
	sort.Slice(buffers, func(i, j int) bool {
		return choice.Simpler(buffers[i], buffers[j])
	})
}
