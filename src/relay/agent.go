// Package relay provides the agent that consumes build events and drives
// reconciliation passes against the checks API.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"checkrelay/src/broker"
	"checkrelay/src/checks"
	"checkrelay/src/contracts"
	"checkrelay/src/logger"
	"checkrelay/src/reconcile"
	"checkrelay/src/store"
	"checkrelay/src/travis"
)

// groupID is the consumer group the relay agent joins.
const groupID = "checkrelay-agent"

// JobSource lists the check-tracked jobs of one build.
// Implemented by travis.Source.
type JobSource interface {
	Jobs(ctx context.Context, info contracts.BuildInfo) ([]contracts.JobRecord, error)
}

// CheckPublisher applies a reconciliation plan.
// Implemented by reconcile.Publisher.
type CheckPublisher interface {
	Apply(ctx context.Context, info contracts.BuildInfo, plan reconcile.Plan) []contracts.JobRecord
}

// CheckLister lists the check runs already on a commit.
// Implemented by checks.Client.
type CheckLister interface {
	ListRunsForRef(ctx context.Context, owner, repo, ref string, appID int64) ([]checks.Run, error)
}

// Agent consumes build events and reconciles check runs with provider
// state. Builds reconcile in parallel; passes for one build run strictly
// one at a time, serialized by the gate.
type Agent struct {
	broker    broker.Broker
	source    JobSource
	publisher CheckPublisher
	memory    store.Store
	gate      *Gate
	logger    logger.Logger

	lister CheckLister
	appID  int64

	wg sync.WaitGroup
}

// NewAgent creates a relay agent with the default event gate.
func NewAgent(brk broker.Broker, source JobSource, publisher CheckPublisher, memory store.Store, log logger.Logger) *Agent {
	return &Agent{
		broker:    brk,
		source:    source,
		publisher: publisher,
		memory:    memory,
		gate:      NewGate(DefaultPendingLimit),
		logger:    log,
	}
}

// EnableRecovery turns on check-run adoption after restarts. appID, when
// non-zero, restricts adoption to runs created by that GitHub App.
func (a *Agent) EnableRecovery(lister CheckLister, appID int64) {
	a.lister = lister
	a.appID = appID
}

// SetPendingLimit adjusts the per-build ceiling on queued passes.
func (a *Agent) SetPendingLimit(limit int) {
	a.gate = NewGate(limit)
}

// Run starts the agent's main loop. It subscribes to the builds topic and
// dispatches reconciliation passes until ctx is done, then waits for
// in-flight passes to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("[RelayAgent] Starting...")

	msgChan, err := a.broker.Subscribe(ctx, contracts.TopicBuilds, groupID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", contracts.TopicBuilds, err)
	}

	a.logger.Info("[RelayAgent] Listening for build events on '%s' topic...", contracts.TopicBuilds)

	defer a.wg.Wait()
	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				a.logger.Info("[RelayAgent] Message channel closed, shutting down")
				return nil
			}

			if err := a.dispatch(ctx, msg); err != nil {
				a.logger.Error("[RelayAgent] Error handling event: %v", err)
			}

		case <-ctx.Done():
			a.logger.Info("[RelayAgent] Context cancelled, shutting down")
			return ctx.Err()
		}
	}
}

// dispatch validates an event and starts a pass goroutine when the gate
// admits it.
func (a *Agent) dispatch(ctx context.Context, msg broker.Message) error {
	var event contracts.BuildEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal build event: %w", err)
	}
	if event.Build.ID == 0 || event.Build.Owner == "" || event.Build.Repo == "" {
		return fmt.Errorf("build event %q is missing build identity", event.DeliveryID)
	}

	key := event.Build.Key()
	run, dropped := a.gate.Admit(key)
	if dropped {
		a.logger.Debug("[RelayAgent] Dropping event for %s, pass backlog full", key)
		return nil
	}
	if !run {
		a.logger.Debug("[RelayAgent] Coalescing event for %s into the running pass", key)
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runPasses(ctx, event.Build)
	}()

	return nil
}

// runPasses executes one pass for the build, then one follow-up per batch
// of events that arrived while a pass was running.
func (a *Agent) runPasses(ctx context.Context, info contracts.BuildInfo) {
	key := info.Key()
	for {
		if err := a.pass(ctx, info); err != nil {
			a.logger.Error("[RelayAgent] Pass for %s failed: %v", key, err)
		}
		if !a.gate.Done(key) {
			return
		}
		a.logger.Debug("[RelayAgent] Events arrived mid-pass, running follow-up for %s", key)
	}
}

// pass runs one reconciliation cycle: fetch jobs, swap the stored snapshot,
// diff, apply, and persist the check run ids that came back.
func (a *Agent) pass(ctx context.Context, info contracts.BuildInfo) error {
	key := info.Key()

	records, err := a.source.Jobs(ctx, info)
	if err != nil {
		if errors.Is(err, travis.ErrNotPullRequest) {
			a.logger.Debug("[RelayAgent] Skipping %s: %v", key, err)
			return nil
		}
		return err
	}
	if len(records) == 0 {
		a.logger.Debug("[RelayAgent] Build %s has no labeled jobs", key)
		return nil
	}

	previous, err := a.memory.Replace(ctx, key, records)
	if err != nil {
		return fmt.Errorf("failed to store snapshot for %s: %w", key, err)
	}

	// First sight of the build in this process. Existing runs on the
	// commit mean an earlier process already created checks for it.
	if len(previous) == 0 && a.lister != nil {
		previous = a.adopt(ctx, info, records)
	}

	plan := reconcile.Diff(previous, records)
	if plan.Empty() {
		a.logger.Debug("[RelayAgent] Build %s already reconciled", key)
		return nil
	}

	a.logger.Info("[RelayAgent] Build %s: %d checks to create, %d to update",
		key, len(plan.Create), len(plan.Update))

	done := a.publisher.Apply(ctx, info, plan)
	if len(done) == 0 {
		return nil
	}
	if err := a.memory.Update(ctx, key, done); err != nil {
		return fmt.Errorf("failed to record check runs for %s: %w", key, err)
	}

	return nil
}

// adopt reconstructs the previous snapshot from check runs already on the
// head commit, matched by external id. The adopted run ids are persisted
// immediately so jobs that need no operation this pass still keep their
// run id for later cycles. Failures degrade to an empty previous snapshot.
func (a *Agent) adopt(ctx context.Context, info contracts.BuildInfo, records []contracts.JobRecord) []contracts.JobRecord {
	runs, err := a.lister.ListRunsForRef(ctx, info.Owner, info.Repo, info.HeadSHA, a.appID)
	if err != nil {
		a.logger.Error("[RelayAgent] Listing existing checks for %s: %v", info.Key(), err)
		return nil
	}

	previous := reconcile.Recover(runs, records)
	if len(previous) == 0 {
		return nil
	}

	a.logger.Info("[RelayAgent] Build %s: adopted %d existing check runs", info.Key(), len(previous))
	if err := a.memory.Update(ctx, info.Key(), carryIDs(records, previous)); err != nil {
		a.logger.Error("[RelayAgent] Persisting adopted runs for %s: %v", info.Key(), err)
	}

	return previous
}

// carryIDs returns the current records that match an adopted run, with the
// adopted check run id attached.
func carryIDs(records, adopted []contracts.JobRecord) []contracts.JobRecord {
	idByJob := make(map[int64]int64, len(adopted))
	for _, rec := range adopted {
		idByJob[rec.JobID] = rec.CheckRunID
	}

	var out []contracts.JobRecord
	for _, rec := range records {
		if id, ok := idByJob[rec.JobID]; ok {
			rec.CheckRunID = id
			out = append(out, rec)
		}
	}
	return out
}
