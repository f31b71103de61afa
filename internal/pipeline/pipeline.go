// Package pipeline governs a leader candidate's progress from submission to
// active status.
//
// Transitions follow a fixed edge list. Two hard gates sit on the path: every
// required training module must be done before approval, and the background
// check must be passed or waived before approval or activation. On reaching
// active the pipeline emits the leader profile to the registry, which is the
// only write path by which a new leader becomes assignable.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haventree/shepherd/internal/models"
	"github.com/haventree/shepherd/internal/policy"
	"github.com/haventree/shepherd/internal/registry"
	"github.com/haventree/shepherd/internal/store"
	"github.com/haventree/shepherd/internal/util"
)

// allowedTransitions is the edge list of forward application transitions.
var allowedTransitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.ApplicationSubmitted:   {models.ApplicationUnderReview, models.ApplicationRejected},
	models.ApplicationUnderReview: {models.ApplicationInterview, models.ApplicationTraining, models.ApplicationRejected},
	models.ApplicationInterview:   {models.ApplicationTraining, models.ApplicationRejected},
	models.ApplicationTraining:    {models.ApplicationApproved, models.ApplicationRejected},
	models.ApplicationApproved:    {models.ApplicationActive},
	models.ApplicationActive:      {models.ApplicationSuspended},
	models.ApplicationSuspended:   {models.ApplicationActive},
}

// transitionAllowed reports whether from→to is on the edge list.
func transitionAllowed(from, to models.ApplicationStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Pipeline processes leader applications. Mutations to the same application
// serialize on a per-application lock.
type Pipeline struct {
	st  store.Store
	reg *registry.Registry

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now   func() time.Time
	newID func(prefix string) string
}

// New creates an application pipeline over the given store and registry.
func New(st store.Store, reg *registry.Registry) *Pipeline {
	return &Pipeline{
		st:    st,
		reg:   reg,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
		newID: util.NewID,
	}
}

// appLock returns the per-application mutex, creating it on first use.
func (p *Pipeline) appLock(applicationID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[applicationID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[applicationID] = l
	}
	return l
}

// Get returns the application, or models.ErrNotFound.
func (p *Pipeline) Get(ctx context.Context, applicationID string) (*models.LeaderApplication, error) {
	app, err := p.st.GetApplication(applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load application %s: %w", applicationID, err)
	}
	if app == nil {
		return nil, fmt.Errorf("application %s: %w", applicationID, models.ErrNotFound)
	}
	return app, nil
}

// Submit creates a new application in the submitted state.
func (p *Pipeline) Submit(ctx context.Context, app models.LeaderApplication) (*models.LeaderApplication, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}
	now := p.now()
	app.ID = p.newID("app")
	app.Status = models.ApplicationSubmitted
	app.BackgroundCheckStatus = models.BackgroundCheckNotStarted
	app.TrainingModulesDone = nil
	app.TrainingCompleted = false
	app.CreatedAt = now
	app.UpdatedAt = now
	if err := p.st.SaveApplication(app); err != nil {
		return nil, err
	}
	slog.Info("Pipeline.Submit: application received", "applicationID", app.ID, "expertise", app.ExpertiseAreas)
	return &app, nil
}

// Advance moves an application along the edge list. Gate failures are
// surfaced with their specific reason and the application is left in its
// current state:
//
//   - training → approved requires every required training module done
//     (models.ErrTrainingIncomplete otherwise);
//   - approved and active require a passed or waived background check
//     (models.ErrBackgroundCheckIncomplete otherwise).
//
// Reaching active emits the leader profile to the registry; suspending an
// active leader deactivates it there, and reinstating reactivates it.
func (p *Pipeline) Advance(ctx context.Context, applicationID string, target models.ApplicationStatus) (*models.LeaderApplication, error) {
	if !models.IsValidApplicationStatus(target) {
		return nil, fmt.Errorf("unknown target status %q: %w", target, models.ErrInvalidTransition)
	}

	lock := p.appLock(applicationID)
	lock.Lock()
	defer lock.Unlock()

	app, err := p.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(app.Status, target) {
		slog.Warn("Pipeline.Advance: transition not allowed", "applicationID", applicationID, "from", app.Status, "to", target)
		return nil, fmt.Errorf("cannot advance from %s to %s: %w", app.Status, target, models.ErrInvalidTransition)
	}

	if target == models.ApplicationApproved || target == models.ApplicationActive {
		if !app.TrainingCompleted {
			slog.Warn("Pipeline.Advance: training gate failed", "applicationID", applicationID, "modulesDone", len(app.TrainingModulesDone))
			return nil, fmt.Errorf("application %s: %w", applicationID, models.ErrTrainingIncomplete)
		}
		if !app.BackgroundCheckStatus.Cleared() {
			slog.Warn("Pipeline.Advance: background check gate failed", "applicationID", applicationID, "backgroundCheck", app.BackgroundCheckStatus)
			return nil, fmt.Errorf("application %s: %w", applicationID, models.ErrBackgroundCheckIncomplete)
		}
	}

	previous := app.Status
	app.Status = target
	app.UpdatedAt = p.now()
	if err := p.st.SaveApplication(*app); err != nil {
		return nil, err
	}
	slog.Info("Pipeline.Advance: application advanced", "applicationID", applicationID, "from", previous, "to", target)

	switch {
	case target == models.ApplicationActive && previous == models.ApplicationApproved:
		profile := app.Profile(p.now())
		if err := p.reg.Activate(ctx, profile); err != nil {
			return nil, fmt.Errorf("failed to activate leader for application %s: %w", applicationID, err)
		}
	case target == models.ApplicationActive && previous == models.ApplicationSuspended:
		if err := p.reg.Reactivate(ctx, app.ID); err != nil {
			return nil, fmt.Errorf("failed to reactivate leader for application %s: %w", applicationID, err)
		}
	case target == models.ApplicationSuspended:
		if err := p.reg.Deactivate(ctx, app.ID); err != nil {
			return nil, fmt.Errorf("failed to deactivate leader for application %s: %w", applicationID, err)
		}
	}

	return app, nil
}

// RecordBackgroundCheck updates the background check axis. It never drives a
// status transition by itself; it only unlocks the approval and activation
// gates.
func (p *Pipeline) RecordBackgroundCheck(ctx context.Context, applicationID string, status models.BackgroundCheckStatus) (*models.LeaderApplication, error) {
	if !models.IsValidBackgroundCheckStatus(status) {
		return nil, fmt.Errorf("unknown background check status %q", status)
	}

	lock := p.appLock(applicationID)
	lock.Lock()
	defer lock.Unlock()

	app, err := p.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	app.BackgroundCheckStatus = status
	app.UpdatedAt = p.now()
	if err := p.st.SaveApplication(*app); err != nil {
		return nil, err
	}
	slog.Info("Pipeline.RecordBackgroundCheck: updated", "applicationID", applicationID, "status", status)
	return app, nil
}

// MarkTrainingModule toggles a required module's completion and recomputes
// the trainingCompleted invariant from the fixed required-module set.
func (p *Pipeline) MarkTrainingModule(ctx context.Context, applicationID, moduleName string, done bool) (*models.LeaderApplication, error) {
	if !policy.IsRequiredModule(moduleName) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownModule, moduleName)
	}

	lock := p.appLock(applicationID)
	lock.Lock()
	defer lock.Unlock()

	app, err := p.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if done && !app.ModuleDone(moduleName) {
		app.TrainingModulesDone = append(app.TrainingModulesDone, moduleName)
	}
	if !done && app.ModuleDone(moduleName) {
		kept := app.TrainingModulesDone[:0]
		for _, m := range app.TrainingModulesDone {
			if m != moduleName {
				kept = append(kept, m)
			}
		}
		app.TrainingModulesDone = kept
	}
	app.TrainingCompleted = policy.TrainingComplete(app.TrainingModulesDone)
	app.UpdatedAt = p.now()

	if err := p.st.SaveApplication(*app); err != nil {
		return nil, err
	}
	slog.Info("Pipeline.MarkTrainingModule: updated", "applicationID", applicationID,
		"module", moduleName, "done", done, "trainingCompleted", app.TrainingCompleted)
	return app, nil
}
