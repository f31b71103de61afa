package policy

import (
	"testing"

	"github.com/haventree/shepherd/internal/models"
)

func TestPriorityFor(t *testing.T) {
	p := New()
	if got := p.PriorityFor(models.CategoryCrisis); got != models.PriorityCrisis {
		t.Errorf("crisis category should map to crisis priority, got %s", got)
	}
	if got := p.PriorityFor(models.CategoryGrief); got != models.PriorityMedium {
		t.Errorf("default priority should be medium, got %s", got)
	}
}

func TestPriorityForWithOverride(t *testing.T) {
	p := New(WithDefaultPriority(models.PriorityLow))
	if got := p.PriorityFor(models.CategoryGeneral); got != models.PriorityLow {
		t.Errorf("expected overridden default low, got %s", got)
	}
	// Crisis ignores the override.
	if got := p.PriorityFor(models.CategoryCrisis); got != models.PriorityCrisis {
		t.Errorf("crisis must stay crisis, got %s", got)
	}
}

func TestPriorityForInvalidOverride(t *testing.T) {
	p := New(WithDefaultPriority("urgent-ish"))
	if got := p.PriorityFor(models.CategoryGeneral); got != models.PriorityMedium {
		t.Errorf("invalid override should fall back to medium, got %s", got)
	}
}

func TestIsQualified(t *testing.T) {
	p := New()
	leader := &models.LeaderProfile{ExpertiseAreas: []models.HelpCategory{models.CategoryMarriage, models.CategoryGrief}}
	if !p.IsQualified(leader, models.CategoryGrief) {
		t.Error("leader with grief expertise should qualify for grief")
	}
	if p.IsQualified(leader, models.CategoryAddiction) {
		t.Error("leader without addiction expertise should not qualify")
	}
	if p.IsQualified(nil, models.CategoryGrief) {
		t.Error("nil leader should never qualify")
	}
}

func TestTrainingComplete(t *testing.T) {
	if TrainingComplete(nil) {
		t.Error("no modules done should not be complete")
	}

	all := RequiredTrainingModules()
	if !TrainingComplete(all) {
		t.Error("full module set should be complete")
	}
	if TrainingComplete(all[:len(all)-1]) {
		t.Error("missing one module should not be complete")
	}

	// Extra unknown entries do not help or hurt.
	withExtra := append(RequiredTrainingModules(), "flower-arranging")
	if !TrainingComplete(withExtra) {
		t.Error("extra entries should not break completeness")
	}
}

func TestIsRequiredModule(t *testing.T) {
	for _, m := range RequiredTrainingModules() {
		if !IsRequiredModule(m) {
			t.Errorf("module %s should be required", m)
		}
	}
	if IsRequiredModule("flower-arranging") {
		t.Error("unknown module should not be required")
	}
}
