package services

import (
	"context"
	"errors"
	"testing"

	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
	"github.com/gtf-training/survey-service/internal/validator"
)

func newSurveyEnv(t *testing.T) (*sessionEnv, SurveyService) {
	t.Helper()
	env := newSessionEnv(t)
	seedUser(env.repo, "adm-1", models.RoleAdmin)
	svc := NewSurveyService(env.repo, nil, testLogger(), validator.NewValidator())
	return env, svc
}

func validSurveyCreate() *CreateSurveyRequest {
	return &CreateSurveyRequest{
		Title:              "LPG cylinder handling",
		TimeLimitMinutes:   45,
		QuestionsCount:     20,
		PassingScore:       70,
		MaxAttempts:        3,
		ProfessionalWeight: 60,
		SafetyWeight:       40,
		IsActive:           true,
	}
}

func TestSurveyService_Create(t *testing.T) {
	env, svc := newSurveyEnv(t)
	ctx := context.Background()

	t.Run("admin creates a survey", func(t *testing.T) {
		req := validSurveyCreate()
		req.LevelQuestionCounts = map[string]int{"junior": 10, "engineer": 20}

		resp, err := svc.Create(ctx, req, "adm-1")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if resp.ID == 0 {
			t.Error("survey did not get an id")
		}
		if _, ok := env.repo.surveys[resp.ID]; !ok {
			t.Error("survey not stored")
		}
		if got := resp.Survey.QuestionCountFor(models.LevelJunior); got != 10 {
			t.Errorf("junior question count = %d, want 10", got)
		}
		if got := resp.Survey.QuestionCountFor(models.LevelEngineer); got != 20 {
			t.Errorf("engineer question count = %d, want 20", got)
		}
	})

	t.Run("moderator is denied", func(t *testing.T) {
		if _, err := svc.Create(ctx, validSurveyCreate(), "mod-1"); !IsPermissionError(err) {
			t.Errorf("err = %v, want permission error", err)
		}
	})

	t.Run("weights above 100 are rejected", func(t *testing.T) {
		req := validSurveyCreate()
		req.ProfessionalWeight = 70
		req.SafetyWeight = 50
		if _, err := svc.Create(ctx, req, "adm-1"); !IsValidationError(err) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("time limit out of range", func(t *testing.T) {
		req := validSurveyCreate()
		req.TimeLimitMinutes = 500
		if _, err := svc.Create(ctx, req, "adm-1"); !IsValidationError(err) {
			t.Errorf("err = %v, want validation error", err)
		}
	})
}

func TestSurveyService_GetByID(t *testing.T) {
	env, svc := newSurveyEnv(t)
	ctx := context.Background()

	t.Run("unknown survey", func(t *testing.T) {
		if _, err := svc.GetByID(ctx, 999, "emp-1"); !errors.Is(err, ErrSurveyNotFound) {
			t.Errorf("err = %v, want ErrSurveyNotFound", err)
		}
	})

	t.Run("attempt counts are per caller", func(t *testing.T) {
		resp := env.start(t, "emp-1")
		if _, err := env.svc.Finish(ctx, resp.SurveySession.ID, "emp-1"); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}

		got, err := svc.GetByID(ctx, env.survey.ID, "emp-1")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.UserAttempts != 1 {
			t.Errorf("UserAttempts = %d, want 1", got.UserAttempts)
		}
		if !got.CanStart {
			t.Error("CanStart = false, want true with one attempt of two used")
		}

		fresh, err := svc.GetByID(ctx, env.survey.ID, "emp-2")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if fresh.UserAttempts != 0 {
			t.Errorf("UserAttempts for emp-2 = %d, want 0", fresh.UserAttempts)
		}
	})
}

func TestSurveyService_Update(t *testing.T) {
	env, svc := newSurveyEnv(t)
	ctx := context.Background()

	t.Run("partial update", func(t *testing.T) {
		title := "Updated title"
		inactive := false
		resp, err := svc.Update(ctx, env.survey.ID, &UpdateSurveyRequest{Title: &title, IsActive: &inactive}, "adm-1")
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if resp.Title != title {
			t.Errorf("Title = %q, want %q", resp.Title, title)
		}
		stored := env.repo.surveys[env.survey.ID]
		if stored.IsActive {
			t.Error("IsActive not persisted")
		}
		// Untouched fields keep their values.
		if stored.TimeLimitMinutes != 30 {
			t.Errorf("TimeLimitMinutes = %d, want 30", stored.TimeLimitMinutes)
		}
	})

	t.Run("weight update checked against stored counterpart", func(t *testing.T) {
		heavy := 60
		// Existing safety weight is 50, so 60+50 breaks the budget.
		_, err := svc.Update(ctx, env.survey.ID, &UpdateSurveyRequest{ProfessionalWeight: &heavy}, "adm-1")
		if !IsValidationError(err) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("unknown survey", func(t *testing.T) {
		title := "x"
		if _, err := svc.Update(ctx, 999, &UpdateSurveyRequest{Title: &title}, "adm-1"); !errors.Is(err, ErrSurveyNotFound) {
			t.Errorf("err = %v, want ErrSurveyNotFound", err)
		}
	})
}

func TestSurveyService_Delete(t *testing.T) {
	env, svc := newSurveyEnv(t)
	ctx := context.Background()

	if err := svc.Delete(ctx, env.survey.ID, "emp-1"); !IsPermissionError(err) {
		t.Errorf("err = %v, want permission error", err)
	}
	if err := svc.Delete(ctx, env.survey.ID, "adm-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, env.survey.ID, "adm-1"); !errors.Is(err, ErrSurveyNotFound) {
		t.Errorf("second delete err = %v, want ErrSurveyNotFound", err)
	}
}

func TestSurveyService_List(t *testing.T) {
	env, svc := newSurveyEnv(t)
	ctx := context.Background()

	second := seedSurvey(env.repo)
	env.repo.surveys[second.ID].IsActive = false

	active := true
	out, err := svc.List(ctx, repositories.SurveyFilters{IsActive: &active}, "emp-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if out.Total != 1 {
		t.Fatalf("Total = %d, want 1", out.Total)
	}
	if out.Surveys[0].ID != env.survey.ID {
		t.Errorf("listed survey = %d, want %d", out.Surveys[0].ID, env.survey.ID)
	}
	if !out.Surveys[0].CanStart {
		t.Error("fresh user should be able to start the active survey")
	}
}

func TestSurveyService_CanStart(t *testing.T) {
	env, svc := newSurveyEnv(t)
	ctx := context.Background()

	t.Run("fresh user can start", func(t *testing.T) {
		can, err := svc.CanStart(ctx, env.survey.ID, "emp-1")
		if err != nil {
			t.Fatalf("CanStart() error = %v", err)
		}
		if !can {
			t.Error("CanStart = false, want true")
		}
	})

	t.Run("active session blocks", func(t *testing.T) {
		resp := env.start(t, "emp-1")
		can, err := svc.CanStart(ctx, env.survey.ID, "emp-1")
		if err != nil {
			t.Fatalf("CanStart() error = %v", err)
		}
		if can {
			t.Error("CanStart = true with an active session")
		}
		if _, err := env.svc.Finish(ctx, resp.SurveySession.ID, "emp-1"); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
	})

	t.Run("exhausted attempts block until a grant", func(t *testing.T) {
		resp := env.start(t, "emp-1")
		if _, err := env.svc.Finish(ctx, resp.SurveySession.ID, "emp-1"); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}

		can, err := svc.CanStart(ctx, env.survey.ID, "emp-1")
		if err != nil {
			t.Fatalf("CanStart() error = %v", err)
		}
		if can {
			t.Error("CanStart = true past MaxAttempts")
		}

		env.repo.sessions[resp.SurveySession.ID].CanRetake = true
		can, err = svc.CanStart(ctx, env.survey.ID, "emp-1")
		if err != nil {
			t.Fatalf("CanStart() error = %v", err)
		}
		if !can {
			t.Error("CanStart = false despite a retake grant")
		}
	})

	t.Run("inactive survey never starts", func(t *testing.T) {
		env.repo.surveys[env.survey.ID].IsActive = false
		can, err := svc.CanStart(ctx, env.survey.ID, "emp-2")
		if err != nil {
			t.Fatalf("CanStart() error = %v", err)
		}
		if can {
			t.Error("CanStart = true for an inactive survey")
		}
	})
}
