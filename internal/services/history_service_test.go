package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gtf-training/survey-service/internal/models"
)

func newHistoryService(env *sessionEnv) HistoryService {
	return NewHistoryService(env.repo, nil, testLogger())
}

func TestHistoryService_GetUserSurveyHistory(t *testing.T) {
	env := newSessionEnv(t)
	svc := newHistoryService(env)
	ctx := context.Background()

	if _, err := svc.GetUserSurveyHistory(ctx, "emp-1", env.survey.ID); !errors.Is(err, ErrHistoryNotFound) {
		t.Errorf("err = %v, want ErrHistoryNotFound", err)
	}

	env.start(t, "emp-1")

	history, err := svc.GetUserSurveyHistory(ctx, "emp-1", env.survey.ID)
	if err != nil {
		t.Fatalf("GetUserSurveyHistory() error = %v", err)
	}
	if history.TotalAttempts != 1 {
		t.Errorf("TotalAttempts = %d, want 1", history.TotalAttempts)
	}
}

func TestHistoryService_GetMyHistory(t *testing.T) {
	env := newSessionEnv(t)
	svc := newHistoryService(env)
	ctx := context.Background()

	env.start(t, "emp-1")
	env.start(t, "emp-2")

	histories, err := svc.GetMyHistory(ctx, "emp-1")
	if err != nil {
		t.Fatalf("GetMyHistory() error = %v", err)
	}
	if len(histories) != 1 {
		t.Fatalf("len = %d, want 1", len(histories))
	}
	if histories[0].UserID != "emp-1" {
		t.Errorf("UserID = %s, want emp-1", histories[0].UserID)
	}
}

func TestHistoryService_Recompute(t *testing.T) {
	env := newSessionEnv(t)
	svc := newHistoryService(env)
	ctx := context.Background()

	// Attempt 1 passes, attempt 2 fails, attempt 3 expires.
	first := env.start(t, "emp-1")
	for _, q := range env.questions {
		env.answer(t, first, q, correctChoice(q))
	}

	second := env.start(t, "emp-1")
	env.answer(t, second, env.questions[0], wrongChoice(env.questions[0]))
	if _, err := env.svc.Finish(ctx, second.SurveySession.ID, "emp-1"); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	// MaxAttempts is exhausted; push a third attempt through a retake grant.
	env.repo.sessions[second.SurveySession.ID].CanRetake = true
	third := env.start(t, "emp-1")
	env.now = env.now.Add(31 * time.Minute)
	if _, err := env.svc.GetByID(ctx, third.SurveySession.ID, "emp-1"); err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	t.Run("requires moderator role", func(t *testing.T) {
		if _, err := svc.Recompute(ctx, "emp-1", env.survey.ID, "emp-2"); !IsPermissionError(err) {
			t.Errorf("err = %v, want permission error", err)
		}
	})

	t.Run("rebuilds a drifted rollup", func(t *testing.T) {
		// Simulate drift before the rebuild.
		for _, h := range env.repo.histories {
			if h.UserID == "emp-1" {
				h.BestScore = nil
				h.IsPassed = false
				h.TotalAttempts = 99
			}
		}

		history, err := svc.Recompute(ctx, "emp-1", env.survey.ID, "mod-1")
		if err != nil {
			t.Fatalf("Recompute() error = %v", err)
		}
		if history.TotalAttempts != 3 {
			t.Errorf("TotalAttempts = %d, want 3", history.TotalAttempts)
		}
		if history.BestScore == nil || *history.BestScore != 20 {
			t.Errorf("BestScore = %v, want 20", history.BestScore)
		}
		if !history.IsPassed {
			t.Error("IsPassed should be rebuilt from the passing attempt")
		}
		// Status follows the highest attempt number, which expired.
		if history.CurrentStatus != models.HistoryExpired {
			t.Errorf("CurrentStatus = %s, want %s", history.CurrentStatus, models.HistoryExpired)
		}
	})

	t.Run("creates the rollup when missing", func(t *testing.T) {
		env.repo.histories = nil

		history, err := svc.Recompute(ctx, "emp-1", env.survey.ID, "mod-1")
		if err != nil {
			t.Fatalf("Recompute() error = %v", err)
		}
		if history.TotalAttempts != 3 {
			t.Errorf("TotalAttempts = %d, want 3", history.TotalAttempts)
		}
		if len(env.repo.histories) != 1 {
			t.Errorf("stored %d histories, want 1", len(env.repo.histories))
		}
	})
}

func TestHistoryService_GetProgressReport(t *testing.T) {
	env := newSessionEnv(t)
	svc := newHistoryService(env)
	ctx := context.Background()

	// A second active survey the user never touched, plus an inactive one
	// that must not count.
	seedChoiceQuestion(env.repo, seedSurvey(env.repo).ID, models.CategorySafety, 5)
	inactive := seedSurvey(env.repo)
	env.repo.surveys[inactive.ID].IsActive = false

	first := env.start(t, "emp-1")
	for _, q := range env.questions {
		env.answer(t, first, q, correctChoice(q))
	}

	report, err := svc.GetProgressReport(ctx, "emp-1")
	if err != nil {
		t.Fatalf("GetProgressReport() error = %v", err)
	}
	if report.TotalSurveys != 2 {
		t.Errorf("TotalSurveys = %d, want 2", report.TotalSurveys)
	}
	if report.CompletedCount != 1 {
		t.Errorf("CompletedCount = %d, want 1", report.CompletedCount)
	}
	if report.PassedCount != 1 {
		t.Errorf("PassedCount = %d, want 1", report.PassedCount)
	}
	if report.InProgress != 0 {
		t.Errorf("InProgress = %d, want 0", report.InProgress)
	}
	if len(report.Histories) != 1 {
		t.Errorf("len(Histories) = %d, want 1", len(report.Histories))
	}
}
