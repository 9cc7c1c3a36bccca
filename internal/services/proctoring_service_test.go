package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gtf-training/survey-service/internal/events"
	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
	"github.com/gtf-training/survey-service/internal/validator"
)

func newProctoringEnv(t *testing.T) (*sessionEnv, *proctoringService) {
	t.Helper()
	env := newSessionEnv(t)
	env.repo.surveys[env.survey.ID].ProctoringRequired = true

	svc := NewProctoringService(env.repo, nil, testLogger(), validator.NewValidator(), env.publisher, 3).(*proctoringService)
	svc.now = func() time.Time { return env.now }
	return env, svc
}

func violation(vt models.ViolationType) *HeartbeatRequest {
	return &HeartbeatRequest{IsViolation: true, ViolationType: &vt}
}

// completeAllCorrect answers every question correctly, completing the session.
func completeAllCorrect(t *testing.T, env *sessionEnv, resp *SessionResponse) {
	t.Helper()
	for _, q := range env.questions {
		env.answer(t, resp, q, correctChoice(q))
	}
}

func TestProctoringService_Heartbeat(t *testing.T) {
	env, svc := newProctoringEnv(t)
	ctx := context.Background()
	resp := env.start(t, "emp-1")

	t.Run("clean capture", func(t *testing.T) {
		out, err := svc.Heartbeat(ctx, resp.SurveySession.ID, &HeartbeatRequest{
			DetectionMetrics: map[string]interface{}{"face_count": 1, "confidence": 0.97},
		}, "emp-1")
		if err != nil {
			t.Fatalf("Heartbeat() error = %v", err)
		}
		if out.ViolationsCount != 0 || out.FlaggedForReview {
			t.Errorf("got %d violations flagged=%v, want 0 unflagged", out.ViolationsCount, out.FlaggedForReview)
		}

		count, _ := env.repo.Proctoring().CountViolations(ctx, nil, resp.SurveySession.ID)
		if count != 0 {
			t.Errorf("CountViolations = %d, want 0", count)
		}
		verifications, _ := env.repo.Proctoring().ListVerifications(ctx, nil, resp.SurveySession.ID)
		if len(verifications) != 1 {
			t.Errorf("stored %d verifications, want 1", len(verifications))
		}
	})

	t.Run("third violation flags the session", func(t *testing.T) {
		for i, want := range []bool{false, false, true} {
			out, err := svc.Heartbeat(ctx, resp.SurveySession.ID, violation(models.ViolationNoFace), "emp-1")
			if err != nil {
				t.Fatalf("Heartbeat(violation %d) error = %v", i+1, err)
			}
			if out.ViolationsCount != i+1 {
				t.Errorf("violation %d: count = %d", i+1, out.ViolationsCount)
			}
			if out.FlaggedForReview != want {
				t.Errorf("violation %d: flagged = %v, want %v", i+1, out.FlaggedForReview, want)
			}
		}
		if got := env.eventsOfType(events.EventSessionFlagged); len(got) != 1 {
			t.Fatalf("published %d flagged events, want 1", len(got))
		}
	})

	t.Run("flag is monotonic past the threshold", func(t *testing.T) {
		out, err := svc.Heartbeat(ctx, resp.SurveySession.ID, violation(models.ViolationMobileDevice), "emp-1")
		if err != nil {
			t.Fatalf("Heartbeat() error = %v", err)
		}
		if out.ViolationsCount != 4 || !out.FlaggedForReview {
			t.Errorf("got %d violations flagged=%v, want 4 flagged", out.ViolationsCount, out.FlaggedForReview)
		}
		// The escalation event fires only on the crossing.
		if got := env.eventsOfType(events.EventSessionFlagged); len(got) != 1 {
			t.Errorf("published %d flagged events, want 1", len(got))
		}
	})

	t.Run("not the session owner", func(t *testing.T) {
		if _, err := svc.Heartbeat(ctx, resp.SurveySession.ID, violation(models.ViolationNoFace), "emp-2"); !IsPermissionError(err) {
			t.Errorf("err = %v, want permission error", err)
		}
	})

	t.Run("terminal session", func(t *testing.T) {
		completeAllCorrect(t, env, resp)
		if _, err := svc.Heartbeat(ctx, resp.SurveySession.ID, violation(models.ViolationNoFace), "emp-1"); !errors.Is(err, ErrSessionNotActive) {
			t.Errorf("err = %v, want ErrSessionNotActive", err)
		}
	})
}

func TestProctoringService_Heartbeat_ProctoringDisabled(t *testing.T) {
	env := newSessionEnv(t)
	svc := NewProctoringService(env.repo, nil, testLogger(), validator.NewValidator(), env.publisher, 3).(*proctoringService)
	resp := env.start(t, "emp-1")

	_, err := svc.Heartbeat(context.Background(), resp.SurveySession.ID, violation(models.ViolationNoFace), "emp-1")
	if !errors.Is(err, ErrProctoringDisabled) {
		t.Errorf("err = %v, want ErrProctoringDisabled", err)
	}
}

func TestProctoringService_Review(t *testing.T) {
	notes := "multiple faces on camera through the whole attempt"

	t.Run("requires moderator role", func(t *testing.T) {
		env, svc := newProctoringEnv(t)
		resp := env.start(t, "emp-1")
		_, err := svc.Review(context.Background(), resp.SurveySession.ID, &ReviewRequest{Decision: models.ReviewApproved}, "emp-2")
		if !IsPermissionError(err) {
			t.Errorf("err = %v, want permission error", err)
		}
	})

	t.Run("only completed sessions", func(t *testing.T) {
		env, svc := newProctoringEnv(t)
		resp := env.start(t, "emp-1")
		_, err := svc.Review(context.Background(), resp.SurveySession.ID, &ReviewRequest{Decision: models.ReviewApproved}, "mod-1")
		if !IsValidationError(err) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("rejection requires notes", func(t *testing.T) {
		env, svc := newProctoringEnv(t)
		resp := env.start(t, "emp-1")
		completeAllCorrect(t, env, resp)
		_, err := svc.Review(context.Background(), resp.SurveySession.ID, &ReviewRequest{Decision: models.ReviewRejected}, "mod-1")
		if !IsValidationError(err) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("approval clears the flag", func(t *testing.T) {
		env, svc := newProctoringEnv(t)
		ctx := context.Background()
		resp := env.start(t, "emp-1")
		for i := 0; i < 3; i++ {
			if _, err := svc.Heartbeat(ctx, resp.SurveySession.ID, violation(models.ViolationNoFace), "emp-1"); err != nil {
				t.Fatalf("Heartbeat() error = %v", err)
			}
		}
		completeAllCorrect(t, env, resp)

		out, err := svc.Review(ctx, resp.SurveySession.ID, &ReviewRequest{Decision: models.ReviewApproved}, "mod-1")
		if err != nil {
			t.Fatalf("Review() error = %v", err)
		}
		if out.Decision != models.ReviewApproved {
			t.Errorf("Decision = %s, want approved", out.Decision)
		}

		stored := env.repo.sessions[resp.SurveySession.ID]
		if stored.FlaggedForReview {
			t.Error("flag should be cleared by approval")
		}
		if stored.ViolationsCount != 3 {
			t.Errorf("ViolationsCount = %d, violations should stay on record", stored.ViolationsCount)
		}
		if stored.IsPassed == nil || !*stored.IsPassed {
			t.Error("approval must not touch the computed result")
		}
		if got := env.eventsOfType(events.EventSessionReviewed); len(got) != 1 {
			t.Errorf("published %d reviewed events, want 1", len(got))
		}
	})

	t.Run("rejection forces a fail", func(t *testing.T) {
		env, svc := newProctoringEnv(t)
		ctx := context.Background()
		resp := env.start(t, "emp-1")
		completeAllCorrect(t, env, resp)

		out, err := svc.Review(ctx, resp.SurveySession.ID, &ReviewRequest{Decision: models.ReviewRejected, Notes: &notes}, "mod-1")
		if err != nil {
			t.Fatalf("Review() error = %v", err)
		}
		if out.SessionResult == nil || out.SessionResult.IsPassed {
			t.Error("rejected session must report failed")
		}

		stored := env.repo.sessions[resp.SurveySession.ID]
		if stored.IsPassed == nil || *stored.IsPassed {
			t.Error("session IsPassed should be forced false")
		}
		// The score itself stays; only the outcome is overridden.
		if stored.Score == nil || *stored.Score != 20 {
			t.Errorf("Score = %v, want 20", stored.Score)
		}

		history, err := env.repo.History().GetByUserAndSurvey(ctx, nil, "emp-1", env.survey.ID)
		if err != nil {
			t.Fatalf("history missing: %v", err)
		}
		if history.IsPassed {
			t.Error("history pass must drop when the only passing attempt is rejected")
		}
	})

	t.Run("rejection keeps a pass earned elsewhere", func(t *testing.T) {
		env, svc := newProctoringEnv(t)
		ctx := context.Background()

		first := env.start(t, "emp-1")
		completeAllCorrect(t, env, first)
		second := env.start(t, "emp-1")
		completeAllCorrect(t, env, second)

		if _, err := svc.Review(ctx, second.SurveySession.ID, &ReviewRequest{Decision: models.ReviewRejected, Notes: &notes}, "mod-1"); err != nil {
			t.Fatalf("Review() error = %v", err)
		}

		history, err := env.repo.History().GetByUserAndSurvey(ctx, nil, "emp-1", env.survey.ID)
		if err != nil {
			t.Fatalf("history missing: %v", err)
		}
		if !history.IsPassed {
			t.Error("pass from the untouched first attempt must survive")
		}
	})

	t.Run("repeat review replaces the decision", func(t *testing.T) {
		env, svc := newProctoringEnv(t)
		ctx := context.Background()
		resp := env.start(t, "emp-1")
		completeAllCorrect(t, env, resp)

		if _, err := svc.Review(ctx, resp.SurveySession.ID, &ReviewRequest{Decision: models.ReviewFlagged}, "mod-1"); err != nil {
			t.Fatalf("first Review() error = %v", err)
		}
		if !env.repo.sessions[resp.SurveySession.ID].FlaggedForReview {
			t.Error("flagged decision should set the flag")
		}

		out, err := svc.Review(ctx, resp.SurveySession.ID, &ReviewRequest{Decision: models.ReviewApproved}, "mod-1")
		if err != nil {
			t.Fatalf("second Review() error = %v", err)
		}
		if out.Decision != models.ReviewApproved {
			t.Errorf("Decision = %s, want approved", out.Decision)
		}

		stored, err := env.repo.Proctoring().GetReviewBySession(ctx, nil, resp.SurveySession.ID)
		if err != nil {
			t.Fatalf("review missing: %v", err)
		}
		if stored.Decision != models.ReviewApproved {
			t.Errorf("stored decision = %s, want approved", stored.Decision)
		}
		if len(env.repo.reviews) != 1 {
			t.Errorf("stored %d reviews, want 1", len(env.repo.reviews))
		}
	})
}

func TestProctoringService_GetReview(t *testing.T) {
	env, svc := newProctoringEnv(t)
	ctx := context.Background()
	resp := env.start(t, "emp-1")

	if _, err := svc.GetReview(ctx, resp.SurveySession.ID, "emp-1"); !errors.Is(err, ErrReviewNotFound) {
		t.Errorf("err = %v, want ErrReviewNotFound", err)
	}

	completeAllCorrect(t, env, resp)
	if _, err := svc.Review(ctx, resp.SurveySession.ID, &ReviewRequest{Decision: models.ReviewApproved}, "mod-1"); err != nil {
		t.Fatalf("Review() error = %v", err)
	}

	if _, err := svc.GetReview(ctx, resp.SurveySession.ID, "emp-1"); err != nil {
		t.Errorf("owner GetReview() error = %v", err)
	}
	if _, err := svc.GetReview(ctx, resp.SurveySession.ID, "emp-2"); !IsPermissionError(err) {
		t.Errorf("err = %v, want permission error", err)
	}
}

func TestProctoringService_GrantRetake(t *testing.T) {
	env, svc := newProctoringEnv(t)
	ctx := context.Background()

	first := env.start(t, "emp-1")
	completeAllCorrect(t, env, first)
	second := env.start(t, "emp-1")
	completeAllCorrect(t, env, second)

	t.Run("requires moderator role", func(t *testing.T) {
		err := svc.GrantRetake(ctx, first.SurveySession.ID, &GrantRetakeRequest{Reason: "proctoring outage"}, "emp-1")
		if !IsPermissionError(err) {
			t.Errorf("err = %v, want permission error", err)
		}
	})

	t.Run("reason is required", func(t *testing.T) {
		err := svc.GrantRetake(ctx, first.SurveySession.ID, &GrantRetakeRequest{}, "mod-1")
		if !IsValidationError(err) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("grant lands on the latest attempt", func(t *testing.T) {
		// Granting against the first attempt still marks the latest one.
		err := svc.GrantRetake(ctx, first.SurveySession.ID, &GrantRetakeRequest{Reason: "power cut during the attempt"}, "mod-1")
		if err != nil {
			t.Fatalf("GrantRetake() error = %v", err)
		}

		if env.repo.sessions[first.SurveySession.ID].CanRetake {
			t.Error("grant must not land on the older attempt")
		}
		latest := env.repo.sessions[second.SurveySession.ID]
		if !latest.CanRetake {
			t.Fatal("latest attempt should carry the grant")
		}
		if latest.RetakeGrantedBy == nil || *latest.RetakeGrantedBy != "mod-1" {
			t.Errorf("RetakeGrantedBy = %v, want mod-1", latest.RetakeGrantedBy)
		}
		if got := env.eventsOfType(events.EventRetakeGranted); len(got) != 1 {
			t.Errorf("published %d retake events, want 1", len(got))
		}

		// The gate actually opens: a third start succeeds past MaxAttempts.
		resp := env.start(t, "emp-1")
		if resp.AttemptNumber != 3 {
			t.Errorf("AttemptNumber = %d, want 3", resp.AttemptNumber)
		}
	})
}

func TestProctoringService_ListFlagged(t *testing.T) {
	env, svc := newProctoringEnv(t)
	ctx := context.Background()

	flagged := env.start(t, "emp-1")
	for i := 0; i < 3; i++ {
		if _, err := svc.Heartbeat(ctx, flagged.SurveySession.ID, violation(models.ViolationLookingAway), "emp-1"); err != nil {
			t.Fatalf("Heartbeat() error = %v", err)
		}
	}
	env.start(t, "emp-2")

	if _, err := svc.ListFlagged(ctx, repositories.SessionFilters{}, "emp-1"); !IsPermissionError(err) {
		t.Errorf("err = %v, want permission error", err)
	}

	out, err := svc.ListFlagged(ctx, repositories.SessionFilters{}, "mod-1")
	if err != nil {
		t.Fatalf("ListFlagged() error = %v", err)
	}
	if out.Total != 1 {
		t.Fatalf("Total = %d, want 1", out.Total)
	}
	if out.Sessions[0].ID != flagged.SurveySession.ID {
		t.Errorf("listed session = %s, want %s", out.Sessions[0].ID, flagged.SurveySession.ID)
	}
}

func TestProctoringService_ListVerifications(t *testing.T) {
	env, svc := newProctoringEnv(t)
	ctx := context.Background()
	resp := env.start(t, "emp-1")

	if _, err := svc.Heartbeat(ctx, resp.SurveySession.ID, &HeartbeatRequest{}, "emp-1"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if _, err := svc.Heartbeat(ctx, resp.SurveySession.ID, violation(models.ViolationNoFace), "emp-1"); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	got, err := svc.ListVerifications(ctx, resp.SurveySession.ID, "emp-1")
	if err != nil {
		t.Fatalf("ListVerifications() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}

	if _, err := svc.ListVerifications(ctx, resp.SurveySession.ID, "mod-1"); err != nil {
		t.Errorf("moderator ListVerifications() error = %v", err)
	}
	if _, err := svc.ListVerifications(ctx, resp.SurveySession.ID, "emp-2"); !IsPermissionError(err) {
		t.Errorf("err = %v, want permission error", err)
	}
}
