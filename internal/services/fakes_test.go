package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gtf-training/survey-service/internal/models"
	"github.com/gtf-training/survey-service/internal/repositories"
)

// fakeRepo is an in-memory repositories.Repository for service tests.
// Reads hand out copies and writes go through Update, so tests observe
// exactly what the services persisted.
type fakeRepo struct {
	surveys          map[uint]*models.Survey
	questions        map[uint]*models.Question
	sessions         map[uuid.UUID]*models.SurveySession
	sessionQuestions []*models.SessionQuestion
	answers          []*models.Answer
	histories        []*models.UserSurveyHistory
	verifications    []*models.FaceVerification
	reviews          map[uuid.UUID]*models.ProctorReview
	users            map[string]*models.User

	nextSurveyID   uint
	nextQuestionID uint
	nextChoiceID   uint
	nextRowID      uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		surveys:   make(map[uint]*models.Survey),
		questions: make(map[uint]*models.Question),
		sessions:  make(map[uuid.UUID]*models.SurveySession),
		reviews:   make(map[uuid.UUID]*models.ProctorReview),
		users:     make(map[string]*models.User),
	}
}

func (f *fakeRepo) Survey() repositories.SurveyRepository         { return &fakeSurveyRepo{f} }
func (f *fakeRepo) Question() repositories.QuestionRepository     { return &fakeQuestionRepo{f} }
func (f *fakeRepo) Session() repositories.SessionRepository       { return &fakeSessionRepo{f} }
func (f *fakeRepo) Answer() repositories.AnswerRepository         { return &fakeAnswerRepo{f} }
func (f *fakeRepo) History() repositories.HistoryRepository       { return &fakeHistoryRepo{f} }
func (f *fakeRepo) Proctoring() repositories.ProctoringRepository { return &fakeProctoringRepo{f} }
func (f *fakeRepo) User() repositories.UserRepository             { return &fakeUserRepo{f} }

// WithTransaction runs fn directly; the fake has no rollback semantics,
// tests only exercise paths that commit or fail before writing.
func (f *fakeRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

func (f *fakeRepo) rowID() uint {
	f.nextRowID++
	return f.nextRowID
}

// ===== SURVEYS =====

type fakeSurveyRepo struct{ f *fakeRepo }

func (r *fakeSurveyRepo) Create(ctx context.Context, tx *gorm.DB, survey *models.Survey) error {
	if survey.ID == 0 {
		r.f.nextSurveyID++
		survey.ID = r.f.nextSurveyID
	}
	stored := *survey
	r.f.surveys[survey.ID] = &stored
	return nil
}

func (r *fakeSurveyRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Survey, error) {
	survey, ok := r.f.surveys[id]
	if !ok {
		return nil, repositories.ErrSurveyNotFound
	}
	out := *survey
	return &out, nil
}

func (r *fakeSurveyRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.SurveyFilters) ([]models.Survey, int64, error) {
	var out []models.Survey
	for _, survey := range r.f.surveys {
		if filters.IsActive != nil && survey.IsActive != *filters.IsActive {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(survey.Title), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, *survey)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	out = paginate(out, filters.Limit, filters.Offset)
	return out, total, nil
}

func (r *fakeSurveyRepo) Update(ctx context.Context, tx *gorm.DB, survey *models.Survey) error {
	if _, ok := r.f.surveys[survey.ID]; !ok {
		return repositories.ErrSurveyNotFound
	}
	stored := *survey
	r.f.surveys[survey.ID] = &stored
	return nil
}

func (r *fakeSurveyRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	if _, ok := r.f.surveys[id]; !ok {
		return repositories.ErrSurveyNotFound
	}
	delete(r.f.surveys, id)
	return nil
}

// ===== QUESTIONS =====

type fakeQuestionRepo struct{ f *fakeRepo }

func (r *fakeQuestionRepo) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if question.ID == 0 {
		r.f.nextQuestionID++
		question.ID = r.f.nextQuestionID
	}
	for i := range question.Choices {
		if question.Choices[i].ID == 0 {
			r.f.nextChoiceID++
			question.Choices[i].ID = r.f.nextChoiceID
		}
		question.Choices[i].QuestionID = question.ID
	}
	stored := *question
	r.f.questions[question.ID] = &stored
	return nil
}

func (r *fakeQuestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	question, ok := r.f.questions[id]
	if !ok {
		return nil, repositories.ErrQuestionNotFound
	}
	out := *question
	return &out, nil
}

func (r *fakeQuestionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]models.Question, error) {
	var out []models.Question
	for _, id := range ids {
		if question, ok := r.f.questions[id]; ok {
			out = append(out, *question)
		}
	}
	return out, nil
}

func (r *fakeQuestionRepo) ListActive(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]models.Question, error) {
	var out []models.Question
	for _, question := range r.f.questions {
		if !question.IsActive {
			continue
		}
		if filters.SurveyID != 0 && question.SurveyID != filters.SurveyID {
			continue
		}
		if filters.Category != "" && question.Category != filters.Category {
			continue
		}
		if filters.WorkDomain != "" && !question.AppliesTo(filters.WorkDomain) {
			continue
		}
		out = append(out, *question)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeQuestionRepo) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if _, ok := r.f.questions[question.ID]; !ok {
		return repositories.ErrQuestionNotFound
	}
	stored := *question
	r.f.questions[question.ID] = &stored
	return nil
}

func (r *fakeQuestionRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	if _, ok := r.f.questions[id]; !ok {
		return repositories.ErrQuestionNotFound
	}
	delete(r.f.questions, id)
	return nil
}

func (r *fakeQuestionRepo) CountSessionReferences(ctx context.Context, tx *gorm.DB, questionID uint) (int64, error) {
	var count int64
	for _, sq := range r.f.sessionQuestions {
		if sq.QuestionID == questionID {
			count++
		}
	}
	return count, nil
}

// ===== SESSIONS =====

type fakeSessionRepo struct{ f *fakeRepo }

func (r *fakeSessionRepo) Create(ctx context.Context, tx *gorm.DB, session *models.SurveySession) error {
	for _, existing := range r.f.sessions {
		if existing.UserID == session.UserID &&
			existing.SurveyID == session.SurveyID &&
			existing.AttemptNumber == session.AttemptNumber {
			return repositories.ErrDuplicateEntry
		}
	}
	stored := *session
	r.f.sessions[session.ID] = &stored
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.SurveySession, error) {
	session, ok := r.f.sessions[id]
	if !ok {
		return nil, repositories.ErrSessionNotFound
	}
	out := *session
	return &out, nil
}

func (r *fakeSessionRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.SurveySession, error) {
	session, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if survey, ok := r.f.surveys[session.SurveyID]; ok {
		session.Survey = *survey
	}
	session.SessionQuestions = r.joinedQuestions(id)
	return session, nil
}

func (r *fakeSessionRepo) GetActiveForUpdate(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (*models.SurveySession, error) {
	for _, session := range r.f.sessions {
		if session.UserID == userID && session.SurveyID == surveyID && session.Status.IsActive() {
			out := *session
			return &out, nil
		}
	}
	return nil, repositories.ErrSessionNotFound
}

func (r *fakeSessionRepo) GetLatest(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (*models.SurveySession, error) {
	var latest *models.SurveySession
	for _, session := range r.f.sessions {
		if session.UserID != userID || session.SurveyID != surveyID {
			continue
		}
		if latest == nil || session.AttemptNumber > latest.AttemptNumber {
			latest = session
		}
	}
	if latest == nil {
		return nil, repositories.ErrSessionNotFound
	}
	out := *latest
	return &out, nil
}

func (r *fakeSessionRepo) CountByUserAndSurvey(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (int64, error) {
	var count int64
	for _, session := range r.f.sessions {
		if session.UserID == userID && session.SurveyID == surveyID {
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepo) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (int, error) {
	max := 0
	for _, session := range r.f.sessions {
		if session.UserID == userID && session.SurveyID == surveyID && session.AttemptNumber > max {
			max = session.AttemptNumber
		}
	}
	return max, nil
}

func (r *fakeSessionRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.SessionFilters) ([]models.SurveySession, int64, error) {
	var out []models.SurveySession
	for _, session := range r.f.sessions {
		if filters.UserID != "" && session.UserID != filters.UserID {
			continue
		}
		if filters.SurveyID != nil && session.SurveyID != *filters.SurveyID {
			continue
		}
		if len(filters.Statuses) > 0 && !containsStatus(filters.Statuses, session.Status) {
			continue
		}
		if filters.FlaggedForReview != nil && session.FlaggedForReview != *filters.FlaggedForReview {
			continue
		}
		out = append(out, *session)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	total := int64(len(out))
	out = paginate(out, filters.Limit, filters.Offset)
	return out, total, nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, tx *gorm.DB, session *models.SurveySession) error {
	if _, ok := r.f.sessions[session.ID]; !ok {
		return repositories.ErrSessionNotFound
	}
	stored := *session
	stored.SessionQuestions = nil
	r.f.sessions[session.ID] = &stored
	return nil
}

func (r *fakeSessionRepo) CreateSessionQuestions(ctx context.Context, tx *gorm.DB, questions []models.SessionQuestion) error {
	for i := range questions {
		stored := questions[i]
		stored.ID = r.f.rowID()
		stored.Question = models.Question{}
		r.f.sessionQuestions = append(r.f.sessionQuestions, &stored)
	}
	return nil
}

func (r *fakeSessionRepo) GetSessionQuestions(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.SessionQuestion, error) {
	return r.joinedQuestions(sessionID), nil
}

func (r *fakeSessionRepo) GetSessionQuestion(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, questionID uint) (*models.SessionQuestion, error) {
	for _, sq := range r.f.sessionQuestions {
		if sq.SessionID == sessionID && sq.QuestionID == questionID {
			out := *sq
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) UpdateSessionQuestion(ctx context.Context, tx *gorm.DB, sq *models.SessionQuestion) error {
	for i, existing := range r.f.sessionQuestions {
		if existing.SessionID == sq.SessionID && existing.QuestionID == sq.QuestionID {
			stored := *sq
			stored.Question = models.Question{}
			r.f.sessionQuestions[i] = &stored
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) CountUnanswered(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	var count int64
	for _, sq := range r.f.sessionQuestions {
		if sq.SessionID == sessionID && !sq.IsAnswered {
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepo) joinedQuestions(sessionID uuid.UUID) []models.SessionQuestion {
	var out []models.SessionQuestion
	for _, sq := range r.f.sessionQuestions {
		if sq.SessionID != sessionID {
			continue
		}
		joined := *sq
		if question, ok := r.f.questions[sq.QuestionID]; ok {
			joined.Question = *question
		}
		out = append(out, joined)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// ===== ANSWERS =====

type fakeAnswerRepo struct{ f *fakeRepo }

func (r *fakeAnswerRepo) Create(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	answer.ID = r.f.rowID()
	stored := *answer
	r.f.answers = append(r.f.answers, &stored)
	return nil
}

func (r *fakeAnswerRepo) Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	for i, existing := range r.f.answers {
		if existing.ID == answer.ID {
			stored := *answer
			r.f.answers[i] = &stored
			return nil
		}
	}
	return repositories.ErrAnswerNotFound
}

func (r *fakeAnswerRepo) GetBySessionAndQuestion(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, questionID uint) (*models.Answer, error) {
	for _, answer := range r.f.answers {
		if answer.SessionID == sessionID && answer.QuestionID == questionID {
			out := *answer
			return &out, nil
		}
	}
	return nil, repositories.ErrAnswerNotFound
}

func (r *fakeAnswerRepo) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.Answer, error) {
	var out []models.Answer
	for _, answer := range r.f.answers {
		if answer.SessionID == sessionID {
			out = append(out, *answer)
		}
	}
	return out, nil
}

func (r *fakeAnswerRepo) ReplaceChoices(ctx context.Context, tx *gorm.DB, answer *models.Answer, choices []models.Choice) error {
	for i, existing := range r.f.answers {
		if existing.ID == answer.ID {
			stored := *existing
			stored.SelectedChoices = append([]models.Choice(nil), choices...)
			r.f.answers[i] = &stored
			answer.SelectedChoices = stored.SelectedChoices
			return nil
		}
	}
	return repositories.ErrAnswerNotFound
}

// ===== HISTORY =====

type fakeHistoryRepo struct{ f *fakeRepo }

func (r *fakeHistoryRepo) GetByUserAndSurvey(ctx context.Context, tx *gorm.DB, userID string, surveyID uint) (*models.UserSurveyHistory, error) {
	for _, history := range r.f.histories {
		if history.UserID == userID && history.SurveyID == surveyID {
			out := *history
			return &out, nil
		}
	}
	return nil, repositories.ErrHistoryNotFound
}

func (r *fakeHistoryRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]models.UserSurveyHistory, error) {
	var out []models.UserSurveyHistory
	for _, history := range r.f.histories {
		if history.UserID == userID {
			out = append(out, *history)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SurveyID < out[j].SurveyID })
	return out, nil
}

func (r *fakeHistoryRepo) Create(ctx context.Context, tx *gorm.DB, history *models.UserSurveyHistory) error {
	history.ID = r.f.rowID()
	stored := *history
	r.f.histories = append(r.f.histories, &stored)
	return nil
}

func (r *fakeHistoryRepo) Update(ctx context.Context, tx *gorm.DB, history *models.UserSurveyHistory) error {
	for i, existing := range r.f.histories {
		if existing.UserID == history.UserID && existing.SurveyID == history.SurveyID {
			stored := *history
			stored.ID = existing.ID
			r.f.histories[i] = &stored
			return nil
		}
	}
	return repositories.ErrHistoryNotFound
}

// ===== PROCTORING =====

type fakeProctoringRepo struct{ f *fakeRepo }

func (r *fakeProctoringRepo) CreateVerification(ctx context.Context, tx *gorm.DB, v *models.FaceVerification) error {
	v.ID = r.f.rowID()
	stored := *v
	r.f.verifications = append(r.f.verifications, &stored)
	return nil
}

func (r *fakeProctoringRepo) ListVerifications(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.FaceVerification, error) {
	var out []models.FaceVerification
	for _, v := range r.f.verifications {
		if v.SessionID == sessionID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *fakeProctoringRepo) CountViolations(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	var count int64
	for _, v := range r.f.verifications {
		if v.SessionID == sessionID && v.IsViolation {
			count++
		}
	}
	return count, nil
}

func (r *fakeProctoringRepo) CreateReview(ctx context.Context, tx *gorm.DB, review *models.ProctorReview) error {
	if _, ok := r.f.reviews[review.SessionID]; ok {
		return repositories.ErrDuplicateEntry
	}
	review.ID = r.f.rowID()
	stored := *review
	r.f.reviews[review.SessionID] = &stored
	return nil
}

func (r *fakeProctoringRepo) GetReviewBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*models.ProctorReview, error) {
	review, ok := r.f.reviews[sessionID]
	if !ok {
		return nil, repositories.ErrReviewNotFound
	}
	out := *review
	return &out, nil
}

func (r *fakeProctoringRepo) UpdateReview(ctx context.Context, tx *gorm.DB, review *models.ProctorReview) error {
	if _, ok := r.f.reviews[review.SessionID]; !ok {
		return repositories.ErrReviewNotFound
	}
	stored := *review
	r.f.reviews[review.SessionID] = &stored
	return nil
}

// ===== USERS =====

type fakeUserRepo struct{ f *fakeRepo }

func (r *fakeUserRepo) GetByID(ctx context.Context, userID string) (*models.User, error) {
	user, ok := r.f.users[userID]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range r.f.users {
		if user.Email == email {
			out := *user
			return &out, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) GetByIDs(ctx context.Context, userIDs []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(userIDs))
	for _, id := range userIDs {
		if user, ok := r.f.users[id]; ok {
			copied := *user
			out[id] = &copied
		}
	}
	return out, nil
}

func (r *fakeUserRepo) ExistsByID(ctx context.Context, userID string) (bool, error) {
	_, ok := r.f.users[userID]
	return ok, nil
}

func (r *fakeUserRepo) HasRole(ctx context.Context, userID string, role models.UserRole) (bool, error) {
	user, ok := r.f.users[userID]
	if !ok {
		return false, repositories.ErrUserNotFound
	}
	return user.Role == role || user.Role == models.RoleAdmin, nil
}

// ===== HELPERS =====

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func containsStatus(statuses []models.SessionStatus, status models.SessionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ===== FIXTURES =====

func seedUser(f *fakeRepo, id string, role models.UserRole) *models.User {
	user := &models.User{
		ID:            id,
		FullName:      "Test " + id,
		Email:         id + "@gtf.uz",
		Role:          role,
		WorkDomain:    models.DomainNaturalGas,
		EmployeeLevel: models.LevelJunior,
		Language:      models.LangUzbek,
	}
	f.users[id] = user
	return user
}

func seedSurvey(f *fakeRepo) *models.Survey {
	f.nextSurveyID++
	survey := &models.Survey{
		ID:                 f.nextSurveyID,
		Title:              "Gas network safety basics",
		IsActive:           true,
		TimeLimitMinutes:   30,
		QuestionsCount:     4,
		PassingScore:       70,
		MaxAttempts:        2,
		ProfessionalWeight: 50,
		SafetyWeight:       50,
	}
	f.surveys[survey.ID] = survey
	return survey
}

// seedChoiceQuestion adds an active single-choice question with two choices;
// the first choice is the correct one.
func seedChoiceQuestion(f *fakeRepo, surveyID uint, category models.QuestionCategory, points int) *models.Question {
	f.nextQuestionID++
	id := f.nextQuestionID
	f.nextChoiceID += 2
	question := &models.Question{
		ID:       id,
		SurveyID: surveyID,
		Type:     models.SingleChoice,
		TextUz:   fmt.Sprintf("Savol %d", id),
		Points:   points,
		Category: category,
		IsActive: true,
		Choices: []models.Choice{
			{ID: f.nextChoiceID - 1, QuestionID: id, TextUz: "To'g'ri", IsCorrect: true, Order: 1},
			{ID: f.nextChoiceID, QuestionID: id, TextUz: "Noto'g'ri", Order: 2},
		},
	}
	f.questions[id] = question
	return question
}

func correctChoice(q *models.Question) uint { return q.Choices[0].ID }
func wrongChoice(q *models.Question) uint   { return q.Choices[1].ID }
