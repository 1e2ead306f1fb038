package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/logger"
	"p9e.in/farmops/pkg/metrics"
	"p9e.in/farmops/utils"
)

// AnswerInput is one submitted answer. Value is interpreted against the
// question's declared type. The typed answer_* keys are accepted from
// older clients when value is absent.
type AnswerInput struct {
	QuestionID    uuid.UUID       `json:"question_id"`
	Value         json.RawMessage `json:"value"`
	AnswerText    json.RawMessage `json:"answer_text,omitempty"`
	AnswerNumber  json.RawMessage `json:"answer_number,omitempty"`
	AnswerDate    json.RawMessage `json:"answer_date,omitempty"`
	AnswerBoolean json.RawMessage `json:"answer_boolean,omitempty"`
}

func (a AnswerInput) raw() json.RawMessage {
	for _, v := range []json.RawMessage{a.Value, a.AnswerText, a.AnswerNumber, a.AnswerDate, a.AnswerBoolean} {
		if len(v) > 0 && !isNull(v) {
			return v
		}
	}
	return nil
}

// SubmitInput is a daily report submission.
type SubmitInput struct {
	ReferenceDate string        `json:"reference_date"`
	Answers       []AnswerInput `json:"answers"`
}

// ListFilter narrows a report listing. Zero values mean no bound.
type ListFilter struct {
	From   models.Date
	To     models.Date
	Limit  int
	Offset int
}

// SubmissionService stores daily reports.
type SubmissionService struct {
	db *gorm.DB
}

func NewSubmissionService(db *gorm.DB) *SubmissionService {
	return &SubmissionService{db: db}
}

// Submit validates and stores the principal's report for a reference date.
// The report and its answers are written atomically; on any error nothing
// is stored.
func (s *SubmissionService) Submit(ctx context.Context, p models.Principal, in SubmitInput) (*models.DailyReport, error) {
	report, err := s.submit(ctx, p, in)
	metrics.ReportSubmissions.WithLabelValues(submissionResult(err)).Inc()
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("📝 daily report submitted",
		zap.String("farm", report.FarmID.String()),
		zap.String("user", p.UserID.String()),
		zap.String("reference_date", report.ReferenceDate.String()),
		zap.Int("answers", len(report.Answers)))
	return report, nil
}

func (s *SubmissionService) submit(ctx context.Context, p models.Principal, in SubmitInput) (*models.DailyReport, error) {
	if !p.HasFarm() {
		return nil, ErrNoFarm
	}
	farmID := *p.FarmID

	if strings.TrimSpace(in.ReferenceDate) == "" {
		return nil, invalid("reference_date", "is required")
	}
	refDate, err := models.ParseDate(strings.TrimSpace(in.ReferenceDate))
	if err != nil {
		return nil, invalid("reference_date", err.Error())
	}

	report := &models.DailyReport{
		FarmID:        farmID,
		UserID:        p.UserID,
		ReferenceDate: refDate,
		UserName:      p.Username,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		questions, err := listQuestions(tx, farmID)
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.DailyReport{}).
			Where("farm_id = ? AND reference_date = ?", farmID, refDate).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check existing report: %w", err)
		}
		if existing > 0 {
			return ErrDuplicateSubmission
		}

		answers, err := buildAnswers(questions, in.Answers)
		if err != nil {
			return err
		}
		report.Answers = answers

		if err := tx.Create(report).Error; err != nil {
			if utils.IsUniqueViolation(err) {
				return ErrDuplicateSubmission
			}
			return fmt.Errorf("store report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// buildAnswers checks the submitted answers against the questionnaire and
// converts them to typed rows, in questionnaire order.
func buildAnswers(questions []models.Question, inputs []AnswerInput) ([]models.ReportAnswer, error) {
	byID := make(map[uuid.UUID]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	seen := make(map[uuid.UUID]bool, len(inputs))
	answered := make(map[uuid.UUID]models.ReportAnswer, len(inputs))
	for i, in := range inputs {
		if in.QuestionID == uuid.Nil {
			return nil, invalid(fmt.Sprintf("answers[%d].question_id", i), "is required")
		}
		if seen[in.QuestionID] {
			return nil, invalid(fmt.Sprintf("answers[%d].question_id", i), "question answered more than once")
		}
		seen[in.QuestionID] = true

		q, ok := byID[in.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, in.QuestionID)
		}

		answer, present, err := decodeAnswer(q, in.raw())
		if err != nil {
			return nil, invalid(fmt.Sprintf("answers[%d].value", i), err.Error())
		}
		if present {
			answered[q.ID] = answer
		}
	}

	answers := make([]models.ReportAnswer, 0, len(answered))
	for _, q := range questions {
		a, ok := answered[q.ID]
		if !ok {
			if q.IsRequired {
				return nil, fmt.Errorf("%w: %q", ErrMissingRequiredAnswer, q.Text)
			}
			continue
		}
		answers = append(answers, a)
	}
	return answers, nil
}

// decodeAnswer interprets raw against q's type. present is false for null
// or blank values, which count as unanswered.
func decodeAnswer(q models.Question, raw json.RawMessage) (answer models.ReportAnswer, present bool, err error) {
	answer = models.ReportAnswer{QuestionID: q.ID, QuestionText: q.Text}
	if len(raw) == 0 || isNull(raw) {
		return answer, false, nil
	}
	var blank string
	if json.Unmarshal(raw, &blank) == nil && strings.TrimSpace(blank) == "" {
		return answer, false, nil
	}

	switch q.QuestionType {
	case models.QuestionTypeText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return answer, false, errors.New("expected a string")
		}
		answer.AnswerText = &s

	case models.QuestionTypeNumber:
		n, err := decodeNumber(raw)
		if err != nil {
			return answer, false, err
		}
		answer.AnswerNumber = &n

	case models.QuestionTypeDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return answer, false, errors.New("expected a date string YYYY-MM-DD")
		}
		t, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
		if err != nil {
			return answer, false, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
		}
		d := models.NewDate(t)
		answer.AnswerDate = &d

	case models.QuestionTypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return answer, false, errors.New("expected true or false")
		}
		answer.AnswerBoolean = &b

	default:
		return answer, false, fmt.Errorf("question has unsupported type %q", q.QuestionType)
	}
	return answer, true, nil
}

func decodeNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		// Form clients send numbers as strings.
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, errors.New("expected a number")
		}
		n, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", s)
		}
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, errors.New("expected a finite number")
	}
	return n, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// List returns the farm's reports, newest reference date first.
func (s *SubmissionService) List(ctx context.Context, farmID uuid.UUID, f ListFilter) ([]models.DailyReport, error) {
	q := withAnswers(s.db.WithContext(ctx)).Where("farm_id = ?", farmID)
	if !f.From.IsZero() {
		q = q.Where("reference_date >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("reference_date <= ?", f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	reports := []models.DailyReport{}
	if err := q.Order("reference_date DESC").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	for i := range reports {
		sortAnswers(reports[i].Answers)
	}
	return reports, nil
}

// Get returns one report of the farm with its answers.
func (s *SubmissionService) Get(ctx context.Context, farmID, id uuid.UUID) (*models.DailyReport, error) {
	var report models.DailyReport
	err := withAnswers(s.db.WithContext(ctx)).
		Where("farm_id = ? AND id = ?", farmID, id).
		First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	sortAnswers(report.Answers)
	return &report, nil
}

func withAnswers(db *gorm.DB) *gorm.DB {
	return db.Preload("User").
		Preload("Answers").
		Preload("Answers.Question", func(db *gorm.DB) *gorm.DB {
			// Deleted questions still label historical answers.
			return db.Unscoped()
		})
}

func sortAnswers(answers []models.ReportAnswer) {
	for i := range answers {
		if answers[i].Question != nil {
			answers[i].QuestionText = answers[i].Question.Text
		}
	}
	sort.SliceStable(answers, func(i, j int) bool {
		return sortOrder(answers[i]) < sortOrder(answers[j])
	})
}

func sortOrder(a models.ReportAnswer) int {
	if a.Question == nil {
		return math.MaxInt32
	}
	return a.Question.SortOrder
}

func submissionResult(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicateSubmission):
		return "duplicate"
	case errors.Is(err, ErrUnknownQuestion),
		errors.Is(err, ErrMissingRequiredAnswer),
		errors.As(err, &verr):
		return "invalid"
	default:
		return "error"
	}
}
