package reports

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/testutil"
)

type submissionFixture struct {
	db       *gorm.DB
	svc      *SubmissionService
	farm     *models.Farm
	staff    models.Principal
	eggs     *models.Question
	notes    *models.Question
	water    *models.Question
	vaccDate *models.Question
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	t.Helper()
	db := testutil.OpenTestDB(t)
	farm := testutil.CreateFarm(t, db, "Sunrise")
	user := testutil.CreateUser(t, db, farm, "alice", models.RoleStaff)
	cfg := testutil.CreateConfig(t, db, farm, true, 17, 0)

	return &submissionFixture{
		db:       db,
		svc:      NewSubmissionService(db),
		farm:     farm,
		staff:    user.Principal(),
		eggs:     testutil.CreateQuestion(t, db, cfg, "Eggs collected", models.QuestionTypeNumber, true, 0),
		notes:    testutil.CreateQuestion(t, db, cfg, "Notes", models.QuestionTypeText, false, 1),
		water:    testutil.CreateQuestion(t, db, cfg, "Water OK", models.QuestionTypeBoolean, true, 2),
		vaccDate: testutil.CreateQuestion(t, db, cfg, "Next vaccination", models.QuestionTypeDate, false, 3),
	}
}

func answer(q *models.Question, value string) AnswerInput {
	return AnswerInput{QuestionID: q.ID, Value: json.RawMessage(value)}
}

func (f *submissionFixture) validInput(date string) SubmitInput {
	return SubmitInput{
		ReferenceDate: date,
		Answers: []AnswerInput{
			answer(f.eggs, `120`),
			answer(f.water, `true`),
		},
	}
}

func (f *submissionFixture) reportCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.DailyReport{}).Where("farm_id = ?", f.farm.ID).Count(&n).Error; err != nil {
		t.Fatalf("count reports: %v", err)
	}
	return n
}

func TestSubmit_StoresTypedAnswers(t *testing.T) {
	f := newSubmissionFixture(t)

	report, err := f.svc.Submit(context.Background(), f.staff, SubmitInput{
		ReferenceDate: "2025-06-01",
		Answers: []AnswerInput{
			answer(f.water, `false`),
			answer(f.eggs, `"98.5"`),
			answer(f.notes, `"two hens look tired"`),
			answer(f.vaccDate, `"2025-06-15"`),
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if report.ReferenceDate.String() != "2025-06-01" || report.UserID != f.staff.UserID {
		t.Errorf("unexpected report header %+v", report)
	}

	stored, err := f.svc.Get(context.Background(), f.farm.ID, report.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(stored.Answers) != 4 {
		t.Fatalf("expected 4 answers, got %d", len(stored.Answers))
	}
	if stored.UserName != "alice" {
		t.Errorf("expected user name alice, got %q", stored.UserName)
	}

	// Answers come back in questionnaire order with exactly one slot set.
	eggs, notes, water, vacc := stored.Answers[0], stored.Answers[1], stored.Answers[2], stored.Answers[3]
	if eggs.QuestionID != f.eggs.ID || eggs.AnswerNumber == nil || *eggs.AnswerNumber != 98.5 || eggs.AnswerText != nil {
		t.Errorf("unexpected number answer %+v", eggs)
	}
	if notes.AnswerText == nil || *notes.AnswerText != "two hens look tired" {
		t.Errorf("unexpected text answer %+v", notes)
	}
	if water.AnswerBoolean == nil || *water.AnswerBoolean {
		t.Errorf("unexpected boolean answer %+v", water)
	}
	if vacc.AnswerDate == nil || vacc.AnswerDate.String() != "2025-06-15" {
		t.Errorf("unexpected date answer %+v", vacc)
	}
	if eggs.QuestionText != "Eggs collected" {
		t.Errorf("expected question text on answers, got %q", eggs.QuestionText)
	}
}

func TestSubmit_DuplicateDateIsRejected(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, f.staff, f.validInput("2025-06-01")); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// Another member of the same farm submitting the same date.
	manager := testutil.CreateUser(t, f.db, f.farm, "bob", models.RoleManager).Principal()
	_, err := f.svc.Submit(ctx, manager, f.validInput("2025-06-01"))
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}

	// A different date is fine.
	if _, err := f.svc.Submit(ctx, manager, f.validInput("2025-06-02")); err != nil {
		t.Fatalf("next day submit: %v", err)
	}
	if n := f.reportCount(t); n != 2 {
		t.Errorf("expected 2 reports, got %d", n)
	}
}

func TestSubmit_ConcurrentSubmissionsSameDate(t *testing.T) {
	f := newSubmissionFixture(t)
	other := testutil.CreateUser(t, f.db, f.farm, "bob", models.RoleStaff).Principal()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []models.Principal{f.staff, other} {
		wg.Add(1)
		go func(i int, p models.Principal) {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(context.Background(), p, f.validInput("2025-06-01"))
		}(i, p)
	}
	wg.Wait()

	succeeded, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDuplicateSubmission):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || duplicates != 1 {
		t.Errorf("expected exactly one success and one duplicate, got %d and %d", succeeded, duplicates)
	}
	if n := f.reportCount(t); n != 1 {
		t.Errorf("expected one stored report, got %d", n)
	}
}

func TestSubmit_RowInsertedAfterCheckIsDuplicate(t *testing.T) {
	f := newSubmissionFixture(t)
	other := testutil.CreateUser(t, f.db, f.farm, "bob", models.RoleStaff)

	// Write a competing report for the same date right before the insert,
	// after the existence check has already passed.
	inserted := false
	err := f.db.Callback().Create().Before("gorm:create").Register("test:competing_report", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*models.DailyReport); !ok || inserted {
			return
		}
		inserted = true
		competing := &models.DailyReport{
			ID:            uuid.New(),
			FarmID:        f.farm.ID,
			UserID:        other.ID,
			ReferenceDate: models.NewDate(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		}
		if err := tx.Session(&gorm.Session{NewDB: true}).Omit("Answers").Create(competing).Error; err != nil {
			t.Errorf("insert competing report: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err = f.svc.Submit(context.Background(), f.staff, f.validInput("2025-06-01"))
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission from the unique index, got %v", err)
	}
	if !inserted {
		t.Fatal("expected the competing report to be written")
	}

	var answers int64
	f.db.Model(&models.ReportAnswer{}).Count(&answers)
	if answers != 0 {
		t.Errorf("expected no answers to be stored, got %d", answers)
	}
}

func TestSubmit_MissingRequiredLeavesNothing(t *testing.T) {
	f := newSubmissionFixture(t)

	_, err := f.svc.Submit(context.Background(), f.staff, SubmitInput{
		ReferenceDate: "2025-06-01",
		Answers:       []AnswerInput{answer(f.eggs, `12`)},
	})
	if !errors.Is(err, ErrMissingRequiredAnswer) {
		t.Fatalf("expected ErrMissingRequiredAnswer, got %v", err)
	}
	if n := f.reportCount(t); n != 0 {
		t.Errorf("expected no report to be stored, got %d", n)
	}
	var answers int64
	f.db.Model(&models.ReportAnswer{}).Count(&answers)
	if answers != 0 {
		t.Errorf("expected no orphan answers, got %d", answers)
	}
}

func TestSubmit_Errors(t *testing.T) {
	f := newSubmissionFixture(t)
	otherFarm := testutil.CreateFarm(t, f.db, "Moonrise")
	otherCfg := testutil.CreateConfig(t, f.db, otherFarm, true, 9, 0)
	foreign := testutil.CreateQuestion(t, f.db, otherCfg, "Foreign", models.QuestionTypeText, false, 0)

	withExtra := func(extra ...AnswerInput) SubmitInput {
		in := f.validInput("2025-06-01")
		in.Answers = append(in.Answers, extra...)
		return in
	}

	tests := []struct {
		name      string
		principal models.Principal
		input     SubmitInput
		check     func(error) bool
	}{
		{
			name:      "missing reference date",
			principal: f.staff,
			input:     SubmitInput{Answers: f.validInput("").Answers},
			check:     isValidation,
		},
		{
			name:      "malformed reference date",
			principal: f.staff,
			input:     f.validInput("01/06/2025"),
			check:     isValidation,
		},
		{
			name:      "principal without farm",
			principal: models.Principal{UserID: uuid.New(), Role: models.RoleStaff},
			input:     f.validInput("2025-06-01"),
			check:     func(err error) bool { return errors.Is(err, ErrNoFarm) && isValidation(err) },
		},
		{
			name:      "question of another farm",
			principal: f.staff,
			input:     withExtra(answer(foreign, `"hi"`)),
			check:     func(err error) bool { return errors.Is(err, ErrUnknownQuestion) },
		},
		{
			name:      "unknown question id",
			principal: f.staff,
			input:     withExtra(AnswerInput{QuestionID: uuid.New(), Value: json.RawMessage(`1`)}),
			check:     func(err error) bool { return errors.Is(err, ErrUnknownQuestion) },
		},
		{
			name:      "repeated question",
			principal: f.staff,
			input:     withExtra(answer(f.eggs, `3`)),
			check:     isValidation,
		},
		{
			name:      "text for a number",
			principal: f.staff,
			input:     SubmitInput{ReferenceDate: "2025-06-01", Answers: []AnswerInput{answer(f.eggs, `"lots"`), answer(f.water, `true`)}},
			check:     isValidation,
		},
		{
			name:      "number for a boolean",
			principal: f.staff,
			input:     SubmitInput{ReferenceDate: "2025-06-01", Answers: []AnswerInput{answer(f.eggs, `1`), answer(f.water, `1`)}},
			check:     isValidation,
		},
		{
			name:      "bad date answer",
			principal: f.staff,
			input:     withExtra(answer(f.vaccDate, `"next week"`)),
			check:     isValidation,
		},
		{
			name:      "null required answer",
			principal: f.staff,
			input:     SubmitInput{ReferenceDate: "2025-06-01", Answers: []AnswerInput{answer(f.eggs, `null`), answer(f.water, `true`)}},
			check:     func(err error) bool { return errors.Is(err, ErrMissingRequiredAnswer) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), tt.principal, tt.input)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !tt.check(err) {
				t.Errorf("unexpected error type: %v", err)
			}
		})
	}

	if n := f.reportCount(t); n != 0 {
		t.Errorf("expected no report stored after failures, got %d", n)
	}
}

func TestSubmit_OptionalNullIsSkipped(t *testing.T) {
	f := newSubmissionFixture(t)

	in := f.validInput("2025-06-01")
	in.Answers = append(in.Answers, answer(f.notes, `null`), answer(f.vaccDate, `""`))
	report, err := f.svc.Submit(context.Background(), f.staff, in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(report.Answers) != 2 {
		t.Errorf("expected only the two non-null answers, got %d", len(report.Answers))
	}
}

func TestSubmit_LegacyAnswerKeys(t *testing.T) {
	f := newSubmissionFixture(t)

	report, err := f.svc.Submit(context.Background(), f.staff, SubmitInput{
		ReferenceDate: "2025-06-01",
		Answers: []AnswerInput{
			{QuestionID: f.eggs.ID, AnswerNumber: json.RawMessage(`7`)},
			{QuestionID: f.water.ID, AnswerBoolean: json.RawMessage(`true`)},
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if report.Answers[0].AnswerNumber == nil || *report.Answers[0].AnswerNumber != 7 {
		t.Errorf("expected answer_number to be read, got %+v", report.Answers[0])
	}
}

func TestSubmit_SoftDeletedQuestionIsUnknown(t *testing.T) {
	f := newSubmissionFixture(t)
	if err := f.db.Delete(f.notes).Error; err != nil {
		t.Fatalf("delete question: %v", err)
	}

	_, err := f.svc.Submit(context.Background(), f.staff, f.validInputWith(answer(f.notes, `"late"`)))
	if !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion for a removed question, got %v", err)
	}
}

func (f *submissionFixture) validInputWith(extra ...AnswerInput) SubmitInput {
	in := f.validInput("2025-06-01")
	in.Answers = append(in.Answers, extra...)
	return in
}

func TestList_NewestFirstWithRange(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()
	for _, d := range []string{"2025-06-01", "2025-06-03", "2025-06-02"} {
		if _, err := f.svc.Submit(ctx, f.staff, f.validInput(d)); err != nil {
			t.Fatalf("Submit %s: %v", d, err)
		}
	}

	all, err := f.svc.List(ctx, f.farm.ID, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"2025-06-03", "2025-06-02", "2025-06-01"}
	if len(all) != len(want) {
		t.Fatalf("expected %d reports, got %d", len(want), len(all))
	}
	for i, d := range want {
		if all[i].ReferenceDate.String() != d {
			t.Errorf("position %d: expected %s, got %s", i, d, all[i].ReferenceDate)
		}
	}

	from, _ := models.ParseDate("2025-06-02")
	ranged, err := f.svc.List(ctx, f.farm.ID, ListFilter{From: from})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ranged) != 2 {
		t.Errorf("expected 2 reports from 2025-06-02, got %d", len(ranged))
	}

	other := testutil.CreateFarm(t, f.db, "Moonrise")
	none, _ := f.svc.List(ctx, other.ID, ListFilter{})
	if len(none) != 0 {
		t.Errorf("expected reports to be farm-scoped, got %d", len(none))
	}
}

func isValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
