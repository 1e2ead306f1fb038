package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
)

// ConfigService manages a farm's report configuration and its ordered
// questionnaire.
type ConfigService struct {
	db *gorm.DB
}

func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{db: db}
}

// ConfigInput is a partial update of a report configuration. A nil field
// is left unchanged; an empty DeadlineTime clears the deadline.
type ConfigInput struct {
	IsEnabled    *bool   `json:"is_enabled"`
	DeadlineTime *string `json:"deadline_time"`
}

// QuestionInput describes one question. ID is only used when replacing the
// full list, to keep existing rows (and the answers pointing at them).
type QuestionInput struct {
	ID           *uuid.UUID          `json:"id,omitempty"`
	Text         string              `json:"text" validate:"required,max=255"`
	QuestionType models.QuestionType `json:"question_type" validate:"required,oneof=text number date boolean"`
	IsRequired   *bool               `json:"is_required"`
	InputType    models.InputType    `json:"input_type" validate:"omitempty,oneof=default custom"`
	SortOrder    *int                `json:"sort_order" validate:"omitempty,gte=0"`
}

// QuestionPatch is a partial update of a single question.
type QuestionPatch struct {
	Text         *string              `json:"text" validate:"omitempty,min=1,max=255"`
	QuestionType *models.QuestionType `json:"question_type" validate:"omitempty,oneof=text number date boolean"`
	IsRequired   *bool                `json:"is_required"`
	InputType    *models.InputType    `json:"input_type" validate:"omitempty,oneof=default custom"`
	SortOrder    *int                 `json:"sort_order" validate:"omitempty,gte=0"`
}

// ParseDeadline parses a wall-clock deadline such as "17:00" or "17:00:00".
func ParseDeadline(s string) (datatypes.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return datatypes.NewTime(t.Hour(), t.Minute(), t.Second(), 0), nil
		}
	}
	return 0, invalid("deadline_time", fmt.Sprintf("invalid time %q, expected HH:MM or HH:MM:SS", s))
}

// Get returns the farm's configuration with its questions in order. A farm
// that never configured reports gets an unsaved, disabled configuration.
func (s *ConfigService) Get(ctx context.Context, farmID uuid.UUID) (*models.ReportConfig, error) {
	var cfg models.ReportConfig
	err := s.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, created_at ASC")
		}).
		Where("farm_id = ?", farmID).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.ReportConfig{FarmID: farmID, Questions: []models.Question{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load report config: %w", err)
	}
	return &cfg, nil
}

// Upsert creates or updates the farm's configuration.
func (s *ConfigService) Upsert(ctx context.Context, farmID uuid.UUID, in ConfigInput) (*models.ReportConfig, error) {
	updates := map[string]interface{}{}
	if in.IsEnabled != nil {
		updates["is_enabled"] = *in.IsEnabled
	}
	if in.DeadlineTime != nil {
		if strings.TrimSpace(*in.DeadlineTime) == "" {
			updates["deadline_time"] = nil
		} else {
			deadline, err := ParseDeadline(*in.DeadlineTime)
			if err != nil {
				return nil, err
			}
			updates["deadline_time"] = deadline
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cfg, err := configFor(tx, farmID)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(cfg).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, farmID)
}

// ListQuestions returns the active questions in display order.
func (s *ConfigService) ListQuestions(ctx context.Context, farmID uuid.UUID) ([]models.Question, error) {
	return listQuestions(s.db.WithContext(ctx), farmID)
}

// CreateQuestion appends a question, creating the configuration on first
// use. Without an explicit sort order the question goes last.
func (s *ConfigService) CreateQuestion(ctx context.Context, farmID uuid.UUID, in QuestionInput) (*models.Question, error) {
	if err := checkQuestion(in.Text, in.QuestionType); err != nil {
		return nil, err
	}

	var q models.Question
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cfg, err := configFor(tx, farmID)
		if err != nil {
			return err
		}

		order := 0
		if in.SortOrder != nil {
			order = *in.SortOrder
		} else {
			var last struct{ Max *int }
			if err := tx.Model(&models.Question{}).
				Select("MAX(sort_order) AS max").
				Where("config_id = ?", cfg.ID).
				Scan(&last).Error; err != nil {
				return err
			}
			if last.Max != nil {
				order = *last.Max + 1
			}
		}

		q = questionFromInput(cfg.ID, in, order)
		return tx.Create(&q).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return &q, nil
}

// ReplaceQuestions makes the farm's questionnaire exactly the given list,
// in the given order. Entries carrying the id of an existing question update
// it in place; existing questions missing from the list are soft-deleted.
func (s *ConfigService) ReplaceQuestions(ctx context.Context, farmID uuid.UUID, inputs []QuestionInput) ([]models.Question, error) {
	for i, in := range inputs {
		if err := checkQuestion(in.Text, in.QuestionType); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return nil, invalid(fmt.Sprintf("questions[%d].%s", i, verr.Field), verr.Message)
			}
			return nil, err
		}
	}

	var result []models.Question
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cfg, err := configFor(tx, farmID)
		if err != nil {
			return err
		}

		var existing []models.Question
		if err := tx.Where("config_id = ?", cfg.ID).Find(&existing).Error; err != nil {
			return err
		}
		byID := make(map[uuid.UUID]models.Question, len(existing))
		for _, q := range existing {
			byID[q.ID] = q
		}

		kept := make(map[uuid.UUID]bool, len(inputs))
		for i, in := range inputs {
			q := questionFromInput(cfg.ID, in, i)
			if in.ID != nil {
				if _, ok := byID[*in.ID]; ok && !kept[*in.ID] {
					q.ID = *in.ID
					if err := tx.Model(&q).
						Select("Text", "QuestionType", "IsRequired", "InputType", "SortOrder").
						Updates(&q).Error; err != nil {
						return err
					}
					kept[q.ID] = true
					continue
				}
			}
			if err := tx.Create(&q).Error; err != nil {
				return err
			}
			kept[q.ID] = true
		}

		for id := range byID {
			if kept[id] {
				continue
			}
			if err := tx.Delete(&models.Question{}, "id = ?", id).Error; err != nil {
				return err
			}
		}

		result, err = listQuestions(tx, farmID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("replace questions: %w", err)
	}
	return result, nil
}

// UpdateQuestion applies a partial update to one question of the farm.
func (s *ConfigService) UpdateQuestion(ctx context.Context, farmID, id uuid.UUID, patch QuestionPatch) (*models.Question, error) {
	if patch.QuestionType != nil && !patch.QuestionType.Valid() {
		return nil, invalid("question_type", fmt.Sprintf("unsupported type %q", *patch.QuestionType))
	}
	if patch.Text != nil && strings.TrimSpace(*patch.Text) == "" {
		return nil, invalid("text", "must not be empty")
	}

	var q models.Question
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := findQuestion(tx, farmID, id)
		if err != nil {
			return err
		}
		q = *found

		updates := map[string]interface{}{}
		if patch.Text != nil {
			updates["text"] = strings.TrimSpace(*patch.Text)
		}
		if patch.QuestionType != nil {
			updates["question_type"] = *patch.QuestionType
		}
		if patch.IsRequired != nil {
			updates["is_required"] = *patch.IsRequired
		}
		if patch.InputType != nil {
			updates["input_type"] = *patch.InputType
		}
		if patch.SortOrder != nil {
			updates["sort_order"] = *patch.SortOrder
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&q).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&q, "id = ?", q.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// DeleteQuestion soft-deletes a question. Answers already stored for it
// are kept.
func (s *ConfigService) DeleteQuestion(ctx context.Context, farmID, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := findQuestion(tx, farmID, id)
		if err != nil {
			return err
		}
		return tx.Delete(q).Error
	})
}

// configFor returns the farm's configuration, creating a disabled one when
// missing.
func configFor(tx *gorm.DB, farmID uuid.UUID) (*models.ReportConfig, error) {
	var cfg models.ReportConfig
	if err := tx.Where(models.ReportConfig{FarmID: farmID}).FirstOrCreate(&cfg).Error; err != nil {
		return nil, fmt.Errorf("load report config: %w", err)
	}
	return &cfg, nil
}

func listQuestions(tx *gorm.DB, farmID uuid.UUID) ([]models.Question, error) {
	questions := []models.Question{}
	err := tx.Joins("JOIN report_configs ON report_configs.id = questions.config_id").
		Where("report_configs.farm_id = ?", farmID).
		Order("questions.sort_order ASC, questions.created_at ASC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

func findQuestion(tx *gorm.DB, farmID, id uuid.UUID) (*models.Question, error) {
	var q models.Question
	err := tx.Joins("JOIN report_configs ON report_configs.id = questions.config_id").
		Where("report_configs.farm_id = ? AND questions.id = ?", farmID, id).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func checkQuestion(text string, qt models.QuestionType) error {
	if strings.TrimSpace(text) == "" {
		return invalid("text", "must not be empty")
	}
	if !qt.Valid() {
		return invalid("question_type", fmt.Sprintf("unsupported type %q", qt))
	}
	return nil
}

func questionFromInput(configID uuid.UUID, in QuestionInput, order int) models.Question {
	q := models.Question{
		ConfigID:     configID,
		Text:         strings.TrimSpace(in.Text),
		QuestionType: in.QuestionType,
		IsRequired:   true,
		InputType:    models.InputTypeCustom,
		SortOrder:    order,
	}
	if in.IsRequired != nil {
		q.IsRequired = *in.IsRequired
	}
	if in.InputType != "" {
		q.InputType = in.InputType
	}
	return q
}
