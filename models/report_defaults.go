package models

// DefaultQuestion is a suggested starter question offered to farms that
// set up their questionnaire for the first time.
type DefaultQuestion struct {
	Text         string       `json:"text"`
	QuestionType QuestionType `json:"question_type"`
	IsRequired   bool         `json:"is_required"`
}

// DefaultQuestions returns the starter set in display order.
func DefaultQuestions() []DefaultQuestion {
	return []DefaultQuestion{
		{Text: "How many eggs were collected today?", QuestionType: QuestionTypeNumber, IsRequired: true},
		{Text: "How many birds died today?", QuestionType: QuestionTypeNumber, IsRequired: true},
		{Text: "How much feed was used (kg)?", QuestionType: QuestionTypeNumber, IsRequired: true},
		{Text: "Was water available all day?", QuestionType: QuestionTypeBoolean, IsRequired: true},
		{Text: "Were any birds showing signs of illness?", QuestionType: QuestionTypeBoolean, IsRequired: false},
		{Text: "Date of the next scheduled vaccination", QuestionType: QuestionTypeDate, IsRequired: false},
		{Text: "Other observations", QuestionType: QuestionTypeText, IsRequired: false},
	}
}

// Question builds a question row for the config at the given position.
func (d DefaultQuestion) Question(position int) Question {
	return Question{
		Text:         d.Text,
		QuestionType: d.QuestionType,
		IsRequired:   d.IsRequired,
		InputType:    InputTypeDefault,
		SortOrder:    position,
	}
}
