package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"translated gorm error", gorm.ErrDuplicatedKey, true},
		{"wrapped gorm error", fmt.Errorf("store report: %w", gorm.ErrDuplicatedKey), true},
		{"postgres unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, true},
		{"postgres other code", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, false},
		{"sqlite text", errors.New("UNIQUE constraint failed: daily_reports.farm_id, daily_reports.reference_date"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.expected {
				t.Errorf("IsUniqueViolation(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}
