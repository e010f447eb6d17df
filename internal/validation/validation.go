// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ironlibrary/loan-service/internal/model"
)

// ParseID разбирает положительный идентификатор из параметра запроса.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid identifier %q", s)
	}
	return id, nil
}

// ParseDays разбирает неотрицательное число дней из параметра запроса.
func ParseDays(s string) (int, error) {
	days, err := strconv.Atoi(s)
	if err != nil || days < 0 {
		return 0, fmt.Errorf("invalid number of days %q", s)
	}
	return days, nil
}

// ParseDate разбирает календарную дату в формате model.DateLayout.
func ParseDate(s string) (time.Time, error) {
	date, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected format %s", s, model.DateLayout)
	}
	return date, nil
}
