package model

import "errors"

// Таксономия ошибок ядра. Конкретные ошибки оборачивают одну из них:
//
//	fmt.Errorf("%w: slot unavailable", model.ErrConflict)
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal error")
)
