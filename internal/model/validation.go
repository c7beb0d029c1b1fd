package model

import "github.com/sudo-init-do/tasking/internal/apperr"

// FieldError is one entry of a structured 422 detail.
type FieldError struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

type fieldErrors []FieldError

func (fe *fieldErrors) add(msg string, loc ...string) {
	*fe = append(*fe, FieldError{Loc: append([]string{"body"}, loc...), Msg: msg})
}

func (fe fieldErrors) err() error {
	if len(fe) == 0 {
		return nil
	}
	return &apperr.ConstraintsError{Detail: []FieldError(fe)}
}
