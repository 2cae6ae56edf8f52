package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// FieldType enumerates the supported field kinds.
type FieldType string

const (
	FieldTypeText         FieldType = "TEXT"
	FieldTypeLongText     FieldType = "LONG_TEXT"
	FieldTypeSingleChoice FieldType = "SINGLE_CHOICE"
	FieldTypeRichText     FieldType = "RICH_TEXT"
)

// FieldDefinition is one question/field belonging to a form. Position is
// significant for rendering; answers are keyed by the field's UUID so that
// reordering or relabeling never remaps stored responses.
type FieldDefinition struct {
	ID          uuid.UUID       `json:"id"`
	FormID      uuid.UUID       `json:"form_id"`
	Type        FieldType       `json:"type"`
	Label       string          `json:"label"`
	Placeholder string          `json:"placeholder,omitempty"`
	// Options holds the choice list for SINGLE_CHOICE fields.
	Options json.RawMessage `json:"options,omitempty"`
	// Content holds the rich body for RICH_TEXT fields.
	Content string `json:"content,omitempty"`
	// SubQuestions holds the ordered sub-question list for RICH_TEXT fields.
	SubQuestions json.RawMessage `json:"sub_questions,omitempty"`
	Position     int             `json:"position"`
}

// FieldInput is one field in a replace-all-fields request.
type FieldInput struct {
	ID           *uuid.UUID      `json:"id" binding:"omitempty"`
	Type         FieldType       `json:"type" binding:"required,oneof=TEXT LONG_TEXT SINGLE_CHOICE RICH_TEXT"`
	Label        string          `json:"label" binding:"required,min=1,max=1000"`
	Placeholder  string          `json:"placeholder" binding:"omitempty,max=255"`
	Options      json.RawMessage `json:"options" binding:"omitempty"`
	Content      string          `json:"content" binding:"omitempty"`
	SubQuestions json.RawMessage `json:"sub_questions" binding:"omitempty"`
}

// ReplaceFieldsRequest replaces a form's full field list in order.
type ReplaceFieldsRequest struct {
	Fields []FieldInput `json:"fields" binding:"required,dive"`
}
