// Package models - Definitions for model output class styles and sets.
package models

// ModelFamily is the family of models.
type ModelFamily string

const (
	// ModelFamilyYOLO is the YOLO model family (80 COCO classes, no background).
	ModelFamilyYOLO ModelFamily = "yolo"
	// ModelFamilyCustom is a class set loaded from a label file.
	ModelFamilyCustom ModelFamily = "custom"
)
