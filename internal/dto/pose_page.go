package dto

import "targetvision/internal/model"

// PosePage is the /api/poses response body.
type PosePage struct {
	Poses  []model.PoseRecord `json:"poses"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}
