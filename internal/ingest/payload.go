package ingest

import (
	"field-gateway/internal/errs"
	"field-gateway/internal/model"
)

// Defaults applied to fields a network payload leaves out.
const (
	DefaultType    = "unknown"
	DefaultName    = "Web Data"
	DefaultComment = "From website"
)

// Payload is the wire shape of one inbound record. Every field is optional.
type Payload struct {
	Type    *string  `json:"type"`
	Name    *string  `json:"name"`
	Value   *float64 `json:"value"`
	Unit    *string  `json:"unit"`
	Comment *string  `json:"comment"`
}

// Submission applies the network defaults. A payload with no fields at all
// is rejected as missing.
func (p *Payload) Submission() (model.Submission, error) {
	if p == nil || (p.Type == nil && p.Name == nil && p.Value == nil && p.Unit == nil && p.Comment == nil) {
		return model.Submission{}, errs.Malformed("no data provided")
	}

	sub := model.Submission{
		Type:    DefaultType,
		Name:    DefaultName,
		Value:   0.0,
		Unit:    "",
		Comment: DefaultComment,
	}
	if p.Type != nil {
		sub.Type = *p.Type
	}
	if p.Name != nil {
		sub.Name = *p.Name
	}
	if p.Value != nil {
		sub.Value = *p.Value
	}
	if p.Unit != nil {
		sub.Unit = *p.Unit
	}
	if p.Comment != nil {
		sub.Comment = *p.Comment
	}
	return sub, nil
}
