package models

import (
	"github.com/Satyam8589/SaveServe-sub000/internal/utils"
)

type IBase interface {
	GenIDIfEmpty()
	GetID() utils.SixID
}

// Base carries the document id shared by listings and bookings.
type Base struct {
	ID utils.SixID `bson:"_id" json:"id"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.ID = utils.NewSixID()
	}
}

func (m *Base) GetID() utils.SixID {
	return m.ID
}

func NewBase() Base {
	return Base{ID: utils.NewSixID()}
}
