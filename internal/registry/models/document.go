package models

import (
	"time"

	id "landreg/pkg/domain"
)

// Document categories that carry evidentiary text. Other categories (identity
// cards, photos) are excluded from content comparison.
const (
	DocumentTypeOfferLetter = "Offer Letter"
	DocumentTypeTitleDeed   = "Title Deed"
	DocumentTypeAffidavit   = "Affidavit"
	DocumentTypeNationalID  = "NRC Copy"
	DocumentTypeSitePlan    = "Site Plan"
)

// DefaultEvidentiaryTypes lists the categories compared by content.
var DefaultEvidentiaryTypes = []string{
	DocumentTypeOfferLetter,
	DocumentTypeTitleDeed,
	DocumentTypeAffidavit,
}

// Document is an uploaded file attached to exactly one application.
type Document struct {
	ID               id.DocumentID    `json:"id"`
	ApplicationID    id.ApplicationID `json:"application_id"`
	DocumentType     string           `json:"document_type"`
	ContentHash      string           `json:"content_hash"`
	MimeType         string           `json:"mime_type"`
	FilePath         string           `json:"file_path"`
	OriginalFilename string           `json:"original_filename"`
	UploadedAt       time.Time        `json:"uploaded_at"`
}

// HasHash reports whether a content hash was recorded at upload.
func (d *Document) HasHash() bool {
	return d.ContentHash != ""
}
