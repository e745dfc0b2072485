package models

import (
	id "landreg/pkg/domain"
)

// Parcel is a registered land record. Read-only for detection.
type Parcel struct {
	ID                id.ParcelID       `json:"id"`
	ParcelNumber      string            `json:"parcel_number"`
	OwnerNationalID   string            `json:"owner_national_id"`
	OwnerName         string            `json:"owner_name"`
	Location          string            `json:"location"`
	SizeHectares      float64           `json:"size_hectares"`
	CertificateNumber string            `json:"certificate_number,omitempty"`
	ApplicationID     *id.ApplicationID `json:"application_id,omitempty"`
}

// LinkedTo reports whether the parcel was created from the given application.
func (p *Parcel) LinkedTo(appID id.ApplicationID) bool {
	return p.ApplicationID != nil && *p.ApplicationID == appID
}
