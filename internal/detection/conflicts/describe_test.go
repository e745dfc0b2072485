package conflicts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"landreg/internal/registry/models"
)

func TestDescribeHashDuplicate(t *testing.T) {
	app := &models.Application{ApplicantName: "Mwansa Phiri", NationalID: "123456/10/1"}
	other := &models.Application{
		ReferenceNumber: "LA-2024-0007",
		ApplicantName:   "Chanda Banda",
		SubmittedAt:     time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	doc := &models.Document{DocumentType: models.DocumentTypeTitleDeed, OriginalFilename: "deed.pdf"}

	fraud := DescribeHashDuplicate(app, doc, other, doc, false)
	assert.Contains(t, fraud.Description, "DOCUMENT FRAUD DETECTED")
	assert.Contains(t, fraud.Description, "LA-2024-0007")
	assert.Contains(t, fraud.Description, "2024-06-02")
	assert.Equal(t, "Document Reuse: Title Deed", fraud.Title)

	resubmission := DescribeHashDuplicate(app, doc, other, doc, true)
	assert.Contains(t, resubmission.Description, "likely duplicate submission")
}

func TestDescribeContentSimilarity(t *testing.T) {
	other := &models.Application{ReferenceNumber: "LA-2024-0009", ApplicantName: "Chanda Banda"}
	doc := &models.Document{DocumentType: models.DocumentTypeAffidavit, OriginalFilename: "affidavit.pdf"}

	r := DescribeContentSimilarity(doc, other, 0.914)
	assert.Equal(t, "Duplicate Document Detected (91%)", r.Title)
	assert.Contains(t, r.Description, "High text content similarity")
	assert.Contains(t, r.Description, "LA-2024-0009")
}

func TestDescribeIdentityParcelWithoutCertificate(t *testing.T) {
	app := &models.Application{NationalID: "123456/10/1"}
	parcel := &models.Parcel{ParcelNumber: "LUS/1234", OwnerName: "Mwansa Phiri", SizeHectares: 2.5}

	r := DescribeIdentityParcel(app, parcel)
	assert.Contains(t, r.Description, "Certificate: N/A")
	assert.Contains(t, r.Description, "2.50 hectares")
	assert.Equal(t, "National ID Already Owns Land: LUS/1234", r.Title)
}
