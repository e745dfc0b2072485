package conflicts

import (
	"fmt"
	"strings"
	"time"

	"landreg/internal/registry/models"
)

const dateLayout = "2006-01-02"

// Rendered is a conflict title and its reviewer-facing description.
type Rendered struct {
	Title       string
	Description string
}

// DescribeIdentityApplication renders a national-ID or tax-ID collision with
// another application.
func DescribeIdentityApplication(app, other *models.Application) Rendered {
	var b strings.Builder
	fmt.Fprintf(&b, "DUPLICATE NATIONAL ID DETECTED\n\n")
	fmt.Fprintf(&b, "National ID %s has already been used in another application.\n\n", app.NationalID)
	fmt.Fprintf(&b, "EXISTING APPLICATION:\n")
	fmt.Fprintf(&b, "  Reference: %s\n", other.ReferenceNumber)
	fmt.Fprintf(&b, "  Applicant Name: %s\n", other.ApplicantName)
	fmt.Fprintf(&b, "  Location: %s\n", other.LandLocation)
	fmt.Fprintf(&b, "  Submitted: %s\n\n", formatDate(other.SubmittedAt))
	fmt.Fprintf(&b, "REQUIRED ACTION:\n")
	fmt.Fprintf(&b, "  Verify the applicant's identity before this application proceeds.")
	return Rendered{
		Title:       "Duplicate National ID: " + app.NationalID,
		Description: b.String(),
	}
}

// DescribeIdentityParcel renders a collision with a parcel already registered to
// the applicant's national ID.
func DescribeIdentityParcel(app *models.Application, parcel *models.Parcel) Rendered {
	certificate := parcel.CertificateNumber
	if certificate == "" {
		certificate = "N/A"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "NATIONAL ID ALREADY REGISTERED\n\n")
	fmt.Fprintf(&b, "National ID %s is already registered to an existing land parcel.\n\n", app.NationalID)
	fmt.Fprintf(&b, "EXISTING PARCEL:\n")
	fmt.Fprintf(&b, "  Parcel Number: %s\n", parcel.ParcelNumber)
	fmt.Fprintf(&b, "  Owner Name: %s\n", parcel.OwnerName)
	fmt.Fprintf(&b, "  Location: %s\n", parcel.Location)
	fmt.Fprintf(&b, "  Size: %.2f hectares\n", parcel.SizeHectares)
	fmt.Fprintf(&b, "  Certificate: %s\n\n", certificate)
	fmt.Fprintf(&b, "REQUIRED ACTION:\n")
	fmt.Fprintf(&b, "  Obtain written justification for additional land, or investigate identity misuse.")
	return Rendered{
		Title:       "National ID Already Owns Land: " + parcel.ParcelNumber,
		Description: b.String(),
	}
}

// DescribeHashDuplicate renders an exact file match. Same-name matches read as
// a resubmission, different names as document fraud.
func DescribeHashDuplicate(app *models.Application, doc *models.Document, other *models.Application, otherDoc *models.Document, sameName bool) Rendered {
	indicator := "DOCUMENT FRAUD DETECTED (Different People)"
	action := "The same document is being used by different applicants. Immediate verification required."
	if sameName {
		indicator = "DUPLICATE APPLICATION (Same Person)"
		action = "This appears to be a likely duplicate submission. Confirm whether it is intentional."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", indicator)
	fmt.Fprintf(&b, "Document '%s' (%s) is identical to a document from another application.\n\n", doc.DocumentType, doc.OriginalFilename)
	fmt.Fprintf(&b, "THIS APPLICATION:\n")
	fmt.Fprintf(&b, "  Applicant: %s\n", app.ApplicantName)
	fmt.Fprintf(&b, "  National ID: %s\n\n", app.NationalID)
	fmt.Fprintf(&b, "MATCHING DOCUMENT FROM:\n")
	fmt.Fprintf(&b, "  Reference: %s\n", other.ReferenceNumber)
	fmt.Fprintf(&b, "  Applicant: %s\n", other.ApplicantName)
	fmt.Fprintf(&b, "  National ID: %s\n", other.NationalID)
	fmt.Fprintf(&b, "  Location: %s\n", other.LandLocation)
	fmt.Fprintf(&b, "  Submitted: %s\n", formatDate(other.SubmittedAt))
	fmt.Fprintf(&b, "  Document: %s\n\n", otherDoc.DocumentType)
	fmt.Fprintf(&b, "REQUIRED ACTION:\n  %s", action)
	return Rendered{
		Title:       "Document Reuse: " + doc.DocumentType,
		Description: b.String(),
	}
}

// DescribeContentSimilarity renders a near-duplicate found by text comparison.
func DescribeContentSimilarity(doc *models.Document, other *models.Application, score float64) Rendered {
	pct := fmt.Sprintf("%.0f%%", score*100)
	var b strings.Builder
	fmt.Fprintf(&b, "High text content similarity\n")
	fmt.Fprintf(&b, "Document '%s' is %s similar to a document in Application %s (%s).\n",
		doc.OriginalFilename, pct, other.ReferenceNumber, other.ApplicantName)
	fmt.Fprintf(&b, "Document Type: %s", doc.DocumentType)
	return Rendered{
		Title:       "Duplicate Document Detected (" + pct + ")",
		Description: b.String(),
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(dateLayout)
}
