package model

// DocType categorizes a discovered product document.
type DocType string

const (
	DocTypeManual      DocType = "manual"
	DocTypeDatasheet   DocType = "datasheet"
	DocTypeCertificate DocType = "certificate"
	DocTypeWarranty    DocType = "warranty"
	DocTypeSafety      DocType = "safety"
	DocTypeBrochure    DocType = "brochure"
	DocTypeOther       DocType = "other"
)

// Priority orders document types for final presentation. Lower sorts first.
func (d DocType) Priority() int {
	switch d {
	case DocTypeManual:
		return 0
	case DocTypeDatasheet:
		return 1
	case DocTypeCertificate:
		return 2
	case DocTypeWarranty:
		return 3
	case DocTypeSafety:
		return 4
	case DocTypeBrochure:
		return 5
	default:
		return 6
	}
}

// ProductDocument is one harvested document link.
type ProductDocument struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Type       DocType `json:"doc_type"`
	Language   string  `json:"language,omitempty"`
	SourcePage string  `json:"source_page,omitempty"`
	Tier       Tier    `json:"confidence_tier"`
}
