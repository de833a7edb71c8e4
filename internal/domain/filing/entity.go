package filing

import "time"

// Provider identifies where a filing was fetched from
type Provider string

const (
	ProviderEDGAR   Provider = "edgar"
	ProviderFinnhub Provider = "finnhub"
)

// IndexedFiling records a filing document that was downloaded and loaded into the knowledge base
type IndexedFiling struct {
	Provider        Provider   `db:"provider" json:"provider"`
	AccessionNumber string     `db:"accession_number" json:"accession_number"`
	Ticker          string     `db:"ticker" json:"ticker"`
	FormType        string     `db:"form_type" json:"form_type"`
	FiledAt         *time.Time `db:"filed_at" json:"filed_at,omitempty"`
	URL             string     `db:"url" json:"url"`
	LocalPath       string     `db:"local_path" json:"local_path"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// ParseDate accepts "2006-01-02" and Finnhub's "2006-01-02 15:04:05"; unparseable input yields nil
func ParseDate(s string) *time.Time {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
