package domain

// Product is a single listing returned by a source-platform scanner.
type Product struct {
	ProductID string  `json:"productId,omitempty"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	URL       string  `json:"url,omitempty"`
	ImageURL  string  `json:"imageUrl,omitempty"`
	Category  string  `json:"category,omitempty"`
	Platform  string  `json:"platform"`
	Brand     string  `json:"brand,omitempty"`
}

// CycleResult summarises one scan pass over a configuration.
type CycleResult struct {
	Scanned    int `json:"scanned"`
	Qualified  int `json:"qualified"`
	Queued     int `json:"queued"`
	Skipped    int `json:"skipped"`
	ScanErrors int `json:"scanErrors"`
}
