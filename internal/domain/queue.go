// Queue item lifecycle:
//
//	pending ──► approved ──► listed
//	   │
//	   ├──────► rejected
//	   └──────► expired
//
// rejected, expired and listed are terminal. Auto-listed configurations
// insert items directly as approved.
package domain

import (
	"fmt"
	"time"
)

// QueueStatus values are persisted verbatim in the queue table.
type QueueStatus string

const (
	StatusPending  QueueStatus = "pending"
	StatusApproved QueueStatus = "approved"
	StatusRejected QueueStatus = "rejected"
	StatusExpired  QueueStatus = "expired"
	StatusListed   QueueStatus = "listed"
)

// AllStatuses lists every queue status in lifecycle order.
var AllStatuses = []QueueStatus{StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusListed}

var validTransitions = map[QueueStatus][]QueueStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved: {StatusListed},
}

// ParseStatus converts a raw string to a QueueStatus.
func ParseStatus(s string) (QueueStatus, error) {
	st := QueueStatus(s)
	switch st {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusListed:
		return st, nil
	}
	return "", fmt.Errorf("unknown queue status %q", s)
}

// IsTransitionAllowed reports whether moving from → to is permitted.
func IsTransitionAllowed(from, to QueueStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InitialStatus is the status a freshly discovered item enters the queue with.
func InitialStatus(autoList bool) QueueStatus {
	if autoList {
		return StatusApproved
	}
	return StatusPending
}

// ScoutQueueItem is one candidate opportunity found by a configuration.
type ScoutQueueItem struct {
	ID       string `json:"id"`
	ConfigID string `json:"configId"`

	SourcePlatform     string  `json:"sourcePlatform"`
	TargetPlatform     string  `json:"targetPlatform"`
	SourcePrice        float64 `json:"sourcePrice"`
	TargetPrice        float64 `json:"targetPrice"`
	EstimatedMarginPct float64 `json:"estimatedMarginPct"`
	EstimatedProfit    float64 `json:"estimatedProfit"`

	ProductID   string `json:"productId,omitempty"`
	ProductName string `json:"productName"`
	ProductURL  string `json:"productUrl,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Category    string `json:"category,omitempty"`
	Brand       string `json:"brand,omitempty"`

	Status     QueueStatus `json:"status"`
	ReviewedAt *time.Time  `json:"reviewedAt,omitempty"`
	ListedAt   *time.Time  `json:"listedAt,omitempty"`
	ListingID  string      `json:"listingId,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// QueueFilter narrows queue listings. Zero values mean "no filter".
type QueueFilter struct {
	Status   QueueStatus
	ConfigID string
	Limit    int
	Offset   int
}

const (
	DefaultQueueLimit = 50
	MaxQueueLimit     = 500
)

// Normalize clamps pagination to sane bounds.
func (f QueueFilter) Normalize() QueueFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultQueueLimit
	}
	if f.Limit > MaxQueueLimit {
		f.Limit = MaxQueueLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
