package models

import "time"

// Account is the single source of truth for a user's credit balance and
// daily ad-reward window. All mutations go through conditional updates in
// the repository layer; services never write fields independently.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Credits      int
	DailyAdCount int
	LastAdDate   string // YYYY-MM-DD in the server's reference zone
	IsUnmetered  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Session struct {
	Token     string
	AccountID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PricingTier is read-only catalog data. The free tier routes to the
// ad-reward flow instead of the payment gateway.
type PricingTier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PriceKRW    int    `json:"price"`
	Credits     int    `json:"credits"`
	Description string `json:"description"`
	IsFreeTier  bool   `json:"isFreeTier"`
	IsPopular   bool   `json:"isPopular"`
	SortOrder   int    `json:"sortOrder"`
}

// PendingOrder bridges an outbound payment redirect to its confirmation.
// Written at checkout, consumed (credited) or discarded at most once.
type PendingOrder struct {
	OrderID   string
	AccountID string
	TierID    string
	Credits   int
	Amount    int
	CreatedAt time.Time
}

type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// Payment is the settlement audit row. order_id is unique, which makes it
// the idempotence anchor for success-redirect replays.
type Payment struct {
	ID             int64
	AccountID      string
	OrderID        string
	TierID         string
	PaymentKey     string
	Amount         int
	Credits        int
	Status         PaymentStatus
	FailureCode    string
	FailureMessage string
	CreatedAt      time.Time
}

type Panel struct {
	ID           string `json:"id"`
	SceneNumber  int    `json:"sceneNumber"`
	ShotType     string `json:"shotType"`
	Description  string `json:"description"`
	Dialogue     string `json:"dialogue"`
	VisualPrompt string `json:"visualPrompt"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ImageFailed  bool   `json:"imageFailed,omitempty"`
}

type ProjectStatus string

const (
	ProjectStatusComplete ProjectStatus = "complete"
	ProjectStatusPartial  ProjectStatus = "partial"
)

type Project struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	OriginalPrompt string        `json:"originalPrompt"`
	Style          string        `json:"style"`
	Panels         []Panel       `json:"panels"`
	Status         ProjectStatus `json:"status"`
	AccountID      string        `json:"-"`
}

type GenerationLog struct {
	ID           int64
	AccountID    string
	Prompt       string
	Style        string
	PanelCount   int
	CreditsSpent int
	FailedPanels int
	CreatedAt    time.Time
}

type ArtStyle struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ArtStyles mirrors the catalog offered by the prompt form.
var ArtStyles = []ArtStyle{
	{ID: "cinematic", Name: "Cinematic", Description: "high-contrast professional film look"},
	{ID: "anime", Name: "Anime / Manga", Description: "hand-drawn Japanese animation style"},
	{ID: "sketch", Name: "Rough Sketch", Description: "pencil drawing for quick concepting"},
	{ID: "oil-painting", Name: "Oil Painting", Description: "classic textured brushwork"},
	{ID: "concept-art", Name: "Concept Art", Description: "detailed digital environment painting"},
	{ID: "noir", Name: "Film Noir", Description: "dramatic black-and-white shadows"},
}

func ArtStyleName(id string) string {
	for _, s := range ArtStyles {
		if s.ID == id {
			return s.Name
		}
	}
	return "Cinematic"
}
