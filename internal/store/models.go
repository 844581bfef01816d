package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	Image                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Identity is the caller's identity for ownership checks: an authenticated
// user ID or an anonymous traveler token, never both.
type Identity struct {
	UserID     string
	TravelerID string
}

func (i Identity) IsZero() bool {
	return i.UserID == "" && i.TravelerID == ""
}

type Itinerary struct {
	ID            string
	Name          string
	Destination   string
	StartDate     time.Time
	EndDate       time.Time
	CoverImage    string
	CreatorID     *string
	TravelerID    *string
	Position      int
	Days          []Day
	Collaborators []Collaborator
	Comments      []Comment
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Day is one ordered slot of an itinerary. Its calendar date is a function of
// the itinerary start date and the day's position; the two are always written
// together.
type Day struct {
	ID          string
	ItineraryID string
	Date        time.Time
	Position    int
	Activities  []Activity
}

type Activity struct {
	ID          string
	DayID       string
	Title       string
	Description string
	StartTime   string // "HH:mm", empty if unscheduled
	Duration    int    // minutes, 0 if unscheduled
	Location    string
	Cost        float64
	Tags        []string
	Notes       string
	Position    int
}

type Collaborator struct {
	UserID      string
	ItineraryID string
	UserName    string
	UserEmail   string
	UserImage   string
}

type Comment struct {
	ID          string
	ItineraryID string
	ActivityID  *string
	AuthorID    *string
	TravelerID  *string
	AuthorName  string
	Text        string
	ImageURL    string
	CreatedAt   time.Time
}

type InviteToken struct {
	Token       string
	ItineraryID string
	InviterID   string
	Email       string
	CreatedAt   time.Time
}

// NewDay is the create-time shape of a day inside a one-shot itinerary create.
type NewDay struct {
	Date       time.Time
	Activities []NewActivity
}

type NewActivity struct {
	Title       string
	Description string
	StartTime   string
	Duration    int
	Location    string
	Cost        float64
	Tags        []string
	Notes       string
}

// ItineraryPatch carries optional field updates; nil means leave unchanged.
type ItineraryPatch struct {
	Name        *string
	Destination *string
	StartDate   *time.Time
	EndDate     *time.Time
	CoverImage  *string
}

// ActivityPatch carries optional field updates; nil means leave unchanged.
type ActivityPatch struct {
	Title       *string
	Description *string
	StartTime   *string
	Duration    *int
	Location    *string
	Cost        *float64
	Tags        []string
	Notes       *string
}
