package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"tripboard/api/internal/auth"
	"tripboard/api/internal/authpw"
	"tripboard/api/internal/config"
	"tripboard/api/internal/email"
	"tripboard/api/internal/export"
	"tripboard/api/internal/genai"
	"tripboard/api/internal/media"
	"tripboard/api/internal/plan"
	"tripboard/api/internal/realtime"
	"tripboard/api/internal/search"
	"tripboard/api/internal/store"
	"tripboard/api/internal/triplog"
	"tripboard/api/internal/util"
)

const dateLayout = "2006-01-02"

// maxItineraryDays bounds a single trip; one day row is created per calendar
// date between start and end.
const maxItineraryDays = 90

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type CreateItineraryInput struct {
	Name        string `json:"name"`
	Destination string `json:"destination"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	CoverImage  string `json:"coverImage"`
}

type UpdateItineraryInput struct {
	Name        *string `json:"name"`
	Destination *string `json:"destination"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
	CoverImage  *string `json:"coverImage"`
}

type ActivityInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StartTime   string   `json:"startTime"`
	Duration    int      `json:"duration"`
	Location    string   `json:"location"`
	Cost        float64  `json:"cost"`
	Tags        []string `json:"tags"`
	Notes       string   `json:"notes"`
}

type UpdateActivityInput struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	StartTime   *string  `json:"startTime"`
	Duration    *int     `json:"duration"`
	Location    *string  `json:"location"`
	Cost        *float64 `json:"cost"`
	Tags        []string `json:"tags"`
	Notes       *string  `json:"notes"`
}

type ConflictCheckInput struct {
	DayID             string `json:"dayId"`
	StartTime         string `json:"startTime"`
	Duration          int    `json:"duration"`
	ExcludeActivityID string `json:"excludeActivityId"`
}

type CommentInput struct {
	Text       string  `json:"text"`
	ActivityID *string `json:"activityId"`
	ImageURL   string  `json:"imageUrl"`
}

type GenerateTripInput struct {
	Destination string   `json:"destination"`
	Days        int      `json:"days"`
	StartDate   string   `json:"startDate"`
	Interests   []string `json:"interests"`
}

type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error

	CreateItinerary(ctx context.Context, itinerary store.Itinerary, days []store.NewDay) (string, error)
	ListItineraries(ctx context.Context, identity store.Identity) ([]store.Itinerary, error)
	GetItinerary(ctx context.Context, itineraryID string) (store.Itinerary, error)
	UpdateItinerary(ctx context.Context, itineraryID string, patch store.ItineraryPatch) error
	DeleteItinerary(ctx context.Context, itineraryID string) error
	HasItineraryAccess(ctx context.Context, itineraryID string, identity store.Identity) (bool, error)

	GetDay(ctx context.Context, dayID string) (store.Day, error)
	ListDayActivities(ctx context.Context, dayID string) ([]store.Activity, error)
	GetActivity(ctx context.Context, activityID string) (store.Activity, error)
	CreateActivity(ctx context.Context, dayID string, input store.NewActivity) (store.Activity, error)
	UpdateActivity(ctx context.Context, activityID string, patch store.ActivityPatch) error
	DeleteActivity(ctx context.Context, activityID string) error

	ReorderItineraries(ctx context.Context, identity store.Identity, orderedIDs []string) error
	ReorderDays(ctx context.Context, itineraryID string, orderedDayIDs []string) error
	ReorderActivities(ctx context.Context, dayID string, orderedActivityIDs []string) error
	MoveActivity(ctx context.Context, activityID, targetDayID string, targetIndex int) error

	InsertComment(ctx context.Context, comment store.Comment) error
	ListComments(ctx context.Context, itineraryID string) ([]store.Comment, error)
	UpsertCollaborator(ctx context.Context, userID, itineraryID string) error
	CreateInviteToken(ctx context.Context, invite store.InviteToken) error
	GetInviteToken(ctx context.Context, token string) (store.InviteToken, error)
	DeleteInviteToken(ctx context.Context, token string) error
	ClaimTravelerData(ctx context.Context, travelerID, userID string) (int, error)
}

// refreshStore abstracts where refresh sessions live. Redis is the primary
// backend; the Postgres store satisfies the same interface as a fallback.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type tripLog interface {
	EnsureRepo(itineraryID string, initial triplog.Snapshot, author string) error
	Record(itineraryID string, snapshot triplog.Snapshot, author, message string) (triplog.Entry, error)
	History(itineraryID string, limit int) ([]triplog.Entry, error)
	SnapshotAt(itineraryID, hash string) (triplog.Snapshot, error)
}

type eventBus interface {
	Publish(ctx context.Context, event realtime.Event) error
}

// Deps carries the optional service dependencies. Nil members disable the
// matching feature rather than failing startup.
type Deps struct {
	Sessions  refreshStore
	Email     *email.Service
	Places    *search.Service
	Media     *media.Service
	Exporter  *export.Service
	TripLog   tripLog
	Events    eventBus
	Generator *genai.Generator
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  refreshStore
	authpw    *authpw.Service
	email     *email.Service
	places    *search.Service
	media     *media.Service
	exporter  *export.Service
	log       tripLog
	events    eventBus
	generator *genai.Generator
}

func New(cfg config.Config, dataStore dataStore, deps Deps) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		if pg, ok := dataStore.(refreshStore); ok {
			sessions = pg
		}
	}
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		authpw:    authpw.NewService(dataStore, cfg.TokenSecret),
		email:     deps.Email,
		places:    deps.Places,
		media:     deps.Media,
		exporter:  deps.Exporter,
		log:       deps.TripLog,
		events:    deps.Events,
		generator: deps.Generator,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// ── Sessions ──

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	sparse, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, sparse.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// ── Itineraries ──

func (s *Service) ListItineraries(ctx context.Context, identity store.Identity) (map[string]any, error) {
	if identity.IsZero() {
		return nil, errUnauthorized()
	}
	itineraries, err := s.store.ListItineraries(ctx, identity)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(itineraries))
	for _, itinerary := range itineraries {
		items = append(items, itineraryPayload(itinerary))
	}
	return map[string]any{"itineraries": items}, nil
}

func (s *Service) CreateItinerary(ctx context.Context, identity store.Identity, input CreateItineraryInput) (map[string]any, error) {
	if identity.IsZero() {
		return nil, errUnauthorized()
	}
	name := strings.TrimSpace(input.Name)
	destination := strings.TrimSpace(input.Destination)
	if name == "" || destination == "" {
		return nil, errValidation("name and destination are required")
	}
	startDate, endDate, err := parseDateRange(input.StartDate, input.EndDate)
	if err != nil {
		return nil, err
	}

	dayCount := int(endDate.Sub(startDate).Hours()/24) + 1
	days := make([]store.NewDay, 0, dayCount)
	for i := 0; i < dayCount; i++ {
		days = append(days, store.NewDay{Date: startDate.AddDate(0, 0, i)})
	}

	itinerary := store.Itinerary{
		ID:          util.NewID("it"),
		Name:        name,
		Destination: destination,
		StartDate:   startDate,
		EndDate:     endDate,
		CoverImage:  strings.TrimSpace(input.CoverImage),
	}
	if identity.UserID != "" {
		itinerary.CreatorID = &identity.UserID
	} else {
		itinerary.TravelerID = &identity.TravelerID
	}

	itineraryID, err := s.store.CreateItinerary(ctx, itinerary, days)
	if err != nil {
		return nil, err
	}

	created, err := s.store.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}

	s.ensureTripLog(created, s.actorName(ctx, identity))
	s.notify(itineraryID, "itinerary.created", identity)
	return map[string]any{"itinerary": itineraryPayload(created)}, nil
}

func (s *Service) GetItinerary(ctx context.Context, identity store.Identity, itineraryID string) (map[string]any, error) {
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	itinerary, err := s.store.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"itinerary": itineraryPayload(itinerary)}, nil
}

func (s *Service) UpdateItinerary(ctx context.Context, identity store.Identity, itineraryID string, input UpdateItineraryInput) (map[string]any, error) {
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}

	patch := store.ItineraryPatch{
		Name:        trimmed(input.Name),
		Destination: trimmed(input.Destination),
		CoverImage:  input.CoverImage,
	}
	if input.StartDate != nil {
		startDate, err := parseDate(*input.StartDate)
		if err != nil {
			return nil, errValidation("startDate must be YYYY-MM-DD")
		}
		patch.StartDate = &startDate
	}
	if input.EndDate != nil {
		endDate, err := parseDate(*input.EndDate)
		if err != nil {
			return nil, errValidation("endDate must be YYYY-MM-DD")
		}
		patch.EndDate = &endDate
	}

	if err := s.store.UpdateItinerary(ctx, itineraryID, patch); err != nil {
		return nil, err
	}

	// A start-date change shifts every day: re-running the current order
	// through the reconciler rewrites each day's date from its position.
	if patch.StartDate != nil {
		current, err := s.store.GetItinerary(ctx, itineraryID)
		if err != nil {
			return nil, err
		}
		dayIDs := make([]string, 0, len(current.Days))
		for _, day := range current.Days {
			dayIDs = append(dayIDs, day.ID)
		}
		if len(dayIDs) > 0 {
			if err := s.store.ReorderDays(ctx, itineraryID, dayIDs); err != nil {
				return nil, err
			}
		}
	}

	updated, err := s.store.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	s.notify(itineraryID, "itinerary.updated", identity)
	s.snapshot(itineraryID, identity, "Updated trip details")
	return map[string]any{"itinerary": itineraryPayload(updated)}, nil
}

func (s *Service) DeleteItinerary(ctx context.Context, identity store.Identity, itineraryID string) error {
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return err
	}
	if err := s.store.DeleteItinerary(ctx, itineraryID); err != nil {
		return err
	}
	s.notify(itineraryID, "itinerary.deleted", identity)
	return nil
}

func (s *Service) ReorderItineraries(ctx context.Context, identity store.Identity, orderedIDs []string) error {
	if identity.IsZero() {
		return errUnauthorized()
	}
	if len(orderedIDs) == 0 {
		return errInvalidMove("ordered ID list is required")
	}
	return s.store.ReorderItineraries(ctx, identity, orderedIDs)
}

func (s *Service) ReorderDays(ctx context.Context, identity store.Identity, itineraryID string, orderedDayIDs []string) (map[string]any, error) {
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	if len(orderedDayIDs) == 0 {
		return nil, errInvalidMove("ordered day ID list is required")
	}
	if err := s.store.ReorderDays(ctx, itineraryID, orderedDayIDs); err != nil {
		return nil, err
	}
	updated, err := s.store.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	s.notify(itineraryID, "day.reordered", identity)
	s.snapshot(itineraryID, identity, "Reordered days")
	return map[string]any{"itinerary": itineraryPayload(updated)}, nil
}

// ── Activities ──

func (s *Service) CreateActivity(ctx context.Context, identity store.Identity, itineraryID, dayID string, input ActivityInput) (map[string]any, error) {
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	if err := s.requireDayInItinerary(ctx, dayID, itineraryID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, errValidation("title is required")
	}
	if err := validateSchedule(input.StartTime, input.Duration); err != nil {
		return nil, err
	}

	activity, err := s.store.CreateActivity(ctx, dayID, store.NewActivity{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		StartTime:   input.StartTime,
		Duration:    input.Duration,
		Location:    input.Location,
		Cost:        input.Cost,
		Tags:        input.Tags,
		Notes:       input.Notes,
	})
	if err != nil {
		return nil, err
	}

	s.notify(itineraryID, "activity.created", identity)
	s.snapshot(itineraryID, identity, fmt.Sprintf("Added %q", activity.Title))
	return map[string]any{"activity": activityPayload(activity)}, nil
}

func (s *Service) ReorderActivities(ctx context.Context, identity store.Identity, itineraryID, dayID string, orderedIDs []string) (map[string]any, error) {
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	if err := s.requireDayInItinerary(ctx, dayID, itineraryID); err != nil {
		return nil, err
	}
	if len(orderedIDs) == 0 {
		return nil, errInvalidMove("ordered activity ID list is required")
	}
	if err := s.store.ReorderActivities(ctx, dayID, orderedIDs); err != nil {
		return nil, err
	}
	activities, err := s.store.ListDayActivities(ctx, dayID)
	if err != nil {
		return nil, err
	}
	s.notify(itineraryID, "activity.reordered", identity)
	s.snapshot(itineraryID, identity, "Reordered activities")
	return map[string]any{"activities": activityPayloads(activities)}, nil
}

func (s *Service) UpdateActivity(ctx context.Context, identity store.Identity, activityID string, input UpdateActivityInput) (map[string]any, error) {
	itineraryID, err := s.authorizeActivity(ctx, identity, activityID)
	if err != nil {
		return nil, err
	}
	if input.StartTime != nil && *input.StartTime != "" {
		if _, err := plan.ParseClock(*input.StartTime); err != nil {
			return nil, errValidation("startTime must be HH:mm")
		}
	}
	if input.Duration != nil && *input.Duration < 0 {
		return nil, errValidation("duration must not be negative")
	}

	err = s.store.UpdateActivity(ctx, activityID, store.ActivityPatch{
		Title:       trimmed(input.Title),
		Description: input.Description,
		StartTime:   input.StartTime,
		Duration:    input.Duration,
		Location:    input.Location,
		Cost:        input.Cost,
		Tags:        input.Tags,
		Notes:       input.Notes,
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	s.notify(itineraryID, "activity.updated", identity)
	s.snapshot(itineraryID, identity, fmt.Sprintf("Updated %q", updated.Title))
	return map[string]any{"activity": activityPayload(updated)}, nil
}

func (s *Service) DeleteActivity(ctx context.Context, identity store.Identity, activityID string) error {
	itineraryID, err := s.authorizeActivity(ctx, identity, activityID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteActivity(ctx, activityID); err != nil {
		return err
	}
	s.notify(itineraryID, "activity.deleted", identity)
	s.snapshot(itineraryID, identity, "Removed an activity")
	return nil
}

func (s *Service) MoveActivity(ctx context.Context, identity store.Identity, activityID, targetDayID string, position *int) (map[string]any, error) {
	if targetDayID == "" {
		return nil, errInvalidMove("targetDayId is required")
	}
	itineraryID, err := s.authorizeActivity(ctx, identity, activityID)
	if err != nil {
		return nil, err
	}

	targetIndex := -1
	if position != nil {
		targetIndex = *position
	}
	if err := s.store.MoveActivity(ctx, activityID, targetDayID, targetIndex); err != nil {
		return nil, err
	}

	activities, err := s.store.ListDayActivities(ctx, targetDayID)
	if err != nil {
		return nil, err
	}
	s.notify(itineraryID, "activity.moved", identity)
	s.snapshot(itineraryID, identity, "Moved an activity")
	return map[string]any{"activities": activityPayloads(activities)}, nil
}

// CheckConflict reports whether a candidate schedule overlaps an existing
// scheduled activity on the day. Advisory only: it never blocks a write.
func (s *Service) CheckConflict(ctx context.Context, identity store.Identity, itineraryID string, input ConflictCheckInput) (map[string]any, error) {
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	if err := s.requireDayInItinerary(ctx, input.DayID, itineraryID); err != nil {
		return nil, err
	}
	if err := validateSchedule(input.StartTime, input.Duration); err != nil {
		return nil, err
	}

	activities, err := s.store.ListDayActivities(ctx, input.DayID)
	if err != nil {
		return nil, err
	}
	scheduled := make([]plan.Scheduled, 0, len(activities))
	for _, activity := range activities {
		scheduled = append(scheduled, plan.Scheduled{
			ID:              activity.ID,
			StartTime:       activity.StartTime,
			DurationMinutes: activity.Duration,
		})
	}
	conflict := plan.HasConflict(scheduled, plan.Scheduled{
		StartTime:       input.StartTime,
		DurationMinutes: input.Duration,
	}, input.ExcludeActivityID)

	return map[string]any{"conflict": conflict}, nil
}

// ── Comments ──

func (s *Service) AddComment(ctx context.Context, identity store.Identity, itineraryID string, input CommentInput) (map[string]any, error) {
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(input.Text)
	if text == "" && strings.TrimSpace(input.ImageURL) == "" {
		return nil, errValidation("text or imageUrl is required")
	}

	comment := store.Comment{
		ID:          util.NewID("cmt"),
		ItineraryID: itineraryID,
		ActivityID:  input.ActivityID,
		Text:        text,
		ImageURL:    strings.TrimSpace(input.ImageURL),
		CreatedAt:   time.Now(),
	}
	if identity.UserID != "" {
		comment.AuthorID = &identity.UserID
	} else {
		comment.TravelerID = &identity.TravelerID
	}
	comment.AuthorName = s.actorName(ctx, identity)

	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	s.notify(itineraryID, "comment.added", identity)
	return map[string]any{"comment": commentPayload(comment)}, nil
}

func (s *Service) ListComments(ctx context.Context, identity store.Identity, itineraryID string) (map[string]any, error) {
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		items = append(items, commentPayload(comment))
	}
	return map[string]any{"comments": items}, nil
}

// ── Invitations ──

func (s *Service) CreateInvite(ctx context.Context, session Session, itineraryID, inviteeEmail string) (map[string]any, error) {
	identity := store.Identity{UserID: session.UserID}
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	itinerary, err := s.store.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}

	token := util.NewID("inv") + util.NewID("")
	invite := store.InviteToken{
		Token:       token,
		ItineraryID: itineraryID,
		InviterID:   session.UserID,
		Email:       strings.TrimSpace(inviteeEmail),
		CreatedAt:   time.Now(),
	}
	if err := s.store.CreateInviteToken(ctx, invite); err != nil {
		return nil, err
	}

	inviteURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/invite/" + token
	if s.SMTPConfigured() && invite.Email != "" {
		go func() {
			if err := s.email.SendInviteEmail(invite.Email, session.UserName, itinerary.Name, inviteURL); err != nil {
				log.Printf("invite email to %s failed: %v", invite.Email, err)
			}
		}()
	}
	return map[string]any{"inviteUrl": inviteURL, "token": token}, nil
}

func (s *Service) AcceptInvite(ctx context.Context, session Session, token string) (map[string]any, error) {
	if session.UserID == "" {
		return nil, errUnauthorized()
	}
	invite, err := s.store.GetInviteToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("Invite not found")
		}
		return nil, err
	}
	if err := s.store.UpsertCollaborator(ctx, session.UserID, invite.ItineraryID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteInviteToken(ctx, token); err != nil {
		return nil, err
	}
	s.notify(invite.ItineraryID, "collaborator.joined", store.Identity{UserID: session.UserID})
	return map[string]any{"itineraryId": invite.ItineraryID}, nil
}

// MergeTravelerData claims every itinerary owned by an anonymous traveler ID
// for the signed-in user, typically right after signup.
func (s *Service) MergeTravelerData(ctx context.Context, session Session, travelerID string) (map[string]any, error) {
	if session.UserID == "" {
		return nil, errUnauthorized()
	}
	travelerID = strings.TrimSpace(travelerID)
	if travelerID == "" {
		return nil, errValidation("travelerId is required")
	}
	claimed, err := s.store.ClaimTravelerData(ctx, travelerID, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"claimed": claimed}, nil
}

// ── Places, uploads, generation, export, history ──

func (s *Service) SearchPlaces(query string, limit int) search.Response {
	if s.places == nil {
		return search.Response{Results: []search.Place{}, Query: query}
	}
	return s.places.Search(search.Query{Text: query, Limit: limit})
}

func (s *Service) PresignUpload(ctx context.Context, identity store.Identity, itineraryID, contentType string) (map[string]any, error) {
	if s.media == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SERVER_ERROR", "Image uploads are not configured", nil)
	}
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	upload, err := s.media.PresignUpload(ctx, itineraryID, contentType)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			return nil, errValidation("unsupported content type")
		}
		return nil, err
	}
	return map[string]any{"upload": upload}, nil
}

func (s *Service) GenerateTrip(ctx context.Context, identity store.Identity, input GenerateTripInput) (map[string]any, error) {
	if s.generator == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SERVER_ERROR", "Trip generation is not configured", nil)
	}
	if identity.IsZero() {
		return nil, errUnauthorized()
	}
	destination := strings.TrimSpace(input.Destination)
	if destination == "" {
		return nil, errValidation("destination is required")
	}
	startDate := time.Now().Truncate(24 * time.Hour)
	if input.StartDate != "" {
		parsed, err := parseDate(input.StartDate)
		if err != nil {
			return nil, errValidation("startDate must be YYYY-MM-DD")
		}
		startDate = parsed
	}

	generated, err := s.generator.GenerateTrip(ctx, destination, input.Days, input.Interests)
	if err != nil {
		if errors.Is(err, genai.ErrEmptyResponse) {
			return nil, errValidation("the model returned no usable plan")
		}
		return nil, err
	}

	days := make([]store.NewDay, 0, len(generated.Days))
	for i, generatedDay := range generated.Days {
		day := store.NewDay{Date: startDate.AddDate(0, 0, i)}
		for _, activity := range generatedDay.Activities {
			day.Activities = append(day.Activities, store.NewActivity{
				Title:       activity.Title,
				Description: activity.Description,
				StartTime:   activity.StartTime,
				Duration:    activity.Duration,
				Location:    activity.Location,
				Cost:        activity.Cost,
				Tags:        activity.Tags,
			})
		}
		days = append(days, day)
	}

	itinerary := store.Itinerary{
		ID:          util.NewID("it"),
		Name:        generated.Name,
		Destination: generated.Destination,
		StartDate:   startDate,
		EndDate:     startDate.AddDate(0, 0, len(days)-1),
	}
	if identity.UserID != "" {
		itinerary.CreatorID = &identity.UserID
	} else {
		itinerary.TravelerID = &identity.TravelerID
	}

	itineraryID, err := s.store.CreateItinerary(ctx, itinerary, days)
	if err != nil {
		return nil, err
	}
	created, err := s.store.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	s.ensureTripLog(created, s.actorName(ctx, identity))
	s.notify(itineraryID, "itinerary.created", identity)
	return map[string]any{"itinerary": itineraryPayload(created)}, nil
}

func (s *Service) ExportPDF(ctx context.Context, identity store.Identity, itineraryID string) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SERVER_ERROR", "PDF export is not configured", nil)
	}
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	itinerary, err := s.store.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, itinerary)
}

func (s *Service) History(ctx context.Context, identity store.Identity, itineraryID string, limit int) (map[string]any, error) {
	if s.log == nil {
		return map[string]any{"entries": []map[string]any{}}, nil
	}
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	entries, err := s.log.History(itineraryID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"hash":      entry.Hash,
			"message":   strings.TrimSpace(entry.Message),
			"author":    entry.Author,
			"createdAt": entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return map[string]any{"entries": items}, nil
}

// HistorySnapshot returns the itinerary as it looked at one recorded commit.
func (s *Service) HistorySnapshot(ctx context.Context, identity store.Identity, itineraryID, hash string) (map[string]any, error) {
	if s.log == nil {
		return nil, errNotFound("Snapshot not found")
	}
	if err := s.authorizeItinerary(ctx, identity, itineraryID); err != nil {
		return nil, err
	}
	snap, err := s.log.SnapshotAt(itineraryID, hash)
	if err != nil {
		return nil, errNotFound("Snapshot not found")
	}
	return map[string]any{"snapshot": snapshotPayload(snap)}, nil
}

func snapshotPayload(snap triplog.Snapshot) map[string]any {
	days := make([]map[string]any, 0, len(snap.Days))
	for _, day := range snap.Days {
		activities := make([]map[string]any, 0, len(day.Activities))
		for _, activity := range day.Activities {
			tags := activity.Tags
			if tags == nil {
				tags = []string{}
			}
			activities = append(activities, map[string]any{
				"title":     activity.Title,
				"startTime": activity.StartTime,
				"duration":  activity.Duration,
				"location":  activity.Location,
				"cost":      activity.Cost,
				"notes":     activity.Notes,
				"tags":      tags,
			})
		}
		days = append(days, map[string]any{"date": day.Date, "activities": activities})
	}
	return map[string]any{
		"name":        snap.Name,
		"destination": snap.Destination,
		"startDate":   snap.StartDate,
		"endDate":     snap.EndDate,
		"days":        days,
	}
}

// ── Authorization and shared helpers ──

func (s *Service) authorizeItinerary(ctx context.Context, identity store.Identity, itineraryID string) error {
	if identity.IsZero() {
		return errUnauthorized()
	}
	ok, err := s.store.HasItineraryAccess(ctx, itineraryID, identity)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.store.GetItinerary(ctx, itineraryID); errors.Is(err, sql.ErrNoRows) {
			return errNotFound("Itinerary not found")
		}
		return errForbidden()
	}
	return nil
}

// authorizeActivity resolves the activity's itinerary and checks membership.
func (s *Service) authorizeActivity(ctx context.Context, identity store.Identity, activityID string) (string, error) {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errNotFound("Activity not found")
		}
		return "", err
	}
	day, err := s.store.GetDay(ctx, activity.DayID)
	if err != nil {
		return "", err
	}
	if err := s.authorizeItinerary(ctx, identity, day.ItineraryID); err != nil {
		return "", err
	}
	return day.ItineraryID, nil
}

func (s *Service) requireDayInItinerary(ctx context.Context, dayID, itineraryID string) error {
	day, err := s.store.GetDay(ctx, dayID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("Day not found")
		}
		return err
	}
	if day.ItineraryID != itineraryID {
		return errNotFound("Day not found")
	}
	return nil
}

func (s *Service) actorName(ctx context.Context, identity store.Identity) string {
	if identity.UserID != "" {
		if user, err := s.store.GetUserByID(ctx, identity.UserID); err == nil {
			return user.DisplayName
		}
	}
	return "Traveler"
}

// notify publishes a realtime event without blocking or failing the request.
func (s *Service) notify(itineraryID, kind string, identity store.Identity) {
	if s.events == nil {
		return
	}
	actorID := identity.UserID
	if actorID == "" {
		actorID = identity.TravelerID
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.Publish(ctx, realtime.Event{
			ItineraryID: itineraryID,
			Kind:        kind,
			ActorID:     actorID,
		}); err != nil {
			log.Printf("publish %s for itinerary %s failed: %v", kind, itineraryID, err)
		}
	}()
}

// snapshot records the itinerary's current state into its change history.
func (s *Service) snapshot(itineraryID string, identity store.Identity, message string) {
	if s.log == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		itinerary, err := s.store.GetItinerary(ctx, itineraryID)
		if err != nil {
			log.Printf("snapshot load for itinerary %s failed: %v", itineraryID, err)
			return
		}
		author := s.actorName(ctx, identity)
		snap := buildSnapshot(itinerary)
		if err := s.log.EnsureRepo(itineraryID, snap, author); err != nil {
			log.Printf("snapshot repo for itinerary %s failed: %v", itineraryID, err)
			return
		}
		if _, err := s.log.Record(itineraryID, snap, author, message); err != nil {
			log.Printf("snapshot record for itinerary %s failed: %v", itineraryID, err)
		}
	}()
}

// ensureTripLog seeds the history repo for a freshly created itinerary.
func (s *Service) ensureTripLog(itinerary store.Itinerary, author string) {
	if s.log == nil {
		return
	}
	go func() {
		if err := s.log.EnsureRepo(itinerary.ID, buildSnapshot(itinerary), author); err != nil {
			log.Printf("init history for itinerary %s failed: %v", itinerary.ID, err)
		}
	}()
}

func buildSnapshot(itinerary store.Itinerary) triplog.Snapshot {
	snap := triplog.Snapshot{
		Name:        itinerary.Name,
		Destination: itinerary.Destination,
		StartDate:   itinerary.StartDate.Format(dateLayout),
		EndDate:     itinerary.EndDate.Format(dateLayout),
	}
	for _, day := range itinerary.Days {
		snapDay := triplog.SnapshotDay{Date: day.Date.Format(dateLayout)}
		for _, activity := range day.Activities {
			snapDay.Activities = append(snapDay.Activities, triplog.SnapshotActivity{
				Title:     activity.Title,
				StartTime: activity.StartTime,
				Duration:  activity.Duration,
				Location:  activity.Location,
				Cost:      activity.Cost,
				Notes:     activity.Notes,
				Tags:      activity.Tags,
			})
		}
		snap.Days = append(snap.Days, snapDay)
	}
	return snap
}

func validateSchedule(startTime string, duration int) error {
	if startTime != "" {
		if _, err := plan.ParseClock(startTime); err != nil {
			return errValidation("startTime must be HH:mm")
		}
	}
	if duration < 0 {
		return errValidation("duration must not be negative")
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(value))
}

func parseDateRange(start, end string) (time.Time, time.Time, error) {
	startDate, err := parseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, errValidation("startDate must be YYYY-MM-DD")
	}
	endDate, err := parseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, errValidation("endDate must be YYYY-MM-DD")
	}
	if endDate.Before(startDate) {
		return time.Time{}, time.Time{}, errValidation("endDate must not be before startDate")
	}
	if int(endDate.Sub(startDate).Hours()/24)+1 > maxItineraryDays {
		return time.Time{}, time.Time{}, errValidation(fmt.Sprintf("trips are limited to %d days", maxItineraryDays))
	}
	return startDate, endDate, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	clean := strings.TrimSpace(*value)
	return &clean
}

// ── Payload rendering ──

func itineraryPayload(itinerary store.Itinerary) map[string]any {
	days := make([]map[string]any, 0, len(itinerary.Days))
	for _, day := range itinerary.Days {
		days = append(days, dayPayload(day))
	}
	collaborators := make([]map[string]any, 0, len(itinerary.Collaborators))
	for _, collaborator := range itinerary.Collaborators {
		collaborators = append(collaborators, map[string]any{
			"userId": collaborator.UserID,
			"name":   collaborator.UserName,
			"email":  collaborator.UserEmail,
			"image":  collaborator.UserImage,
		})
	}
	return map[string]any{
		"id":            itinerary.ID,
		"name":          itinerary.Name,
		"destination":   itinerary.Destination,
		"startDate":     itinerary.StartDate.Format(dateLayout),
		"endDate":       itinerary.EndDate.Format(dateLayout),
		"coverImage":    itinerary.CoverImage,
		"position":      itinerary.Position,
		"days":          days,
		"collaborators": collaborators,
	}
}

func dayPayload(day store.Day) map[string]any {
	return map[string]any{
		"id":         day.ID,
		"date":       day.Date.Format(dateLayout),
		"position":   day.Position,
		"activities": activityPayloads(day.Activities),
	}
}

func activityPayloads(activities []store.Activity) []map[string]any {
	items := make([]map[string]any, 0, len(activities))
	for _, activity := range activities {
		items = append(items, activityPayload(activity))
	}
	return items
}

func activityPayload(activity store.Activity) map[string]any {
	tags := activity.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":          activity.ID,
		"dayId":       activity.DayID,
		"title":       activity.Title,
		"description": activity.Description,
		"startTime":   activity.StartTime,
		"duration":    activity.Duration,
		"location":    activity.Location,
		"cost":        activity.Cost,
		"tags":        tags,
		"notes":       activity.Notes,
		"position":    activity.Position,
	}
}

func commentPayload(comment store.Comment) map[string]any {
	payload := map[string]any{
		"id":          comment.ID,
		"itineraryId": comment.ItineraryID,
		"authorName":  comment.AuthorName,
		"text":        comment.Text,
		"imageUrl":    comment.ImageURL,
		"createdAt":   comment.CreatedAt.UTC().Format(time.RFC3339),
	}
	if comment.ActivityID != nil {
		payload["activityId"] = *comment.ActivityID
	}
	return payload
}
