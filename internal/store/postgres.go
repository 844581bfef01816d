package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, COALESCE(image, ''), COALESCE(password_hash, ''), is_email_verified
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Image, &user.PasswordHash, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, COALESCE(image, ''), COALESCE(password_hash, ''), is_email_verified
		FROM users
		WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Image, &user.PasswordHash, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, image, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''))
	`, user.ID, user.DisplayName, user.Email, user.Image, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Refresh sessions (Postgres fallback when Redis is not configured)
// ---------------------------------------------------------------------------

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email, COALESCE(u.image, '')
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Image)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Itineraries
// ---------------------------------------------------------------------------

// CreateItinerary inserts the itinerary with its full day/activity tree in one
// transaction. Day positions follow the supplied order; activity positions
// follow each day's supplied order. The new itinerary is appended at the end
// of the owner's list.
func (s *PostgresStore) CreateItinerary(ctx context.Context, itinerary Itinerary, days []NewDay) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin create itinerary: %w", err)
	}
	defer tx.Rollback()

	var position int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM itineraries
		WHERE (creator_id IS NOT DISTINCT FROM $1) AND (traveler_id IS NOT DISTINCT FROM $2)
	`, itinerary.CreatorID, itinerary.TravelerID).Scan(&position); err != nil {
		return "", fmt.Errorf("count owner itineraries: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO itineraries (id, name, destination, start_date, end_date, cover_image, creator_id, traveler_id, position)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`, itinerary.ID, itinerary.Name, itinerary.Destination, itinerary.StartDate, itinerary.EndDate,
		itinerary.CoverImage, itinerary.CreatorID, itinerary.TravelerID, position); err != nil {
		return "", fmt.Errorf("insert itinerary: %w", err)
	}

	if itinerary.CreatorID != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO collaborators (user_id, itinerary_id)
			VALUES ($1, $2)
			ON CONFLICT (user_id, itinerary_id) DO NOTHING
		`, *itinerary.CreatorID, itinerary.ID); err != nil {
			return "", fmt.Errorf("insert creator collaborator: %w", err)
		}
	}

	if err := insertDays(ctx, tx, itinerary.ID, days); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit create itinerary: %w", err)
	}
	return itinerary.ID, nil
}

func insertDays(ctx context.Context, tx *sql.Tx, itineraryID string, days []NewDay) error {
	for dayIndex, day := range days {
		var dayID string
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO days (itinerary_id, date, position)
			VALUES ($1, $2, $3)
			RETURNING id
		`, itineraryID, day.Date, dayIndex).Scan(&dayID); err != nil {
			return fmt.Errorf("insert day %d: %w", dayIndex, err)
		}
		for activityIndex, activity := range day.Activities {
			tags, err := encodeTags(activity.Tags)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO activities (day_id, title, description, start_time, duration, location, cost, tags, notes, position)
				VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, 0), $6, $7, $8::jsonb, $9, $10)
			`, dayID, activity.Title, activity.Description, activity.StartTime, activity.Duration,
				activity.Location, activity.Cost, tags, activity.Notes, activityIndex); err != nil {
				return fmt.Errorf("insert activity %d of day %d: %w", activityIndex, dayIndex, err)
			}
		}
	}
	return nil
}

func (s *PostgresStore) ListItineraries(ctx context.Context, identity Identity) ([]Itinerary, error) {
	var rows *sql.Rows
	var err error
	if identity.UserID != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT DISTINCT i.id, i.name, i.destination, i.start_date, i.end_date, COALESCE(i.cover_image, ''), i.creator_id, i.traveler_id, i.position
			FROM itineraries i
			LEFT JOIN collaborators c ON c.itinerary_id = i.id
			WHERE i.creator_id=$1 OR c.user_id=$1
			ORDER BY i.position ASC, i.id ASC
		`, identity.UserID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, name, destination, start_date, end_date, COALESCE(cover_image, ''), creator_id, traveler_id, position
			FROM itineraries
			WHERE traveler_id=$1
			ORDER BY position ASC, id ASC
		`, identity.TravelerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list itineraries: %w", err)
	}
	defer rows.Close()

	items := make([]Itinerary, 0)
	for rows.Next() {
		var item Itinerary
		if err := rows.Scan(&item.ID, &item.Name, &item.Destination, &item.StartDate, &item.EndDate,
			&item.CoverImage, &item.CreatorID, &item.TravelerID, &item.Position); err != nil {
			return nil, fmt.Errorf("scan itinerary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate itineraries: %w", err)
	}

	for index := range items {
		if err := s.loadItineraryChildren(ctx, &items[index]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *PostgresStore) GetItinerary(ctx context.Context, itineraryID string) (Itinerary, error) {
	var item Itinerary
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, destination, start_date, end_date, COALESCE(cover_image, ''), creator_id, traveler_id, position
		FROM itineraries
		WHERE id=$1
	`, itineraryID).Scan(&item.ID, &item.Name, &item.Destination, &item.StartDate, &item.EndDate,
		&item.CoverImage, &item.CreatorID, &item.TravelerID, &item.Position)
	if err != nil {
		return Itinerary{}, err
	}
	if err := s.loadItineraryChildren(ctx, &item); err != nil {
		return Itinerary{}, err
	}
	return item, nil
}

func (s *PostgresStore) loadItineraryChildren(ctx context.Context, itinerary *Itinerary) error {
	days, err := s.listDays(ctx, itinerary.ID)
	if err != nil {
		return err
	}
	itinerary.Days = days

	collaborators, err := s.ListCollaborators(ctx, itinerary.ID)
	if err != nil {
		return err
	}
	itinerary.Collaborators = collaborators

	comments, err := s.ListComments(ctx, itinerary.ID)
	if err != nil {
		return err
	}
	itinerary.Comments = comments
	return nil
}

func (s *PostgresStore) listDays(ctx context.Context, itineraryID string) ([]Day, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, itinerary_id, date, position
		FROM days
		WHERE itinerary_id=$1
		ORDER BY position ASC
	`, itineraryID)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	defer rows.Close()

	days := make([]Day, 0)
	for rows.Next() {
		var day Day
		if err := rows.Scan(&day.ID, &day.ItineraryID, &day.Date, &day.Position); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate days: %w", err)
	}

	for index := range days {
		activities, err := s.ListDayActivities(ctx, days[index].ID)
		if err != nil {
			return nil, err
		}
		days[index].Activities = activities
	}
	return days, nil
}

func (s *PostgresStore) GetDay(ctx context.Context, dayID string) (Day, error) {
	var day Day
	err := s.db.QueryRowContext(ctx, `
		SELECT id, itinerary_id, date, position FROM days WHERE id=$1
	`, dayID).Scan(&day.ID, &day.ItineraryID, &day.Date, &day.Position)
	if err != nil {
		return Day{}, err
	}
	activities, err := s.ListDayActivities(ctx, dayID)
	if err != nil {
		return Day{}, err
	}
	day.Activities = activities
	return day, nil
}

func (s *PostgresStore) UpdateItinerary(ctx context.Context, itineraryID string, patch ItineraryPatch) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE itineraries
		SET name=COALESCE($2, name),
			destination=COALESCE($3, destination),
			start_date=COALESCE($4, start_date),
			end_date=COALESCE($5, end_date),
			cover_image=COALESCE($6, cover_image),
			updated_at=NOW()
		WHERE id=$1
	`, itineraryID, patch.Name, patch.Destination, patch.StartDate, patch.EndDate, patch.CoverImage)
	if err != nil {
		return fmt.Errorf("update itinerary: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update itinerary rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteItinerary(ctx context.Context, itineraryID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM itineraries WHERE id=$1`, itineraryID)
	if err != nil {
		return fmt.Errorf("delete itinerary: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete itinerary rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasItineraryAccess reports whether the identity is the creator, the owning
// anonymous traveler, or a collaborator of the itinerary.
func (s *PostgresStore) HasItineraryAccess(ctx context.Context, itineraryID string, identity Identity) (bool, error) {
	var allowed bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM itineraries i
			LEFT JOIN collaborators c ON c.itinerary_id = i.id
			WHERE i.id=$1 AND (
				($2 <> '' AND (i.creator_id=$2 OR c.user_id=$2)) OR
				($3 <> '' AND i.traveler_id=$3)
			)
		)
	`, itineraryID, identity.UserID, identity.TravelerID).Scan(&allowed)
	if err != nil {
		return false, fmt.Errorf("check itinerary access: %w", err)
	}
	return allowed, nil
}

// ---------------------------------------------------------------------------
// Activities
// ---------------------------------------------------------------------------

func (s *PostgresStore) ListDayActivities(ctx context.Context, dayID string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day_id, title, COALESCE(description, ''), COALESCE(start_time, ''), COALESCE(duration, 0),
			COALESCE(location, ''), COALESCE(cost, 0), COALESCE(tags::text, '[]'), COALESCE(notes, ''), position
		FROM activities
		WHERE day_id=$1
		ORDER BY position ASC
	`, dayID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	activities := make([]Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return activities, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (Activity, error) {
	var activity Activity
	var tagsRaw string
	if err := row.Scan(&activity.ID, &activity.DayID, &activity.Title, &activity.Description,
		&activity.StartTime, &activity.Duration, &activity.Location, &activity.Cost,
		&tagsRaw, &activity.Notes, &activity.Position); err != nil {
		return Activity{}, fmt.Errorf("scan activity: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsRaw), &activity.Tags); err != nil {
		activity.Tags = nil
	}
	return activity, nil
}

func (s *PostgresStore) GetActivity(ctx context.Context, activityID string) (Activity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, day_id, title, COALESCE(description, ''), COALESCE(start_time, ''), COALESCE(duration, 0),
			COALESCE(location, ''), COALESCE(cost, 0), COALESCE(tags::text, '[]'), COALESCE(notes, ''), position
		FROM activities
		WHERE id=$1
	`, activityID)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(errors.Unwrap(err), sql.ErrNoRows) {
			return Activity{}, sql.ErrNoRows
		}
		return Activity{}, err
	}
	return activity, nil
}

// CreateActivity appends a new activity at the end of the day's list. The day
// row is locked so that a concurrent append or move cannot hand out the same
// position.
func (s *PostgresStore) CreateActivity(ctx context.Context, dayID string, input NewActivity) (Activity, error) {
	tags, err := encodeTags(input.Tags)
	if err != nil {
		return Activity{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Activity{}, fmt.Errorf("begin create activity: %w", err)
	}
	defer tx.Rollback()

	var lockedDayID string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM days WHERE id=$1 FOR UPDATE`, dayID).Scan(&lockedDayID); err != nil {
		return Activity{}, classify(err)
	}

	var position int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE day_id=$1`, dayID).Scan(&position); err != nil {
		return Activity{}, fmt.Errorf("count day activities: %w", err)
	}

	var activityID string
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO activities (day_id, title, description, start_time, duration, location, cost, tags, notes, position)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, 0), $6, $7, $8::jsonb, $9, $10)
		RETURNING id
	`, dayID, input.Title, input.Description, input.StartTime, input.Duration,
		input.Location, input.Cost, tags, input.Notes, position).Scan(&activityID); err != nil {
		return Activity{}, classify(fmt.Errorf("insert activity: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return Activity{}, classify(fmt.Errorf("commit create activity: %w", err))
	}

	return Activity{
		ID:          activityID,
		DayID:       dayID,
		Title:       input.Title,
		Description: input.Description,
		StartTime:   input.StartTime,
		Duration:    input.Duration,
		Location:    input.Location,
		Cost:        input.Cost,
		Tags:        input.Tags,
		Notes:       input.Notes,
		Position:    position,
	}, nil
}

func (s *PostgresStore) UpdateActivity(ctx context.Context, activityID string, patch ActivityPatch) error {
	var tags any
	if patch.Tags != nil {
		encoded, err := encodeTags(patch.Tags)
		if err != nil {
			return err
		}
		tags = encoded
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE activities
		SET title=COALESCE($2, title),
			description=COALESCE($3, description),
			start_time=COALESCE($4, start_time),
			duration=COALESCE($5, duration),
			location=COALESCE($6, location),
			cost=COALESCE($7, cost),
			tags=COALESCE($8::jsonb, tags),
			notes=COALESCE($9, notes)
		WHERE id=$1
	`, activityID, patch.Title, patch.Description, patch.StartTime, patch.Duration,
		patch.Location, patch.Cost, tags, patch.Notes)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update activity rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(encoded), nil
}

// ---------------------------------------------------------------------------
// Comments
// ---------------------------------------------------------------------------

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, itinerary_id, activity_id, author_id, traveler_id, text, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
	`, comment.ID, comment.ItineraryID, comment.ActivityID, comment.AuthorID, comment.TravelerID,
		comment.Text, comment.ImageURL)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, itineraryID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.itinerary_id, c.activity_id, c.author_id, c.traveler_id,
			COALESCE(u.display_name, ''), c.text, COALESCE(c.image_url, ''), c.created_at
		FROM comments c
		LEFT JOIN users u ON u.id = c.author_id
		WHERE c.itinerary_id=$1
		ORDER BY c.created_at ASC
	`, itineraryID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var comment Comment
		if err := rows.Scan(&comment.ID, &comment.ItineraryID, &comment.ActivityID, &comment.AuthorID,
			&comment.TravelerID, &comment.AuthorName, &comment.Text, &comment.ImageURL, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// ---------------------------------------------------------------------------
// Collaborators and invites
// ---------------------------------------------------------------------------

func (s *PostgresStore) UpsertCollaborator(ctx context.Context, userID, itineraryID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collaborators (user_id, itinerary_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, itinerary_id) DO NOTHING
	`, userID, itineraryID)
	if err != nil {
		return fmt.Errorf("upsert collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCollaborators(ctx context.Context, itineraryID string) ([]Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.user_id, c.itinerary_id, u.display_name, u.email, COALESCE(u.image, '')
		FROM collaborators c
		JOIN users u ON u.id = c.user_id
		WHERE c.itinerary_id=$1
		ORDER BY u.display_name ASC
	`, itineraryID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	collaborators := make([]Collaborator, 0)
	for rows.Next() {
		var collaborator Collaborator
		if err := rows.Scan(&collaborator.UserID, &collaborator.ItineraryID, &collaborator.UserName,
			&collaborator.UserEmail, &collaborator.UserImage); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		collaborators = append(collaborators, collaborator)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return collaborators, nil
}

func (s *PostgresStore) CreateInviteToken(ctx context.Context, invite InviteToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invite_tokens (token, itinerary_id, inviter_id, email)
		VALUES ($1, $2, $3, $4)
	`, invite.Token, invite.ItineraryID, invite.InviterID, invite.Email)
	if err != nil {
		return fmt.Errorf("create invite token: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInviteToken(ctx context.Context, token string) (InviteToken, error) {
	var invite InviteToken
	err := s.db.QueryRowContext(ctx, `
		SELECT token, itinerary_id, inviter_id, email, created_at
		FROM invite_tokens
		WHERE token=$1
	`, token).Scan(&invite.Token, &invite.ItineraryID, &invite.InviterID, &invite.Email, &invite.CreatedAt)
	if err != nil {
		return InviteToken{}, err
	}
	return invite, nil
}

func (s *PostgresStore) DeleteInviteToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM invite_tokens WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("delete invite token: %w", err)
	}
	return nil
}

// ClaimTravelerData reassigns everything owned by an anonymous traveler to a
// signed-in user: itineraries become creator-owned (the user is added as
// collaborator) and comments gain an author. Used by the account merge flow.
// Claimed itineraries are renumbered to append after the user's existing list
// so the creator-scoped collection stays dense.
func (s *PostgresStore) ClaimTravelerData(ctx context.Context, travelerID, userID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin claim traveler data: %w", err)
	}
	defer tx.Rollback()

	var base int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM itineraries WHERE creator_id=$1
	`, userID).Scan(&base); err != nil {
		return 0, fmt.Errorf("count user itineraries: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM itineraries
		WHERE traveler_id=$1
		ORDER BY position ASC, id ASC
		FOR UPDATE
	`, travelerID)
	if err != nil {
		return 0, fmt.Errorf("lock traveler itineraries: %w", err)
	}
	claimed, err := collectIDs(rows)
	if err != nil {
		return 0, err
	}

	for index, itineraryID := range claimed {
		if _, err := tx.ExecContext(ctx, `
			UPDATE itineraries
			SET creator_id=$2, traveler_id=NULL, position=$3, updated_at=NOW()
			WHERE id=$1
		`, itineraryID, userID, base+index); err != nil {
			return 0, fmt.Errorf("claim itinerary: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO collaborators (user_id, itinerary_id)
			VALUES ($1, $2)
			ON CONFLICT (user_id, itinerary_id) DO NOTHING
		`, userID, itineraryID); err != nil {
			return 0, fmt.Errorf("add claimed collaborator: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE comments SET author_id=$2, traveler_id=NULL WHERE traveler_id=$1
	`, travelerID, userID); err != nil {
		return 0, fmt.Errorf("claim comments: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit claim traveler data: %w", err)
	}
	return len(claimed), nil
}
