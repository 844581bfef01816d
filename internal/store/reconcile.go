package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"

	"tripboard/api/internal/plan"
)

// ErrTxConflict marks serialization and deadlock failures. Callers can retry
// the whole operation; the transaction has been rolled back.
var ErrTxConflict = errors.New("concurrent modification")

// ErrDayMismatch is returned when a move names a target day that belongs to a
// different itinerary than the activity's current day.
var ErrDayMismatch = errors.New("target day belongs to a different itinerary")

// classify maps Postgres serialization_failure (40001) and deadlock_detected
// (40P01) onto ErrTxConflict so the HTTP layer can answer 409.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %s", ErrTxConflict, pgErr.Code)
		}
	}
	return err
}

// ReorderItineraries rewrites the positions of the identity's own itinerary
// list to match the supplied order. Collaborations show up in the fetched list
// but their order belongs to their creator, so they are dropped from the
// supplied IDs before validating: a client can send back exactly what it
// listed. The remaining IDs must be exactly the owned set.
func (s *PostgresStore) ReorderItineraries(ctx context.Context, identity Identity, orderedIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder itineraries: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM itineraries
		WHERE ($1 <> '' AND creator_id=$1) OR ($2 <> '' AND traveler_id=$2)
		ORDER BY id
		FOR UPDATE
	`, identity.UserID, identity.TravelerID)
	if err != nil {
		return classify(fmt.Errorf("lock itineraries: %w", err))
	}
	currentIDs, err := collectIDs(rows)
	if err != nil {
		return err
	}

	owned := make(map[string]bool, len(currentIDs))
	for _, id := range currentIDs {
		owned[id] = true
	}
	ownedOrder := make([]string, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		if owned[id] {
			ownedOrder = append(ownedOrder, id)
		}
	}

	if err := plan.ValidateCompleteSet(ownedOrder, currentIDs); err != nil {
		return err
	}

	for id, position := range plan.Normalize(ownedOrder) {
		if _, err := tx.ExecContext(ctx, `
			UPDATE itineraries SET position=$2, updated_at=NOW() WHERE id=$1
		`, id, position); err != nil {
			return classify(fmt.Errorf("write itinerary position: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit reorder itineraries: %w", err))
	}
	return nil
}

// ReorderDays rewrites day positions to match the supplied order and keeps
// each day's calendar date coupled to its new position: date equals the
// itinerary start date plus the position in days.
func (s *PostgresStore) ReorderDays(ctx context.Context, itineraryID string, orderedDayIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder days: %w", err)
	}
	defer tx.Rollback()

	var startDate sql.NullTime
	if err := tx.QueryRowContext(ctx, `
		SELECT start_date FROM itineraries WHERE id=$1 FOR UPDATE
	`, itineraryID).Scan(&startDate); err != nil {
		return classify(err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM days WHERE itinerary_id=$1 ORDER BY id FOR UPDATE
	`, itineraryID)
	if err != nil {
		return classify(fmt.Errorf("lock days: %w", err))
	}
	currentIDs, err := collectIDs(rows)
	if err != nil {
		return err
	}

	if err := plan.ValidateCompleteSet(orderedDayIDs, currentIDs); err != nil {
		return err
	}

	for id, position := range plan.Normalize(orderedDayIDs) {
		date := startDate.Time.AddDate(0, 0, position)
		if _, err := tx.ExecContext(ctx, `
			UPDATE days SET position=$2, date=$3 WHERE id=$1
		`, id, position, date); err != nil {
			return classify(fmt.Errorf("write day position: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit reorder days: %w", err))
	}
	return nil
}

// ReorderActivities rewrites activity positions within one day to match the
// supplied order.
func (s *PostgresStore) ReorderActivities(ctx context.Context, dayID string, orderedActivityIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder activities: %w", err)
	}
	defer tx.Rollback()

	if _, err := lockDay(ctx, tx, dayID); err != nil {
		return err
	}

	currentIDs, err := lockDayActivities(ctx, tx, dayID)
	if err != nil {
		return err
	}

	if err := plan.ValidateCompleteSet(orderedActivityIDs, currentIDs); err != nil {
		return err
	}

	for id, position := range plan.Normalize(orderedActivityIDs) {
		if _, err := tx.ExecContext(ctx, `
			UPDATE activities SET position=$2 WHERE id=$1
		`, id, position); err != nil {
			return classify(fmt.Errorf("write activity position: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit reorder activities: %w", err))
	}
	return nil
}

// MoveActivity moves an activity to targetDayID at targetIndex. A negative
// index or one past the end appends. Same-day moves reshuffle the one list;
// cross-day moves close the source gap and open the target slot in the same
// transaction so both days stay dense. Both days are locked in ID order so
// two opposing moves cannot deadlock.
func (s *PostgresStore) MoveActivity(ctx context.Context, activityID, targetDayID string, targetIndex int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move activity: %w", err)
	}
	defer tx.Rollback()

	var sourceDayID string
	if err := tx.QueryRowContext(ctx, `
		SELECT day_id FROM activities WHERE id=$1 FOR UPDATE
	`, activityID).Scan(&sourceDayID); err != nil {
		return classify(err)
	}

	if sourceDayID == targetDayID {
		if err := moveWithinDay(ctx, tx, sourceDayID, activityID, targetIndex); err != nil {
			return err
		}
	} else {
		if err := moveAcrossDays(ctx, tx, sourceDayID, targetDayID, activityID, targetIndex); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit move activity: %w", err))
	}
	return nil
}

func moveWithinDay(ctx context.Context, tx *sql.Tx, dayID, activityID string, targetIndex int) error {
	if _, err := lockDay(ctx, tx, dayID); err != nil {
		return err
	}
	currentIDs, err := lockDayActivities(ctx, tx, dayID)
	if err != nil {
		return err
	}

	reordered := plan.Reinsert(currentIDs, activityID, targetIndex)
	previous := plan.Normalize(currentIDs)
	for id, position := range plan.Normalize(reordered) {
		if previous[id] == position {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE activities SET position=$2 WHERE id=$1
		`, id, position); err != nil {
			return classify(fmt.Errorf("write activity position: %w", err))
		}
	}
	return nil
}

func moveAcrossDays(ctx context.Context, tx *sql.Tx, sourceDayID, targetDayID, activityID string, targetIndex int) error {
	dayIDs := []string{sourceDayID, targetDayID}
	sort.Strings(dayIDs)

	itineraries := make(map[string]string, 2)
	for _, dayID := range dayIDs {
		itineraryID, err := lockDay(ctx, tx, dayID)
		if err != nil {
			return err
		}
		itineraries[dayID] = itineraryID
	}
	if itineraries[sourceDayID] != itineraries[targetDayID] {
		return ErrDayMismatch
	}

	sourceIDs, err := lockDayActivities(ctx, tx, sourceDayID)
	if err != nil {
		return err
	}
	targetIDs, err := lockDayActivities(ctx, tx, targetDayID)
	if err != nil {
		return err
	}

	moveplan, err := plan.MoveDeltas(sourceIDs, targetIDs, activityID, targetIndex)
	if err != nil {
		return err
	}

	for _, write := range moveplan.SourceWrites {
		if _, err := tx.ExecContext(ctx, `
			UPDATE activities SET position=$2 WHERE id=$1
		`, write.ID, write.Position); err != nil {
			return classify(fmt.Errorf("close source gap: %w", err))
		}
	}
	for _, write := range moveplan.TargetWrites {
		if _, err := tx.ExecContext(ctx, `
			UPDATE activities SET position=$2 WHERE id=$1
		`, write.ID, write.Position); err != nil {
			return classify(fmt.Errorf("open target slot: %w", err))
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE activities SET day_id=$2, position=$3 WHERE id=$1
	`, activityID, targetDayID, moveplan.MovedPosition); err != nil {
		return classify(fmt.Errorf("write moved activity: %w", err))
	}
	return nil
}

// DeleteActivity removes the activity and closes the position gap it leaves
// in its day.
func (s *PostgresStore) DeleteActivity(ctx context.Context, activityID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete activity: %w", err)
	}
	defer tx.Rollback()

	var dayID string
	var position int
	if err := tx.QueryRowContext(ctx, `
		SELECT day_id, position FROM activities WHERE id=$1 FOR UPDATE
	`, activityID).Scan(&dayID, &position); err != nil {
		return classify(err)
	}
	if _, err := lockDay(ctx, tx, dayID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id=$1`, activityID); err != nil {
		return classify(fmt.Errorf("delete activity: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE activities SET position=position-1 WHERE day_id=$1 AND position>$2
	`, dayID, position); err != nil {
		return classify(fmt.Errorf("close position gap: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit delete activity: %w", err))
	}
	return nil
}

func lockDay(ctx context.Context, tx *sql.Tx, dayID string) (string, error) {
	var itineraryID string
	if err := tx.QueryRowContext(ctx, `
		SELECT itinerary_id FROM days WHERE id=$1 FOR UPDATE
	`, dayID).Scan(&itineraryID); err != nil {
		return "", classify(err)
	}
	return itineraryID, nil
}

func lockDayActivities(ctx context.Context, tx *sql.Tx, dayID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM activities WHERE day_id=$1 ORDER BY position ASC FOR UPDATE
	`, dayID)
	if err != nil {
		return nil, classify(fmt.Errorf("lock day activities: %w", err))
	}
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate ids: %w", err))
	}
	return ids, nil
}
