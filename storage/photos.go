package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"kw_crawler/models"
)

// Save-time invariants on a photo's parent scope:
//   - at most one sibling has main = true;
//   - non-null orders form a dense 1..N sequence; a colliding sibling is
//     shifted forward, never the photo being saved;
//   - photos without an order are appended after the current maximum.
//
// Planning is pure; SavePhoto applies the plan inside one transaction.

type photoState struct {
	ID        uuid.UUID
	Order     *int
	Main      bool
	CreatedAt int64
}

type orderUpdate struct {
	ID    uuid.UUID
	Order int
}

// planMainDemotion returns the siblings whose main flag must be cleared.
func planMainDemotion(siblings []photoState) []uuid.UUID {
	var demote []uuid.UUID
	for _, sib := range siblings {
		if sib.Main {
			demote = append(demote, sib.ID)
		}
	}
	return demote
}

// planOrderShifts resolves a collision on target by moving the conflicting
// sibling forward by one, cascading only while the next slot is taken.
func planOrderShifts(siblings []photoState, target int) []orderUpdate {
	ordered := make([]photoState, 0, len(siblings))
	for _, sib := range siblings {
		if sib.Order != nil {
			ordered = append(ordered, sib)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return *ordered[i].Order < *ordered[j].Order })

	var updates []orderUpdate
	for _, sib := range ordered {
		if *sib.Order == target {
			target++
			updates = append(updates, orderUpdate{ID: sib.ID, Order: target})
		}
	}
	return updates
}

// planNullOrders appends order-less siblings after max, preserving their
// creation order.
func planNullOrders(siblings []photoState, max int) []orderUpdate {
	nulls := make([]photoState, 0)
	for _, sib := range siblings {
		if sib.Order == nil {
			nulls = append(nulls, sib)
		}
	}
	sort.Slice(nulls, func(i, j int) bool { return nulls[i].CreatedAt < nulls[j].CreatedAt })

	updates := make([]orderUpdate, 0, len(nulls))
	for _, sib := range nulls {
		max++
		updates = append(updates, orderUpdate{ID: sib.ID, Order: max})
	}
	return updates
}

func maxOrder(siblings []photoState, extra ...int) int {
	max := 0
	for _, sib := range siblings {
		if sib.Order != nil && *sib.Order > max {
			max = *sib.Order
		}
	}
	for _, n := range extra {
		if n > max {
			max = n
		}
	}
	return max
}

// SavePhoto upserts the photo and enforces the gallery invariants within
// one transaction. The saved photo always keeps the order it asked for;
// siblings move around it.
func (s *PostgresStore) SavePhoto(ctx context.Context, p *models.Photo) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	siblings, err := siblingStates(ctx, tx, p.OwnerType, p.OwnerID, p.ID)
	if err != nil {
		return fmt.Errorf("load siblings: %w", err)
	}

	if p.Main {
		if demote := planMainDemotion(siblings); len(demote) > 0 {
			if _, err := tx.Exec(ctx,
				`UPDATE photos SET main = FALSE, updated_at = NOW() WHERE id = ANY($1)`,
				demote,
			); err != nil {
				return fmt.Errorf("demote siblings: %w", err)
			}
		}
	}

	var shifts []orderUpdate
	if p.Order == nil {
		next := maxOrder(siblings) + 1
		p.Order = &next
	} else {
		shifts = planOrderShifts(siblings, *p.Order)
	}

	// Apply shifts highest slot first so each sibling moves into free space.
	for i := len(shifts) - 1; i >= 0; i-- {
		if _, err := tx.Exec(ctx,
			`UPDATE photos SET sort_order = $2, updated_at = NOW() WHERE id = $1`,
			shifts[i].ID, shifts[i].Order,
		); err != nil {
			return fmt.Errorf("shift sibling: %w", err)
		}
	}

	taken := maxOrder(siblings, *p.Order)
	for _, u := range shifts {
		if u.Order > taken {
			taken = u.Order
		}
	}
	for _, u := range planNullOrders(siblings, taken) {
		if _, err := tx.Exec(ctx,
			`UPDATE photos SET sort_order = $2, updated_at = NOW() WHERE id = $1`,
			u.ID, u.Order,
		); err != nil {
			return fmt.Errorf("assign order: %w", err)
		}
	}

	query := `
		INSERT INTO photos (
			id, owner_type, owner_id, image_url, sort_order, main,
			s3_key, status, attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			image_url = EXCLUDED.image_url,
			sort_order = EXCLUDED.sort_order,
			main = EXCLUDED.main,
			s3_key = COALESCE(EXCLUDED.s3_key, photos.s3_key),
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			updated_at = NOW()`

	if _, err := tx.Exec(ctx, query,
		p.ID, p.OwnerType, p.OwnerID, p.ImageURL, p.Order, p.Main,
		p.S3Key, p.Status, p.Attempts,
	); err != nil {
		return fmt.Errorf("save photo: %w", err)
	}

	return tx.Commit(ctx)
}

func siblingStates(ctx context.Context, tx pgx.Tx, ownerType string, ownerID, selfID uuid.UUID) ([]photoState, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, sort_order, main, EXTRACT(EPOCH FROM created_at)::bigint
		FROM photos
		WHERE owner_type = $1 AND owner_id = $2 AND id <> $3
		ORDER BY created_at, id
		FOR UPDATE`,
		ownerType, ownerID, selfID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var siblings []photoState
	for rows.Next() {
		var sib photoState
		if err := rows.Scan(&sib.ID, &sib.Order, &sib.Main, &sib.CreatedAt); err != nil {
			return nil, err
		}
		siblings = append(siblings, sib)
	}
	return siblings, rows.Err()
}
