package cards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koffiyao/cartes/internal/database"
)

// ErrNotFound is returned when a card id does not exist.
var ErrNotFound = errors.New("card not found")

// updatableColumns is the set of columns UpdateFields accepts. The id,
// import_batch_id and created_at columns are owned by the store itself.
var updatableColumns = map[string]bool{
	ColEnrollmentLocation:     true,
	ColWithdrawalSite:         true,
	ColStorageLocation:        true,
	ColLastName:               true,
	ColFirstNames:             true,
	ColBirthDate:              true,
	ColBirthPlace:             true,
	ColContactPhone:           true,
	ColDeliveryStatus:         true,
	ColWithdrawalContactPhone: true,
	ColDeliveryDate:           true,
}

const cardColumns = `id, enrollment_location, withdrawal_site, storage_location,
	last_name, first_names, birth_date, birth_place, contact_phone,
	delivery_status, withdrawal_contact_phone, delivery_date,
	import_batch_id, created_at`

// Store is the PostgreSQL-backed card registry.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a card store on top of a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Queries runs card operations against a DBTX, which may be the pool itself
// or a transaction obtained from InTx.
type Queries struct {
	db database.DBTX
}

// Query returns Queries bound to the pool (no transaction).
func (s *Store) Query() *Queries {
	return &Queries{db: s.pool}
}

// InTx runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise; fn's error is returned unchanged.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FindExact looks up the card matching the identity key.
// Names compare case-insensitively; NULL birth date and empty birth place
// compare equal to missing incoming values (COALESCE semantics), so two rows
// with the same name and no birth data still resolve to the same person.
// Returns (nil, nil) when no card matches.
func (q *Queries) FindExact(ctx context.Context, key MatchKey) (*Card, error) {
	query := `SELECT ` + cardColumns + `
		FROM cartes
		WHERE lower(last_name) = lower($1)
		  AND lower(first_names) = lower($2)
		  AND COALESCE(birth_date::text, '') = $3
		  AND COALESCE(lower(birth_place), '') = lower($4)
		LIMIT 1`

	row := q.db.QueryRow(ctx, query,
		strings.TrimSpace(key.LastName),
		strings.TrimSpace(key.FirstNames),
		formatDate(key.BirthDate),
		strings.TrimSpace(key.BirthPlace),
	)

	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find exact match: %w", err)
	}
	return card, nil
}

// Insert persists a new card and returns its assigned id.
func (q *Queries) Insert(ctx context.Context, c *Card) (int64, error) {
	query := `INSERT INTO cartes (
			enrollment_location, withdrawal_site, storage_location,
			last_name, first_names, birth_date, birth_place, contact_phone,
			delivery_status, withdrawal_contact_phone, delivery_date,
			import_batch_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id, created_at`

	err := q.db.QueryRow(ctx, query,
		c.EnrollmentLocation, c.WithdrawalSite, c.StorageLocation,
		c.LastName, c.FirstNames, toPgDate(c.BirthDate), c.BirthPlace,
		c.ContactPhone, c.DeliveryStatus, c.WithdrawalContactPhone,
		toPgDate(c.DeliveryDate), toPgUUID(c.ImportBatchID),
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert card: %w", err)
	}
	return c.ID, nil
}

// UpdateFields applies a partial update restricted to the given columns.
// Values are strings in the canonical vocabulary (dates in ISO format, ""
// meaning NULL for date columns). Unknown columns are rejected.
func (q *Queries) UpdateFields(ctx context.Context, id int64, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	setParts := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+1)
	i := 1

	// Deterministic order keeps generated SQL stable for logs and tests.
	for _, col := range orderedColumns() {
		val, ok := fields[col]
		if !ok {
			continue
		}
		if !updatableColumns[col] {
			return fmt.Errorf("column %q is not updatable", col)
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", col, i))
		if col == ColBirthDate || col == ColDeliveryDate {
			args = append(args, parsePgDate(val))
		} else {
			args = append(args, val)
		}
		i++
	}

	if len(setParts) != len(fields) {
		return fmt.Errorf("unknown column in update set")
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE cartes SET %s WHERE id = $%d", strings.Join(setParts, ", "), i)

	tag, err := q.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update card %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns a single card.
func (q *Queries) GetByID(ctx context.Context, id int64) (*Card, error) {
	row := q.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM cartes WHERE id = $1`, id)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get card %d: %w", id, err)
	}
	return card, nil
}

// List returns a page of cards ordered by id, plus the total count.
// search filters on last name prefix when non-empty.
func (q *Queries) List(ctx context.Context, search string, limit, offset int) ([]Card, int64, error) {
	where := ""
	args := []interface{}{}
	if search != "" {
		where = " WHERE lower(last_name) LIKE lower($1) || '%'"
		args = append(args, strings.TrimSpace(search))
	}

	var total int64
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM cartes"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cards: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf("SELECT %s FROM cartes%s ORDER BY id LIMIT $%d OFFSET $%d",
		cardColumns, where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var result []Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan card: %w", err)
		}
		result = append(result, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list cards: %w", err)
	}

	return result, total, nil
}

// Count returns the total number of cards.
func (q *Queries) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM cartes").Scan(&total); err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return total, nil
}

// ForEach streams every card to fn in id order without materializing the
// whole table. Used by the export path.
func (q *Queries) ForEach(ctx context.Context, fn func(*Card) error) error {
	rows, err := q.db.Query(ctx, `SELECT `+cardColumns+` FROM cartes ORDER BY id`)
	if err != nil {
		return fmt.Errorf("scan cartes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return fmt.Errorf("scan card: %w", err)
		}
		if err := fn(card); err != nil {
			return err
		}
	}
	return rows.Err()
}

// orderedColumns returns the canonical column order for deterministic SQL.
func orderedColumns() []string {
	return []string{
		ColEnrollmentLocation, ColWithdrawalSite, ColStorageLocation,
		ColLastName, ColFirstNames, ColBirthDate, ColBirthPlace,
		ColContactPhone, ColDeliveryStatus, ColWithdrawalContactPhone,
		ColDeliveryDate,
	}
}

// scanCard reads one card from a row.
func scanCard(row pgx.Row) (*Card, error) {
	var c Card
	var birthDate, deliveryDate pgtype.Date
	var batchID pgtype.UUID

	err := row.Scan(
		&c.ID, &c.EnrollmentLocation, &c.WithdrawalSite, &c.StorageLocation,
		&c.LastName, &c.FirstNames, &birthDate, &c.BirthPlace, &c.ContactPhone,
		&c.DeliveryStatus, &c.WithdrawalContactPhone, &deliveryDate,
		&batchID, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if birthDate.Valid {
		c.BirthDate = birthDate.Time
	}
	if deliveryDate.Valid {
		c.DeliveryDate = deliveryDate.Time
	}
	if batchID.Valid {
		c.ImportBatchID.Valid = true
		c.ImportBatchID.UUID = batchID.Bytes
	}
	return &c, nil
}

// toPgDate converts a time to pgtype.Date, zero mapping to NULL.
func toPgDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// parsePgDate converts an ISO date string to pgtype.Date, "" mapping to NULL.
func parsePgDate(s string) pgtype.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// toPgUUID converts a nullable uuid to pgtype.UUID.
func toPgUUID(u uuid.NullUUID) pgtype.UUID {
	if !u.Valid {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: u.UUID, Valid: true}
}
