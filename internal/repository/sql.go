package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/models"
)

const contactColumns = `id, phone_number, email, linked_id, link_precedence, created_at, updated_at`

const (
	sqlInsertContact = `
		INSERT INTO contacts (phone_number, email, linked_id, link_precedence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	sqlUpdateLink = `
		UPDATE contacts
		SET    link_precedence = $1, linked_id = $2, updated_at = $3
		WHERE  id = $4`

	sqlCountContacts = `SELECT COUNT(*) FROM contacts`
)

// sqlContactRepo is the database/sql implementation of ContactRepository.
type sqlContactRepo struct {
	q       database.Querier
	dialect database.Dialect
}

// NewContactRepository returns a ContactRepository running its statements on q,
// which may be a *database.DB or a *database.Tx.
func NewContactRepository(q database.Querier, dialect database.Dialect) ContactRepository {
	return &sqlContactRepo{q: q, dialect: dialect}
}

func (r *sqlContactRepo) FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]models.Contact, error) {
	var (
		conds []string
		args  []any
	)
	if email != nil {
		args = append(args, *email)
		conds = append(conds, "email = $"+strconv.Itoa(len(args)))
	}
	if phoneNumber != nil {
		args = append(args, *phoneNumber)
		conds = append(conds, "phone_number = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return nil, nil
	}
	return r.queryContacts(ctx, r.selectWhere(strings.Join(conds, " OR ")), args...)
}

func (r *sqlContactRepo) FindByLinkedIDIn(ctx context.Context, ids []int64) ([]models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cond, args := inClause("linked_id", ids)
	return r.queryContacts(ctx, r.selectWhere(cond), args...)
}

func (r *sqlContactRepo) FindByIDIn(ctx context.Context, ids []int64) ([]models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cond, args := inClause("id", ids)
	return r.queryContacts(ctx, r.selectWhere(cond), args...)
}

func (r *sqlContactRepo) Insert(ctx context.Context, c models.Contact) (models.Contact, error) {
	err := r.q.QueryRow(ctx, sqlInsertContact,
		nullString(c.PhoneNumber), nullString(c.Email), nullInt64(c.LinkedID),
		string(c.LinkPrecedence), c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return models.Contact{}, fmt.Errorf("repository: insert contact: %w", err)
	}
	return c, nil
}

func (r *sqlContactRepo) UpdateMany(ctx context.Context, contacts []models.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	stmt, err := r.q.Prepare(ctx, sqlUpdateLink)
	if err != nil {
		return fmt.Errorf("repository: prepare update: %w", err)
	}
	defer stmt.Close()

	for _, c := range contacts {
		res, err := stmt.Exec(ctx, string(c.LinkPrecedence), nullInt64(c.LinkedID), c.UpdatedAt, c.ID)
		if err != nil {
			return fmt.Errorf("repository: update contact %d: %w", c.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("repository: update contact %d: %w", c.ID, err)
		}
		if n == 0 {
			return fmt.Errorf("repository: update contact %d: %w", c.ID, database.ErrNotFound)
		}
	}
	return nil
}

func (r *sqlContactRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sqlCountContacts).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: count contacts: %w", err)
	}
	return n, nil
}

// selectWhere builds a component read. On engines with row locks the rows are
// locked in ascending id order so overlapping requests cannot deadlock on
// lock order.
func (r *sqlContactRepo) selectWhere(cond string) string {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE ` + cond + ` ORDER BY id`
	if r.dialect.RowLocking {
		query += ` FOR UPDATE`
	}
	return query
}

func (r *sqlContactRepo) queryContacts(ctx context.Context, query string, args ...any) ([]models.Contact, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: read contacts: %w", err)
	}
	return contacts, nil
}

// scanContact maps one row in contactColumns order.
func scanContact(rows *sql.Rows) (models.Contact, error) {
	var (
		c          models.Contact
		phone      sql.NullString
		email      sql.NullString
		linkedID   sql.NullInt64
		precedence string
	)
	if err := rows.Scan(&c.ID, &phone, &email, &linkedID, &precedence, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.Contact{}, fmt.Errorf("repository: scan contact: %w", err)
	}
	if phone.Valid {
		c.PhoneNumber = &phone.String
	}
	if email.Valid {
		c.Email = &email.String
	}
	if linkedID.Valid {
		c.LinkedID = &linkedID.Int64
	}
	c.LinkPrecedence = models.LinkPrecedence(precedence)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func inClause(column string, ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	return column + " IN (" + strings.Join(placeholders, ", ") + ")", args
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// SQLTransactor runs units of work in database transactions.
type SQLTransactor struct {
	db *database.DB
}

// NewSQLTransactor returns a Transactor backed by db.
func NewSQLTransactor(db *database.DB) *SQLTransactor {
	return &SQLTransactor{db: db}
}

// WithinTx implements Transactor.
func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ContactRepository) error) error {
	return t.db.ExecTx(ctx, func(tx *database.Tx) error {
		return fn(NewContactRepository(tx, t.db.Dialect()))
	})
}

var _ Transactor = (*SQLTransactor)(nil)
