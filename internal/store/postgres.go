package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/communitycar/errorsink/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const errorRecordColumns = `id, external_id, message, stack_trace, inner_detail, source, signature_hash,
	severity, category, user_id, request_path, additional_data,
	is_resolved, resolved_at, resolved_by, resolution,
	occurrence_count, last_occurrence, created_at, created_by, updated_at, updated_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanErrorRecord(row rowScanner) (*models.ErrorRecord, error) {
	var r models.ErrorRecord
	err := row.Scan(&r.ID, &r.ExternalID, &r.Message, &r.StackTrace, &r.InnerDetail, &r.Source, &r.SignatureHash,
		&r.Severity, &r.Category, &r.UserID, &r.RequestPath, &r.AdditionalData,
		&r.IsResolved, &r.ResolvedAt, &r.ResolvedBy, &r.Resolution,
		&r.OccurrenceCount, &r.LastOccurrence, &r.CreatedAt, &r.CreatedBy, &r.UpdatedAt, &r.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// --- Error Records ---

func (s *PostgresStore) FindUnresolvedBySignature(ctx context.Context, signatureHash string) (*models.ErrorRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+errorRecordColumns+` FROM error_records
		 WHERE signature_hash = $1 AND NOT is_resolved`, signatureHash)
	rec, err := scanErrorRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find unresolved by signature: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, externalID string) (*models.ErrorRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+errorRecordColumns+` FROM error_records WHERE external_id = $1`, externalID)
	rec, err := scanErrorRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get error record: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, error_record_id, user_id, session_id, ip_address, user_agent, request_path, additional_context, occurred_at
		 FROM error_occurrences WHERE error_record_id = $1 ORDER BY occurred_at`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o models.Occurrence
		if err := rows.Scan(&o.ID, &o.ErrorRecordID, &o.UserID, &o.SessionID, &o.IPAddress,
			&o.UserAgent, &o.RequestPath, &o.AdditionalContext, &o.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		rec.Occurrences = append(rec.Occurrences, o)
	}
	return rec, rows.Err()
}

func (s *PostgresStore) ListErrors(ctx context.Context, filter ErrorFilter) ([]*models.ErrorRecord, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, filter.Category)
		argIdx++
	}
	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, filter.Severity)
		argIdx++
	}
	if filter.Resolved != nil {
		conditions = append(conditions, fmt.Sprintf("is_resolved = $%d", argIdx))
		args = append(args, *filter.Resolved)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM error_records WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count error records: %w", err)
	}

	// Normalize pagination
	limit := filter.PageSize
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT `+errorRecordColumns+` FROM error_records
		 WHERE %s ORDER BY last_occurrence DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list error records: %w", err)
	}
	defer rows.Close()

	var records []*models.ErrorRecord
	for rows.Next() {
		rec, err := scanErrorRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan error record: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func (s *PostgresStore) RecordOccurrence(ctx context.Context, rec *models.ErrorRecord, occ *models.Occurrence) (*models.ErrorRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin record occurrence: %w", err)
	}
	defer tx.Rollback(ctx)

	// The partial unique index on (signature_hash) WHERE NOT is_resolved
	// makes this a create-or-fold-in: two concurrent reports of the same
	// open signature cannot both insert, and the counter bump is a single
	// UPDATE so no increment is lost. A resolved record is outside the
	// index, so the same signature inserts a fresh record after resolution.
	row := tx.QueryRow(ctx,
		`INSERT INTO error_records (`+errorRecordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		 ON CONFLICT (signature_hash) WHERE NOT is_resolved DO UPDATE SET
		   occurrence_count = error_records.occurrence_count + 1,
		   last_occurrence = EXCLUDED.last_occurrence,
		   updated_at = EXCLUDED.updated_at,
		   updated_by = EXCLUDED.updated_by
		 RETURNING `+errorRecordColumns,
		rec.ID, rec.ExternalID, rec.Message, rec.StackTrace, rec.InnerDetail, rec.Source, rec.SignatureHash,
		rec.Severity, rec.Category, rec.UserID, rec.RequestPath, rec.AdditionalData,
		rec.IsResolved, rec.ResolvedAt, rec.ResolvedBy, rec.Resolution,
		rec.OccurrenceCount, rec.LastOccurrence, rec.CreatedAt, rec.CreatedBy, rec.UpdatedAt, rec.UpdatedBy)

	result, err := scanErrorRecord(row)
	if err != nil {
		return nil, fmt.Errorf("upsert error record: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO error_occurrences (id, error_record_id, user_id, session_id, ip_address, user_agent, request_path, additional_context, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		occ.ID, result.ID, occ.UserID, occ.SessionID, occ.IPAddress,
		occ.UserAgent, occ.RequestPath, occ.AdditionalContext, occ.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("insert occurrence: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit record occurrence: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) ResolveError(ctx context.Context, externalID, resolvedBy string, resolution *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE error_records SET
		   is_resolved = TRUE, resolved_at = NOW(), resolved_by = $2, resolution = $3,
		   updated_at = NOW(), updated_by = $2
		 WHERE external_id = $1`,
		externalID, resolvedBy, resolution)
	if err != nil {
		return fmt.Errorf("resolve error record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteError(ctx context.Context, externalID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM error_records WHERE external_id = $1`, externalID)
	if err != nil {
		return fmt.Errorf("delete error record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListCreatedBetween(ctx context.Context, start, end time.Time, category string) ([]*models.ErrorRecord, error) {
	query := `SELECT ` + errorRecordColumns + ` FROM error_records WHERE created_at >= $1 AND created_at < $2`
	args := []any{start, end}
	if category != "" {
		query += ` AND category = $3`
		args = append(args, category)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records by created_at: %w", err)
	}
	defer rows.Close()

	var records []*models.ErrorRecord
	for rows.Next() {
		rec, err := scanErrorRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) ListCritical(ctx context.Context, limit int) ([]*models.ErrorRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+errorRecordColumns+` FROM error_records
		 WHERE severity = $1 ORDER BY last_occurrence DESC LIMIT $2`,
		models.SeverityCritical, limit)
	if err != nil {
		return nil, fmt.Errorf("list critical records: %w", err)
	}
	defer rows.Close()

	var records []*models.ErrorRecord
	for rows.Next() {
		rec, err := scanErrorRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) ListExpiredResolved(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM error_records WHERE created_at < $1 AND is_resolved`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired records: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM error_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete record by id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
