package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/sheet"
)

const defaultPageSize = 50

// bucketFormats maps a bucket to its to_char pattern. Labels sort
// lexicographically in calendar order.
var bucketFormats = map[record.Bucket]string{
	record.BucketDaily:   "YYYY-MM-DD",
	record.BucketWeekly:  `IYYY-"W"IW`,
	record.BucketMonthly: "YYYY-MM",
}

// PostgresStore implements UploadStore and UserStore using PostgreSQL.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgresStore creates a store over pool.
// queryTimeout sets the per-query context deadline; zero means no timeout.
func NewPostgresStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, queryTimeout: queryTimeout}
}

// withTimeout derives a child context with the configured query timeout.
// If queryTimeout is zero, the parent context is returned unchanged.
func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

const uploadColumns = `id, owner_id, file_name, file_path, file_size, content_type,
	headers, data_rows, row_count, status, upload_date, created_at, updated_at`

func (s *PostgresStore) CreateUpload(ctx context.Context, u record.NewUpload) (*record.Upload, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	headers := u.Grid.Headers
	if headers == nil {
		headers = []string{}
	}
	rows := u.Grid.Rows
	if rows == nil {
		rows = []sheet.Row{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal rows: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO uploads (owner_id, file_name, file_path, file_size, content_type,
			headers, data_rows, row_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+uploadColumns,
		u.OwnerID, u.FileName, u.FilePath, u.FileSize, u.ContentType,
		json.RawMessage(headersJSON), json.RawMessage(rowsJSON), len(rows), string(u.Status),
	)
	rec, err := scanUpload(row)
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) GetUpload(ctx context.Context, id uuid.UUID) (*record.Upload, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id)
	rec, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return rec, nil
}

const summarySelect = `
	SELECT u.id, u.file_name, u.file_size, u.row_count, u.status, u.upload_date,
		o.id, o.username, o.email
	FROM uploads u
	JOIN users o ON o.id = u.owner_id`

func (s *PostgresStore) ListUploads(ctx context.Context, filter ListFilter, cursor string, limit int) (*Page, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = defaultPageSize
	}

	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("u.status = $%d", len(args)))
	}
	if filter.OwnerID != uuid.Nil {
		args = append(args, filter.OwnerID)
		where = append(where, fmt.Sprintf("u.owner_id = $%d", len(args)))
	}
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
		}
		ts, id, err := c.position()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
		}
		args = append(args, ts, id)
		where = append(where, fmt.Sprintf("(u.upload_date, u.id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := summarySelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// One extra row tells whether another page exists.
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY u.upload_date DESC, u.id DESC LIMIT $%d", len(args))

	items, err := s.querySummaries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	page := &Page{Items: items}
	if len(items) > limit {
		items = items[:limit]
		page.Items = items
		last := items[len(items)-1]
		next := Cursor{UploadDate: last.UploadDate.Format(time.RFC3339Nano), ID: last.ID.String()}
		encoded, err := next.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode next cursor: %w", err)
		}
		page.NextCursor = encoded
		page.HasMore = true
	}
	return page, nil
}

func (s *PostgresStore) ListFailedUploads(ctx context.Context) ([]record.Summary, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	items, err := s.querySummaries(ctx,
		summarySelect+` WHERE u.status = $1 ORDER BY u.upload_date DESC, u.id DESC`,
		string(record.StatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("list failed uploads: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) querySummaries(ctx context.Context, query string, args ...any) ([]record.Summary, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []record.Summary{}
	for rows.Next() {
		var (
			sm     record.Summary
			status string
		)
		if err := rows.Scan(&sm.ID, &sm.FileName, &sm.FileSize, &sm.RowCount, &status, &sm.UploadDate,
			&sm.Owner.ID, &sm.Owner.Username, &sm.Owner.Email); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sm.Status = record.Status(status)
		items = append(items, sm)
	}
	return items, rows.Err()
}

func (s *PostgresStore) SetUploadStatus(ctx context.Context, id uuid.UUID, status record.Status) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE uploads SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("set upload status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteUpload(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UploadTotals(ctx context.Context) (record.Totals, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var t record.Totals
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(row_count), 0), MAX(upload_date)
		FROM uploads
	`).Scan(&t.Files, &t.Rows, &t.LastUpload)
	if err != nil {
		return record.Totals{}, fmt.Errorf("upload totals: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UploadsByBucket(ctx context.Context, bucket record.Bucket) ([]record.BucketCount, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	format, ok := bucketFormats[bucket]
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT to_char(upload_date AT TIME ZONE 'UTC', $1) AS label, COUNT(*)
		FROM uploads
		GROUP BY label
		ORDER BY label ASC
	`, format)
	if err != nil {
		return nil, fmt.Errorf("uploads by bucket: %w", err)
	}
	defer rows.Close()

	out := []record.BucketCount{}
	for rows.Next() {
		var bc record.BucketCount
		if err := rows.Scan(&bc.Label, &bc.Uploads); err != nil {
			return nil, fmt.Errorf("uploads by bucket scan: %w", err)
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

func scanUpload(row pgx.Row) (*record.Upload, error) {
	var (
		u           record.Upload
		status      string
		headersJSON []byte
		rowsJSON    []byte
	)
	if err := row.Scan(&u.ID, &u.OwnerID, &u.FileName, &u.FilePath, &u.FileSize, &u.ContentType,
		&headersJSON, &rowsJSON, &u.RowCount, &status, &u.UploadDate, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Status = record.Status(status)
	if err := json.Unmarshal(headersJSON, &u.Headers); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	if err := json.Unmarshal(rowsJSON, &u.Rows); err != nil {
		return nil, fmt.Errorf("unmarshal rows: %w", err)
	}
	return &u, nil
}

// --- users ---

const userColumns = `id, username, email, password_hash, role, is_active, created_at, updated_at`

func (s *PostgresStore) CreateUser(ctx context.Context, u record.NewUser) (*record.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	role := u.Role
	if role == "" {
		role = record.RoleUser
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		u.Username, u.Email, u.PasswordHash, string(role),
	)
	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*record.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*record.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]record.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []record.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users scan: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) ToggleUserActive(ctx context.Context, id uuid.UUID) (*record.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET is_active = NOT is_active, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("toggle user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func scanUser(row pgx.Row) (*record.User, error) {
	var (
		u    record.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = record.Role(role)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
