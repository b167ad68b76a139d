package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/kagi/pkg/models"
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

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, u.Email, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, token, user_id, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.Token, sess.UserID, sess.ExpiresAt, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActiveSession(ctx context.Context, token string, now time.Time) (*models.Session, error) {
	var sess models.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, token, user_id, expires_at, created_at, updated_at
		 FROM sessions WHERE token = $1 AND expires_at > $2`, token, now,
	).Scan(&sess.ID, &sess.Token, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Access Keys ---

const accessKeyColumns = `id, user_id, name, key_hash, key_prefix, scopes, last_used_at, expires_at, created_at, updated_at`

func scanAccessKey(row pgx.Row) (*models.AccessKey, error) {
	var k models.AccessKey
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
		&k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) CreateAccessKey(ctx context.Context, key *models.AccessKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_keys (id, user_id, name, key_hash, key_prefix, scopes, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.ExpiresAt, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create access key: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActiveAccessKey(ctx context.Context, hash string, now time.Time) (*models.AccessKey, error) {
	k, err := scanAccessKey(s.pool.QueryRow(ctx,
		`SELECT `+accessKeyColumns+` FROM access_keys
		 WHERE key_hash = $1 AND (expires_at IS NULL OR expires_at > $2)
		 LIMIT 1`, hash, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find access key: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) TouchAccessKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE access_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch access key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAccessKeys(ctx context.Context, userID string) ([]*models.AccessKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accessKeyColumns+` FROM access_keys WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list access keys: %w", err)
	}
	defer rows.Close()

	keys := []*models.AccessKey{}
	for rows.Next() {
		k, err := scanAccessKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) DeleteAccessKey(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM access_keys WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete access key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Categories ---

const categoryColumns = `c.id, c.user_id, c.name, c.description, c.icon_url, c.icon_slug, c.color,
	c.key_type::text, c.env_var_name, c.field_definitions, c.created_at, c.updated_at`

func categoryDest(c *models.Category) []any {
	return []any{&c.ID, &c.UserID, &c.Name, &c.Description, &c.IconURL, &c.IconSlug, &c.Color,
		&c.KeyType, &c.EnvVarName, &c.FieldDefinitions, &c.CreatedAt, &c.UpdatedAt}
}

func (s *PostgresStore) ListCategories(ctx context.Context, userID, search string) ([]*models.Category, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+categoryColumns+`, COUNT(e.id)
		 FROM key_categories c
		 LEFT JOIN key_entries e ON e.category_id = c.id
		 WHERE c.user_id = $1
		   AND ($2::text = '' OR c.name ILIKE '%' || $2 || '%' OR c.description ILIKE '%' || $2 || '%')
		 GROUP BY c.id
		 ORDER BY c.created_at ASC`, userID, search)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []*models.Category{}
	for rows.Next() {
		var c models.Category
		var count int
		if err := rows.Scan(append(categoryDest(&c), &count)...); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.EntryCount = &count
		categories = append(categories, &c)
	}
	return categories, rows.Err()
}

func (s *PostgresStore) GetCategory(ctx context.Context, id uuid.UUID, userID string) (*models.Category, error) {
	var c models.Category
	err := s.pool.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM key_categories c WHERE c.id = $1 AND c.user_id = $2`, id, userID,
	).Scan(categoryDest(&c)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, c *models.Category) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO key_categories (id, user_id, name, description, icon_url, icon_slug, color,
		   key_type, env_var_name, field_definitions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.UserID, c.Name, c.Description, c.IconURL, c.IconSlug, c.Color,
		c.KeyType, c.EnvVarName, jsonbOrNull(c.FieldDefinitions), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, id uuid.UUID, userID string, upd models.CategoryUpdate) (*models.Category, error) {
	var c models.Category
	err := s.pool.QueryRow(ctx,
		`UPDATE key_categories c SET
		   name = COALESCE($3, c.name),
		   description = NULLIF(COALESCE($4, c.description), ''),
		   icon_url = NULLIF(COALESCE($5, c.icon_url), ''),
		   icon_slug = NULLIF(COALESCE($6, c.icon_slug), ''),
		   color = NULLIF(COALESCE($7, c.color), ''),
		   env_var_name = NULLIF(COALESCE($8, c.env_var_name), ''),
		   field_definitions = COALESCE($9, c.field_definitions),
		   updated_at = NOW()
		 WHERE c.id = $1 AND c.user_id = $2
		 RETURNING `+categoryColumns,
		id, userID, upd.Name, upd.Description, upd.IconURL, upd.IconSlug, upd.Color,
		upd.EnvVarName, jsonbOrNull(upd.FieldDefinitions),
	).Scan(categoryDest(&c)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM key_categories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Entries ---

const entryColumns = `e.id, e.category_id, e.project_name, e.description, e.environment::text,
	e.encrypted_value, e.file_name, e.notes, e.created_at, e.updated_at, e.expires_at,
	c.id, c.name, c.key_type::text, c.env_var_name, c.field_definitions, c.icon_slug, c.icon_url, c.color`

func scanEntry(row pgx.Row) (*models.Entry, error) {
	var e models.Entry
	var cs models.CategorySummary
	err := row.Scan(&e.ID, &e.CategoryID, &e.ProjectName, &e.Description, &e.Environment,
		&e.EncryptedValue, &e.FileName, &e.Notes, &e.CreatedAt, &e.UpdatedAt, &e.ExpiresAt,
		&cs.ID, &cs.Name, &cs.KeyType, &cs.EnvVarName, &cs.FieldDefinitions, &cs.IconSlug, &cs.IconURL, &cs.Color)
	if err != nil {
		return nil, err
	}
	e.Category = &cs
	return &e, nil
}

func (s *PostgresStore) ListEntries(ctx context.Context, filter models.EntryFilter) ([]*models.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM key_entries e
		 JOIN key_categories c ON c.id = e.category_id
		 WHERE c.user_id = $1
		   AND ($2::uuid IS NULL OR e.category_id = $2)
		   AND ($3::text = '' OR e.project_name ILIKE '%' || $3 || '%' OR e.notes ILIKE '%' || $3 || '%')
		 ORDER BY e.created_at DESC`, filter.UserID, filter.CategoryID, filter.Search)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetEntry(ctx context.Context, id uuid.UUID, userID string) (*models.Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+`
		 FROM key_entries e
		 JOIN key_categories c ON c.id = e.category_id
		 WHERE e.id = $1 AND c.user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) CreateEntry(ctx context.Context, e *models.Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO key_entries (id, category_id, project_name, description, environment,
		   encrypted_value, file_name, notes, created_at, updated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.CategoryID, e.ProjectName, e.Description, e.Environment,
		e.EncryptedValue, e.FileName, e.Notes, e.CreatedAt, e.UpdatedAt, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEntry(ctx context.Context, id uuid.UUID, userID string, upd models.EntryUpdate) (*models.Entry, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE key_entries e SET
		   project_name = COALESCE($3, e.project_name),
		   description = NULLIF(COALESCE($4, e.description), ''),
		   environment = COALESCE($5::environment, e.environment),
		   encrypted_value = COALESCE($6, e.encrypted_value),
		   file_name = NULLIF(COALESCE($7, e.file_name), ''),
		   notes = NULLIF(COALESCE($8, e.notes), ''),
		   expires_at = CASE WHEN $10 THEN NULL ELSE COALESCE($9, e.expires_at) END,
		   updated_at = NOW()
		 FROM key_categories c
		 WHERE e.id = $1 AND c.id = e.category_id AND c.user_id = $2`,
		id, userID, upd.ProjectName, upd.Description, upd.Environment, upd.EncryptedValue,
		upd.FileName, upd.Notes, upd.ExpiresAt, upd.ClearExpiry)
	if err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetEntry(ctx, id, userID)
}

func (s *PostgresStore) DeleteEntry(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM key_entries e USING key_categories c
		 WHERE e.id = $1 AND c.id = e.category_id AND c.user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- 2FA ---

const twoFactorColumns = `id, user_id, service, label, encrypted_tokens, total_count, used_count, created_at, updated_at`

func scanTwoFactor(row pgx.Row) (*models.TwoFactorSet, error) {
	var t models.TwoFactorSet
	err := row.Scan(&t.ID, &t.UserID, &t.Service, &t.Label, &t.EncryptedTokens,
		&t.TotalCount, &t.UsedCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) ListTwoFactor(ctx context.Context, userID, search string) ([]*models.TwoFactorSet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+twoFactorColumns+` FROM two_factor_tokens
		 WHERE user_id = $1
		   AND ($2::text = '' OR service ILIKE '%' || $2 || '%' OR label ILIKE '%' || $2 || '%')
		 ORDER BY created_at ASC`, userID, search)
	if err != nil {
		return nil, fmt.Errorf("list 2fa sets: %w", err)
	}
	defer rows.Close()

	sets := []*models.TwoFactorSet{}
	for rows.Next() {
		t, err := scanTwoFactor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan 2fa set: %w", err)
		}
		sets = append(sets, t)
	}
	return sets, rows.Err()
}

func (s *PostgresStore) GetTwoFactor(ctx context.Context, id uuid.UUID, userID string) (*models.TwoFactorSet, error) {
	t, err := scanTwoFactor(s.pool.QueryRow(ctx,
		`SELECT `+twoFactorColumns+` FROM two_factor_tokens WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get 2fa set: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) CreateTwoFactor(ctx context.Context, t *models.TwoFactorSet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO two_factor_tokens (id, user_id, service, label, encrypted_tokens, total_count, used_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.UserID, t.Service, t.Label, t.EncryptedTokens, t.TotalCount, t.UsedCount, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create 2fa set: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTwoFactor(ctx context.Context, id uuid.UUID, userID string, upd models.TwoFactorUpdate) (*models.TwoFactorSet, error) {
	t, err := scanTwoFactor(s.pool.QueryRow(ctx,
		`UPDATE two_factor_tokens SET
		   service = COALESCE($3, service),
		   label = NULLIF(COALESCE($4, label), ''),
		   encrypted_tokens = COALESCE($5, encrypted_tokens),
		   total_count = COALESCE($6, total_count),
		   used_count = COALESCE($7, used_count),
		   updated_at = NOW()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+twoFactorColumns,
		id, userID, upd.Service, upd.Label, upd.EncryptedTokens, upd.TotalCount, upd.UsedCount))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update 2fa set: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) DeleteTwoFactor(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM two_factor_tokens WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete 2fa set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Env projects ---

const envProjectColumns = `p.id, p.user_id, p.name, p.description, p.created_at, p.updated_at`

func envProjectDest(p *models.EnvProject) []any {
	return []any{&p.ID, &p.UserID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt}
}

func (s *PostgresStore) ListEnvProjects(ctx context.Context, userID, search string) ([]*models.EnvProject, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+envProjectColumns+`, COUNT(f.id)
		 FROM env_projects p
		 LEFT JOIN env_files f ON f.project_id = p.id
		 WHERE p.user_id = $1
		   AND ($2::text = '' OR p.name ILIKE '%' || $2 || '%' OR p.description ILIKE '%' || $2 || '%')
		 GROUP BY p.id
		 ORDER BY p.created_at ASC`, userID, search)
	if err != nil {
		return nil, fmt.Errorf("list env projects: %w", err)
	}
	defer rows.Close()

	projects := []*models.EnvProject{}
	for rows.Next() {
		var p models.EnvProject
		var count int
		if err := rows.Scan(append(envProjectDest(&p), &count)...); err != nil {
			return nil, fmt.Errorf("scan env project: %w", err)
		}
		p.FileCount = &count
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) GetEnvProject(ctx context.Context, id uuid.UUID, userID string) (*models.EnvProject, error) {
	var p models.EnvProject
	err := s.pool.QueryRow(ctx,
		`SELECT `+envProjectColumns+` FROM env_projects p WHERE p.id = $1 AND p.user_id = $2`, id, userID,
	).Scan(envProjectDest(&p)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get env project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) CreateEnvProject(ctx context.Context, p *models.EnvProject) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO env_projects (id, user_id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.UserID, p.Name, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create env project: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEnvProject(ctx context.Context, id uuid.UUID, userID string, upd models.EnvProjectUpdate) (*models.EnvProject, error) {
	var p models.EnvProject
	err := s.pool.QueryRow(ctx,
		`UPDATE env_projects p SET
		   name = COALESCE($3, p.name),
		   description = NULLIF(COALESCE($4, p.description), ''),
		   updated_at = NOW()
		 WHERE p.id = $1 AND p.user_id = $2
		 RETURNING `+envProjectColumns,
		id, userID, upd.Name, upd.Description,
	).Scan(envProjectDest(&p)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update env project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) DeleteEnvProject(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM env_projects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete env project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Env files ---

const envFileColumns = `id, project_id, user_id, file_type::text, encrypted_content, created_at, updated_at`

func scanEnvFile(row pgx.Row) (*models.EnvFile, error) {
	var f models.EnvFile
	err := row.Scan(&f.ID, &f.ProjectID, &f.UserID, &f.FileType, &f.EncryptedContent, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) ListEnvFiles(ctx context.Context, projectID uuid.UUID, userID string) ([]*models.EnvFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+envFileColumns+` FROM env_files
		 WHERE project_id = $1 AND user_id = $2
		 ORDER BY file_type`, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("list env files: %w", err)
	}
	defer rows.Close()

	files := []*models.EnvFile{}
	for rows.Next() {
		f, err := scanEnvFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan env file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// SaveEnvFile only writes into a project owned by f.UserID.
func (s *PostgresStore) SaveEnvFile(ctx context.Context, f *models.EnvFile) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO env_files (id, project_id, user_id, file_type, encrypted_content, created_at, updated_at)
		 SELECT $1, p.id, p.user_id, $4::text::env_file_type, $5, $6, $7
		 FROM env_projects p WHERE p.id = $2 AND p.user_id = $3
		 ON CONFLICT (project_id, file_type) DO UPDATE SET
		   encrypted_content = EXCLUDED.encrypted_content,
		   updated_at = EXCLUDED.updated_at
		 WHERE env_files.user_id = EXCLUDED.user_id
		 RETURNING id, created_at, updated_at`,
		f.ID, f.ProjectID, f.UserID, f.FileType, f.EncryptedContent, f.CreatedAt, f.UpdatedAt,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("save env file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEnvFile(ctx context.Context, projectID, id uuid.UUID, userID string) (*models.EnvFile, error) {
	f, err := scanEnvFile(s.pool.QueryRow(ctx,
		`SELECT `+envFileColumns+` FROM env_files
		 WHERE id = $1 AND project_id = $2 AND user_id = $3`, id, projectID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get env file: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) DeleteEnvFile(ctx context.Context, projectID, id uuid.UUID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM env_files WHERE id = $1 AND project_id = $2 AND user_id = $3`, id, projectID, userID)
	if err != nil {
		return fmt.Errorf("delete env file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Account ---

func (s *PostgresStore) WipeVaultData(ctx context.Context, userID string) (*models.WipeResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin wipe: %w", err)
	}
	defer tx.Rollback(ctx)

	var res models.WipeResult
	tag, err := tx.Exec(ctx,
		`DELETE FROM key_entries e USING key_categories c
		 WHERE c.id = e.category_id AND c.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("wipe entries: %w", err)
	}
	res.Entries = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM key_categories WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("wipe categories: %w", err)
	}
	res.Categories = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM two_factor_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("wipe 2fa sets: %w", err)
	}
	res.TwoFactorSets = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit wipe: %w", err)
	}
	return &res, nil
}

// --- Stats ---

const (
	expiringWindow = 30 * 24 * time.Hour
	recentLimit    = 5
	expiringLimit  = 10
)

func (s *PostgresStore) GetStats(ctx context.Context, userID string, now time.Time) (*models.Stats, error) {
	st := &models.Stats{
		KeyTypes:     []models.KeyTypeCount{},
		Environments: []models.EnvironmentCount{},
	}

	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM key_categories WHERE user_id = $1),
		   (SELECT COUNT(*) FROM key_entries e JOIN key_categories c ON c.id = e.category_id WHERE c.user_id = $1),
		   (SELECT COUNT(*) FROM two_factor_tokens WHERE user_id = $1)`, userID,
	).Scan(&st.TotalCategories, &st.TotalEntries, &st.TotalTwoFactor)
	if err != nil {
		return nil, fmt.Errorf("count stats: %w", err)
	}

	err = s.breakdown(ctx, func(key string, n int) {
		st.KeyTypes = append(st.KeyTypes, models.KeyTypeCount{Type: key, Count: n})
	}, `SELECT key_type::text, COUNT(*) FROM key_categories
	    WHERE user_id = $1 GROUP BY key_type ORDER BY key_type`, userID)
	if err != nil {
		return nil, fmt.Errorf("key type breakdown: %w", err)
	}

	err = s.breakdown(ctx, func(key string, n int) {
		st.Environments = append(st.Environments, models.EnvironmentCount{Environment: key, Count: n})
	}, `SELECT e.environment::text, COUNT(e.id)
	    FROM key_entries e JOIN key_categories c ON c.id = e.category_id
	    WHERE c.user_id = $1 GROUP BY e.environment ORDER BY e.environment`, userID)
	if err != nil {
		return nil, fmt.Errorf("environment breakdown: %w", err)
	}

	st.RecentEntries, err = s.entriesWhere(ctx,
		`c.user_id = $1 ORDER BY e.created_at DESC LIMIT $2`, userID, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent entries: %w", err)
	}
	st.ExpiringEntries, err = s.entriesWhere(ctx,
		`c.user_id = $1 AND e.expires_at > $2 AND e.expires_at < $3
		 ORDER BY e.expires_at ASC LIMIT $4`, userID, now, now.Add(expiringWindow), expiringLimit)
	if err != nil {
		return nil, fmt.Errorf("expiring entries: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) breakdown(ctx context.Context, add func(key string, n int), query string, args ...any) error {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		add(key, n)
	}
	return rows.Err()
}

func (s *PostgresStore) entriesWhere(ctx context.Context, where string, args ...any) ([]*models.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM key_entries e
		 JOIN key_categories c ON c.id = e.category_id
		 WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// jsonbOrNull keeps a nil slice as SQL NULL rather than the JSON literal null.
func jsonbOrNull(v []string) any {
	if v == nil {
		return nil
	}
	return v
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
