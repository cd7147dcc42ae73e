package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cohortlabs/cohort-stack/common/database"
	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool     *pgxpool.Pool
	timeouts database.Timeouts
}

// Migrate applies every pending migration found under dir.
func Migrate(dir, connString string) error {
	m, err := migrate.New("file://"+dir, connString)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// NewPostgresRepository connects a pool and verifies it.
func NewPostgresRepository(ctx context.Context, connString string, timeouts database.Timeouts) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool, timeouts: timeouts.WithDefaults()}, nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) EditMembers(ctx context.Context, mutations []models.MembershipMutation, reqCtx value.Mapping, actingUserID string) error {
	ctx, cancel := r.timeouts.WriteContext(ctx)
	defer cancel()

	source := requestSource(reqCtx)
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, m := range mutations {
			tag, err := tx.Exec(ctx, `
				UPDATE group_members
				SET visited = COALESCE($3, visited), updated_source = $4, updated_at = now()
				WHERE group_id = $1 AND user_id = $2
			`, m.GroupID, m.UserID, m.Visited, source)
			if err != nil {
				return fmt.Errorf("failed to update membership of %s in %s: %w", m.UserID, m.GroupID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: user %s in group %s", ErrMemberNotFound, m.UserID, m.GroupID)
			}
		}
		_, err := tx.Exec(ctx, `
			UPDATE groups SET updated_by = $1, updated_at = now()
			WHERE id = ANY($2)
		`, actingUserID, mutationGroupIDs(mutations))
		if err != nil {
			return fmt.Errorf("failed to touch groups: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	ctx, cancel := r.timeouts.WriteContext(ctx)
	defer cancel()

	if group.Status == "" {
		group.Status = models.GroupStatusActive
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	group.UpdatedAt = group.CreatedAt

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO groups (id, name, description, status, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
		`, group.ID, group.Name, group.Description, group.Status, group.CreatedBy, group.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrGroupExists
			}
			return fmt.Errorf("failed to create group: %w", err)
		}
		if err := insertMembers(ctx, tx, group.ID, group.CreatedBy, group.Members); err != nil {
			return err
		}
		return insertActivities(ctx, tx, group.ID, group.Activities)
	})
}

func (r *PostgresRepository) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()
	return getGroup(ctx, r.pool, id)
}

func (r *PostgresRepository) UpdateGroup(ctx context.Context, u *models.GroupUpdate) (*models.Group, error) {
	ctx, cancel := r.timeouts.WriteContext(ctx)
	defer cancel()

	var updated *models.Group
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var status *string
		if u.Status != "" {
			status = &u.Status
		}
		tag, err := tx.Exec(ctx, `
			UPDATE groups
			SET name = COALESCE($2, name),
			    description = COALESCE($3, description),
			    status = COALESCE($4, status),
			    updated_by = $5,
			    updated_at = now()
			WHERE id = $1
		`, u.GroupID, u.Name, u.Description, status, u.UpdatedBy)
		if err != nil {
			return fmt.Errorf("failed to update group: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrGroupNotFound
		}

		if err := insertMembers(ctx, tx, u.GroupID, u.UpdatedBy, u.Members.Add); err != nil {
			return err
		}
		for _, m := range u.Members.Edit {
			_, err := tx.Exec(ctx, `
				UPDATE group_members
				SET role = COALESCE(NULLIF($3, ''), role),
				    status = COALESCE(NULLIF($4, ''), status),
				    updated_at = now()
				WHERE group_id = $1 AND user_id = $2
			`, u.GroupID, m.UserID, m.Role, m.Status)
			if err != nil {
				return fmt.Errorf("failed to edit member %s: %w", m.UserID, err)
			}
		}
		if len(u.Members.Remove) > 0 {
			_, err := tx.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = ANY($2)`,
				u.GroupID, u.Members.Remove)
			if err != nil {
				return fmt.Errorf("failed to remove members: %w", err)
			}
		}
		if err := insertActivities(ctx, tx, u.GroupID, u.Activities.Add); err != nil {
			return err
		}
		if len(u.Activities.Remove) > 0 {
			_, err := tx.Exec(ctx, `DELETE FROM group_activities WHERE group_id = $1 AND activity_id = ANY($2)`,
				u.GroupID, u.Activities.Remove)
			if err != nil {
				return fmt.Errorf("failed to remove activities: %w", err)
			}
		}

		updated, err = getGroup(ctx, tx, u.GroupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) DeleteGroup(ctx context.Context, id string) error {
	ctx, cancel := r.timeouts.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *PostgresRepository) SearchGroups(ctx context.Context, f models.SearchFilter) ([]*models.Group, error) {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var groupIDs []string
	if len(f.GroupIDs) > 0 {
		groupIDs = f.GroupIDs
	}

	rows, err := r.pool.Query(ctx, `
		SELECT g.id
		FROM groups g
		WHERE ($1 = '' OR EXISTS (
		        SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = $1))
		  AND ($2::text[] IS NULL OR g.id = ANY($2))
		  AND ($3 = '' OR g.status = $3)
		ORDER BY g.created_at, g.id
		LIMIT $4
	`, f.UserID, groupIDs, f.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search groups: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	groups := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		g, err := getGroup(ctx, r.pool, id)
		if errors.Is(err, ErrGroupNotFound) {
			continue // deleted between the two reads
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getGroup(ctx context.Context, q querier, id string) (*models.Group, error) {
	var g models.Group
	err := q.QueryRow(ctx, `
		SELECT id, name, description, status, created_by, updated_by, created_at, updated_at
		FROM groups WHERE id = $1
	`, id).Scan(&g.ID, &g.Name, &g.Description, &g.Status, &g.CreatedBy, &g.UpdatedBy, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT group_id, user_id, role, status, visited, updated_source, created_by, created_at, updated_at
		FROM group_members WHERE group_id = $1 ORDER BY created_at, user_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	g.Members, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Member, error) {
		var m models.Member
		err := row.Scan(&m.GroupID, &m.UserID, &m.Role, &m.Status, &m.Visited, &m.UpdatedSource, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT activity_id, activity_type
		FROM group_activities WHERE group_id = $1 ORDER BY created_at, activity_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get activities: %w", err)
	}
	g.Activities, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ActivityRef, error) {
		var a models.ActivityRef
		err := row.Scan(&a.ID, &a.Type)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read activities: %w", err)
	}
	return &g, nil
}

func insertMembers(ctx context.Context, tx pgx.Tx, groupID, createdBy string, members []models.Member) error {
	for _, m := range members {
		role, status := m.Role, m.Status
		if role == "" {
			role = models.MemberRoleMember
		}
		if status == "" {
			status = models.MemberStatusActive
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO group_members (group_id, user_id, role, status, created_by)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (group_id, user_id) DO UPDATE
			SET role = EXCLUDED.role, status = EXCLUDED.status, updated_at = now()
		`, groupID, m.UserID, role, status, createdBy)
		if err != nil {
			return fmt.Errorf("failed to add member %s: %w", m.UserID, err)
		}
	}
	return nil
}

func insertActivities(ctx context.Context, tx pgx.Tx, groupID string, activities []models.ActivityRef) error {
	for _, a := range activities {
		_, err := tx.Exec(ctx, `
			INSERT INTO group_activities (group_id, activity_id, activity_type)
			VALUES ($1, $2, $3)
			ON CONFLICT (group_id, activity_id) DO UPDATE SET activity_type = EXCLUDED.activity_type
		`, groupID, a.ID, a.Type)
		if err != nil {
			return fmt.Errorf("failed to add activity %s: %w", a.ID, err)
		}
	}
	return nil
}

func mutationGroupIDs(mutations []models.MembershipMutation) []string {
	ids := make([]string, 0, len(mutations))
	for _, m := range mutations {
		ids = append(ids, m.GroupID)
	}
	return ids
}
