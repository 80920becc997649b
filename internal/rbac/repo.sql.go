package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkwell-cms/inkwell/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for roles,
// permissions and assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `r.id, r.name, r.label, r.created_at, r.updated_at,
	COALESCE(ARRAY(SELECT p.name FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id WHERE rp.role_id = r.id ORDER BY p.name), '{}')`

// ListRoles returns all roles with their permission names.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles r ORDER BY r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Label, &role.CreatedAt, &role.UpdatedAt, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Label, &role.CreatedAt, &role.UpdatedAt, &role.Permissions)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// InsertRole creates a role and returns its ID.
func (r *Repository) InsertRole(ctx context.Context, q db.Querier, name, label string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO roles (name, label, created_at, updated_at) VALUES ($1, $2, NOW(), NOW()) RETURNING id`, name, label).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrDuplicateRole
	}
	return id, err
}

// UpdateRole updates name and label of an existing role.
func (r *Repository) UpdateRole(ctx context.Context, q db.Querier, id int64, name, label string) error {
	tag, err := q.Exec(ctx, `UPDATE roles SET name = $2, label = $3, updated_at = NOW() WHERE id = $1`, id, name, label)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateRole
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRole removes a role; assignments and permission grants cascade.
func (r *Repository) DeleteRole(ctx context.Context, q db.Querier, id int64) error {
	if _, err := q.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetPermissionByName resolves a permission identifier.
func (r *Repository) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT id, name, description FROM permissions WHERE name = $1`, name).
		Scan(&p.ID, &p.Name, &p.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, ErrNotFound
	}
	return p, err
}

// EnsurePermission upserts a permission and returns its ID.
func (r *Repository) EnsurePermission(ctx context.Context, q db.Querier, name, description string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description RETURNING id`, name, description).Scan(&id)
	return id, err
}

// AttachPermission grants a permission to a role.
func (r *Repository) AttachPermission(ctx context.Context, q db.Querier, roleID, permissionID int64) error {
	_, err := q.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id, created_at) VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`, roleID, permissionID)
	return err
}

// DetachPermission revokes a permission from a role.
func (r *Repository) DetachPermission(ctx context.Context, q db.Querier, roleID, permissionID int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignRole links a role to a user.
func (r *Repository) AssignRole(ctx context.Context, q db.Querier, userID, roleID int64) error {
	_, err := q.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, created_at) VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

// RemoveRole unlinks a role from a user.
func (r *Repository) RemoveRole(ctx context.Context, q db.Querier, userID, roleID int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RolesForUser returns the role names currently assigned to a user.
// Consulted on every request: principal role sets are never cached.
func (r *Repository) RolesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id = $1 ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
