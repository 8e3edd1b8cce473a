package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/auth"
	"pms/internal/platform/config"
)

var defaultGoalCategories = []string{
	"Delivery",
	"Quality",
	"Collaboration",
	"Leadership",
	"Growth",
}

// Seed brings reference data up to date. Every step is idempotent so the
// server can run it on each start.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if err := ensurePermissions(ctx, pool); err != nil {
		return err
	}

	roleIDs, err := ensureRoles(ctx, pool)
	if err != nil {
		return err
	}

	if err := ensureRolePermissions(ctx, pool, roleIDs); err != nil {
		return err
	}

	if err := ensureGoalCategories(ctx, pool); err != nil {
		return err
	}

	if err := ensureUser(ctx, pool, roleIDs[auth.RoleAdmin], cfg.SeedAdminEmail, cfg.SeedAdminPassword, "System", "Admin"); err != nil {
		return err
	}

	if cfg.SeedDemoData {
		if err := seedDemoUsers(ctx, pool, roleIDs); err != nil {
			return err
		}
	}

	return nil
}

func ensurePermissions(ctx context.Context, pool *pgxpool.Pool) error {
	for _, perm := range auth.DefaultPermissions {
		_, err := pool.Exec(ctx, "INSERT INTO permissions (key) VALUES ($1) ON CONFLICT (key) DO NOTHING", perm)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureRoles(ctx context.Context, pool *pgxpool.Pool) (map[string]string, error) {
	roleIDs := map[string]string{}
	for roleName, level := range auth.RoleLevels {
		var id string
		err := pool.QueryRow(ctx, "SELECT id FROM roles WHERE name = $1", roleName).Scan(&id)
		if err == nil {
			roleIDs[roleName] = id
			continue
		}

		err = pool.QueryRow(ctx, "INSERT INTO roles (name, level) VALUES ($1, $2) RETURNING id", roleName, level).Scan(&id)
		if err != nil {
			return nil, err
		}
		roleIDs[roleName] = id
	}
	return roleIDs, nil
}

func ensureRolePermissions(ctx context.Context, pool *pgxpool.Pool, roleIDs map[string]string) error {
	permMap := map[string]string{}
	rows, err := pool.Query(ctx, "SELECT id, key FROM permissions")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			return err
		}
		permMap[key] = id
	}

	for roleName, perms := range auth.RolePermissions {
		roleID := roleIDs[roleName]
		for _, permKey := range perms {
			permID, ok := permMap[permKey]
			if !ok {
				return errors.New("permission not found: " + permKey)
			}
			_, err := pool.Exec(ctx, "INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", roleID, permID)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func ensureGoalCategories(ctx context.Context, pool *pgxpool.Pool) error {
	for _, name := range defaultGoalCategories {
		_, err := pool.Exec(ctx, "INSERT INTO goal_categories (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", name)
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureUser(ctx context.Context, pool *pgxpool.Pool, roleID, email, password, firstName, lastName string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	if err == nil {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	err = pool.QueryRow(ctx, `
    INSERT INTO users (email, password_hash, role_id, first_name, last_name, status)
    VALUES ($1, $2, $3, $4, $5, 'active')
    RETURNING id
  `, email, hash, roleID, firstName, lastName).Scan(&id)
	if err != nil {
		return err
	}
	return nil
}

// seedDemoUsers creates one account per tier so a fresh local install can
// walk an appraisal through the whole workflow without manual setup.
func seedDemoUsers(ctx context.Context, pool *pgxpool.Pool, roleIDs map[string]string) error {
	demo := []struct {
		email     string
		role      string
		firstName string
		lastName  string
	}{
		{"employee@demo.local", auth.RoleEmployee, "Evan", "Fields"},
		{"lead@demo.local", auth.RoleLead, "Lena", "Ortiz"},
		{"manager@demo.local", auth.RoleManager, "Mara", "Singh"},
		{"ceo@demo.local", auth.RoleCEO, "Cole", "Barnes"},
	}

	for _, u := range demo {
		if err := ensureUser(ctx, pool, roleIDs[u.role], u.email, "demo-password", u.firstName, u.lastName); err != nil {
			return err
		}
	}
	return nil
}
