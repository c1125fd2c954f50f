package store

import (
	"errors"

	"coin-wallet/internal/discount"
	"coin-wallet/internal/model"
)

var ErrGroupNotFound = errors.New("discount group not found")

// GetUserDiscountRate resolves the user's effective rate: the minimum across
// every group they belong to, or 100 when they belong to none.
func (r *Database) GetUserDiscountRate(userID int64) (int, error) {
	var rate int
	err := r.DB.QueryRow(
		`SELECT COALESCE(MIN(g.discount_rate), $1)
		 FROM coin_discount_groups g
		 JOIN coin_discount_group_users gu ON gu.discount_group_id = g.group_id
		 WHERE gu.user_id = $2`, discount.NoDiscount, userID).Scan(&rate)
	if err != nil {
		return discount.NoDiscount, err
	}
	return rate, nil
}

func (r *Database) CreateDiscountGroup(name string, rate int, description string) (*model.DiscountGroup, error) {
	g := &model.DiscountGroup{Name: name, DiscountRate: rate, Description: description}
	err := r.DB.QueryRow(
		`INSERT INTO coin_discount_groups (name, discount_rate, description) VALUES ($1, $2, $3) RETURNING group_id`,
		name, rate, description).Scan(&g.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return g, nil
}

func (r *Database) UpdateDiscountGroup(g *model.DiscountGroup) error {
	res, err := r.DB.Exec(
		`UPDATE coin_discount_groups SET name = $1, discount_rate = $2, description = $3 WHERE group_id = $4`,
		g.Name, g.DiscountRate, g.Description, g.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *Database) DeleteDiscountGroup(groupID int64) error {
	_, err := r.DB.Exec(`DELETE FROM coin_discount_groups WHERE group_id = $1`, groupID)
	return err
}

func (r *Database) GetDiscountGroups() ([]model.DiscountGroup, error) {
	rows, err := r.DB.Query(
		`SELECT g.group_id, g.name, g.discount_rate, COALESCE(g.description, ''), COUNT(gu.id)
		 FROM coin_discount_groups g
		 LEFT JOIN coin_discount_group_users gu ON gu.discount_group_id = g.group_id
		 GROUP BY g.group_id
		 ORDER BY g.discount_rate ASC, g.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []model.DiscountGroup
	for rows.Next() {
		var g model.DiscountGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.DiscountRate, &g.Description, &g.UserCount); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *Database) AddUserToDiscountGroup(userID, groupID int64) error {
	_, err := r.DB.Exec(
		`INSERT INTO coin_discount_group_users (discount_group_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (discount_group_id, user_id) DO NOTHING`, groupID, userID)
	return err
}

func (r *Database) RemoveUserFromDiscountGroup(userID, groupID int64) error {
	_, err := r.DB.Exec(
		`DELETE FROM coin_discount_group_users WHERE discount_group_id = $1 AND user_id = $2`,
		groupID, userID)
	return err
}

func (r *Database) UserInDiscountGroup(userID, groupID int64) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM coin_discount_group_users WHERE discount_group_id = $1 AND user_id = $2)`,
		groupID, userID).Scan(&exists)
	return exists, err
}

func (r *Database) GetDiscountGroupUsers(groupID int64, limit int) ([]model.User, error) {
	rows, err := r.DB.Query(
		`SELECT u.user_id, u.login
		 FROM coin_discount_group_users gu
		 JOIN users u ON u.user_id = gu.user_id
		 WHERE gu.discount_group_id = $1
		 ORDER BY u.login ASC
		 LIMIT $2`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
