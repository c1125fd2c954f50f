package store

import (
	"database/sql"
	"errors"

	"coin-wallet/internal/model"
)

var ErrPackageNotFound = errors.New("recharge package not found")

func (r *Database) GetActivePackages() ([]model.RechargePackage, error) {
	return r.queryPackages(
		`SELECT package_id, coin_amount, price, COALESCE(description, ''), display_order, recommended, active
		 FROM coin_recharge_packages
		 WHERE active = TRUE
		 ORDER BY display_order ASC, package_id ASC`)
}

func (r *Database) GetAllPackages() ([]model.RechargePackage, error) {
	return r.queryPackages(
		`SELECT package_id, coin_amount, price, COALESCE(description, ''), display_order, recommended, active
		 FROM coin_recharge_packages
		 ORDER BY display_order ASC, package_id ASC`)
}

func (r *Database) queryPackages(query string) ([]model.RechargePackage, error) {
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packages []model.RechargePackage
	for rows.Next() {
		var p model.RechargePackage
		if err := rows.Scan(&p.ID, &p.CoinAmount, &p.Price, &p.Description, &p.DisplayOrder, &p.Recommended, &p.Active); err != nil {
			return nil, err
		}
		packages = append(packages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return packages, nil
}

func (r *Database) GetActivePackage(id int64) (*model.RechargePackage, error) {
	var p model.RechargePackage
	err := r.DB.QueryRow(
		`SELECT package_id, coin_amount, price, COALESCE(description, ''), display_order, recommended, active
		 FROM coin_recharge_packages
		 WHERE package_id = $1 AND active = TRUE`, id).
		Scan(&p.ID, &p.CoinAmount, &p.Price, &p.Description, &p.DisplayOrder, &p.Recommended, &p.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Database) CreatePackage(p *model.RechargePackage) error {
	return r.DB.QueryRow(
		`INSERT INTO coin_recharge_packages (coin_amount, price, description, display_order, recommended, active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING package_id`,
		p.CoinAmount, p.Price, p.Description, p.DisplayOrder, p.Recommended, p.Active).Scan(&p.ID)
}

func (r *Database) UpdatePackage(p *model.RechargePackage) error {
	res, err := r.DB.Exec(
		`UPDATE coin_recharge_packages
		 SET coin_amount = $1, price = $2, description = $3, display_order = $4, recommended = $5, active = $6
		 WHERE package_id = $7`,
		p.CoinAmount, p.Price, p.Description, p.DisplayOrder, p.Recommended, p.Active, p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPackageNotFound
	}
	return nil
}

func (r *Database) DeletePackage(id int64) error {
	_, err := r.DB.Exec(`DELETE FROM coin_recharge_packages WHERE package_id = $1`, id)
	return err
}

// SeedPackages inserts the default package set, skipping coin amounts that
// already exist. Returns how many were created.
func (r *Database) SeedPackages() (int, error) {
	defaults := []model.RechargePackage{
		{CoinAmount: 10, Price: 10, Description: "Starter pack", DisplayOrder: 1},
		{CoinAmount: 20, Price: 20, Description: "Basic pack", DisplayOrder: 2},
		{CoinAmount: 50, Price: 50, Description: "Popular pack", DisplayOrder: 3, Recommended: true},
		{CoinAmount: 100, Price: 100, Description: "Value pack", DisplayOrder: 4},
	}

	created := 0
	for _, p := range defaults {
		var exists bool
		err := r.DB.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM coin_recharge_packages WHERE coin_amount = $1)`, p.CoinAmount).Scan(&exists)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		p.Active = true
		if err := r.CreatePackage(&p); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
