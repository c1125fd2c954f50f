package store

import (
	"database/sql"
	"errors"

	"coin-wallet/internal/model"
)

var ErrChannelNotFound = errors.New("payment channel not found")

// GetEnabledChannels lists the channels offered to users, in display order.
func (r *Database) GetEnabledChannels() ([]model.PaymentChannel, error) {
	rows, err := r.DB.Query(
		`SELECT channel_type, name, icon
		 FROM coin_payment_channels
		 WHERE enabled = TRUE
		 ORDER BY display_order ASC, channel_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []model.PaymentChannel
	for rows.Next() {
		var c model.PaymentChannel
		if err := rows.Scan(&c.Type, &c.Name, &c.Icon); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return channels, nil
}

// GetChannels lists every channel row for the admin view.
func (r *Database) GetChannels() ([]model.PaymentChannelConfig, error) {
	rows, err := r.DB.Query(
		`SELECT channel_id, channel_type, name, icon, enabled, display_order
		 FROM coin_payment_channels
		 ORDER BY display_order ASC, channel_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []model.PaymentChannelConfig
	for rows.Next() {
		var c model.PaymentChannelConfig
		if err := rows.Scan(&c.ID, &c.Type, &c.Name, &c.Icon, &c.Enabled, &c.DisplayOrder); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return channels, nil
}

func (r *Database) GetChannel(id int64) (*model.PaymentChannelConfig, error) {
	var c model.PaymentChannelConfig
	err := r.DB.QueryRow(
		`SELECT channel_id, channel_type, name, icon, enabled, display_order
		 FROM coin_payment_channels
		 WHERE channel_id = $1`, id).
		Scan(&c.ID, &c.Type, &c.Name, &c.Icon, &c.Enabled, &c.DisplayOrder)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Database) UpdateChannel(c *model.PaymentChannelConfig) error {
	res, err := r.DB.Exec(
		`UPDATE coin_payment_channels SET name = $1, enabled = $2, display_order = $3 WHERE channel_id = $4`,
		c.Name, c.Enabled, c.DisplayOrder, c.ID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrChannelNotFound)
}

// SeedChannels inserts the default channel set, skipping types that already
// exist. Returns how many were created.
func (r *Database) SeedChannels() (int, error) {
	defaults := []model.PaymentChannelConfig{
		{Type: "alipay", Name: "Alipay", Icon: "alipay", DisplayOrder: 1},
		{Type: "wxpay", Name: "WeChat Pay", Icon: "wechat", DisplayOrder: 2},
		{Type: "paypal", Name: "PayPal", Icon: "paypal", DisplayOrder: 3},
	}

	created := 0
	for _, c := range defaults {
		res, err := r.DB.Exec(
			`INSERT INTO coin_payment_channels (channel_type, name, icon, enabled, display_order)
			 VALUES ($1, $2, $3, TRUE, $4)
			 ON CONFLICT (channel_type) DO NOTHING`,
			c.Type, c.Name, c.Icon, c.DisplayOrder)
		if err != nil {
			return created, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return created, err
		}
		created += int(n)
	}
	return created, nil
}
