package store

import (
	"database/sql"
	"errors"

	"coin-wallet/internal/model"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrUserNotFound = errors.New("user not found")
var ErrDuplicate = errors.New("record already exists")

// uniqueViolation is the Postgres error class for broken unique constraints.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (u *Database) CreateUser(login, passwordHash string) (int64, error) {
	createUser := `INSERT INTO users(login, password_hash) VALUES ($1, $2) RETURNING user_id`

	var id int64

	err := u.DB.QueryRow(createUser, login, passwordHash).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

func (u *Database) GetUserByLogin(username string) (*model.User, error) {
	var user model.User
	err := u.DB.QueryRow("SELECT user_id, login, password_hash, is_admin FROM users WHERE login = $1", username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *Database) GetUserByID(id int64) (*model.User, error) {
	var user model.User
	err := u.DB.QueryRow("SELECT user_id, login, password_hash, is_admin FROM users WHERE user_id = $1", id).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
