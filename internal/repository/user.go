package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
)

const userColumns = `id, username, first_name, last_name, email, address, nic, mobile, role, password_hash, created_at`

// UserRepository は利用者の永続化を担当するインターフェースです
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, userID int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

type UserRepositoryImpl struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db}
}

// Create は利用者を登録します。ユーザー名かメールアドレスが重複する場合は Conflict を返します
func (r *UserRepositoryImpl) Create(ctx context.Context, user *model.User) error {
	ctx, seg := xray.BeginSubsegment(ctx, "UserRepository.Create")
	defer seg.Close(nil)

	query := `
		INSERT INTO users (
			username, first_name, last_name, email, address, nic, mobile, role, password_hash, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING id`

	err := r.db.QueryRowxContext(ctx,
		query,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Address,
		user.NIC,
		user.Mobile,
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		seg.Close(err)
		if isUniqueViolation(err) {
			return apperror.Wrap(apperror.CodeConflict, err, "username or email already registered")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepositoryImpl) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "UserRepository.GetByID")
	defer seg.Close(nil)

	var u model.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID); err != nil {
		seg.Close(err)
		return nil, notFoundOr(err, "user %d", userID)
	}
	return &u, nil
}

func (r *UserRepositoryImpl) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "UserRepository.GetByUsername")
	defer seg.Close(nil)

	var u model.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE username = $1`, username); err != nil {
		seg.Close(err)
		return nil, notFoundOr(err, "user %q", username)
	}
	return &u, nil
}
