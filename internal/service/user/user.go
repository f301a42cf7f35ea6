package user

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/golang-jwt/jwt/v5"
	"github.com/uma-arai/sbcntr-library/internal/common/apperror"
	"github.com/uma-arai/sbcntr-library/internal/model"
	"github.com/uma-arai/sbcntr-library/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Claims はアクセストークンに含めるクレームです。sub は利用者IDの10進表記です
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// UserID は sub クレームから利用者IDを取り出します
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return id, nil
}

// RegisterInput は利用者登録の入力です
type RegisterInput struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
	Address   string
	NIC       string
	Mobile    string
}

// Service は利用者の登録・認証・プロフィール参照を担当します
type Service struct {
	users    repository.UserRepository
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewService(users repository.UserRepository, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// Register は利用者を Member として登録します
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "UserService.Register")
	defer seg.Close(nil)

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &model.User{
		Username:     strings.TrimSpace(in.Username),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Address:      in.Address,
		NIC:          in.NIC,
		Mobile:       in.Mobile,
		Role:         model.RoleMember,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login は認証に成功した利用者の署名済みトークンを返します
// 利用者が存在しない場合もパスワード不一致と同じ Unauthorized を返します
func (s *Service) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "UserService.Login")
	defer seg.Close(nil)

	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", nil, apperror.New(apperror.CodeUnauthorized, "invalid username or password")
		}
		seg.Close(err)
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperror.New(apperror.CodeUnauthorized, "invalid username or password")
	}

	token, err := s.IssueToken(u)
	if err != nil {
		seg.Close(err)
		return "", nil, err
	}
	return token, u, nil
}

// IssueToken は HS256 で署名したアクセストークンを発行します
func (s *Service) IssueToken(u *model.User) (string, error) {
	now := s.now()
	claims := &Claims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Profile は利用者のプロフィールを返します
func (s *Service) Profile(ctx context.Context, userID int64) (*model.User, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "UserService.Profile")
	defer seg.Close(nil)

	return s.users.GetByID(ctx, userID)
}
