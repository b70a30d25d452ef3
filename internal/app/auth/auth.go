package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/storage"
)

const minPasswordLength = 6

// Caller is the identity behind a request, resolved once. Trader is set only
// for the trader role.
type Caller struct {
	User   entity.User
	Trader *entity.Trader
}

func (c Caller) Role() entity.Role {
	return c.User.Role
}

func (c Caller) IsTrader() bool {
	return c.User.Role == entity.RoleTrader && c.Trader != nil
}

func (c Caller) IsAdmin() bool {
	return c.User.Role == entity.RoleAdmin
}

type Store interface {
	storage.Users
	storage.Traders
}

type TraderProfile struct {
	Name        string
	Nickname    string
	UsdtAddress string
	Phone       string
}

type Service struct {
	store Store
	jwt   *JWTManager
}

func NewService(store Store, jwt *JWTManager) *Service {
	return &Service{store: store, jwt: jwt}
}

func (s *Service) Register(ctx context.Context, login, password string) (entity.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || len(password) < minPasswordLength {
		return entity.User{}, fmt.Errorf("login required and password at least %d characters: %w",
			minPasswordLength, entity.ErrInvalidInput)
	}
	return s.CreateUser(ctx, login, password, entity.RoleUser)
}

// CreateUser stores a user with any role; it backs seeding of admin accounts.
func (s *Service) CreateUser(ctx context.Context, login, password string, role entity.Role) (entity.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return entity.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := entity.User{
		Login:        login,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return entity.User{}, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, login, password string) (string, error) {
	u, err := s.store.GetUserByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return "", entity.ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", entity.ErrInvalidCredentials
	}
	if u.IsBlocked {
		return "", fmt.Errorf("user %s is blocked: %w", u.ID, entity.ErrForbidden)
	}
	return s.jwt.Generate(u.ID)
}

// Resolve turns a bearer token into a Caller.
func (s *Service) Resolve(ctx context.Context, token string) (Caller, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return Caller{}, err
	}
	u, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return Caller{}, ErrInvalidToken
		}
		return Caller{}, err
	}
	if u.IsBlocked {
		return Caller{}, fmt.Errorf("user %s is blocked: %w", u.ID, entity.ErrForbidden)
	}

	c := Caller{User: u}
	if u.Role == entity.RoleTrader {
		t, err := s.store.GetTraderByUser(ctx, u.ID)
		if err != nil && !errors.Is(err, entity.ErrNotFound) {
			return Caller{}, err
		}
		if err == nil {
			c.Trader = &t
		}
	}
	return c, nil
}

// BecomeTrader creates the trader profile and switches the user's role.
func (s *Service) BecomeTrader(ctx context.Context, u entity.User, p TraderProfile) (entity.Trader, error) {
	if u.Role == entity.RoleTrader {
		return entity.Trader{}, entity.ErrAlreadyTrader
	}
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.UsdtAddress) == "" {
		return entity.Trader{}, fmt.Errorf("name and usdt address are required: %w", entity.ErrInvalidInput)
	}

	t := entity.Trader{
		UserID:      u.ID,
		Name:        p.Name,
		Nickname:    p.Nickname,
		UsdtAddress: p.UsdtAddress,
		Phone:       p.Phone,
		UsdtBalance: decimal.Zero,
	}
	if err := s.store.CreateTrader(ctx, &t); err != nil {
		return entity.Trader{}, err
	}
	if _, err := s.store.UpdateUser(ctx, u.ID, func(u *entity.User) error {
		u.Role = entity.RoleTrader
		return nil
	}); err != nil {
		return entity.Trader{}, fmt.Errorf("set trader role: %w", err)
	}
	return t, nil
}
