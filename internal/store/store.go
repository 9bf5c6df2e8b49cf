// Package store wraps the shared GORM handle with the transaction and
// row-locking discipline the engines rely on. Every read-modify-write on
// balances goes through Transact with the affected rows locked FOR UPDATE.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/synkgo/rewards/internal/models"
)

// ErrUserNotFound is returned when a user row does not exist.
var ErrUserNotFound = errors.New("store: user not found")

// Store provides transactional access to the rewards schema.
type Store struct {
	db *gorm.DB
}

// New creates a Store over the given connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for read-only queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transact runs fn inside a database transaction bound to ctx.
func (s *Store) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// LockUser loads a user row by internal id with a row lock held for the
// duration of the enclosing transaction.
func LockUser(tx *gorm.DB, userID uint64) (*models.User, error) {
	var user models.User
	errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", userID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: lock user: %w", errFind)
	}
	return &user, nil
}

// LockUserByTelegramID loads a user row by messaging identity with a row
// lock held for the duration of the enclosing transaction.
func LockUserByTelegramID(tx *gorm.DB, telegramID int64) (*models.User, error) {
	var user models.User
	errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "telegram_id = ?", telegramID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: lock user: %w", errFind)
	}
	return &user, nil
}

// GetOrCreateUser fetches the user for a messaging identity, creating the
// row with a fresh referral code on first contact.
func (s *Store) GetOrCreateUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	errTx := s.Transact(ctx, func(tx *gorm.DB) error {
		errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, "telegram_id = ?", telegramID).Error
		if errFind == nil {
			return nil
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("store: find user: %w", errFind)
		}
		user = models.User{
			TelegramID:   telegramID,
			ReferralCode: models.ReferralCodeFor(telegramID),
		}
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return fmt.Errorf("store: create user: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &user, nil
}

// GetUser fetches a user by messaging identity without locking.
func (s *Store) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	errFind := s.db.WithContext(ctx).First(&user, "telegram_id = ?", telegramID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: find user: %w", errFind)
	}
	return &user, nil
}

// UserByReferralCode fetches the owner of a referral code without locking.
func (s *Store) UserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	errFind := s.db.WithContext(ctx).First(&user, "referral_code = ?", code).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: find user: %w", errFind)
	}
	return &user, nil
}
