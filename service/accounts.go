package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"meal-order-api/bag"
	"meal-order-api/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

type Accounts struct {
	db          *gorm.DB
	bags        bag.Store
	reauthAfter time.Duration
	logger      *zap.SugaredLogger
	now         func() time.Time
}

func NewAccounts(db *gorm.DB, bags bag.Store, reauthAfter time.Duration, logger *zap.SugaredLogger) *Accounts {
	return &Accounts{
		db:          db,
		bags:        bags,
		reauthAfter: reauthAfter,
		logger:      logger,
		now:         time.Now,
	}
}

// Signup creates an account. The very first account becomes the admin.
func (s *Accounts) Signup(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return nil, models.NewValidationError("name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, models.NewValidationError("a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, models.NewValidationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{Name: name, Email: email, PasswordHash: string(hash)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrEmailTaken
		}

		var total int64
		if err := tx.Model(&models.User{}).Count(&total).Error; err != nil {
			return err
		}
		user.IsAdmin = total == 0
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("account created", "user_id", user.ID, "is_admin", user.IsAdmin)
	return &user, nil
}

// Login checks credentials.
func (s *Accounts) Login(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := checkPassword(&user, password); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout invalidates every token issued to the user so far.
func (s *Accounts) Logout(ctx context.Context, userID uint) error {
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("token_version", gorm.Expr("token_version + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	s.logger.Infow("account signed out", "user_id", userID)
	return nil
}

// Reauth confirms the password of a signed-in user so a fresh token can be
// issued.
func (s *Accounts) Reauth(ctx context.Context, userID uint, password string) (*models.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(user, password); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Accounts) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Sensitive identifies the session asking for a sensitive change. Password
// may be empty when the token is recent enough.
type Sensitive struct {
	IssuedAt time.Time
	Password string
}

func (s *Accounts) confirm(user *models.User, sess Sensitive) error {
	if sess.Password != "" {
		return checkPassword(user, sess.Password)
	}
	if s.now().Sub(sess.IssuedAt) > s.reauthAfter {
		return ErrReauthRequired
	}
	return nil
}

// UpdateName changes the display name.
func (s *Accounts) UpdateName(ctx context.Context, userID uint, sess Sensitive, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("name is required")
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.confirm(user, sess); err != nil {
		return nil, err
	}

	user.Name = name
	if err := s.db.WithContext(ctx).Model(user).Update("name", name).Error; err != nil {
		return nil, fmt.Errorf("failed to update name: %w", err)
	}
	s.logger.Infow("account renamed", "user_id", userID)
	return user, nil
}

// DeleteAccount removes the user and everything they own in one
// transaction. The bag is dropped from the bag store afterwards.
func (s *Accounts) DeleteAccount(ctx context.Context, userID uint, sess Sensitive) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.confirm(user, sess); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			what string
			run  func() error
		}{
			{"notifications", func() error {
				return tx.Where("user_id = ?", userID).Delete(&models.Notification{}).Error
			}},
			{"suggestions", func() error {
				return tx.Where("user_id = ?", userID).Delete(&models.Suggestion{}).Error
			}},
			{"order history", func() error {
				owned := tx.Model(&models.Order{}).Select("id").Where("user_id = ?", userID)
				return tx.Where("order_id IN (?)", owned).Delete(&models.StatusHistory{}).Error
			}},
			{"orders", func() error {
				return tx.Where("user_id = ?", userID).Delete(&models.Order{}).Error
			}},
			{"bag", func() error {
				return tx.Delete(&models.BagRecord{Key: BagKey(userID)}).Error
			}},
			{"user", func() error {
				return tx.Delete(&models.User{}, userID).Error
			}},
		}
		for _, step := range steps {
			if err := step.run(); err != nil {
				return fmt.Errorf("failed to delete %s: %w", step.what, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Errorw("account deletion rolled back", "user_id", userID, "error", err)
		return err
	}

	if err := s.bags.Delete(ctx, BagKey(userID)); err != nil {
		s.logger.Warnw("account deleted but bag not removed", "user_id", userID, "error", err)
	}
	s.logger.Infow("account deleted", "user_id", userID)
	return nil
}

func checkPassword(user *models.User, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
