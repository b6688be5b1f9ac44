package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"law_flow_notify/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10
	// MinPasswordLength applies to accounts created from the CLI
	MinPasswordLength = 8
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword verifies a password against a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NewUserInput describes a directory account and its profile
type NewUserInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	// Profile fields, used according to Role
	Phone          string
	Company        string
	Specialization string
}

// CreatedUser is the account plus the profile id cases refer to
type CreatedUser struct {
	User      models.User
	ProfileID string
}

// CreateDirectoryUser creates a user and, for clients and lawyers, the
// profile row that cases reference.
func CreateDirectoryUser(ctx context.Context, db *gorm.DB, in NewUserInput) (*CreatedUser, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, &ValidationError{Field: "email", Message: "must be a valid address"}
	}
	if !models.IsValidRole(in.Role) {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", in.Role)}
	}
	if len(in.Password) < MinPasswordLength {
		return nil, &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	out := &CreatedUser{}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		out.User = models.User{
			Name:     in.Name,
			Email:    in.Email,
			Password: hash,
			Role:     in.Role,
			IsActive: true,
		}
		if err := tx.Create(&out.User).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &ValidationError{Field: "email", Message: "is already registered"}
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		switch in.Role {
		case models.RoleClient:
			client := models.Client{UserID: out.User.ID, Phone: in.Phone, Company: in.Company}
			if err := tx.Create(&client).Error; err != nil {
				return fmt.Errorf("failed to create client profile: %w", err)
			}
			out.ProfileID = client.ID
		case models.RoleLawyer:
			lawyer := models.Lawyer{UserID: out.User.ID, Specialization: in.Specialization, IsAvailable: true}
			if err := tx.Create(&lawyer).Error; err != nil {
				return fmt.Errorf("failed to create lawyer profile: %w", err)
			}
			out.ProfileID = lawyer.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
