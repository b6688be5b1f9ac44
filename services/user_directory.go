package services

import (
	"context"
	"fmt"

	"law_flow_notify/models"

	"gorm.io/gorm"
)

// Contact is the addressable identity behind a user, client or lawyer
type Contact struct {
	UserID string
	Role   string
	Name   string
	Email  string
}

// UserDirectory resolves people referenced by cases. Lookups that find
// nothing return a *NotFoundError.
type UserDirectory interface {
	FindUserByID(ctx context.Context, userID string) (*Contact, error)
	FindClientByID(ctx context.Context, clientID string) (*Contact, error)
	FindLawyerByID(ctx context.Context, lawyerID string) (*Contact, error)
	FindClientByUserID(ctx context.Context, userID string) (*models.Client, error)
	FindLawyerByUserID(ctx context.Context, userID string) (*models.Lawyer, error)
	FindActiveAdmins(ctx context.Context) ([]Contact, error)
}

// GormUserDirectory is the UserDirectory backed by the users, clients and lawyers tables
type GormUserDirectory struct {
	DB *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{DB: db}
}

func contactFromUser(u models.User) *Contact {
	return &Contact{UserID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}
}

func (d *GormUserDirectory) FindUserByID(ctx context.Context, userID string) (*Contact, error) {
	var user models.User
	if err := d.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, lookupError(err, "user", userID)
	}
	return contactFromUser(user), nil
}

func (d *GormUserDirectory) FindClientByID(ctx context.Context, clientID string) (*Contact, error) {
	var client models.Client
	if err := d.DB.WithContext(ctx).Preload("User").First(&client, "id = ?", clientID).Error; err != nil {
		return nil, lookupError(err, "client", clientID)
	}
	if client.User.ID == "" {
		return nil, notFound("user for client", clientID)
	}
	return contactFromUser(client.User), nil
}

func (d *GormUserDirectory) FindLawyerByID(ctx context.Context, lawyerID string) (*Contact, error) {
	var lawyer models.Lawyer
	if err := d.DB.WithContext(ctx).Preload("User").First(&lawyer, "id = ?", lawyerID).Error; err != nil {
		return nil, lookupError(err, "lawyer", lawyerID)
	}
	if lawyer.User.ID == "" {
		return nil, notFound("user for lawyer", lawyerID)
	}
	return contactFromUser(lawyer.User), nil
}

func (d *GormUserDirectory) FindClientByUserID(ctx context.Context, userID string) (*models.Client, error) {
	var client models.Client
	if err := d.DB.WithContext(ctx).Preload("User").First(&client, "user_id = ?", userID).Error; err != nil {
		return nil, lookupError(err, "client for user", userID)
	}
	return &client, nil
}

func (d *GormUserDirectory) FindLawyerByUserID(ctx context.Context, userID string) (*models.Lawyer, error) {
	var lawyer models.Lawyer
	if err := d.DB.WithContext(ctx).Preload("User").First(&lawyer, "user_id = ?", userID).Error; err != nil {
		return nil, lookupError(err, "lawyer for user", userID)
	}
	return &lawyer, nil
}

// FindActiveAdmins returns active administrators ordered by name, then id
func (d *GormUserDirectory) FindActiveAdmins(ctx context.Context) ([]Contact, error) {
	var users []models.User
	err := d.DB.WithContext(ctx).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Order("name ASC, id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load admins: %w", err)
	}

	contacts := make([]Contact, 0, len(users))
	for _, u := range users {
		contacts = append(contacts, *contactFromUser(u))
	}
	return contacts, nil
}
