package repository

import (
	"github.com/jobhive/jobhive/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByStripeCustomerID(customerID string) (*models.User, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User UserRepository
}
