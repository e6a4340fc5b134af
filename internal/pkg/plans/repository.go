package plans

import (
	"errors"

	"github.com/jobhive/jobhive/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the plan catalog service.
type Repository interface {
	Create(plan *models.Plan) error
	GetByID(id uint) (*models.Plan, error)
	ListActive(offset, limit int) ([]models.Plan, int64, error)
	Save(plan *models.Plan) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a plan repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(plan *models.Plan) error {
	return r.db.Create(plan).Error
}

func (r *gormRepository) GetByID(id uint) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.First(&plan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) ListActive(offset, limit int) ([]models.Plan, int64, error) {
	var plans []models.Plan
	var total int64

	base := r.db.Model(&models.Plan{}).Where("status = ?", models.PlanStatusActive)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := base.Order("price ASC").Offset(offset).Limit(limit).Find(&plans).Error
	return plans, total, err
}

func (r *gormRepository) Save(plan *models.Plan) error {
	return r.db.Save(plan).Error
}
