package repository

import (
	"errors"

	"gorm.io/gorm"

	"amber/internal/model"
)

// JobRepository persists job configurations.
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(gdb *gorm.DB) *JobRepository {
	return &JobRepository{db: gdb}
}

func (r *JobRepository) Add(job model.Job) (model.Job, error) {
	if err := job.Validate(); err != nil {
		return model.Job{}, err
	}
	return job, r.db.Create(&job).Error
}

func (r *JobRepository) GetAll() ([]model.Job, error) {
	var jobs []model.Job
	return jobs, r.db.Order("created_at asc").Find(&jobs).Error
}

func (r *JobRepository) GetByID(id string) (model.Job, error) {
	var job model.Job
	err := r.db.First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return job, &model.NotFoundError{Kind: "job", ID: id}
	}
	return job, err
}

func (r *JobRepository) Delete(id string) error {
	return r.db.Delete(&model.Job{}, "id = ?", id).Error
}
