package services

import (
	"errors"
	"strings"

	"github.com/longtails/freemasons/internal/models"
	"gorm.io/gorm"
)

var ErrProjectExists = errors.New("a project with this contract address already exists")

type ProjectService struct {
	db *gorm.DB
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{db: db}
}

type ProjectListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Name     string `form:"name"`
	Contract string `form:"contract"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectRequest struct {
	Name            string `json:"name"`
	ContractAddress string `json:"contract_address" binding:"required"`
}

// List returns paginated projects
func (s *ProjectService) List(req *ProjectListRequest) (*ProjectListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	var projects []models.Project
	var total int64

	query := s.db.Model(&models.Project{})

	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if req.Contract != "" {
		query = query.Where("contract_address = ?", strings.TrimSpace(req.Contract))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&projects).Error; err != nil {
		return nil, err
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}, nil
}

// GetByID returns a project by ID
func (s *ProjectService) GetByID(id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.First(&project, id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// GetWithRoster returns the project and its members in roster order.
func (s *ProjectService) GetWithRoster(id uint) (*models.Project, error) {
	project, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	ids, err := models.RosterMemberIDs(s.db, id)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		project.Members = []models.Member{}
		return project, nil
	}

	var members []models.Member
	if err := s.db.Preload("Twitter").Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	project.Members = make([]models.Member, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			project.Members = append(project.Members, m)
		}
	}
	return project, nil
}

// Create registers a collection for tracking. It does not sync; callers
// enqueue the first sync themselves.
func (s *ProjectService) Create(req *CreateProjectRequest) (*models.Project, error) {
	contract := strings.TrimSpace(req.ContractAddress)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = contract
	}

	var count int64
	if err := s.db.Model(&models.Project{}).Where("contract_address = ?", contract).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrProjectExists
	}

	project := models.Project{
		Name:            name,
		ContractAddress: contract,
	}
	if err := s.db.Create(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// StaleIDs returns projects due for a roster sync, oldest first.
func (s *ProjectService) StaleIDs() ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.Project{}).
		Where("last_sync_at IS NULL OR last_sync_at < ?", staleCutoff()).
		Order("last_sync_at IS NOT NULL, last_sync_at ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}
