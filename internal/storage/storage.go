package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nimbusdash/aegis/internal/config"
	"github.com/nimbusdash/aegis/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAssigned means the user holds no active assignment for the
	// requested tenant.
	ErrNotAssigned = errors.New("not assigned to tenant")
)

// ListUsersParams controls pagination, search, filtering and sorting for
// user listings.
type ListUsersParams struct {
	Page     int
	PageSize int
	Search   string
	Role     models.Role
	SortBy   string
	SortDir  string
}

type Storage interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	ListTenantsByIDs(ctx context.Context, ids []string) ([]models.Tenant, error)

	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, params ListUsersParams) ([]models.User, int64, error)
	UpdateUserLastLogin(ctx context.Context, userID string) error
}

type PostgresStorage struct {
	db *gorm.DB
}

func NewPostgresStorage(dsn string) (*PostgresStorage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.Tenant{}, &models.User{}, &models.TenantAssignment{}); err != nil {
		return nil, err
	}

	return &PostgresStorage{db: db}, nil
}

func (s *PostgresStorage) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(tenant).Error
}

func (s *PostgresStorage) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (s *PostgresStorage) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	if err := s.db.WithContext(ctx).Order("name").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *PostgresStorage) ListTenantsByIDs(ctx context.Context, ids []string) ([]models.Tenant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tenants []models.Tenant
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("name").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	if err := prepareUser(user, true); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Create(user).Error
	if err != nil && strings.Contains(err.Error(), "duplicate") {
		return ErrEmailTaken
	}
	return err
}

func (s *PostgresStorage) UpdateUser(ctx context.Context, user *models.User) error {
	if err := prepareUser(user, false); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.TenantAssignment{}).Error; err != nil {
			return err
		}
		return tx.Save(user).Error
	})
}

func (s *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Assignments").
		First(&user, "email = ?", models.NormalizeEmail(email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Assignments").First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStorage) ListUsers(ctx context.Context, params ListUsersParams) ([]models.User, int64, error) {
	params = params.withDefaults()

	query := s.db.WithContext(ctx).Model(&models.User{})
	if params.Search != "" {
		pattern := "%" + params.Search + "%"
		query = query.Where("name LIKE ? OR email LIKE ?", pattern, pattern)
	}
	if params.Role != "" {
		query = query.Where("role = ?", params.Role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (params.Page - 1) * params.PageSize
	var users []models.User
	err := query.
		Order(params.SortBy + " " + params.SortDir).
		Offset(offset).
		Limit(params.PageSize).
		Preload("Assignments").
		Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *PostgresStorage) UpdateUserLastLogin(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("last_login", time.Now()).Error
}

// prepareUser normalizes the email, enforces the assignment invariants and
// fills generated ids before a write.
func prepareUser(user *models.User, create bool) error {
	user.Email = models.NormalizeEmail(user.Email)
	if create && user.ID == "" {
		user.ID = uuid.NewString()
	}

	normalized, err := models.NormalizeAssignments(user.Assignments)
	if err != nil {
		return err
	}
	for i := range normalized {
		normalized[i].UserID = user.ID
	}
	user.Assignments = normalized
	return nil
}

// InMemoryStorage backs tests and local development without Postgres.
type InMemoryStorage struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant
	users   map[string]*models.User
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		tenants: make(map[string]*models.Tenant),
		users:   make(map[string]*models.User),
	}
}

func (s *InMemoryStorage) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	s.tenants[tenant.ID] = tenant
	return nil
}

func (s *InMemoryStorage) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, exists := s.tenants[id]
	if !exists {
		return nil, ErrTenantNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (s *InMemoryStorage) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenants := make([]models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		tenants = append(tenants, *t)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

func (s *InMemoryStorage) ListTenantsByIDs(ctx context.Context, ids []string) ([]models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tenants []models.Tenant
	for _, id := range ids {
		if t, ok := s.tenants[id]; ok {
			tenants = append(tenants, *t)
		}
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

func (s *InMemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := prepareUser(user, true); err != nil {
		return err
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrEmailTaken
		}
	}
	copied := cloneUser(user)
	s.users[copied.ID] = copied
	return nil
}

func (s *InMemoryStorage) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; !exists {
		return ErrUserNotFound
	}
	if err := prepareUser(user, false); err != nil {
		return err
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *InMemoryStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	normalized := models.NormalizeEmail(email)
	for _, user := range s.users {
		if user.Email == normalized {
			return cloneUser(user), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *InMemoryStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *InMemoryStorage) ListUsers(ctx context.Context, params ListUsersParams) ([]models.User, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	params = params.withDefaults()

	var matched []models.User
	for _, user := range s.users {
		if params.Role != "" && user.Role != params.Role {
			continue
		}
		if params.Search != "" {
			needle := strings.ToLower(params.Search)
			if !strings.Contains(strings.ToLower(user.Name), needle) &&
				!strings.Contains(user.Email, needle) {
				continue
			}
		}
		matched = append(matched, *cloneUser(user))
	}
	sort.Slice(matched, func(i, j int) bool {
		less := matched[i].Email < matched[j].Email
		if params.SortDir == "desc" {
			return !less
		}
		return less
	})

	total := int64(len(matched))
	offset := (params.Page - 1) * params.PageSize
	if offset >= len(matched) {
		return []models.User{}, total, nil
	}
	end := offset + params.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (s *InMemoryStorage) UpdateUserLastLogin(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[userID]
	if !exists {
		return ErrUserNotFound
	}
	user.LastLogin = time.Now()
	return nil
}

func cloneUser(u *models.User) *models.User {
	copied := *u
	copied.Assignments = make([]models.TenantAssignment, len(u.Assignments))
	copy(copied.Assignments, u.Assignments)
	copied.Grants = make(models.PermissionList, len(u.Grants))
	copy(copied.Grants, u.Grants)
	return &copied
}

func (p ListUsersParams) withDefaults() ListUsersParams {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = 10
	}
	if p.SortBy == "" {
		p.SortBy = "created_at"
	}
	if p.SortDir == "" {
		p.SortDir = "desc"
	}
	return p
}

func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
}
