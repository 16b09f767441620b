// Package members manages the marketplace member records that admins add from
// the admin screens. Members are documents in the "users" collection.
package members

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/qsmate/docstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	Collection = "users"

	StatusActive = "active"

	RoleAdmin    = "admin"
	RoleSurveyor = "surveyor"
	RoleUser     = "user"
)

// MemberForm is the admin "add user" form.
type MemberForm struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"max=50"`
	Role     string `json:"role" validate:"oneof=admin surveyor user"`
	Company  string `json:"company" validate:"max=200"`
	Location string `json:"location" validate:"max=200"`
}

// Member is a stored member record.
type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	Company   string    `json:"company,omitempty"`
	Location  string    `json:"location,omitempty"`
	Status    string    `json:"status"`
	JoinDate  time.Time `json:"joinDate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ServiceOption func(*Service)

// WithNowTime overrides the clock used for record timestamps.
func WithNowTime(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = now
	}
}

type Service struct {
	store    docstore.Store
	validate *validator.Validate
	nowTime  func() time.Time
}

func NewService(store docstore.Store, options ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		validate: newValidator(),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Add validates form and stores it as an active member, returning the new
// document ID. An empty role defaults to user.
func (s *Service) Add(ctx context.Context, form MemberForm) (string, error) {
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	form.Role = strings.ToLower(strings.TrimSpace(form.Role))
	if form.Role == "" {
		form.Role = RoleUser
	}

	if err := s.validate.Struct(form); err != nil {
		return "", toValidationError(err)
	}

	now := s.nowTime().UTC()
	id, err := s.store.Create(ctx, Collection, docstore.Fields{
		"name":      form.Name,
		"email":     form.Email,
		"phone":     strings.TrimSpace(form.Phone),
		"role":      form.Role,
		"company":   strings.TrimSpace(form.Company),
		"location":  strings.TrimSpace(form.Location),
		"status":    StatusActive,
		"joinDate":  now,
		"createdAt": now,
		"updatedAt": now,
	})
	if err != nil {
		return "", errors.Wrap(err, "[members Add]")
	}

	log.Info().Str("member_id", id).Str("email", form.Email).Str("role", form.Role).Msg("Member added")
	return id, nil
}

// List returns every member ordered by name.
func (s *Service) List(ctx context.Context) ([]Member, error) {
	docs, err := docstore.Snapshot(ctx, s.store, docstore.Query{Collection: Collection, OrderBy: "name"})
	if err != nil {
		return nil, errors.Wrap(err, "[members List]")
	}

	result := make([]Member, 0, len(docs))
	for _, doc := range docs {
		result = append(result, fromDocument(doc))
	}
	return result, nil
}

func fromDocument(doc docstore.Document) Member {
	str := func(key string) string {
		v, _ := doc.Fields[key].(string)
		return v
	}
	ts := func(key string) time.Time {
		v, _ := doc.Fields[key].(time.Time)
		return v
	}
	return Member{
		ID:        doc.ID,
		Name:      str("name"),
		Email:     str("email"),
		Phone:     str("phone"),
		Role:      str("role"),
		Company:   str("company"),
		Location:  str("location"),
		Status:    str("status"),
		JoinDate:  ts("joinDate"),
		CreatedAt: ts("createdAt"),
		UpdatedAt: ts("updatedAt"),
	}
}
