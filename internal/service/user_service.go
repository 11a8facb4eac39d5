package service

import (
	"context"

	"p2p/internal/model"
	"p2p/internal/repository"
	"p2p/pkg/apperror"
)

// UserService exposes the identities known to the workflow.
type UserService interface {
	GetMe(ctx context.Context, actor model.Actor) (*UserResponse, error)
}

type userService struct {
	repo repository.UserRepository
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository) UserService {
	return &userService{repo: repo}
}

// GetMe returns the profile behind the caller's token. The role comes from the token, not the row.
func (s *userService) GetMe(ctx context.Context, actor model.Actor) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, actor.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperror.NotFound("user %s not found", actor.UserID)
		}
		return nil, err
	}
	resp := toUserResponse(*user)
	resp.Role = actor.Role
	return &resp, nil
}
