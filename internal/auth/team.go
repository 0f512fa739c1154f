package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"kubeopt.ai/internal/audit"
	"kubeopt.ai/internal/ids"
)

// TeamService manages teams and their memberships.
type TeamService struct {
	store Store
	options
}

// NewTeamService constructs the service.
func NewTeamService(store Store, opts ...Option) (*TeamService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &TeamService{store: store, options: newOptions(opts)}, nil
}

// NewTeam describes a team to create.
type NewTeam struct {
	Name        string `validate:"required,max=255"`
	Slug        string `validate:"required,max=100,slug"`
	Description string
	Settings    map[string]any
}

// CreateTeam creates an active team. Slugs are unique.
func (s *TeamService) CreateTeam(ctx context.Context, in NewTeam) (*Team, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Settings == nil {
		in.Settings = map[string]any{}
	}

	teams := s.store.Teams(ctx)
	if _, err := teams.FindBySlug(ctx, in.Slug); err == nil {
		return nil, newError(CodeConflict, "Team with slug '%s' already exists", in.Slug)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	team := &Team{
		ID:          ids.New(),
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		Status:      TeamStatusActive,
		Settings:    in.Settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := teams.Create(ctx, team); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(CodeConflict, "Team with slug '%s' already exists", in.Slug)
		}
		return nil, err
	}

	s.logger.Info("created team", zap.String("team_id", team.ID), zap.String("slug", team.Slug))
	s.record(ctx, audit.EventTeamCreated, zap.String("team_id", team.ID), zap.String("slug", team.Slug))
	return team, nil
}

// AddMember adds user to team with role. A user holds at most one
// membership per team.
func (s *TeamService) AddMember(ctx context.Context, team *Team, user *User, role *Role) (*TeamMembership, error) {
	if err := requireMemberArgs(team, user); err != nil {
		return nil, err
	}
	if role == nil || role.ID == "" {
		return nil, newError(CodeValidation, "role is required")
	}

	memberships := s.store.Memberships(ctx)
	if _, err := memberships.Find(ctx, team.ID, user.ID); err == nil {
		return nil, alreadyMember(user, team)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	m := &TeamMembership{
		ID:       ids.New(),
		TeamID:   team.ID,
		UserID:   user.ID,
		RoleID:   role.ID,
		JoinedAt: s.now().UTC(),
	}
	if err := memberships.Create(ctx, m); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, alreadyMember(user, team)
		}
		return nil, err
	}

	s.logger.Info("added team member",
		zap.String("team_id", team.ID), zap.String("user_id", user.ID), zap.String("role", role.Name))
	s.record(ctx, audit.EventMemberAdded,
		zap.String("team_id", team.ID), zap.String("user_id", user.ID), zap.String("role_id", role.ID))
	return m, nil
}

// RemoveMember deletes the membership of user in team. Removing a
// non-member is not an error.
func (s *TeamService) RemoveMember(ctx context.Context, team *Team, user *User) error {
	if err := requireMemberArgs(team, user); err != nil {
		return err
	}
	memberships := s.store.Memberships(ctx)
	m, err := memberships.Find(ctx, team.ID, user.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := memberships.Delete(ctx, m.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	s.logger.Info("removed team member", zap.String("team_id", team.ID), zap.String("user_id", user.ID))
	s.record(ctx, audit.EventMemberRemoved, zap.String("team_id", team.ID), zap.String("user_id", user.ID))
	return nil
}

// UpdateMemberRole replaces the role user holds in team.
func (s *TeamService) UpdateMemberRole(ctx context.Context, team *Team, user *User, role *Role) (*TeamMembership, error) {
	if err := requireMemberArgs(team, user); err != nil {
		return nil, err
	}
	if role == nil || role.ID == "" {
		return nil, newError(CodeValidation, "role is required")
	}

	memberships := s.store.Memberships(ctx)
	m, err := memberships.Find(ctx, team.ID, user.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(CodeValidation, "User '%s' is not a member of team '%s'", user.Email, team.Name)
	}
	if err != nil {
		return nil, err
	}
	if err := memberships.UpdateRole(ctx, m.ID, role.ID); err != nil {
		return nil, err
	}
	previous := m.RoleID
	m.RoleID = role.ID

	s.logger.Info("updated member role",
		zap.String("team_id", team.ID), zap.String("user_id", user.ID), zap.String("role", role.Name))
	s.record(ctx, audit.EventMemberRole, zap.String("team_id", team.ID),
		zap.String("user_id", user.ID), zap.String("from", previous), zap.String("to", role.ID))
	return m, nil
}

// GetTeamByID returns the team or ErrNotFound.
func (s *TeamService) GetTeamByID(ctx context.Context, id string) (*Team, error) {
	return s.store.Teams(ctx).Find(ctx, strings.TrimSpace(id))
}

// GetTeamBySlug returns the team or ErrNotFound.
func (s *TeamService) GetTeamBySlug(ctx context.Context, slug string) (*Team, error) {
	return s.store.Teams(ctx).FindBySlug(ctx, strings.TrimSpace(slug))
}

// ListTeams lists teams, optionally filtered by status.
func (s *TeamService) ListTeams(ctx context.Context, status TeamStatus) ([]*Team, error) {
	return s.store.Teams(ctx).List(ctx, status)
}

// ListMembers lists the memberships of a team.
func (s *TeamService) ListMembers(ctx context.Context, teamID string) ([]TeamMembership, error) {
	return s.store.Memberships(ctx).ListByTeam(ctx, strings.TrimSpace(teamID))
}

// UserTeams lists the teams userID belongs to.
func (s *TeamService) UserTeams(ctx context.Context, userID string) ([]*Team, error) {
	memberships, err := s.store.Memberships(ctx).ListByUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	teams := make([]*Team, 0, len(memberships))
	for _, m := range memberships {
		t, err := s.store.Teams(ctx).Find(ctx, m.TeamID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, nil
}

func requireMemberArgs(team *Team, user *User) error {
	if team == nil || team.ID == "" {
		return newError(CodeValidation, "team is required")
	}
	if user == nil || user.ID == "" {
		return newError(CodeValidation, "user is required")
	}
	return nil
}

func alreadyMember(user *User, team *Team) error {
	return newError(CodeConflict, "User '%s' is already a member of team '%s'", user.Email, team.Name)
}
