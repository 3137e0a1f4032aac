// Package control implements the commands users and the owner issue
// against the monitor: registering and removing services, reading status,
// banning users, and pausing the monitor loop.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hazz-dev/uptimebot/internal/storage"
)

var (
	ErrBanned          = errors.New("user is banned")
	ErrForbidden       = errors.New("owner only")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Store is the persistence the command surface needs.
type Store interface {
	Insert(ctx context.Context, s *storage.Service) error
	Find(ctx context.Context, f storage.Filter) ([]storage.Service, error)
	DeleteOne(ctx context.Context, f storage.Filter) (int64, error)
	DeleteMany(ctx context.Context, f storage.Filter) (int64, error)
	Ban(ctx context.Context, userID int64) error
	Unban(ctx context.Context, userID int64) error
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

// Service enforces the owner/user distinction and the ban list in front of
// the store and the pause flag.
type Service struct {
	store   Store
	state   State
	ownerID int64
	logger  *slog.Logger
}

// New creates a Service. Pass nil logger to use the default logger.
func New(store Store, state State, ownerID int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		state:   state,
		ownerID: ownerID,
		logger:  logger,
	}
}

// IsOwner reports whether userID is the configured owner.
func (s *Service) IsOwner(userID int64) bool {
	return userID == s.ownerID
}

// OwnerID returns the configured owner, who also receives alerts.
func (s *Service) OwnerID() int64 {
	return s.ownerID
}

// Authorize rejects non-positive ids and banned users.
func (s *Service) Authorize(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user id must be positive", ErrInvalidArgument)
	}
	banned, err := s.store.IsBanned(ctx, userID)
	if err != nil {
		return err
	}
	if banned {
		return ErrBanned
	}
	return nil
}

func (s *Service) authorizeOwner(ctx context.Context, userID int64) error {
	if err := s.Authorize(ctx, userID); err != nil {
		return err
	}
	if !s.IsOwner(userID) {
		return ErrForbidden
	}
	return nil
}

// Add registers endpoint under name for user.
func (s *Service) Add(ctx context.Context, user int64, name, endpoint string) (*storage.Service, error) {
	if err := s.Authorize(ctx, user); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	endpoint = strings.TrimSpace(endpoint)
	if name == "" || endpoint == "" {
		return nil, fmt.Errorf("%w: name and endpoint are required", ErrInvalidArgument)
	}
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}

	svc := &storage.Service{Owner: user, Name: name, Endpoint: endpoint}
	if err := s.store.Insert(ctx, svc); err != nil {
		return nil, err
	}
	s.logger.Info("service added", "id", svc.ID, "owner", user, "name", name, "endpoint", endpoint)
	return svc, nil
}

// Status returns the services visible to user: all of them for the owner,
// the user's own otherwise.
func (s *Service) Status(ctx context.Context, user int64) ([]storage.Service, error) {
	if err := s.Authorize(ctx, user); err != nil {
		return nil, err
	}
	f := storage.Filter{Owner: user}
	if s.IsOwner(user) {
		f = storage.Filter{}
	}
	return s.store.Find(ctx, f)
}

// ListAll returns every service. Non-owners get ErrForbidden and no data.
func (s *Service) ListAll(ctx context.Context, user int64) ([]storage.Service, error) {
	if err := s.authorizeOwner(ctx, user); err != nil {
		return nil, err
	}
	return s.store.Find(ctx, storage.Filter{})
}

// Get returns one service if user may see it.
func (s *Service) Get(ctx context.Context, user int64, id string) (*storage.Service, error) {
	if err := s.Authorize(ctx, user); err != nil {
		return nil, err
	}
	f := storage.Filter{ID: id}
	if !s.IsOwner(user) {
		f.Owner = user
	}
	found, err := s.store.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("service %q: %w", id, storage.ErrNotFound)
	}
	return &found[0], nil
}

// Remove deletes by name. The owner removes every service with that name;
// a user removes one of their own.
func (s *Service) Remove(ctx context.Context, user int64, name string) (int64, error) {
	if err := s.Authorize(ctx, user); err != nil {
		return 0, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}

	var (
		n   int64
		err error
	)
	if s.IsOwner(user) {
		n, err = s.store.DeleteMany(ctx, storage.Filter{Name: name})
	} else {
		n, err = s.store.DeleteOne(ctx, storage.Filter{Name: name, Owner: user})
	}
	if err != nil {
		return 0, err
	}
	s.logger.Info("service removed", "by", user, "name", name, "count", n)
	return n, nil
}

func (s *Service) Ban(ctx context.Context, user, target int64) error {
	if err := s.authorizeOwner(ctx, user); err != nil {
		return err
	}
	if target == s.ownerID {
		return fmt.Errorf("%w: the owner cannot be banned", ErrInvalidArgument)
	}
	if err := s.store.Ban(ctx, target); err != nil {
		return err
	}
	s.logger.Info("user banned", "user", target)
	return nil
}

func (s *Service) Unban(ctx context.Context, user, target int64) error {
	if err := s.authorizeOwner(ctx, user); err != nil {
		return err
	}
	if err := s.store.Unban(ctx, target); err != nil {
		return err
	}
	s.logger.Info("user unbanned", "user", target)
	return nil
}

func (s *Service) Pause(ctx context.Context, user int64) error {
	return s.setPaused(ctx, user, true)
}

func (s *Service) Resume(ctx context.Context, user int64) error {
	return s.setPaused(ctx, user, false)
}

// Paused reports the current pause flag.
func (s *Service) Paused(ctx context.Context) (bool, error) {
	return s.state.Paused(ctx)
}

func (s *Service) setPaused(ctx context.Context, user int64, paused bool) error {
	if err := s.authorizeOwner(ctx, user); err != nil {
		return err
	}
	if err := s.state.SetPaused(ctx, paused); err != nil {
		return err
	}
	s.logger.Info("monitoring pause flag changed", "paused", paused)
	return nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: endpoint %q: %v", ErrInvalidArgument, endpoint, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "tcp":
	default:
		return fmt.Errorf("%w: endpoint %q must use http, https or tcp", ErrInvalidArgument, endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: endpoint %q has no host", ErrInvalidArgument, endpoint)
	}
	return nil
}
