package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/domain"
	"github.com/prn-tf/workroom/internal/namespace"
)

// Chatter relays a chat prompt to the external LLM service using the
// caller's API key.
type Chatter interface {
	Send(ctx context.Context, apiKey, prompt string) (string, error)
}

// SupervisorService answers user questions about their workspace by
// relaying them to the external LLM, prefixed with a snapshot of the
// user's project and file structure.
type SupervisorService struct {
	store  namespace.Store
	chat   Chatter
	logger zerolog.Logger
}

// NewSupervisorService creates a new SupervisorService.
func NewSupervisorService(store namespace.Store, chat Chatter, logger zerolog.Logger) *SupervisorService {
	return &SupervisorService{
		store:  store,
		chat:   chat,
		logger: logger.With().Str("service", "supervisor").Logger(),
	}
}

// Send relays a message on behalf of the user and returns the reply.
func (s *SupervisorService) Send(ctx context.Context, user *domain.User, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	if user.APIKey == "" {
		return "", domain.ErrInvalidAPIKey
	}

	structure, err := s.describeWorkspace(ctx, user.Username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", user.Username).Msg("failed to snapshot workspace")
		return "", fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	prompt := fmt.Sprintf(
		"You are a project supervisor assisting user %s.\n"+
			"Their current workspace:\n%s\n"+
			"Question: %s",
		user.Username, structure, message,
	)

	reply, err := s.chat.Send(ctx, user.APIKey, prompt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAPIKey) || errors.Is(err, domain.ErrExternalService) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("username", user.Username).
		Int("message_len", len(message)).
		Msg("supervisor request relayed")

	return reply, nil
}

// describeWorkspace renders the user's projects and files as an
// indented text tree for the prompt.
func (s *SupervisorService) describeWorkspace(ctx context.Context, username string) (string, error) {
	projects, err := s.store.ListProjects(ctx, username)
	if err != nil {
		return "", err
	}
	if len(projects) == 0 {
		return "(no projects)", nil
	}

	var b strings.Builder
	for _, p := range projects {
		fmt.Fprintf(&b, "- %s\n", p.Name)

		listing, err := s.store.ListFiles(ctx, username, p.Name)
		if err != nil {
			// A project may vanish between list and stat; skip it.
			if errors.Is(err, domain.ErrProjectNotFound) {
				continue
			}
			return "", err
		}
		for _, f := range listing.Main {
			fmt.Fprintf(&b, "  - main/%s\n", f)
		}
		for _, f := range listing.Temp {
			fmt.Fprintf(&b, "  - temp/%s\n", f)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
