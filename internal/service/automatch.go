package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/chatterdesk/presence-engine/internal/audit"
	apperrors "github.com/chatterdesk/presence-engine/internal/errors"
	"github.com/chatterdesk/presence-engine/internal/model"
	"github.com/chatterdesk/presence-engine/internal/repository"
	"github.com/chatterdesk/presence-engine/internal/telemetry"
)

// MemberDirectory lists the provider's member directory.
type MemberDirectory interface {
	Members(ctx context.Context) ([]telemetry.Member, error)
}

// AutoMatchService creates telemetry user mappings by best-effort matching
// of provider members against agents known from the shift schedule. It only
// ever creates: an existing mapping, manual or automatic, is authoritative
// and is never overwritten.
type AutoMatchService struct {
	directory  MemberDirectory
	memberRepo repository.TelemetryMemberRepository
	shiftRepo  repository.ShiftRepository
}

func NewAutoMatchService(
	directory MemberDirectory,
	memberRepo repository.TelemetryMemberRepository,
	shiftRepo repository.ShiftRepository,
) *AutoMatchService {
	return &AutoMatchService{
		directory:  directory,
		memberRepo: memberRepo,
		shiftRepo:  shiftRepo,
	}
}

type AutoMatchSummary struct {
	Status    string `json:"status"`
	Created   int    `json:"created"`
	Existing  int    `json:"existing"`
	Unmatched int    `json:"unmatched"`
}

func (s *AutoMatchService) Run(ctx context.Context) (*AutoMatchSummary, error) {
	agents, err := s.shiftRepo.AgentEmails(ctx)
	if err != nil {
		return nil, apperrors.Database("list agent emails", err)
	}
	if len(agents) == 0 {
		return &AutoMatchSummary{Status: StatusNotConfigured}, nil
	}

	providerMembers, err := s.directory.Members(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.memberRepo.ListAll(ctx)
	if err != nil {
		return nil, apperrors.Database("list telemetry members", err)
	}
	mapped := make(map[string]bool, len(existing))
	for _, m := range existing {
		mapped[m.ProviderUserID] = true
	}

	summary := &AutoMatchSummary{Status: StatusOK}
	for _, member := range providerMembers {
		if mapped[member.ID] {
			summary.Existing++
			continue
		}

		agentEmail, kind := matchAgent(member, agents)
		if kind == model.MatchNone {
			summary.Unmatched++
			log.Debug().
				Str("providerUserId", member.ID).
				Str("name", member.Name).
				Msg("no agent match for telemetry member")
			continue
		}

		_, err := s.memberRepo.Create(ctx, model.CreateTelemetryMemberParams{
			ProviderUserID: member.ID,
			AgentEmail:     agentEmail,
			DisplayName:    member.Name,
			MatchKind:      kind,
		})
		if err != nil {
			log.Error().Err(err).
				Str("providerUserId", member.ID).
				Msg("failed to create telemetry mapping, skipping")
			continue
		}

		summary.Created++
		audit.Log(ctx, audit.Event{
			Type:       audit.EventAutoMatchCreate,
			AgentEmail: agentEmail,
			Details: map[string]interface{}{
				"providerUserId": member.ID,
				"matchKind":      string(kind),
			},
		})
	}

	return summary, nil
}

// matchAgent resolves a provider member to an agent email with an explicit
// confidence: exact email, exact normalized name, fuzzy name, or none.
func matchAgent(member telemetry.Member, agents []string) (string, model.MatchKind) {
	memberEmail := strings.ToLower(strings.TrimSpace(member.Email))
	for _, agent := range agents {
		if memberEmail != "" && memberEmail == strings.ToLower(agent) {
			return agent, model.MatchExactEmail
		}
	}

	name := normalizeName(member.Name)
	if name == "" {
		return "", model.MatchNone
	}

	for _, agent := range agents {
		if name == normalizeName(emailLocalPart(agent)) {
			return agent, model.MatchExactName
		}
	}

	tokens := strings.Fields(name)
	for _, agent := range agents {
		candidate := normalizeName(emailLocalPart(agent))
		if fuzzyContains(candidate, tokens) {
			return agent, model.MatchFuzzyName
		}
	}

	return "", model.MatchNone
}

// normalizeName lowercases and collapses separators so "Jane.Doe" and
// "jane_doe" compare equal to "jane doe".
func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	replacer := strings.NewReplacer(".", " ", "_", " ", "-", " ")
	return strings.Join(strings.Fields(replacer.Replace(s)), " ")
}

func emailLocalPart(email string) string {
	if idx := strings.Index(email, "@"); idx >= 0 {
		return email[:idx]
	}
	return email
}

// fuzzyContains requires every name token to appear in the candidate; a
// single-token overlap is too weak to create a mapping from.
func fuzzyContains(candidate string, tokens []string) bool {
	if candidate == "" || len(tokens) == 0 {
		return false
	}
	for _, token := range tokens {
		if !strings.Contains(candidate, token) {
			return false
		}
	}
	return true
}
