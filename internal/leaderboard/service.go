package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/verdantclimate/verdant-backend/pkg/config"
	"github.com/verdantclimate/verdant-backend/pkg/enums"
	pkgerrors "github.com/verdantclimate/verdant-backend/pkg/errors"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
	"github.com/verdantclimate/verdant-backend/pkg/redis"
	"github.com/verdantclimate/verdant-backend/pkg/stripe"
)

const (
	sessionStatusComplete = "complete"
	anonymousName         = "Anonymous"
	defaultGroup          = "individual"
)

// Entry is one leaderboard row.
type Entry struct {
	Name   string  `json:"name"`
	Tonnes int     `json:"tonnes"`
	Score  float64 `json:"score"`
}

// Service computes the public offset leaderboard.
type Service interface {
	Aggregate(ctx context.Context, group string) ([]Entry, error)
	Invalidate(ctx context.Context) error
}

type sessionLister interface {
	ListSessions(ctx context.Context, in stripe.ListSessionsInput) ([]*stripe.Session, bool, error)
}

type service struct {
	gateway sessionLister
	cache   redis.Cache
	cfg     config.LeaderboardConfig
	logg    *logger.Logger
}

// NewService builds the leaderboard service. The cache is optional; without
// it every read recomputes from the gateway.
func NewService(gateway sessionLister, cache redis.Cache, cfg config.LeaderboardConfig, logg *logger.Logger) (Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{gateway: gateway, cache: cache, cfg: cfg, logg: logg}, nil
}

// Aggregate scans a bounded window of recent paid sessions and folds the
// opted-in ones into ranked entries, descending by quality-weighted score.
func (s *service) Aggregate(ctx context.Context, group string) ([]Entry, error) {
	group = normalizeGroup(group)

	if cached, ok := s.fromCache(ctx, group); ok {
		return cached, nil
	}

	entries, err := s.recompute(ctx, group)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, group, entries)
	return entries, nil
}

// Invalidate drops every cached group so the next read reflects a freshly
// confirmed order.
func (s *service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	keys := make([]string, 0, len(knownGroups()))
	for _, group := range knownGroups() {
		keys = append(keys, s.cache.CacheKey("leaderboard", group))
	}
	return s.cache.Del(ctx, keys...)
}

type accumulator struct {
	name   string
	tonnes int
	score  float64
}

func (s *service) recompute(ctx context.Context, group string) ([]Entry, error) {
	totals := map[string]*accumulator{}
	order := []string{}

	cursor := ""
	for page := 0; page < s.cfg.MaxPages; page++ {
		sessions, hasMore, err := s.gateway.ListSessions(ctx, stripe.ListSessionsInput{
			Limit:         int64(s.cfg.PageSize),
			StartingAfter: cursor,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "listing checkout sessions")
		}
		if len(sessions) == 0 {
			break
		}
		for _, session := range sessions {
			if !qualifies(session, group) {
				continue
			}
			key := identityKey(session)
			acc, seen := totals[key]
			if !seen {
				acc = &accumulator{name: displayName(session)}
				totals[key] = acc
				order = append(order, key)
			}
			qty := sessionTonnes(session)
			acc.tonnes += qty
			acc.score += float64(qty) * sessionTier(session).Coefficient()
		}
		if !hasMore {
			break
		}
		cursor = sessions[len(sessions)-1].ID
	}

	entries := make([]Entry, 0, len(order))
	for _, key := range order {
		acc := totals[key]
		entries = append(entries, Entry{
			Name:   acc.name,
			Tonnes: acc.tonnes,
			Score:  round2(acc.score),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	return entries, nil
}

func qualifies(session *stripe.Session, group string) bool {
	if session == nil || session.Status != sessionStatusComplete || !session.Paid() {
		return false
	}
	if session.Metadata["leader_consent"] != "yes" {
		return false
	}
	return normalizeGroup(session.Metadata["group"]) == group
}

// identityKey merges sessions by the strongest identity available: gateway
// customer id, then lowercased email, then the session itself.
func identityKey(session *stripe.Session) string {
	if session.CustomerID != "" {
		return session.CustomerID
	}
	email := strings.ToLower(strings.TrimSpace(session.Metadata["leader_email"]))
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(session.CustomerEmail))
	}
	if email != "" {
		return "email:" + email
	}
	return session.ID
}

func displayName(session *stripe.Session) string {
	if name := strings.TrimSpace(session.Metadata["leader_name"]); name != "" {
		return name
	}
	return anonymousName
}

func sessionTonnes(session *stripe.Session) int {
	qty, err := strconv.Atoi(session.Metadata["tonnes"])
	if err != nil || qty < 0 {
		return 0
	}
	return qty
}

func sessionTier(session *stripe.Session) enums.QualityTier {
	return enums.NormalizeQualityTier(session.Metadata["quality"])
}

func normalizeGroup(group string) string {
	group = strings.ToLower(strings.TrimSpace(group))
	if group == "" {
		return defaultGroup
	}
	return group
}

func knownGroups() []string {
	return []string{
		string(enums.PurchaseIndividual),
		string(enums.PurchaseCompany),
		string(enums.PurchaseMarketplace),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *service) fromCache(ctx context.Context, group string) ([]Entry, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.cache.CacheKey("leaderboard", group))
	if err != nil {
		if !redis.IsNil(err) {
			s.logg.Error(ctx, "reading leaderboard cache", err)
		}
		return nil, false
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logg.Error(ctx, "decoding leaderboard cache", err)
		return nil, false
	}
	return entries, true
}

func (s *service) toCache(ctx context.Context, group string, entries []Entry) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.CacheKey("leaderboard", group), string(payload), s.cfg.CacheTTL); err != nil {
		s.logg.Error(ctx, "writing leaderboard cache", err)
	}
}
