package journey

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/domain"
)

// Builder constructs customer journeys from conversions and sessions. It is
// a pure function of its inputs and holds no state across calls.
type Builder struct {
	log *zap.Logger
}

// NewBuilder creates a new journey builder
func NewBuilder(log *zap.Logger) *Builder {
	return &Builder{log: log}
}

type indexedSession struct {
	touchpoint domain.Touchpoint
}

// Build returns one journey per conversion: the conversion's user's sessions
// with a strictly earlier timestamp, ordered ascending by timestamp with
// session_id as the tiebreak so output is reproducible across runs. Sessions
// at exactly the conversion timestamp are excluded. A conversion with no
// qualifying sessions yields an empty journey, not an error.
//
// Malformed date/time columns are row-level failures: the offending
// conversion (or session) is skipped, reported in the returned errors, and
// the rest of the build continues.
func (b *Builder) Build(conversions []domain.Conversion, sessions []domain.Session) ([]domain.Journey, []domain.RowError) {
	var rowErrors []domain.RowError

	// Index sessions by user up front so each conversion only scans its own
	// user's sessions.
	byUser := make(map[string][]indexedSession, len(sessions))
	for _, s := range sessions {
		ts, err := s.Timestamp()
		if err != nil {
			rowErrors = append(rowErrors, domain.RowError{
				SessionID: s.SessionID,
				Reason:    fmt.Sprintf("malformed session timestamp %q %q", s.EventDate, s.EventTime),
			})
			b.log.Warn("Skipping session with malformed timestamp",
				zap.String("session_id", s.SessionID),
				zap.String("event_date", s.EventDate),
				zap.String("event_time", s.EventTime))
			continue
		}
		byUser[s.UserID] = append(byUser[s.UserID], indexedSession{
			touchpoint: domain.Touchpoint{
				SessionID:             s.SessionID,
				ChannelName:           s.ChannelName,
				Timestamp:             ts,
				HolderEngagement:      s.HolderEngagement,
				CloserEngagement:      s.CloserEngagement,
				ImpressionInteraction: s.ImpressionInteraction,
			},
		})
	}

	// Sort each user's sessions once; per-conversion selection preserves
	// this order.
	for _, userSessions := range byUser {
		sort.Slice(userSessions, func(i, j int) bool {
			a, b := userSessions[i].touchpoint, userSessions[j].touchpoint
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.SessionID < b.SessionID
		})
	}

	journeys := make([]domain.Journey, 0, len(conversions))
	for _, conv := range conversions {
		convTS, err := conv.Timestamp()
		if err != nil {
			rowErrors = append(rowErrors, domain.RowError{
				ConvID: conv.ConvID,
				Reason: fmt.Sprintf("malformed conversion timestamp %q %q", conv.ConvDate, conv.ConvTime),
			})
			b.log.Warn("Skipping conversion with malformed timestamp",
				zap.String("conv_id", conv.ConvID),
				zap.String("conv_date", conv.ConvDate),
				zap.String("conv_time", conv.ConvTime))
			continue
		}

		journeys = append(journeys, domain.Journey{
			ConvID:      conv.ConvID,
			Touchpoints: touchpointsBefore(byUser[conv.UserID], convTS),
		})
	}

	return journeys, rowErrors
}

// touchpointsBefore selects the sessions strictly before cutoff. Equal
// timestamps are excluded: a touch at the conversion instant cannot have
// influenced it.
func touchpointsBefore(userSessions []indexedSession, cutoff time.Time) []domain.Touchpoint {
	var touchpoints []domain.Touchpoint
	for _, s := range userSessions {
		if !s.touchpoint.Timestamp.Before(cutoff) {
			// Sessions are sorted ascending, nothing later qualifies either.
			break
		}
		touchpoints = append(touchpoints, s.touchpoint)
	}
	return touchpoints
}
