package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	apperrors "github.com/chatterdesk/presence-engine/internal/errors"
)

// ActivitySample is one raw per-interval measurement from the provider.
type ActivitySample struct {
	UserID          string `json:"userId"`
	TrackedSeconds  int64  `json:"trackedSeconds"`
	KeyboardSeconds int64  `json:"keyboardSeconds"`
	MouseSeconds    int64  `json:"mouseSeconds"`
	OverallSeconds  int64  `json:"overallSeconds"`
}

// Member is a provider directory entry.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Online bool   `json:"online"`
}

// Activity holds normalized percentages for one user over a window.
// A nil percentage means tracked time was zero: undefined, not 0%.
type Activity struct {
	KeyboardPct *float64 `json:"keyboardPct"`
	MousePct    *float64 `json:"mousePct"`
	OverallPct  *float64 `json:"overallPct"`
}

// Aggregator reduces raw provider samples to per-agent presence and
// activity percentages.
type Aggregator struct {
	client  *Client
	baseURL string
	orgID   string
}

func NewAggregator(client *Client, settings Settings) *Aggregator {
	return &Aggregator{
		client:  client,
		baseURL: settings.BaseURL,
		orgID:   settings.OrgID,
	}
}

// ActiveUserIDs returns users with any tracked time inside the window,
// used by the coarser polling sync.
func (a *Aggregator) ActiveUserIDs(ctx context.Context, windowStart, windowEnd time.Time) (map[string]bool, error) {
	samples, err := a.fetchSamples(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	active := make(map[string]bool)
	for _, s := range samples {
		if s.TrackedSeconds > 0 {
			active[s.UserID] = true
		}
	}
	return active, nil
}

// OnlineUserIDs returns users the provider currently flags as online,
// used by the near-real-time sync flavor.
func (a *Aggregator) OnlineUserIDs(ctx context.Context) (map[string]bool, error) {
	members, err := a.Members(ctx)
	if err != nil {
		return nil, err
	}

	online := make(map[string]bool)
	for _, m := range members {
		if m.Online {
			online[m.ID] = true
		}
	}
	return online, nil
}

// AggregateActivity sums samples per user across the window and reduces
// them to percentages.
func (a *Aggregator) AggregateActivity(ctx context.Context, windowStart, windowEnd time.Time) (map[string]Activity, error) {
	samples, err := a.fetchSamples(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	return reduceSamples(samples), nil
}

// Members lists the provider's member directory, paginating until
// exhausted.
func (a *Aggregator) Members(ctx context.Context) ([]Member, error) {
	var members []Member
	for page := 1; ; page++ {
		requestURL := fmt.Sprintf("%s/v1/organizations/%s/members?page=%d", a.baseURL, a.orgID, page)

		var body struct {
			Items   []Member `json:"items"`
			HasMore bool     `json:"hasMore"`
		}
		if err := a.getJSON(ctx, requestURL, &body); err != nil {
			return nil, err
		}

		members = append(members, body.Items...)
		if !body.HasMore {
			return members, nil
		}
	}
}

func (a *Aggregator) fetchSamples(ctx context.Context, windowStart, windowEnd time.Time) ([]ActivitySample, error) {
	var samples []ActivitySample
	for page := 1; ; page++ {
		requestURL := fmt.Sprintf(
			"%s/v1/organizations/%s/activities?from=%d&to=%d&page=%d",
			a.baseURL, a.orgID, windowStart.UnixMilli(), windowEnd.UnixMilli(), page,
		)

		var body struct {
			Items   []ActivitySample `json:"items"`
			HasMore bool             `json:"hasMore"`
		}
		if err := a.getJSON(ctx, requestURL, &body); err != nil {
			return nil, err
		}

		samples = append(samples, body.Items...)
		if !body.HasMore {
			return samples, nil
		}
	}
}

func (a *Aggregator) getJSON(ctx context.Context, requestURL string, dest any) error {
	resp, err := a.client.Get(ctx, requestURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperrors.External(
			fmt.Sprintf("telemetry API returned status %d", resp.StatusCode), nil,
		).WithDetails(string(body))
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}

type activitySums struct {
	tracked  int64
	keyboard int64
	mouse    int64
	overall  int64
}

func reduceSamples(samples []ActivitySample) map[string]Activity {
	sums := make(map[string]activitySums)
	for _, s := range samples {
		agg := sums[s.UserID]
		agg.tracked += s.TrackedSeconds
		agg.keyboard += s.KeyboardSeconds
		agg.mouse += s.MouseSeconds
		agg.overall += s.OverallSeconds
		sums[s.UserID] = agg
	}

	result := make(map[string]Activity, len(sums))
	for userID, agg := range sums {
		result[userID] = Activity{
			KeyboardPct: percentage(agg.keyboard, agg.tracked),
			MousePct:    percentage(agg.mouse, agg.tracked),
			OverallPct:  percentage(agg.overall, agg.tracked),
		}
	}
	return result
}

// percentage is undefined (nil) when no time was tracked; reporting 0%
// would claim a measurement that never happened.
func percentage(metric, tracked int64) *float64 {
	if tracked <= 0 {
		return nil
	}
	pct := math.Round(float64(metric) / float64(tracked) * 100)
	return &pct
}
