package model

type SessionSource string

const (
	SourceSchedule  SessionSource = "schedule"
	SourceTelemetry SessionSource = "telemetry"
)

type MatchKind string

const (
	MatchManual     MatchKind = "manual"
	MatchExactEmail MatchKind = "exact_email"
	MatchExactName  MatchKind = "exact_name"
	MatchFuzzyName  MatchKind = "fuzzy_name"
	MatchNone       MatchKind = "none"
)
