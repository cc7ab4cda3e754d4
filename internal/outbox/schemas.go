package outbox

import "example.com/consolidation/internal/events"

const achievementUnlockedSchema = `{
  "type": "object",
  "title": "AchievementUnlocked",
  "properties": {
    "run_id": {"type": "string"},
    "user_id": {"type": "integer"},
    "achievement_id": {"type": "integer"},
    "achievement_type": {"type": "string"},
    "threshold": {"type": "number"},
    "value": {"type": "number"},
    "unlocked_at": {"type": "string", "format": "date-time"}
  },
  "required": ["run_id", "user_id", "achievement_id", "achievement_type", "threshold", "value", "unlocked_at"],
  "additionalProperties": false
}`

const leaderboardRefreshedSchema = `{
  "type": "object",
  "title": "LeaderboardRefreshed",
  "properties": {
    "run_id": {"type": "string"},
    "leaderboard_type": {"type": "string"},
    "period_start": {"type": "string", "format": "date"},
    "period_end": {"type": "string", "format": "date"},
    "entries": {"type": "integer"},
    "leader_user_id": {"type": "integer"},
    "refreshed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["run_id", "leaderboard_type", "period_start", "period_end", "entries", "refreshed_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeAchievementUnlocked: {
		Schema: achievementUnlockedSchema,
	},
	events.TypeLeaderboardRefreshed: {
		Schema: leaderboardRefreshedSchema,
	},
}

// Route describes where an event type is published.
type Route struct {
	Topic         string
	SchemaSubject string
}

var routes = map[string]Route{
	events.TypeAchievementUnlocked: {
		Topic:         "achievement_events",
		SchemaSubject: "achievement_events-value",
	},
	events.TypeLeaderboardRefreshed: {
		Topic:         "leaderboard_events",
		SchemaSubject: "leaderboard_events-value",
	},
}

// RouteFor returns the topic and schema subject of an event type.
func RouteFor(eventType string) (Route, bool) {
	r, ok := routes[eventType]
	return r, ok
}
