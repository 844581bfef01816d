// Package genai drafts itineraries with an LLM. The model returns a JSON
// trip plan that is validated and clamped before it ever reaches the store.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"tripboard/api/internal/plan"
)

const maxTripDays = 30

// GeneratedTrip is the itinerary draft produced by the model.
type GeneratedTrip struct {
	Name        string         `json:"name"`
	Destination string         `json:"destination"`
	Days        []GeneratedDay `json:"days"`
}

type GeneratedDay struct {
	Activities []GeneratedActivity `json:"activities"`
}

type GeneratedActivity struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	StartTime   string   `json:"startTime,omitempty"`
	Duration    int      `json:"duration,omitempty"`
	Location    string   `json:"location,omitempty"`
	Cost        float64  `json:"cost,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ErrEmptyResponse is returned when the model produces no usable plan.
var ErrEmptyResponse = errors.New("model returned no trip plan")

type Generator struct {
	client openai.Client
	model  string
}

// NewGenerator creates a trip generator against an OpenAI-compatible API.
func NewGenerator(apiKey, baseURL, model string) *Generator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Generator{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

const systemPrompt = `You are a travel planner. Respond with JSON only, matching this shape:
{"name": string, "destination": string, "days": [{"activities": [{"title": string, "description": string, "startTime": "HH:mm", "duration": minutes, "location": string, "cost": number, "tags": [string]}]}]}
Times use 24h "HH:mm". Leave startTime and duration out for flexible activities. Plan 2-4 activities per day with no overlapping times.`

// GenerateTrip asks the model for a day-by-day plan and sanitizes the result.
func (g *Generator) GenerateTrip(ctx context.Context, destination string, days int, interests []string) (GeneratedTrip, error) {
	if days < 1 {
		days = 1
	}
	if days > maxTripDays {
		days = maxTripDays
	}

	prompt := fmt.Sprintf("Plan a %d-day trip to %s.", days, destination)
	if len(interests) > 0 {
		prompt += " The travelers are interested in: " + strings.Join(interests, ", ") + "."
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return GeneratedTrip{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return GeneratedTrip{}, ErrEmptyResponse
	}

	return parseGeneratedTrip(resp.Choices[0].Message.Content, destination, days)
}

// parseGeneratedTrip decodes the model output and enforces the bounds the
// rest of the system relies on: day count matches the request and scheduled
// activities carry a valid clock time.
func parseGeneratedTrip(content, destination string, days int) (GeneratedTrip, error) {
	var trip GeneratedTrip
	if err := json.Unmarshal([]byte(extractJSON(content)), &trip); err != nil {
		return GeneratedTrip{}, fmt.Errorf("decode trip plan: %w", err)
	}
	if len(trip.Days) == 0 {
		return GeneratedTrip{}, ErrEmptyResponse
	}

	if trip.Destination == "" {
		trip.Destination = destination
	}
	if trip.Name == "" {
		trip.Name = fmt.Sprintf("Trip to %s", trip.Destination)
	}

	if len(trip.Days) > days {
		trip.Days = trip.Days[:days]
	}
	for len(trip.Days) < days {
		trip.Days = append(trip.Days, GeneratedDay{})
	}

	for dayIndex := range trip.Days {
		activities := trip.Days[dayIndex].Activities[:0]
		for _, activity := range trip.Days[dayIndex].Activities {
			if strings.TrimSpace(activity.Title) == "" {
				continue
			}
			if activity.StartTime != "" {
				if _, err := plan.ParseClock(activity.StartTime); err != nil {
					activity.StartTime = ""
					activity.Duration = 0
				}
			}
			if activity.Duration < 0 {
				activity.Duration = 0
			}
			activities = append(activities, activity)
		}
		trip.Days[dayIndex].Activities = activities
	}
	return trip, nil
}

// extractJSON strips a markdown code fence if the model wrapped its answer.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if start := strings.Index(trimmed, "```json"); start != -1 {
		rest := trimmed[start+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if start := strings.Index(trimmed, "```"); start != -1 {
		rest := trimmed[start+len("```"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return trimmed
}
