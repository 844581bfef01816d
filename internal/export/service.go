package export

import (
	"context"
	"fmt"

	"tripboard/api/internal/plan"
	"tripboard/api/internal/store"
)

// Service turns a loaded itinerary into a printable PDF.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export renders the itinerary and prints it through headless Chrome.
func (s *Service) Export(ctx context.Context, itinerary store.Itinerary) (*Result, error) {
	html, err := RenderItineraryHTML(buildTemplateData(itinerary))
	if err != nil {
		return nil, fmt.Errorf("render itinerary: %w", err)
	}
	return exportPDF(ctx, html, itinerary.Name)
}

func buildTemplateData(itinerary store.Itinerary) TemplateData {
	data := TemplateData{
		Name:        itinerary.Name,
		Destination: itinerary.Destination,
		DateRange: fmt.Sprintf("%s – %s",
			itinerary.StartDate.Format("Jan 2, 2006"),
			itinerary.EndDate.Format("Jan 2, 2006")),
	}

	var total float64
	for _, day := range itinerary.Days {
		templateDay := TemplateDay{
			Label: fmt.Sprintf("Day %d — %s", day.Position+1, day.Date.Format("Mon, Jan 2")),
		}
		for _, activity := range day.Activities {
			total += activity.Cost
			templateDay.Activities = append(templateDay.Activities, TemplateActivity{
				Title:    activity.Title,
				TimeSpan: formatTimeSpan(activity.StartTime, activity.Duration),
				Location: activity.Location,
				Cost:     formatCost(activity.Cost),
				Notes:    activity.Notes,
				Tags:     activity.Tags,
			})
		}
		data.Days = append(data.Days, templateDay)
	}

	if total > 0 {
		data.TotalCost = formatCost(total)
	}
	return data
}

func formatTimeSpan(startTime string, duration int) string {
	if startTime == "" || duration <= 0 {
		return ""
	}
	start, err := plan.ParseClock(startTime)
	if err != nil {
		return startTime
	}
	end := (start + duration) % (24 * 60)
	return fmt.Sprintf("%s – %02d:%02d", startTime, end/60, end%60)
}

func formatCost(cost float64) string {
	if cost == 0 {
		return ""
	}
	return fmt.Sprintf("$%.2f", cost)
}
