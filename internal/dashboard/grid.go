package dashboard

import (
	"sort"
	"time"

	"github.com/stanstork/ssd/internal/models"
)

const (
	// GridDays is the number of calendar columns ending at the reference date.
	GridDays = 7
	// DayRange is the number of days on each side of the reference date covered by the histogram.
	DayRange = 15
	// Green marks a grid cell with no events.
	Green = "green"
)

// Service status flags shown in the first grid column.
const (
	StatusNormal      = 0
	StatusIncident    = 1
	StatusMaintenance = 2
)

// Cell is one event shown inside a grid day.
type Cell struct {
	ID     int64
	Type   models.EventType
	Status models.EventStatus
	Start  time.Time
}

type Day struct {
	Date   time.Time
	Events []Cell
}

// Marker returns Green for an empty day, otherwise an empty string.
func (d Day) Marker() string {
	if len(d.Events) == 0 {
		return Green
	}
	return ""
}

type Row struct {
	Service models.Service
	Status  int
	Days    []Day
}

type Bucket struct {
	Date         time.Time
	Incidents    int
	Maintenances int
	Reports      int
}

func (b Bucket) Total() int {
	return b.Incidents + b.Maintenances + b.Reports
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// gridDates returns the GridDays local midnights ending at ref, ascending.
func gridDates(ref time.Time) []time.Time {
	dates := make([]time.Time, 0, GridDays)
	for i := GridDays - 1; i >= 0; i-- {
		dates = append(dates, ref.AddDate(0, 0, -i))
	}
	return dates
}

// buildGrid places every service event on the day of its start in loc. The
// service status flag comes from the currently active events, regardless of date.
func buildGrid(services []models.Service, events, active []models.ServiceEvent, dates []time.Time, loc *time.Location) []Row {
	sorted := make([]models.Service, len(services))
	copy(sorted, services)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	flags := make(map[int64]int)
	for _, evt := range active {
		switch {
		case evt.Type == models.EventTypeIncident && evt.Status == models.StatusOpen:
			flags[evt.ServiceID] = StatusIncident
		case evt.Type == models.EventTypeMaintenance && evt.Status == models.StatusStarted:
			if flags[evt.ServiceID] != StatusIncident {
				flags[evt.ServiceID] = StatusMaintenance
			}
		}
	}

	byService := make(map[int64][]models.ServiceEvent)
	for _, evt := range events {
		byService[evt.ServiceID] = append(byService[evt.ServiceID], evt)
	}

	rows := make([]Row, 0, len(sorted))
	for _, svc := range sorted {
		row := Row{Service: svc, Status: flags[svc.ID], Days: make([]Day, 0, len(dates))}
		for _, date := range dates {
			day := Day{Date: date}
			for _, evt := range byService[svc.ID] {
				start := evt.Start.In(loc)
				if sameDay(start, date) {
					day.Events = append(day.Events, Cell{ID: evt.ID, Type: evt.Type, Status: evt.Status, Start: start})
				}
			}
			row.Days = append(row.Days, day)
		}
		rows = append(rows, row)
	}
	return rows
}

// buildHistogram counts events and reports per local day over ref±DayRange.
// The flag reports whether any bucket is nonzero.
func buildHistogram(ref time.Time, events []models.EventSummary, reports []time.Time, loc *time.Location) ([]Bucket, bool) {
	first := ref.AddDate(0, 0, -DayRange)
	buckets := make([]Bucket, 0, 2*DayRange+1)
	index := make(map[string]int, 2*DayRange+1)
	for i := 0; i <= 2*DayRange; i++ {
		date := first.AddDate(0, 0, i)
		index[date.Format(dateLayout)] = i
		buckets = append(buckets, Bucket{Date: date})
	}

	hasData := false
	for _, evt := range events {
		i, ok := index[evt.Start.In(loc).Format(dateLayout)]
		if !ok {
			continue
		}
		switch evt.Type {
		case models.EventTypeIncident:
			buckets[i].Incidents++
		case models.EventTypeMaintenance:
			buckets[i].Maintenances++
		}
		hasData = true
	}
	for _, at := range reports {
		i, ok := index[at.In(loc).Format(dateLayout)]
		if !ok {
			continue
		}
		buckets[i].Reports++
		hasData = true
	}
	return buckets, hasData
}
