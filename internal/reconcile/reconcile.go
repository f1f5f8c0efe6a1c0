// Package reconcile merges the platform catalog, the user's own integration
// records and the live connection statuses into one canonical list.
package reconcile

import (
	"sort"
	"strings"

	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
)

// Order selects how Reconcile sorts its output.
type Order string

const (
	// OrderNone keeps catalog order followed by user-only records.
	OrderNone Order = ""
	// OrderPriority sorts by display priority descending, then by name.
	OrderPriority Order = "priority"
	// OrderConnectedFirst sorts connected integrations first, then by name.
	OrderConnectedFirst Order = "connected"
)

func ParseOrder(value string) Order {
	switch Order(strings.ToLower(strings.TrimSpace(value))) {
	case OrderPriority:
		return OrderPriority
	case OrderConnectedFirst, "connected_first", "workspace":
		return OrderConnectedFirst
	default:
		return OrderNone
	}
}

// Reconcile builds the per-user view. A user record takes precedence over a
// catalog entry with the same id, and unauthenticated MCP integrations are
// always connected whatever the statuses say.
func Reconcile(catalog []integration.Descriptor, records []integration.UserRecord, statuses []integration.ConnectionStatus) []integration.Reconciled {
	merged := make(map[string]*integration.Reconciled, len(catalog)+len(records))
	order := make([]string, 0, len(catalog)+len(records))

	for _, record := range records {
		id := record.IntegrationID
		if id == "" {
			id = record.Integration.ID
		}
		if id == "" {
			continue
		}
		if _, seen := merged[id]; seen {
			continue
		}
		descriptor := record.Integration
		descriptor.ID = id
		item := &integration.Reconciled{
			Descriptor:  descriptor,
			Status:      recordStatus(record.Status),
			Owned:       true,
			ConnectedAt: record.ConnectedAt,
		}
		if descriptor.AlwaysConnected() {
			item.Status = integration.StatusConnected
		}
		merged[id] = item
		order = append(order, id)
	}

	statusByID := make(map[string]integration.ConnectionStatus, len(statuses))
	for _, status := range statuses {
		statusByID[status.IntegrationID] = status
	}

	catalogIDs := make([]string, 0, len(catalog))
	for _, descriptor := range catalog {
		if descriptor.ID == "" {
			continue
		}
		if _, seen := merged[descriptor.ID]; seen {
			continue
		}
		item := &integration.Reconciled{
			Descriptor: descriptor,
			Status:     integration.StatusNotConnected,
		}
		if descriptor.AlwaysConnected() {
			item.Status = integration.StatusConnected
		} else if status, ok := statusByID[descriptor.ID]; ok {
			item.LastConnected = status.LastConnected
			switch {
			case status.Connected:
				item.Status = integration.StatusConnected
			case status.Error != "":
				item.Status = integration.StatusError
				item.Error = status.Error
			}
		}
		merged[descriptor.ID] = item
		catalogIDs = append(catalogIDs, descriptor.ID)
	}

	out := make([]integration.Reconciled, 0, len(merged))
	for _, id := range catalogIDs {
		out = append(out, *merged[id])
	}
	for _, id := range order {
		out = append(out, *merged[id])
	}
	return out
}

// Sort orders list in place and returns it.
func Sort(list []integration.Reconciled, order Order) []integration.Reconciled {
	switch order {
	case OrderPriority:
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.DisplayPriority != b.DisplayPriority {
				return a.DisplayPriority > b.DisplayPriority
			}
			return lessByName(a, b)
		})
	case OrderConnectedFirst:
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.Connected() != b.Connected() {
				return a.Connected()
			}
			return lessByName(a, b)
		})
	}
	return list
}

// Categories returns the distinct categories in list in display order. The
// virtual created_by_you category is prepended when currentUserID created any
// of the integrations.
func Categories(list []integration.Reconciled, currentUserID string) []string {
	seen := make(map[string]struct{})
	categories := make([]string, 0)
	createdByYou := false
	for _, item := range list {
		if currentUserID != "" && item.CreatedBy == currentUserID {
			createdByYou = true
		}
		category := item.Category
		if category == "" {
			category = integration.CategoryOther
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		ri, rj := integration.CategoryRank(categories[i]), integration.CategoryRank(categories[j])
		if ri != rj {
			return ri < rj
		}
		return categories[i] < categories[j]
	})
	if createdByYou {
		categories = append([]string{integration.CategoryCreatedByYou}, categories...)
	}
	return categories
}

func recordStatus(status integration.RecordStatus) integration.Status {
	if status == integration.RecordConnected {
		return integration.StatusConnected
	}
	return integration.StatusCreated
}

func lessByName(a, b integration.Reconciled) bool {
	an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if an != bn {
		return an < bn
	}
	return a.ID < b.ID
}
