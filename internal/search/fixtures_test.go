package search

import "github.com/theexperiencecompany/gaia-sub002/internal/integration"

func item(id, name, description, category string) integration.Reconciled {
	return integration.Reconciled{
		Descriptor: integration.Descriptor{
			ID:          id,
			Name:        name,
			Description: description,
			Category:    category,
			Source:      integration.SourcePlatform,
		},
		Status: integration.StatusNotConnected,
	}
}

func fixture() []integration.Reconciled {
	custom := item("custom-1", "Weather Tools", "Forecasts", "custom")
	custom.Source = integration.SourceCustom
	custom.CreatedBy = "u1"
	return []integration.Reconciled{
		item("gmail", "Gmail", "Send and read email", "communication"),
		item("slack", "Slack", "Post messages to channels", "communication"),
		item("github", "GitHub", "Repositories and pull requests", "developer"),
		item("notion", "Notion", "Notes and docs", "productivity"),
		item("google_drive", "Google Drive", "Store and share files", "storage"),
		custom,
		item("misc", "Misc", "", ""),
	}
}

func ids(list []integration.Reconciled) []string {
	out := make([]string, 0, len(list))
	for _, entry := range list {
		out = append(out, entry.ID)
	}
	return out
}

func hitIDs(hits []Hit) []string {
	out := make([]string, 0, len(hits))
	for _, hit := range hits {
		out = append(out, hit.Item.ID)
	}
	return out
}
