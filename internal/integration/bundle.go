package integration

// AllConnected reports whether every integration bundled under the given
// descriptor is connected in list. Bundles never carry connection state of
// their own, and a bundle without children is never considered connected.
func AllConnected(bundle Descriptor, list []Reconciled) bool {
	if len(bundle.IncludedIntegrations) == 0 {
		return false
	}
	byID := make(map[string]Status, len(list))
	for _, item := range list {
		byID[item.ID] = item.Status
	}
	for _, id := range bundle.IncludedIntegrations {
		if byID[id] != StatusConnected {
			return false
		}
	}
	return true
}

// BundleChildren returns the bundled integrations present in list, in the
// order the bundle declares them. Unknown ids are skipped.
func BundleChildren(bundle Descriptor, list []Reconciled) []Reconciled {
	children := make([]Reconciled, 0, len(bundle.IncludedIntegrations))
	for _, id := range bundle.IncludedIntegrations {
		if item, ok := Find(list, id); ok {
			children = append(children, item)
		}
	}
	return children
}
