package identity

import (
	"slices"

	"github.com/Ramsey-B/iris/pkg/models"
)

// buildResponse lists the primary's values first, then each secondary's in
// creation order. Values are de-duplicated by exact match.
func buildResponse(primary *models.Contact, cluster []models.Contact) models.ConsolidatedContact {
	view := models.ConsolidatedContact{
		PrimaryContactID:    primary.ID,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: []int64{},
	}

	if primary.Email != nil && *primary.Email != "" {
		view.Emails = append(view.Emails, *primary.Email)
	}
	if primary.PhoneNumber != nil && *primary.PhoneNumber != "" {
		view.PhoneNumbers = append(view.PhoneNumbers, *primary.PhoneNumber)
	}

	secondaries := make([]*models.Contact, 0, len(cluster))
	for i := range cluster {
		if cluster[i].ID != primary.ID {
			secondaries = append(secondaries, &cluster[i])
		}
	}
	slices.SortStableFunc(secondaries, compareContacts)

	for _, c := range secondaries {
		view.SecondaryContactIDs = append(view.SecondaryContactIDs, c.ID)
		view.Emails = appendUnique(view.Emails, c.Email)
		view.PhoneNumbers = appendUnique(view.PhoneNumbers, c.PhoneNumber)
	}

	return view
}

func appendUnique(values []string, v *string) []string {
	if v == nil || *v == "" || slices.Contains(values, *v) {
		return values
	}
	return append(values, *v)
}
