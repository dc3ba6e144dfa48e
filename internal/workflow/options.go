package workflow

import (
	"fmt"

	"github.com/lanternhealth/clinic-concierge/internal/scheduling"
	"github.com/lanternhealth/clinic-concierge/internal/session"
)

func candidateOptions(candidates []session.Candidate) []Option {
	opts := make([]Option, 0, len(candidates))
	for i, cand := range candidates {
		label := fmt.Sprintf("[%d] %s - %s - %s", i+1, cand.Name, orUnknown(cand.Phone), orUnknown(cand.IDCard))
		opts = append(opts, Option{
			ID:    cand.ID.String(),
			Label: label,
			Payload: map[string]any{
				"patientId":   cand.ID.String(),
				"name":        cand.Name,
				"phone":       cand.Phone,
				"idCard":      cand.IDCard,
				"gender":      cand.Gender,
				"dateOfBirth": cand.DateOfBirth,
			},
		})
	}
	return opts
}

func offeringOptions(offerings []scheduling.Offering) []Option {
	opts := make([]Option, 0, len(offerings))
	for i, off := range offerings {
		opts = append(opts, Option{
			ID:    off.ID.String(),
			Label: fmt.Sprintf("[%d] %s", i+1, offeringLabel(off)),
			Payload: map[string]any{
				"scheduleId":     off.ID.String(),
				"doctorName":     off.DoctorName,
				"department":     off.Department,
				"date":           off.Date.Format("2006-01-02"),
				"timeBand":       string(off.TimeBand),
				"availableSlots": off.AvailableSlots,
			},
		})
	}
	return opts
}

func offeringLabel(off scheduling.Offering) string {
	return fmt.Sprintf("%s %s - Dr. %s (%s) - %d slots left",
		off.Date.Format("Jan 02"), off.TimeBand, off.DoctorName, off.Department, off.AvailableSlots)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
