package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lanternhealth/clinic-concierge/internal/patients"
	"github.com/lanternhealth/clinic-concierge/internal/scheduling"
	"github.com/lanternhealth/clinic-concierge/internal/session"
)

// handlePatientSelection resolves an ambiguous-candidate choice and moves on
// to the schedule query.
func (e *Engine) handlePatientSelection(ctx context.Context, c *session.Context, req Request) (*Response, error) {
	data := c.Appointment
	if data == nil || len(data.Candidates) == 0 {
		return e.fail(ctx, c, "Patient selection state was lost. Please start over.")
	}

	patientID, ok := selectionID(req.Selection, "patientId", "patient_id")
	if !ok {
		if id, found := messageID(req.Message); found {
			patientID = id
			ok = true
		} else if idx, found := messageIndex(req.Message, len(data.Candidates)); found {
			patientID = data.Candidates[idx-1].ID
			ok = true
		}
	}
	if !ok {
		resp := respond(c, false, "Please pick one of the listed patients, or reply with their number.")
		resp.Options = candidateOptions(data.Candidates)
		resp.NextAction = "Select a patient or reply with their number"
		return resp, nil
	}

	patient, err := e.patients.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, patients.ErrPatientNotFound) {
			resp := respond(c, false, "That patient could not be found. Please choose again.")
			resp.Options = candidateOptions(data.Candidates)
			return resp, nil
		}
		return nil, fmt.Errorf("workflow: load selected patient: %w", err)
	}

	return e.startAppointment(ctx, c, patient, data.Intent)
}

// handleQueryingSchedule re-runs the schedule query. The state is normally a
// synchronous pass-through, so a message landing here means a previous turn
// was interrupted mid-transition; recomputing is safe.
func (e *Engine) handleQueryingSchedule(ctx context.Context, c *session.Context, req Request) (*Response, error) {
	data := c.Appointment
	if data == nil || data.PatientID == uuid.Nil {
		return e.fail(ctx, c, "Appointment state was lost. Please start over.")
	}
	patient, err := e.patients.GetByID(ctx, data.PatientID)
	if err != nil {
		return nil, fmt.Errorf("workflow: load patient: %w", err)
	}
	return e.querySchedule(ctx, c, patient)
}

// querySchedule finds offerings matching the intent and transitions to
// SelectingTimeSlot (or Failed) within the same invocation.
func (e *Engine) querySchedule(ctx context.Context, c *session.Context, patient *patients.Patient) (*Response, error) {
	data := c.Appointment

	offset := 0
	if data.Intent.DateOffset != nil {
		offset = *data.Intent.DateOffset
	}
	today := scheduling.DateOnly(e.now())
	target := today.AddDate(0, 0, offset)

	offerings, err := e.ledger.FindOfferings(ctx, scheduling.OfferingQuery{
		DoctorName:    data.Intent.DoctorName,
		Date:          target,
		TimeBand:      data.Intent.TimeBand,
		OnlyAvailable: true,
		Limit:         e.maxOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: query schedules: %w", err)
	}

	switch len(offerings) {
	case 0:
		return e.broadenSchedule(ctx, c, target)
	case 1:
		off := offerings[0]
		data.ScheduleID = off.ID
		data.PresentedSchedules = []uuid.UUID{off.ID}
		c.State = session.StateSelectingTimeSlot
		if err := e.save(ctx, c); err != nil {
			return nil, err
		}

		msg := fmt.Sprintf("Found an available slot:\n\nPatient: %s\nDoctor: Dr. %s\nDepartment: %s\n"+
			"Date: %s\nTime: %s\nSlots left: %d\n\nReply 1 or \"confirm\" to book it.",
			patient.Name, off.DoctorName, off.Department,
			off.Date.Format("2006-01-02"), off.TimeBand, off.AvailableSlots)
		resp := respond(c, true, msg)
		resp.Options = offeringOptions(offerings)
		resp.NextAction = "Confirm the booking"
		return resp, nil
	default:
		data.ScheduleID = uuid.Nil
		data.PresentedSchedules = offeringIDs(offerings)
		c.State = session.StateSelectingTimeSlot
		if err := e.save(ctx, c); err != nil {
			return nil, err
		}

		resp := respond(c, true, fmt.Sprintf("Found %d available times. Please choose one:", len(offerings)))
		resp.Options = offeringOptions(offerings)
		resp.NextAction = "Select a time or reply with its number"
		return resp, nil
	}
}

// broadenSchedule retries the query for the same doctor across the search
// horizon; no availability at all is terminal.
func (e *Engine) broadenSchedule(ctx context.Context, c *session.Context, target time.Time) (*Response, error) {
	data := c.Appointment
	today := scheduling.DateOnly(e.now())

	alternatives, err := e.ledger.FindOfferings(ctx, scheduling.OfferingQuery{
		DoctorName:    data.Intent.DoctorName,
		From:          today,
		To:            today.AddDate(0, 0, e.searchDays),
		OnlyAvailable: true,
		Limit:         e.maxOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: broadened schedule query: %w", err)
	}
	if len(alternatives) == 0 {
		e.metrics.ObserveBooking("no_schedule")
		doctor := data.Intent.DoctorName
		if doctor == "" {
			doctor = "any doctor"
		}
		return e.fail(ctx, c, fmt.Sprintf(
			"Sorry, there are no available slots for %s within the next %d days.", doctor, e.searchDays))
	}

	data.ScheduleID = uuid.Nil
	data.PresentedSchedules = offeringIDs(alternatives)
	c.State = session.StateSelectingTimeSlot
	if err := e.save(ctx, c); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Nothing is free on %s for that request, but these times are available:",
		target.Format("Jan 02"))
	resp := respond(c, true, msg)
	resp.Options = offeringOptions(alternatives)
	resp.NextAction = "Select a time or reply with its number"
	return resp, nil
}

// handleSelectingTimeSlot interprets the chosen schedule, re-validates it,
// and drives the ledger's atomic booking.
func (e *Engine) handleSelectingTimeSlot(ctx context.Context, c *session.Context, req Request) (*Response, error) {
	data := c.Appointment
	if data == nil || data.PatientID == uuid.Nil {
		return e.fail(ctx, c, "Appointment state was lost. Please start over.")
	}

	scheduleID, ok := selectionID(req.Selection, "scheduleId", "schedule_id")
	if !ok {
		if id, found := messageID(req.Message); found {
			scheduleID = id
			ok = true
		} else if idx, found := messageIndex(req.Message, len(data.PresentedSchedules)); found {
			scheduleID = data.PresentedSchedules[idx-1]
			ok = true
		} else if data.ScheduleID != uuid.Nil && isConfirmation(req.Message) {
			scheduleID = data.ScheduleID
			ok = true
		}
	}
	if !ok {
		resp := respond(c, false, "Please pick one of the offered times, or reply with its number.")
		resp.NextAction = "Select a time or reply with its number"
		return resp, nil
	}

	// The presented availability may be stale; check again before booking so
	// the user gets a precise message rather than a generic rejection.
	off, err := e.ledger.GetOffering(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, scheduling.ErrScheduleNotFound) {
			return respond(c, false, "That slot no longer exists. Please pick another time."), nil
		}
		return nil, fmt.Errorf("workflow: revalidate schedule: %w", err)
	}
	if off.AvailableSlots <= 0 {
		e.metrics.ObserveBooking("stale_unavailable")
		return respond(c, false, "That slot has just filled up. Please pick another time."), nil
	}

	result, err := e.ledger.TryBook(ctx, scheduleID, data.PatientID)
	if err != nil {
		switch {
		case errors.Is(err, scheduling.ErrNoSlotsAvailable):
			e.metrics.ObserveBooking("lost_race")
			return respond(c, false, "That slot was just taken by someone else. Please pick another time."), nil
		case errors.Is(err, scheduling.ErrDuplicateBooking):
			e.metrics.ObserveBooking("duplicate")
			return respond(c, false, "This patient already has an active appointment for that slot."), nil
		case errors.Is(err, scheduling.ErrScheduleNotFound):
			return respond(c, false, "That slot no longer exists. Please pick another time."), nil
		default:
			return nil, fmt.Errorf("workflow: book slot: %w", err)
		}
	}

	patient, err := e.patients.GetByID(ctx, data.PatientID)
	if err != nil {
		// Booking already committed; degrade the confirmation rather than fail.
		e.logger.Warn("booked but failed to load patient for summary",
			"session_id", c.SessionID, "patient_id", data.PatientID, "error", err)
		patient = &patients.Patient{ID: data.PatientID, Name: "patient"}
	}

	e.metrics.ObserveBooking("booked")
	e.logger.Info("appointment booked",
		"session_id", c.SessionID,
		"appointment_id", result.AppointmentID,
		"patient_id", data.PatientID,
		"schedule_id", scheduleID,
		"remaining", result.Remaining)

	e.complete(ctx, c)
	msg := fmt.Sprintf("Booked!\n\nAppointment ID: %s\nPatient: %s\nDoctor: Dr. %s\nDate: %s\nTime: %s\n"+
		"Slots remaining: %d\n\nPlease arrive on time.",
		result.AppointmentID, patient.Name, off.DoctorName,
		off.Date.Format("2006-01-02"), off.TimeBand, result.Remaining)
	resp := respond(c, true, msg)
	resp.Data = map[string]any{
		"appointmentId": result.AppointmentID.String(),
		"remaining":     result.Remaining,
	}
	return resp, nil
}

func offeringIDs(offerings []scheduling.Offering) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(offerings))
	for _, off := range offerings {
		ids = append(ids, off.ID)
	}
	return ids
}
