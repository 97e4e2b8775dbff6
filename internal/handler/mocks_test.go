package handler

import (
	"context"

	"github.com/hitoshi/gardenvisit/internal/event"
	"github.com/hitoshi/gardenvisit/internal/model"
	"github.com/hitoshi/gardenvisit/internal/weather"
)

type mockEventService struct {
	listUpcomingFn func(ctx context.Context) ([]*model.Event, error)
	getFn          func(ctx context.Context, eventID string) (*event.Detail, error)
	findFn         func(ctx context.Context, eventID string) (*model.Event, error)
	validateFn     func(in *event.EventInput) error
	createFn       func(ctx context.Context, hostID string, in *event.EventInput) (*model.Event, error)
	updateFn       func(ctx context.Context, eventID string, in *event.EventInput) (*model.Event, error)
	deleteFn       func(ctx context.Context, eventID string) error
	rsvpFn         func(ctx context.Context, eventID, userID string, in *event.RSVPInput) (*model.RSVP, error)
	cancelRSVPFn   func(ctx context.Context, eventID, userID string) error
	myRSVPFn       func(ctx context.Context, eventID, userID string) (*model.RSVP, error)
	attendeesFn    func(ctx context.Context, eventID string) ([]model.Attendee, error)
	addPotluckFn   func(ctx context.Context, eventID, userID string, in *event.PotluckInput) (*model.PotluckItem, error)
	removePotluck  func(ctx context.Context, eventID, itemID string, u *model.AuthenticatedUser) error
}

func (m *mockEventService) ListUpcoming(ctx context.Context) ([]*model.Event, error) {
	if m.listUpcomingFn != nil {
		return m.listUpcomingFn(ctx)
	}
	return nil, nil
}

func (m *mockEventService) Get(ctx context.Context, eventID string) (*event.Detail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, eventID)
	}
	return &event.Detail{Event: model.Event{ID: eventID}}, nil
}

func (m *mockEventService) Find(ctx context.Context, eventID string) (*model.Event, error) {
	if m.findFn != nil {
		return m.findFn(ctx, eventID)
	}
	return &model.Event{ID: eventID}, nil
}

func (m *mockEventService) Validate(in *event.EventInput) error {
	if m.validateFn != nil {
		return m.validateFn(in)
	}
	return nil
}

func (m *mockEventService) Create(ctx context.Context, hostID string, in *event.EventInput) (*model.Event, error) {
	if m.createFn != nil {
		return m.createFn(ctx, hostID, in)
	}
	return &model.Event{ID: "new", HostID: hostID, Title: in.Title, StartsAt: in.StartsAt}, nil
}

func (m *mockEventService) Update(ctx context.Context, eventID string, in *event.EventInput) (*model.Event, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, eventID, in)
	}
	return &model.Event{ID: eventID, Title: in.Title}, nil
}

func (m *mockEventService) Delete(ctx context.Context, eventID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, eventID)
	}
	return nil
}

func (m *mockEventService) RSVP(ctx context.Context, eventID, userID string, in *event.RSVPInput) (*model.RSVP, error) {
	if m.rsvpFn != nil {
		return m.rsvpFn(ctx, eventID, userID, in)
	}
	return &model.RSVP{EventID: eventID, UserID: userID, Response: model.RSVPResponse(in.Response), PlusOne: in.PlusOne}, nil
}

func (m *mockEventService) CancelRSVP(ctx context.Context, eventID, userID string) error {
	if m.cancelRSVPFn != nil {
		return m.cancelRSVPFn(ctx, eventID, userID)
	}
	return nil
}

func (m *mockEventService) MyRSVP(ctx context.Context, eventID, userID string) (*model.RSVP, error) {
	if m.myRSVPFn != nil {
		return m.myRSVPFn(ctx, eventID, userID)
	}
	return nil, nil
}

func (m *mockEventService) Attendees(ctx context.Context, eventID string) ([]model.Attendee, error) {
	if m.attendeesFn != nil {
		return m.attendeesFn(ctx, eventID)
	}
	return nil, nil
}

func (m *mockEventService) AddPotluckItem(ctx context.Context, eventID, userID string, in *event.PotluckInput) (*model.PotluckItem, error) {
	if m.addPotluckFn != nil {
		return m.addPotluckFn(ctx, eventID, userID, in)
	}
	return &model.PotluckItem{ID: "item-1", EventID: eventID, UserID: userID, Name: in.Name}, nil
}

func (m *mockEventService) RemovePotluckItem(ctx context.Context, eventID, itemID string, u *model.AuthenticatedUser) error {
	if m.removePotluck != nil {
		return m.removePotluck(ctx, eventID, itemID, u)
	}
	return nil
}

type mockForecasts struct {
	forEventFn func(ctx context.Context, ev *model.Event) (*weather.Forecast, error)
}

func (m *mockForecasts) ForEvent(ctx context.Context, ev *model.Event) (*weather.Forecast, error) {
	if m.forEventFn != nil {
		return m.forEventFn(ctx, ev)
	}
	return &weather.Forecast{Date: ev.StartsAt.Format("2006-01-02"), Summary: "晴れ"}, nil
}

type mockHostService struct {
	applyFn       func(ctx context.Context, userID string) (*model.User, error)
	approveFn     func(ctx context.Context, userID, notes string) (*model.User, error)
	rejectFn      func(ctx context.Context, userID, notes string) (*model.User, error)
	listPendingFn func(ctx context.Context) ([]*model.User, error)
}

func (m *mockHostService) ApplyForHost(ctx context.Context, userID string) (*model.User, error) {
	if m.applyFn != nil {
		return m.applyFn(ctx, userID)
	}
	return &model.User{ID: userID, HostStatus: model.HostStatusPending}, nil
}

func (m *mockHostService) Approve(ctx context.Context, userID, notes string) (*model.User, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, userID, notes)
	}
	return &model.User{ID: userID, HostStatus: model.HostStatusApproved, AdminNotes: notes}, nil
}

func (m *mockHostService) Reject(ctx context.Context, userID, notes string) (*model.User, error) {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, userID, notes)
	}
	return &model.User{ID: userID, HostStatus: model.HostStatusRejected, AdminNotes: notes}, nil
}

func (m *mockHostService) ListPending(ctx context.Context) ([]*model.User, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx)
	}
	return nil, nil
}
