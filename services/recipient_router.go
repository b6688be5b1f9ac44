package services

import (
	"context"
	"errors"

	"law_flow_notify/models"
)

// Channels is the set of channels a recipient is reached on
type Channels uint8

const (
	ChannelInApp Channels = 1 << iota
	ChannelEmail
)

// Has reports whether every channel in c is part of the set
func (s Channels) Has(c Channels) bool {
	return s&c == c
}

func (s Channels) String() string {
	switch s {
	case ChannelInApp:
		return "in_app"
	case ChannelEmail:
		return "email"
	case ChannelInApp | ChannelEmail:
		return "in_app+email"
	}
	return "none"
}

// NotificationEvent is what a committed case mutation hands to the
// notification pipeline. Case is the snapshot taken right after the commit.
type NotificationEvent struct {
	Type        string
	Case        models.Case
	ActorUserID string
	ActorRole   string
	// Extra template variables (old/new status, file name, message preview...)
	Data map[string]string
}

// RecipientRoute is one person to tell about an event, and how
type RecipientRoute struct {
	UserID           string
	Role             string
	Name             string
	Email            string
	Channels         Channels
	NotificationType string
	TemplateKey      string
}

// Router resolves the recipients of an event
type Router interface {
	Resolve(ctx context.Context, event NotificationEvent) ([]RecipientRoute, error)
}

type party int

const (
	partyClient party = iota
	partyLawyer
	partyAdmins
	// the other side relative to the uploader's role
	partyCounterpartByRole
	// the other side relative to the sender's identity
	partyCounterpartByIdentity
)

type routeRule struct {
	party            party
	channels         Channels
	notificationType string
	templateKey      string
}

// routingTable is the single place that decides who hears about what.
// Rules are applied in order and that order is the delivery order.
var routingTable = map[string][]routeRule{
	models.EventCaseCreated: {
		{partyClient, ChannelInApp | ChannelEmail, models.NotificationTypeCaseCreated, TemplateCaseCreated},
		{partyAdmins, ChannelInApp, models.NotificationTypeCaseCreated, ""},
		{partyLawyer, ChannelInApp | ChannelEmail, models.NotificationTypeNewCaseAssigned, TemplateCaseCreatedLawyer},
	},
	models.EventStatusChanged: {
		{partyClient, ChannelInApp | ChannelEmail, models.NotificationTypeStatusChanged, TemplateStatusChanged},
	},
	models.EventLawyerAssigned: {
		{partyClient, ChannelInApp | ChannelEmail, models.NotificationTypeLawyerAssigned, TemplateLawyerAssigned},
		{partyLawyer, ChannelInApp | ChannelEmail, models.NotificationTypeNewCaseAssigned, TemplateNewCaseAssigned},
	},
	models.EventDocumentUploaded: {
		{partyCounterpartByRole, ChannelInApp, models.NotificationTypeDocumentUploaded, ""},
	},
	models.EventMessageSent: {
		{partyCounterpartByIdentity, ChannelInApp | ChannelEmail, models.NotificationTypeMessageReceived, TemplateMessageReceived},
	},
	models.EventInactivityDetected: {
		{partyClient, ChannelInApp | ChannelEmail, models.NotificationTypeInactivityReminder, TemplateInactivityReminder},
	},
}

// RecipientRouter maps an event and its case snapshot to recipients using
// routingTable. It only reads from the directory.
type RecipientRouter struct {
	Directory UserDirectory
}

func NewRecipientRouter(directory UserDirectory) *RecipientRouter {
	return &RecipientRouter{Directory: directory}
}

// Resolve returns the routes for event in table order. A party that does not
// exist on the case (no lawyer yet) yields no route. A user reached by two
// rules is kept only at its first position.
func (r *RecipientRouter) Resolve(ctx context.Context, event NotificationEvent) ([]RecipientRoute, error) {
	rules, ok := routingTable[event.Type]
	if !ok {
		return nil, nil
	}

	var routes []RecipientRoute
	seen := make(map[string]int)
	for _, rule := range rules {
		contacts, err := r.partyContacts(ctx, rule.party, event)
		if err != nil {
			return nil, err
		}
		for _, c := range contacts {
			if c.UserID == "" {
				continue
			}
			// a user reached by several rules keeps one route at the first
			// position with the union of the channels
			if i, ok := seen[c.UserID]; ok {
				existing := &routes[i]
				if rule.channels.Has(ChannelEmail) && !existing.Channels.Has(ChannelEmail) {
					existing.TemplateKey = rule.templateKey
				}
				existing.Channels |= rule.channels
				continue
			}
			seen[c.UserID] = len(routes)
			routes = append(routes, RecipientRoute{
				UserID:           c.UserID,
				Role:             c.Role,
				Name:             c.Name,
				Email:            c.Email,
				Channels:         rule.channels,
				NotificationType: rule.notificationType,
				TemplateKey:      rule.templateKey,
			})
		}
	}
	return routes, nil
}

func (r *RecipientRouter) partyContacts(ctx context.Context, p party, event NotificationEvent) ([]Contact, error) {
	switch p {
	case partyClient:
		return r.client(ctx, event.Case)
	case partyLawyer:
		return r.lawyer(ctx, event.Case)
	case partyAdmins:
		return r.Directory.FindActiveAdmins(ctx)
	case partyCounterpartByRole:
		if event.ActorRole == models.RoleClient {
			return r.lawyer(ctx, event.Case)
		}
		return r.client(ctx, event.Case)
	case partyCounterpartByIdentity:
		return r.messageCounterpart(ctx, event)
	}
	return nil, nil
}

// messageCounterpart compares the sender with the people behind the case
// rather than with their role: a lawyer may also be a client elsewhere and an
// admin can speak for either side.
func (r *RecipientRouter) messageCounterpart(ctx context.Context, event NotificationEvent) ([]Contact, error) {
	clients, err := r.client(ctx, event.Case)
	if err != nil {
		return nil, err
	}
	lawyers, err := r.lawyer(ctx, event.Case)
	if err != nil {
		return nil, err
	}

	if len(clients) > 0 && clients[0].UserID == event.ActorUserID {
		// no lawyer assigned means nobody to tell
		return lawyers, nil
	}
	if len(lawyers) > 0 && lawyers[0].UserID == event.ActorUserID {
		return clients, nil
	}
	// staff writing on behalf of the firm
	return clients, nil
}

func (r *RecipientRouter) client(ctx context.Context, c models.Case) ([]Contact, error) {
	if c.ClientID == "" {
		return nil, nil
	}
	return single(r.Directory.FindClientByID(ctx, c.ClientID))
}

func (r *RecipientRouter) lawyer(ctx context.Context, c models.Case) ([]Contact, error) {
	if !c.HasLawyer() {
		return nil, nil
	}
	return single(r.Directory.FindLawyerByID(ctx, *c.LawyerID))
}

// single turns a lookup into zero or one contacts; a missing party is not an error
func single(contact *Contact, err error) ([]Contact, error) {
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []Contact{*contact}, nil
}
