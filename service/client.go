// Package service implements the client and tag operations offered to
// callers: validation, tag resolution, lifecycle notifications and
// aggregates over the record store.
package service

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"constellation"
	"constellation/export"
	"constellation/record"
)

// MaxClientNameLength is the longest accepted client name, in characters.
const MaxClientNameLength = 255

// ClientStore is the client persistence the service needs.
type ClientStore interface {
	constellation.Repository[*record.Client]
	FindWithTags(ctx context.Context, criteria constellation.Criteria, orderBy []constellation.Order, limit, offset int) ([]*record.Client, error)
	AttachTags(ctx context.Context, clients []*record.Client) ([]*record.Client, error)
	CountsByStatus(ctx context.Context) (map[string]int64, error)
}

// EdgeStore is the client-tag association the services need.
type EdgeStore = constellation.EdgeRepository[*record.Tag]

// ClientService manages clients.
type ClientService struct {
	clients ClientStore
	tags    TagStore
	edges   EdgeStore
	events  *dispatcher
	rules   []Rule
	logger  *zap.Logger
}

// NewClientService wires the service over its stores.
func NewClientService(clients ClientStore, tags TagStore, edges EdgeStore, opts ...Option) *ClientService {
	o := newOptions(opts)
	return &ClientService{
		clients: clients,
		tags:    tags,
		edges:   edges,
		events:  &dispatcher{listeners: o.listeners, logger: o.logger},
		rules:   o.rules,
		logger:  o.logger,
	}
}

// Create validates and stores a new client. A "tags" attribute holding tag
// ids or names becomes the client's tag set.
func (s *ClientService) Create(ctx context.Context, attrs record.Attributes) (*record.Client, error) {
	client := record.NewClient("")
	errs := fillErrors(client.Fill(attrs))
	if errs == nil {
		errs = &constellation.ValidationError{}
	}
	if err := s.validateInto(ctx, client, "", errs); err != nil {
		return nil, err
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	refs, hasTags, err := tagRefs(attrs)
	if err != nil {
		return nil, err
	}
	if err := checkTagRefs(refs); err != nil {
		return nil, err
	}

	s.events.notify(ctx, Event{Type: BeforeCreate, Client: client, Attributes: attrs})

	client, err = s.clients.Save(ctx, client)
	if err != nil {
		return nil, err
	}
	if hasTags {
		if err := s.SyncTags(ctx, client.ID, refs); err != nil {
			return nil, err
		}
		if client.Tags, err = s.tags.FindByClient(ctx, client.ID); err != nil {
			return nil, err
		}
	}

	s.events.notify(ctx, Event{Type: AfterCreate, ClientID: client.ID, Client: client, Attributes: attrs})
	s.logger.Info("client created", zap.String("client_id", client.ID), zap.String("slug", client.Slug))
	return client, nil
}

// Update applies attrs to an existing client. Keys absent from attrs keep
// their values; a "tags" attribute replaces the tag set.
func (s *ClientService) Update(ctx context.Context, id string, attrs record.Attributes) (*record.Client, error) {
	client, err := s.clients.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	original := client.Clone()

	errs := fillErrors(client.Fill(attrs))
	if errs == nil {
		errs = &constellation.ValidationError{}
	}
	if err := s.validateInto(ctx, client, id, errs); err != nil {
		return nil, err
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	refs, hasTags, err := tagRefs(attrs)
	if err != nil {
		return nil, err
	}
	if err := checkTagRefs(refs); err != nil {
		return nil, err
	}

	s.events.notify(ctx, Event{Type: BeforeUpdate, ClientID: id, Client: client, Original: original, Attributes: attrs})

	client, err = s.clients.Save(ctx, client)
	if err != nil {
		return nil, err
	}
	if hasTags {
		if err := s.SyncTags(ctx, client.ID, refs); err != nil {
			return nil, err
		}
		if client.Tags, err = s.tags.FindByClient(ctx, client.ID); err != nil {
			return nil, err
		}
	}

	s.events.notify(ctx, Event{Type: AfterUpdate, ClientID: id, Client: client, Original: original, Attributes: attrs})
	return client, nil
}

// Delete removes a client and its tag links. It reports whether a row was
// removed.
func (s *ClientService) Delete(ctx context.Context, id string) (bool, error) {
	client, err := s.clients.FindByID(ctx, id)
	if err != nil {
		return false, err
	}

	s.events.notify(ctx, Event{Type: BeforeDelete, ClientID: id, Client: client})

	removed, err := s.clients.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.events.notify(ctx, Event{Type: AfterDelete, ClientID: id, Client: client})
	}
	return removed, nil
}

func (s *ClientService) Get(ctx context.Context, id string) (*record.Client, error) {
	return s.clients.FindByID(ctx, id)
}

func (s *ClientService) GetBySlug(ctx context.Context, slug string) (*record.Client, error) {
	return s.clients.FindBySlug(ctx, slug)
}

// ListOptions filters and pages List. The zero value lists every client by
// name.
type ListOptions struct {
	Status   string
	OrderBy  []constellation.Order
	Limit    int
	Offset   int
	WithTags bool
}

// List returns clients, optionally in one status and with their tags.
func (s *ClientService) List(ctx context.Context, opts ListOptions) ([]*record.Client, error) {
	criteria := constellation.Criteria{}
	if opts.Status != "" {
		criteria["status"] = opts.Status
	}
	orderBy := opts.OrderBy
	if len(orderBy) == 0 {
		orderBy = []constellation.Order{constellation.Asc("name")}
	}
	if opts.WithTags {
		return s.clients.FindWithTags(ctx, criteria, orderBy, opts.Limit, opts.Offset)
	}
	return s.clients.Find(ctx, criteria, orderBy, opts.Limit, opts.Offset)
}

// SearchOptions pages Search. Tags are loaded unless SkipTags is set.
type SearchOptions struct {
	Fields   []string
	Limit    int
	Offset   int
	SkipTags bool
}

// Search finds clients whose fields, document or tag names contain query.
func (s *ClientService) Search(ctx context.Context, query string, opts SearchOptions) ([]*record.Client, error) {
	clients, err := s.clients.Search(ctx, query, opts.Fields, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	if opts.SkipTags {
		return clients, nil
	}
	return s.clients.AttachTags(ctx, clients)
}

func (s *ClientService) Count(ctx context.Context, criteria constellation.Criteria) (int64, error) {
	return s.clients.Count(ctx, criteria)
}

// CountsByStatus returns the number of clients in every status, plus their
// sum under "all".
func (s *ClientService) CountsByStatus(ctx context.Context) (map[string]int64, error) {
	stored, err := s.clients.CountsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(record.Statuses())+1)
	var all int64
	for _, status := range record.Statuses() {
		counts[status] = stored[status]
		all += stored[status]
	}
	counts["all"] = all
	return counts, nil
}

// Validate checks client and returns a ValidationError holding every
// violation, or nil. excludeID is the client's own id on update.
func (s *ClientService) Validate(ctx context.Context, client *record.Client, excludeID string) error {
	errs := &constellation.ValidationError{}
	if err := s.validateInto(ctx, client, excludeID, errs); err != nil {
		return err
	}
	return errs.Err()
}

// validateInto appends violations to errs. The returned error is a lookup
// failure, not a violation.
func (s *ClientService) validateInto(ctx context.Context, client *record.Client, excludeID string, errs *constellation.ValidationError) error {
	if client.Name == "" {
		errs.Add("name_required", "Client name is required.")
	}
	if utf8.RuneCountInString(client.Name) > MaxClientNameLength {
		errs.Add("name_too_long", fmt.Sprintf("Client name must be %d characters or less.", MaxClientNameLength))
	}
	if client.Slug != "" {
		existing, err := s.clients.FindBySlug(ctx, client.Slug)
		switch {
		case err == nil:
			if existing.ID != excludeID {
				errs.Add("slug_exists", "A client with this name already exists.")
			}
		case !constellation.IsNotFound(err):
			return err
		}
	}
	if email := client.Email(); email != "" && !validEmail(email) {
		errs.Add("invalid_email", "Please provide a valid email address.")
	}
	if website := client.Website(); website != "" && !validURL(website) {
		errs.Add("invalid_website", "Please provide a valid website URL.")
	}
	for _, rule := range s.rules {
		rule(ctx, client, excludeID, errs)
	}
	return nil
}

// ResolveTags turns tag references into tag ids. A reference shaped like an
// id is taken as one; anything else is a tag name, looked up by its slug and
// created when missing. Duplicates are kept.
func (s *ClientService) ResolveTags(ctx context.Context, refs []string) ([]string, error) {
	if err := checkTagRefs(refs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if record.LooksLikeID(ref) {
			ids = append(ids, ref)
			continue
		}
		if strings.TrimSpace(ref) == "" {
			continue
		}
		tag, err := s.tags.FindOrCreate(ctx, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

// checkTagRefs rejects tag names without a single letter or digit, which
// would never resolve to the same tag twice.
func checkTagRefs(refs []string) error {
	var errs *constellation.ValidationError
	for _, ref := range refs {
		if record.LooksLikeID(ref) || strings.TrimSpace(ref) == "" || record.Slugify(ref) != "" {
			continue
		}
		msg := fmt.Sprintf("Tag %q needs at least one letter or digit.", ref)
		if errs == nil {
			errs = constellation.NewValidationError("invalid_tag", msg)
		} else {
			errs.Add("invalid_tag", msg)
		}
	}
	if errs == nil {
		return nil
	}
	return errs
}

// SyncTags makes refs the client's tag set.
func (s *ClientService) SyncTags(ctx context.Context, clientID string, refs []string) error {
	ids, err := s.ResolveTags(ctx, refs)
	if err != nil {
		return err
	}
	return s.edges.ReplaceEdges(ctx, clientID, ids)
}

// Tags returns the client's tags ordered by name.
func (s *ClientService) Tags(ctx context.Context, clientID string) ([]*record.Tag, error) {
	return s.tags.FindByClient(ctx, clientID)
}

// AddTag links one tag. Linking a tag the client already has is not an
// error.
func (s *ClientService) AddTag(ctx context.Context, clientID, tagID string) error {
	err := s.edges.AddEdge(ctx, clientID, tagID)
	if constellation.IsConstraintViolation(err) {
		return nil
	}
	return err
}

func (s *ClientService) RemoveTag(ctx context.Context, clientID, tagID string) error {
	return s.edges.RemoveEdge(ctx, clientID, tagID)
}

// Archive sets the client's status to archived.
func (s *ClientService) Archive(ctx context.Context, id string) (*record.Client, error) {
	return s.Update(ctx, id, record.Attributes{"status": record.StatusArchived})
}

// Activate sets the client's status to active.
func (s *ClientService) Activate(ctx context.Context, id string) (*record.Client, error) {
	return s.Update(ctx, id, record.Attributes{"status": record.StatusActive})
}

// Export returns the clients matching criteria, by name, with tag names.
func (s *ClientService) Export(ctx context.Context, criteria constellation.Criteria) ([]export.Row, error) {
	clients, err := s.clients.FindWithTags(ctx, criteria, []constellation.Order{constellation.Asc("name")}, 0, 0)
	if err != nil {
		return nil, err
	}
	rows := make([]export.Row, len(clients))
	for i, c := range clients {
		rows[i] = export.FromClient(c)
	}
	return rows, nil
}

// tagRefs extracts the "tags" attribute. It reports whether the attribute
// was given at all, so an empty list clears the tag set.
func tagRefs(attrs record.Attributes) ([]string, bool, error) {
	raw, ok := attrs["tags"]
	if !ok || raw == nil {
		return nil, false, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, true, nil
	case []any:
		refs := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false, constellation.NewValidationError("invalid_tags", "Tags must be a list of tag ids or names.")
			}
			refs = append(refs, s)
		}
		return refs, true, nil
	case string:
		var refs []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				refs = append(refs, part)
			}
		}
		return refs, true, nil
	}
	return nil, false, constellation.NewValidationError("invalid_tags", "Tags must be a list of tag ids or names.")
}

// fillErrors returns the violations collected while filling a record.
func fillErrors(err error) *constellation.ValidationError {
	if verr, ok := constellation.AsValidationError(err); ok {
		return verr
	}
	return nil
}

// validEmail accepts a bare address whose domain has a dot.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	domain := s[strings.LastIndex(s, "@")+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// validURL accepts absolute URLs with a scheme and a host.
func validURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
