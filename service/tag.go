package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"constellation"
	"constellation/record"
)

// MaxTagNameLength is the longest accepted tag name, in characters.
const MaxTagNameLength = 100

// TagStore is the tag persistence the services need.
type TagStore interface {
	constellation.Repository[*record.Tag]
	FindOrCreate(ctx context.Context, name string) (*record.Tag, error)
	FindWithCounts(ctx context.Context, orderBy []constellation.Order) ([]*record.Tag, error)
	FindByClient(ctx context.Context, clientID string) ([]*record.Tag, error)
	Merge(ctx context.Context, src, dst string) (bool, error)
}

// TagService manages tags.
type TagService struct {
	tags   TagStore
	edges  EdgeStore
	logger *zap.Logger
}

// NewTagService wires the service over its stores. Only WithLogger applies.
func NewTagService(tags TagStore, edges EdgeStore, opts ...Option) *TagService {
	o := newOptions(opts)
	return &TagService{tags: tags, edges: edges, logger: o.logger}
}

// Create validates and stores a new tag.
func (s *TagService) Create(ctx context.Context, attrs record.Attributes) (*record.Tag, error) {
	tag := &record.Tag{}
	if err := s.fill(tag, attrs); err != nil {
		return nil, err
	}
	tag, err := s.tags.Save(ctx, tag)
	if err != nil {
		return nil, err
	}
	s.logger.Info("tag created", zap.String("tag_id", tag.ID), zap.String("slug", tag.Slug))
	return tag, nil
}

// Update applies attrs to an existing tag.
func (s *TagService) Update(ctx context.Context, id string, attrs record.Attributes) (*record.Tag, error) {
	tag, err := s.tags.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.fill(tag, attrs); err != nil {
		return nil, err
	}
	return s.tags.Save(ctx, tag)
}

func (s *TagService) fill(tag *record.Tag, attrs record.Attributes) error {
	errs := fillErrors(tag.Fill(attrs))
	if errs == nil {
		errs = &constellation.ValidationError{}
	}
	validateTag(tag, attrs, errs)
	return errs.Err()
}

// Validate checks tag and returns a ValidationError holding every
// violation, or nil.
func (s *TagService) Validate(tag *record.Tag) error {
	errs := &constellation.ValidationError{}
	validateTag(tag, nil, errs)
	return errs.Err()
}

// validateTag checks the filled tag. A color in attrs is checked as given,
// since Fill drops invalid colors.
func validateTag(tag *record.Tag, attrs record.Attributes, errs *constellation.ValidationError) {
	if tag.Name == "" {
		errs.Add("name_required", "Tag name is required.")
	}
	if utf8.RuneCountInString(tag.Name) > MaxTagNameLength {
		errs.Add("name_too_long", fmt.Sprintf("Tag name must be %d characters or less.", MaxTagNameLength))
	}
	color := tag.Color
	if raw, ok := attrs["color"].(string); ok {
		color = strings.TrimSpace(raw)
	}
	if color != "" && !record.ValidColor(color) && !errs.Has("invalid_color") {
		errs.Add("invalid_color", "Please provide a valid hex color.")
	}
}

// Delete removes a tag and its client links.
func (s *TagService) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := s.tags.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Info("tag deleted", zap.String("tag_id", id))
	}
	return removed, nil
}

func (s *TagService) Get(ctx context.Context, id string) (*record.Tag, error) {
	return s.tags.FindByID(ctx, id)
}

func (s *TagService) GetBySlug(ctx context.Context, slug string) (*record.Tag, error) {
	return s.tags.FindBySlug(ctx, slug)
}

// List returns tags ordered by name.
func (s *TagService) List(ctx context.Context, limit, offset int) ([]*record.Tag, error) {
	return s.tags.Find(ctx, nil, []constellation.Order{constellation.Asc("name")}, limit, offset)
}

// ListWithCounts returns every tag with its number of clients.
func (s *TagService) ListWithCounts(ctx context.Context, orderBy []constellation.Order) ([]*record.Tag, error) {
	return s.tags.FindWithCounts(ctx, orderBy)
}

// Search finds tags whose name, slug or description contains query.
func (s *TagService) Search(ctx context.Context, query string, limit, offset int) ([]*record.Tag, error) {
	return s.tags.Search(ctx, query, nil, limit, offset)
}

// ForClient returns the client's tags ordered by name.
func (s *TagService) ForClient(ctx context.Context, clientID string) ([]*record.Tag, error) {
	return s.tags.FindByClient(ctx, clientID)
}

// Clients returns the ids of the clients carrying the tag.
func (s *TagService) Clients(ctx context.Context, tagID string) ([]string, error) {
	return s.edges.EdgesForTag(ctx, tagID)
}

// Resolve returns the tag named name, creating it when missing.
func (s *TagService) Resolve(ctx context.Context, name string) (*record.Tag, error) {
	if strings.TrimSpace(name) == "" {
		return nil, constellation.NewValidationError("name_required", "Tag name is required.")
	}
	if record.Slugify(name) == "" {
		return nil, constellation.NewValidationError("invalid_tag", fmt.Sprintf("Tag %q needs at least one letter or digit.", name))
	}
	return s.tags.FindOrCreate(ctx, name)
}

// Merge moves every client of src onto dst and deletes src. Both tags must
// exist.
func (s *TagService) Merge(ctx context.Context, src, dst string) (bool, error) {
	if src == dst {
		return false, constellation.NewValidationError("merge_same_tag", "A tag cannot be merged into itself.")
	}
	for _, id := range []string{src, dst} {
		if _, err := s.tags.FindByID(ctx, id); err != nil {
			return false, err
		}
	}
	merged, err := s.tags.Merge(ctx, src, dst)
	if err != nil {
		return false, err
	}
	s.logger.Info("tags merged", zap.String("from", src), zap.String("into", dst), zap.Bool("merged", merged))
	return merged, nil
}
