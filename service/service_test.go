package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"constellation"
	"constellation/record"
	sqlstore "constellation/sql"
	"constellation/sql/adapter"
)

func testClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func setupServices(t *testing.T, opts ...Option) (*Services, *sqlstore.Service) {
	t.Helper()
	ctx := context.Background()
	cfg := constellation.NewConfig(constellation.SQLiteOptions(":memory:")...)
	store, err := sqlstore.Open(ctx, adapter.NewSQLiteAdapter(), &cfg,
		sqlstore.WithLogger(zap.NewNop()),
		sqlstore.WithClock(testClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return New(store, opts...), store
}

func validationCodes(t *testing.T, err error) []string {
	t.Helper()
	verr, ok := constellation.AsValidationError(err)
	require.True(t, ok, "expected a validation error, got %v", err)
	return verr.Codes()
}

func TestCreateClientWithTagNames(t *testing.T) {
	svcs, store := setupServices(t)
	ctx := context.Background()

	acme, err := svcs.Clients.Create(ctx, record.Attributes{
		"name": "Acme",
		"tags": []any{"vip", "prospect"},
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", acme.Slug)
	assert.Equal(t, []string{"prospect", "vip"}, acme.TagNames())

	for _, slug := range []string{"vip", "prospect"} {
		tag, err := svcs.Tags.GetBySlug(ctx, slug)
		require.NoError(t, err)
		assert.Equal(t, record.DefaultColor, tag.Color)
	}

	edges, err := store.Edges().LoadEdgesForClients(ctx, []string{acme.ID})
	require.NoError(t, err)
	require.Len(t, edges[acme.ID], 2)
	assert.Equal(t, "prospect", edges[acme.ID][0].Name)
	assert.Equal(t, "vip", edges[acme.ID][1].Name)
}

func TestCreateReusesExistingTags(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	vip, err := svcs.Tags.Create(ctx, record.Attributes{"name": "VIP", "color": "#EF4444"})
	require.NoError(t, err)
	assert.Equal(t, "#ef4444", vip.Color)

	c, err := svcs.Clients.Create(ctx, record.Attributes{
		"name": "Globex",
		"tags": []string{vip.ID, "vip", "Partner"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Partner", "VIP"}, c.TagNames())

	tags, err := svcs.Tags.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestResolveTagsIsIdempotent(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	first, err := svcs.Clients.ResolveTags(ctx, []string{"日本", "Москва"})
	require.NoError(t, err)
	again, err := svcs.Clients.ResolveTags(ctx, []string{"日本", "Москва"})
	require.NoError(t, err)
	assert.Equal(t, first, again)

	tag, err := svcs.Tags.Resolve(ctx, "日本")
	require.NoError(t, err)
	assert.Equal(t, first[0], tag.ID)
	assert.Equal(t, "日本", tag.Slug)

	tags, err := svcs.Tags.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestTagNamesWithoutLettersAreRejected(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	_, err := svcs.Clients.ResolveTags(ctx, []string{"vip", "!!!", "???"})
	assert.Equal(t, []string{"invalid_tag", "invalid_tag"}, validationCodes(t, err))

	_, err = svcs.Tags.Resolve(ctx, "!!!")
	assert.Equal(t, []string{"invalid_tag"}, validationCodes(t, err))

	_, err = svcs.Clients.Create(ctx, record.Attributes{"name": "Acme", "tags": []string{"!!!"}})
	assert.Equal(t, []string{"invalid_tag"}, validationCodes(t, err))

	n, err := svcs.Clients.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	tags, err := svcs.Tags.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestCreateReportsEveryViolation(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	_, err := svcs.Clients.Create(ctx, record.Attributes{
		"name":    "",
		"email":   "not-an-email",
		"website": "not a url",
	})
	assert.ElementsMatch(t, []string{"name_required", "invalid_email", "invalid_website"}, validationCodes(t, err))

	_, err = svcs.Clients.Create(ctx, record.Attributes{"name": strings.Repeat("a", MaxClientNameLength+1)})
	assert.Equal(t, []string{"name_too_long"}, validationCodes(t, err))

	count, err := svcs.Clients.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestValidateAcceptsWellFormedContactDetails(t *testing.T) {
	svcs, _ := setupServices(t)

	c := record.NewClient("Initech")
	c.SetEmail("bill@initech.test")
	c.SetWebsite("https://initech.test/about")
	assert.NoError(t, svcs.Clients.Validate(context.Background(), c, ""))

	c.SetEmail("Bill <bill@initech.test>")
	assert.Equal(t, []string{"invalid_email"}, validationCodes(t, svcs.Clients.Validate(context.Background(), c, "")))

	c.SetEmail("bill@localhost")
	assert.Equal(t, []string{"invalid_email"}, validationCodes(t, svcs.Clients.Validate(context.Background(), c, "")))
}

func TestExplicitSlugMustBeUnique(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	acme, err := svcs.Clients.Create(ctx, record.Attributes{"name": "Acme"})
	require.NoError(t, err)

	_, err = svcs.Clients.Create(ctx, record.Attributes{"name": "Other", "slug": "acme"})
	assert.Equal(t, []string{"slug_exists"}, validationCodes(t, err))

	// A second client with the same name gets a suffixed slug instead.
	second, err := svcs.Clients.Create(ctx, record.Attributes{"name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "acme-1", second.Slug)

	updated, err := svcs.Clients.Update(ctx, acme.ID, record.Attributes{"slug": "acme", "industry": "Rockets"})
	require.NoError(t, err)
	assert.Equal(t, "acme", updated.Slug)
	assert.Equal(t, "Rockets", updated.Industry())
}

func TestExtraRulesRunAfterBuiltIns(t *testing.T) {
	noGlobex := func(ctx context.Context, c *record.Client, excludeID string, errs *constellation.ValidationError) {
		if strings.Contains(strings.ToLower(c.Name), "globex") {
			errs.Add("name_banned", "Globex is not welcome.")
		}
	}
	svcs, _ := setupServices(t, WithRule(noGlobex))

	_, err := svcs.Clients.Create(context.Background(), record.Attributes{"name": "Globex", "email": "x"})
	assert.Equal(t, []string{"invalid_email", "name_banned"}, validationCodes(t, err))
}

func TestUpdateSyncsTagsOnlyWhenGiven(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	c, err := svcs.Clients.Create(ctx, record.Attributes{"name": "Hooli", "tags": "vip, partner"})
	require.NoError(t, err)
	require.Equal(t, []string{"partner", "vip"}, c.TagNames())

	c, err = svcs.Clients.Update(ctx, c.ID, record.Attributes{"status": record.StatusProspect})
	require.NoError(t, err)
	tags, err := svcs.Clients.Tags(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
	assert.Equal(t, record.StatusProspect, c.Status)

	c, err = svcs.Clients.Update(ctx, c.ID, record.Attributes{"tags": []any{}})
	require.NoError(t, err)
	assert.Empty(t, c.TagNames())

	_, err = svcs.Clients.Update(ctx, c.ID, record.Attributes{"tags": []any{"vip", 7}})
	assert.Equal(t, []string{"invalid_tags"}, validationCodes(t, err))
}

func TestUpdateMissingClient(t *testing.T) {
	svcs, _ := setupServices(t)

	_, err := svcs.Clients.Update(context.Background(), record.NewID(), record.Attributes{"name": "Ghost"})
	assert.True(t, constellation.IsNotFound(err))
}

func TestListenersSeeEveryEvent(t *testing.T) {
	var mu sync.Mutex
	var seen []EventType
	var original string
	listener := func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
		if e.Type == AfterUpdate {
			original = e.Original.Name
		}
		return nil
	}
	svcs, _ := setupServices(t, WithListener(listener))
	ctx := context.Background()

	c, err := svcs.Clients.Create(ctx, record.Attributes{"name": "Umbrella"})
	require.NoError(t, err)
	_, err = svcs.Clients.Update(ctx, c.ID, record.Attributes{"name": "Umbrella Corp"})
	require.NoError(t, err)
	removed, err := svcs.Clients.Delete(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Equal(t, []EventType{BeforeCreate, AfterCreate, BeforeUpdate, AfterUpdate, BeforeDelete, AfterDelete}, seen)
	assert.Equal(t, "Umbrella", original)
}

func TestFailingListenersAreLoggedAndIgnored(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	failing := func(ctx context.Context, e Event) error { return errors.New("mailer down") }
	panicking := func(ctx context.Context, e Event) error { panic("boom") }

	svcs, _ := setupServices(t, WithLogger(zap.New(core)), WithListener(failing), WithListener(panicking))

	c, err := svcs.Clients.Create(context.Background(), record.Attributes{"name": "Soylent"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	failures := logs.FilterMessage("client listener failed")
	assert.Equal(t, 4, failures.Len())
	assert.Equal(t, "mailer down", failures.All()[0].ContextMap()["error"])
}

func TestDeleteMissingClient(t *testing.T) {
	svcs, _ := setupServices(t)

	removed, err := svcs.Clients.Delete(context.Background(), record.NewID())
	assert.False(t, removed)
	assert.True(t, constellation.IsNotFound(err))
}

func TestCountsByStatusIncludesEveryStatus(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"A", "B", "C"} {
		c, err := svcs.Clients.Create(ctx, record.Attributes{"name": name})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	archived, err := svcs.Clients.Archive(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, record.StatusArchived, archived.Status)

	counts, err := svcs.Clients.CountsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		record.StatusActive:   2,
		record.StatusInactive: 0,
		record.StatusProspect: 0,
		record.StatusArchived: 1,
		"all":                 3,
	}, counts)

	active, err := svcs.Clients.Activate(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, active.IsActive())
}

func TestListAndSearch(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	_, err := svcs.Clients.Create(ctx, record.Attributes{"name": "Wayne Enterprises", "tags": []string{"gotham"}})
	require.NoError(t, err)
	_, err = svcs.Clients.Create(ctx, record.Attributes{"name": "Daily Planet", "status": record.StatusInactive})
	require.NoError(t, err)
	_, err = svcs.Clients.Create(ctx, record.Attributes{"name": "Ace Chemicals", "tags": []string{"gotham"}})
	require.NoError(t, err)

	all, err := svcs.Clients.List(ctx, ListOptions{WithTags: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Ace Chemicals", all[0].Name)
	assert.Equal(t, []string{"gotham"}, all[0].TagNames())

	inactive, err := svcs.Clients.List(ctx, ListOptions{Status: record.StatusInactive})
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, "Daily Planet", inactive[0].Name)

	found, err := svcs.Clients.Search(ctx, "gotham", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, []string{"gotham"}, found[1].TagNames())

	found, err = svcs.Clients.Search(ctx, "gotham", SearchOptions{Limit: 1, SkipTags: true})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Nil(t, found[0].Tags)
}

func TestAddAndRemoveTag(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	c, err := svcs.Clients.Create(ctx, record.Attributes{"name": "Stark"})
	require.NoError(t, err)
	tag, err := svcs.Tags.Resolve(ctx, "Defense")
	require.NoError(t, err)

	require.NoError(t, svcs.Clients.AddTag(ctx, c.ID, tag.ID))
	require.NoError(t, svcs.Clients.AddTag(ctx, c.ID, tag.ID))

	ids, err := svcs.Tags.Clients(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, ids)

	require.NoError(t, svcs.Clients.RemoveTag(ctx, c.ID, tag.ID))
	tags, err := svcs.Tags.ForClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestExportRowsCarryTagNames(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	_, err := svcs.Clients.Create(ctx, record.Attributes{"name": "Zorg", "email": "z@zorg.test"})
	require.NoError(t, err)
	_, err = svcs.Clients.Create(ctx, record.Attributes{"name": "Cyberdyne", "tags": []string{"ai", "defense"}})
	require.NoError(t, err)

	rows, err := svcs.Clients.Export(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Cyberdyne", rows[0].Name)
	assert.Equal(t, []string{"ai", "defense"}, rows[0].Tags)
	assert.Equal(t, "z@zorg.test", rows[1].Data.GetString(record.KeyEmail))
	assert.Empty(t, rows[1].Tags)
}

func TestTagValidation(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	_, err := svcs.Tags.Create(ctx, record.Attributes{"name": "", "color": "blue"})
	assert.Equal(t, []string{"name_required", "invalid_color"}, validationCodes(t, err))

	_, err = svcs.Tags.Create(ctx, record.Attributes{"name": strings.Repeat("t", MaxTagNameLength+1)})
	assert.Equal(t, []string{"name_too_long"}, validationCodes(t, err))

	tag, err := svcs.Tags.Create(ctx, record.Attributes{"name": "Gold", "description": "  Top tier  "})
	require.NoError(t, err)
	assert.Equal(t, record.DefaultColor, tag.Color)
	assert.Equal(t, "Top tier", tag.Description)

	tag, err = svcs.Tags.Update(ctx, tag.ID, record.Attributes{"color": "#10B981"})
	require.NoError(t, err)
	assert.Equal(t, "#10b981", tag.Color)
}

func TestMergeTags(t *testing.T) {
	svcs, _ := setupServices(t)
	ctx := context.Background()

	a, err := svcs.Clients.Create(ctx, record.Attributes{"name": "Alpha", "tags": []string{"customer", "client"}})
	require.NoError(t, err)
	b, err := svcs.Clients.Create(ctx, record.Attributes{"name": "Beta", "tags": []string{"client"}})
	require.NoError(t, err)

	src, err := svcs.Tags.GetBySlug(ctx, "client")
	require.NoError(t, err)
	dst, err := svcs.Tags.GetBySlug(ctx, "customer")
	require.NoError(t, err)

	_, err = svcs.Tags.Merge(ctx, src.ID, src.ID)
	assert.Equal(t, []string{"merge_same_tag"}, validationCodes(t, err))

	_, err = svcs.Tags.Merge(ctx, src.ID, record.NewID())
	assert.True(t, constellation.IsNotFound(err))

	merged, err := svcs.Tags.Merge(ctx, src.ID, dst.ID)
	require.NoError(t, err)
	assert.True(t, merged)

	counts, err := svcs.Tags.ListWithCounts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, "customer", counts[0].Name)
	assert.EqualValues(t, 2, counts[0].ClientCount)

	for _, id := range []string{a.ID, b.ID} {
		tags, err := svcs.Tags.ForClient(ctx, id)
		require.NoError(t, err)
		require.Len(t, tags, 1)
		assert.Equal(t, dst.ID, tags[0].ID)
	}
}
