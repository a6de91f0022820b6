package lims

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/labtrack/lims/pkg/common/models"
	"github.com/labtrack/lims/pkg/observability/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateRollsBackWhenHookFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := PayloadFromMap(map[string]interface{}{"name": "Blood"})
	require.NoError(t, err)
	_, err = Create(ctx, f.service, Categories, p, func(tx *gorm.DB, c *Category) error {
		return errors.New("boom")
	})
	var se *StoreError
	require.ErrorAs(t, err, &se)

	u, _ := url.Parse("/api/v1/categories")
	page, err := List(ctx, f.service, Categories, Links{Origin: testOrigin}, nil, PageRequest{Page: 1, PerPage: 10}, u)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, f.events.events)
}

func TestRequiredRelationFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := PayloadFromMap(map[string]interface{}{"pmid": "PM1", "batch_id": 5})
	require.NoError(t, err)
	_, err = Create(ctx, f.service, Samples, p, nil)
	assert.True(t, IsValidationError(err))

	var n int64
	require.NoError(t, f.service.db.Model(&Sample{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUpdateClearsOptionalRelation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mustCreate := func(res *Resource[Agency], fields map[string]interface{}) uint {
		p, err := PayloadFromMap(fields)
		require.NoError(t, err)
		e, err := Create(ctx, f.service, res, p, nil)
		require.NoError(t, err)
		return e.ID
	}
	agencyID := mustCreate(Agencies, map[string]interface{}{"name": "A"})

	p, _ := PayloadFromMap(map[string]interface{}{"name": "C", "agency_id": agencyID})
	contact, err := Create(ctx, f.service, Contacts, p, nil)
	require.NoError(t, err)

	p, _ = PayloadFromMap(map[string]interface{}{"express_num": "1", "agency_id": agencyID, "contact_id": contact.ID})
	batch, err := Create(ctx, f.service, Batches, p, nil)
	require.NoError(t, err)
	require.NotNil(t, batch.ContactID)

	require.NoError(t, Update(ctx, f.service, Batches, batch.ID, Payload{"contact_id": []byte("null")}))
	got, err := Get(ctx, f.service, Batches, batch.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ContactID)
	assert.Equal(t, agencyID, got.AgencyID)

	err = Update(ctx, f.service, Batches, batch.ID, Payload{"agency_id": []byte("null")})
	assert.True(t, IsValidationError(err))
}

func TestMutationsPublishEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, _ := PayloadFromMap(map[string]interface{}{"name": "P"})
	e, err := Create(ctx, f.service, Projects, p, nil)
	require.NoError(t, err)
	require.NoError(t, Update(ctx, f.service, Projects, e.ID, Payload{"name": []byte(`"Q"`)}))
	require.NoError(t, Delete(ctx, f.service, Projects, e.ID))

	assert.Equal(t, []string{"project.created", "project.updated", "project.deleted"}, f.events.types())
	last := f.events.events[2]
	assert.Equal(t, "lims", last.Source)
	assert.Equal(t, e.ID, last.Data["id"])
}

func TestServiceRecordsMetrics(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)
	f := newFixture(t, WithMetrics(m))
	ctx := context.Background()

	_, err = Create(ctx, f.service, Agencies, Payload{}, nil)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFailures.WithLabelValues("agency", "name")))

	p, _ := PayloadFromMap(map[string]interface{}{"name": "A"})
	_, err = Create(ctx, f.service, Agencies, p, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutations.WithLabelValues("agency", "created")))
}

func TestGetUnknownIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := Get(context.Background(), f.service, Results, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := PayloadFromMap(map[string]interface{}{"name": "Blood"})
	c, err := Create(ctx, f.service, Categories, p, nil)
	require.NoError(t, err)

	id, found, err := f.service.Lookup(ctx, "categories", "name", "Blood")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, c.ID, id)

	_, found, err = f.service.Lookup(ctx, "categories", "name", "Urine")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTranslate(t *testing.T) {
	assert.ErrorIs(t, translate("delete", gorm.ErrForeignKeyViolated), ErrConflict)
	assert.ErrorIs(t, translate("delete", errors.New("FOREIGN KEY constraint failed")), ErrConflict)

	ve := &ValidationError{Resource: "x", Field: "y", Message: "z"}
	assert.Same(t, ve, translate("create", ve))

	var se *StoreError
	assert.ErrorAs(t, translate("get", errors.New("disk full")), &se)
	assert.Nil(t, translate("get", nil))
}

type contextPublisher struct {
	err         error
	hasDeadline bool
}

func (p *contextPublisher) PublishEvent(ctx context.Context, _ string, _ models.Event) error {
	p.err = ctx.Err()
	_, p.hasDeadline = ctx.Deadline()
	return nil
}

func TestSideEffectsOutliveTheRequest(t *testing.T) {
	pub := &contextPublisher{}
	f := newFixture(t, WithPublisher(pub), WithSideEffectTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.service.committed(ctx, "agency", "agencies", "created", 1)

	assert.NoError(t, pub.err)
	assert.True(t, pub.hasDeadline)
}
