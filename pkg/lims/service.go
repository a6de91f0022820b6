package lims

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/labtrack/lims/pkg/common/logger"
	"github.com/labtrack/lims/pkg/observability/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns the store handle and the optional side channels (cache,
// events, metrics). Each mutation runs in its own transaction.
type Service struct {
	db      *gorm.DB
	cache   Cache
	events  Publisher
	metrics *metrics.Metrics
	paging  PageConfig
	now     func() time.Time
	// sideEffectTimeout bounds cache invalidation and event publishing
	// after a commit.
	sideEffectTimeout time.Duration
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPaging(c PageConfig) Option {
	return func(s *Service) { s.paging = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSideEffectTimeout bounds the post-commit cache and event calls.
func WithSideEffectTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sideEffectTimeout = d
		}
	}
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:     db,
		cache:  nopCache{},
		events: nopPublisher{},
		paging: DefaultPageConfig(),
		now:    time.Now,

		sideEffectTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates every table and foreign key.
func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return &StoreError{Op: "migrate", Err: err}
	}
	return nil
}

// Ping checks the store connection.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Service) Paging() PageConfig { return s.paging }

func (s *Service) importContext(ctx context.Context, tx *gorm.DB, mode Mode) *importContext {
	return &importContext{ctx: ctx, tx: tx, mode: mode, now: s.now().UTC()}
}

// fail classifies err and records it.
func (s *Service) fail(ctx context.Context, resource, op string, err error) error {
	err = translate(op+" "+resource, err)
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		s.metrics.ObserveValidationFailure(resource, ve.Field)
		logger.FromContext(ctx).WithError(err).Debug("rejected payload")
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		logger.FromContext(ctx).WithError(err).Warn("request refused")
	default:
		s.metrics.ObserveStoreError(op)
		logger.FromContext(ctx).WithError(err).WithField("resource", resource).Error("store failure")
	}
	return err
}

// committed runs the post-commit side effects. Their failures are logged
// only; the write already happened. They run on a context detached from the
// request so a client hanging up cannot skip them, bounded so a slow broker
// cannot hold the response.
func (s *Service) committed(reqCtx context.Context, resource, collection, action string, id uint) {
	s.metrics.ObserveMutation(resource, action)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), s.sideEffectTimeout)
	defer cancel()

	var err error
	switch action {
	case "updated":
		err = s.cache.Invalidate(ctx, collection, id)
	case "deleted":
		err = s.cache.Flush(ctx)
	}
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("failed to invalidate view cache")
	}

	event := changeEvent(resource, action, id)
	key := collection + ":" + strconv.FormatUint(uint64(id), 10)
	if err := s.events.PublishEvent(ctx, key, event); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("event_type", event.Type).Warn("failed to publish change event")
	}
}

// Exists reports whether table holds a row with the given id.
func (s *Service) Exists(ctx context.Context, table string, id uint) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, &StoreError{Op: "lookup " + table, Err: err}
	}
	return n > 0, nil
}

// Create imports p in create mode and inserts the result. after runs inside
// the same transaction once the row has its id.
func Create[T Entity](ctx context.Context, s *Service, res *Resource[T], p Payload, after func(tx *gorm.DB, e *T) error) (*T, error) {
	var e T
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := res.Import(s.importContext(ctx, tx, ModeCreate), p, &e); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&e).Error; err != nil {
			return err
		}
		if after != nil {
			return after(tx, &e)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, res.Name, "create", err)
	}
	s.committed(ctx, res.Name, res.Collection, "created", e.PrimaryKey())
	return &e, nil
}

// Get loads one entity by id.
func Get[T Entity](ctx context.Context, s *Service, res *Resource[T], id uint) (*T, error) {
	var e T
	if err := s.db.WithContext(ctx).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.fail(ctx, res.Name, "get", notFound(res.Name, id))
		}
		return nil, s.fail(ctx, res.Name, "get", err)
	}
	return &e, nil
}

// View returns the exported JSON of one entity, served from the cache when
// possible. Callers only use it when l.Origin is fixed by configuration,
// since the cache keeps one rendering per origin.
func View[T Entity](ctx context.Context, s *Service, res *Resource[T], l Links, id uint) (json.RawMessage, error) {
	b, token, ok, err := s.cache.Get(ctx, res.Collection, id, l.Origin)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("view cache read failed")
	} else if ok {
		return b, nil
	}

	b, err = Render(ctx, s, res, l, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, res.Collection, id, l.Origin, token, b); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("view cache write failed")
	}
	return b, nil
}

// Render exports one entity without touching the cache.
func Render[T Entity](ctx context.Context, s *Service, res *Resource[T], l Links, id uint) (json.RawMessage, error) {
	e, err := Get(ctx, s, res, id)
	if err != nil {
		return nil, err
	}
	view, err := res.Export(l, e)
	if err != nil {
		return nil, s.fail(ctx, res.Name, "export", err)
	}
	b, err := json.Marshal(view)
	if err != nil {
		return nil, s.fail(ctx, res.Name, "export", err)
	}
	return b, nil
}

// Update applies p in update mode to the stored entity.
func Update[T Entity](ctx context.Context, s *Service, res *Resource[T], id uint, p Payload) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current T
		if err := tx.First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(res.Name, id)
			}
			return err
		}
		next := current
		if err := res.Import(s.importContext(ctx, tx, ModeUpdate), p, &next); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(&next).Error
	})
	if err != nil {
		return s.fail(ctx, res.Name, "update", err)
	}
	s.committed(ctx, res.Name, res.Collection, "updated", id)
	return nil
}

// Delete removes one entity. Rows still referenced through a required
// relation make the store refuse with ErrConflict.
func Delete[T Entity](ctx context.Context, s *Service, res *Resource[T], id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current T
		if err := tx.First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(res.Name, id)
			}
			return err
		}
		return tx.Delete(&current).Error
	})
	if err != nil {
		return s.fail(ctx, res.Name, "delete", err)
	}
	s.committed(ctx, res.Name, res.Collection, "deleted", id)
	return nil
}

// Scope narrows a list query, for example to one parent.
type Scope func(*gorm.DB) *gorm.DB

// List returns one page of exported views.
func List[T Entity](ctx context.Context, s *Service, res *Resource[T], l Links, scope Scope, req PageRequest, reqURL *url.URL) (*Page, error) {
	var model T
	q := s.db.WithContext(ctx).Model(&model)
	if scope != nil {
		q = scope(q)
	}
	items, total, err := paginate[T](q, req)
	if err != nil {
		return nil, s.fail(ctx, res.Name, "list", err)
	}
	views := make([]interface{}, 0, len(items))
	for i := range items {
		view, err := res.Export(l, &items[i])
		if err != nil {
			return nil, s.fail(ctx, res.Name, "export", err)
		}
		views = append(views, view)
	}
	return &Page{Items: views, Meta: buildMeta(l.Origin, reqURL, req, total)}, nil
}

// LinkCategoryInfo tags an info with a category. Linking twice is a no-op.
func (s *Service) LinkCategoryInfo(ctx context.Context, categoryID, infoID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, "categories", "category", categoryID); err != nil {
			return err
		}
		if err := requireRow(tx, "infos", "info", infoID); err != nil {
			return err
		}
		return linkCategoryInfo(tx, categoryID, infoID)
	})
	if err != nil {
		return s.fail(ctx, "category_info", "link", err)
	}
	s.metrics.ObserveMutation("category_info", "linked")
	return nil
}

// UnlinkCategoryInfo removes a tag. A missing link is ErrNotFound.
func (s *Service) UnlinkCategoryInfo(ctx context.Context, categoryID, infoID uint) error {
	res := s.db.WithContext(ctx).
		Where("category_id = ? AND info_id = ?", categoryID, infoID).
		Delete(&CategoryInfo{})
	if res.Error != nil {
		return s.fail(ctx, "category_info", "unlink", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.fail(ctx, "category_info", "unlink", notFound("category "+strconv.FormatUint(uint64(categoryID), 10)+" info", infoID))
	}
	s.metrics.ObserveMutation("category_info", "unlinked")
	return nil
}

func linkCategoryInfo(tx *gorm.DB, categoryID, infoID uint) error {
	link := CategoryInfo{CategoryID: categoryID, InfoID: infoID}
	return tx.Omit(clause.Associations).
		Where(CategoryInfo{CategoryID: categoryID, InfoID: infoID}).
		FirstOrCreate(&link).Error
}

func requireRow(tx *gorm.DB, table, resource string, id uint) error {
	var n int64
	if err := tx.Table(table).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return notFound(resource, id)
	}
	return nil
}

// Lookup finds the id of the first row whose column equals value.
func (s *Service) Lookup(ctx context.Context, table, column string, value interface{}) (uint, bool, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Table(table).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		Order("id").Limit(1).Pluck("id", &ids).Error
	if err != nil {
		return 0, false, &StoreError{Op: "lookup " + table, Err: err}
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}
