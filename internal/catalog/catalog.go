// Package catalog reads venues, studios, dishes and decorations from the
// shop API.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

type Query struct {
	Page   int
	Limit  int
	Sort   string
	Order  string // asc or desc
	Search string
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Sort != "" {
		v.Set("sortBy", q.Sort)
	}
	if q.Order != "" {
		v.Set("order", strings.ToLower(q.Order))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	return v
}

func (q Query) validate() error {
	if q.Order != "" && !strings.EqualFold(q.Order, "asc") && !strings.EqualFold(q.Order, "desc") {
		return &domain.ValidationError{Field: "order", Reason: "must be asc or desc"}
	}
	if q.Page < 0 || q.Limit < 0 {
		return &domain.ValidationError{Field: "page", Reason: "must not be negative"}
	}
	return nil
}

// sharedFetchTimeout bounds a fetch shared by concurrent Get callers.
const sharedFetchTimeout = 10 * time.Second

type Service struct {
	client *api.Client
	cache  Cache
	logger *slog.Logger
	sfg    singleflight.Group
}

func NewService(client *api.Client, cache Cache, log *slog.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{client: client, cache: cache, logger: log}
}

func (s *Service) List(ctx context.Context, kind domain.ItemType, q Query) (domain.Page[domain.CatalogEntity], error) {
	if err := q.validate(); err != nil {
		return domain.Page[domain.CatalogEntity]{}, err
	}
	env, err := s.client.DoEnvelope(ctx, http.MethodGet, "/api/"+kind.Plural(), nil, api.WithQuery(q.values()))
	if err != nil {
		return domain.Page[domain.CatalogEntity]{}, err
	}
	page, err := api.DecodePage[domain.CatalogEntity](env.Data)
	if err != nil {
		return domain.Page[domain.CatalogEntity]{}, err
	}
	tag(page.Items, kind)
	return page, nil
}

// Get reads one entity, from the cache when possible. Concurrent reads of
// the same entity share one request; a caller that gives up does not cancel
// it for the others.
func (s *Service) Get(ctx context.Context, kind domain.ItemType, id string) (*domain.CatalogEntity, error) {
	if id == "" {
		return nil, &domain.ValidationError{Field: "id", Reason: "required"}
	}
	ch := s.sfg.DoChan(cacheKey(kind, id), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return s.load(fetchCtx, kind, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		e := *res.Val.(*domain.CatalogEntity)
		return &e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) load(ctx context.Context, kind domain.ItemType, id string) (*domain.CatalogEntity, error) {
	log := logger.FromContext(ctx, s.logger)
	e, err := s.cache.Get(ctx, kind, id)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		log.WarnContext(ctx, "catalog cache get failed", "error", err)
	}

	var entity domain.CatalogEntity
	if err := s.client.Get(ctx, "/api/"+kind.Plural()+"/"+url.PathEscape(id), &entity); err != nil {
		return nil, err
	}
	entity.Kind = kind

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.cache.Set(ctx, &entity); err != nil {
			log.Warn("catalog cache set failed", "error", err)
		}
	}()
	return &entity, nil
}

// Search looks up one kind by name.
func (s *Service) Search(ctx context.Context, kind domain.ItemType, term string) ([]domain.CatalogEntity, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, &domain.ValidationError{Field: "q", Reason: "required"}
	}
	env, err := s.client.DoEnvelope(ctx, http.MethodGet, "/api/"+kind.Plural()+"/search", nil,
		api.WithQuery(url.Values{"q": {term}}))
	if err != nil {
		return nil, err
	}
	page, err := api.DecodePage[domain.CatalogEntity](env.Data)
	if err != nil {
		return nil, err
	}
	tag(page.Items, kind)
	return page.Items, nil
}

// SearchAll searches every kind at once and keys the results by kind.
// The first failure cancels the rest.
func (s *Service) SearchAll(ctx context.Context, term string) (map[domain.ItemType][]domain.CatalogEntity, error) {
	if strings.TrimSpace(term) == "" {
		return nil, &domain.ValidationError{Field: "q", Reason: "required"}
	}
	results := make([][]domain.CatalogEntity, len(domain.ItemTypes))
	g, ctx := errgroup.WithContext(ctx)
	for i, kind := range domain.ItemTypes {
		g.Go(func() error {
			found, err := s.Search(ctx, kind, term)
			if err != nil {
				return fmt.Errorf("search %s: %w", kind.Plural(), err)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[domain.ItemType][]domain.CatalogEntity, len(results))
	for i, kind := range domain.ItemTypes {
		out[kind] = results[i]
	}
	return out, nil
}

func tag(items []domain.CatalogEntity, kind domain.ItemType) {
	for i := range items {
		items[i].Kind = kind
	}
}
