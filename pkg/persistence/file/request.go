package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/persistence"
)

const requestsDir = "requests"

// RequestRepository handles request-related file operations.
type RequestRepository struct {
	p *Persistence
}

func (r *RequestRepository) Create(_ context.Context, request *models.Request) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var existing models.Request

	found, err := r.p.read(requestsDir, request.ID, &existing)
	if err != nil {
		return persistence.NewRequestError("Create", request.ID, err)
	}

	if found {
		return persistence.NewRequestError("Create", request.ID, persistence.ErrRequestAlreadyExists)
	}

	if err := r.p.write(requestsDir, request.ID, request); err != nil {
		return persistence.NewRequestError("Create", request.ID, err)
	}

	return nil
}

func (r *RequestRepository) GetByID(_ context.Context, id string) (*models.Request, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.get(id)
}

func (r *RequestRepository) get(id string) (*models.Request, error) {
	var request models.Request

	found, err := r.p.read(requestsDir, id, &request)
	if err != nil {
		return nil, persistence.NewRequestError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewRequestError("GetByID", id, persistence.ErrRequestNotFound)
	}

	return &request, nil
}

func (r *RequestRepository) List(_ context.Context, filter persistence.RequestFilter) ([]*models.Request, error) {
	filter = filter.Normalize()

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	ids, err := r.p.ids(requestsDir)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Request, 0, len(ids))

	for _, id := range ids {
		request, err := r.get(id)
		if err != nil {
			return nil, err
		}

		if filter.Matches(request) {
			matched = append(matched, request)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}

		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*models.Request{}, nil
	}

	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[filter.Offset:end], nil
}

func (r *RequestRepository) Transition(_ context.Context, id string, from models.RequestStatus, mutate func(*models.Request)) (*models.Request, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	request, err := r.get(id)
	if err != nil {
		return nil, err
	}

	if request.Status != from {
		return nil, persistence.NewRequestError("Transition", id, persistence.ErrStatusConflict)
	}

	mutate(request)
	request.ID = id
	request.UpdatedAt = time.Now().UTC()

	if err := r.p.write(requestsDir, id, request); err != nil {
		return nil, persistence.NewRequestError("Transition", id, err)
	}

	return request, nil
}
