package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hackgods/appointment-booking-saga/internal/provider"
)

type ProviderService interface {
	Create(ctx context.Context, p provider.Provider) (*provider.Provider, error)
	Get(ctx context.Context, id int64) (*provider.Provider, error)
	List(ctx context.Context, specialty string) ([]provider.Provider, error)
	Update(ctx context.Context, p provider.Provider) (*provider.Provider, error)
	SetAvailability(ctx context.Context, id int64, available bool) (*provider.Provider, error)
}

func (req ProviderRequest) toProvider() provider.Provider {
	p := provider.Provider{
		Name:      req.Name,
		Email:     req.Email,
		Specialty: req.Specialty,
		Service:   req.Service,
		Available: true,
	}
	if req.Available != nil {
		p.Available = *req.Available
	}
	return p
}

// listProvidersHandler answers the discovery query. available=true is
// implied whenever a specialty is given.
func listProvidersHandler(svc ProviderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context(), r.URL.Query().Get("specialty"))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		onlyAvailable := r.URL.Query().Get("available") == "true"

		resp := ProviderListResponse{Providers: make([]ProviderResponse, 0, len(list))}
		for _, p := range list {
			if onlyAvailable && !p.Available {
				continue
			}
			resp.Providers = append(resp.Providers, toProviderResponse(p))
		}
		resp.Count = len(resp.Providers)

		writeJSON(w, http.StatusOK, resp)
	}
}

func createProviderHandler(svc ProviderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		created, err := svc.Create(r.Context(), req.toProvider())
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toProviderResponse(*created))
	}
}

func getProviderHandler(svc ProviderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a positive integer")
			return
		}

		p, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toProviderResponse(*p))
	}
}

func updateProviderHandler(svc ProviderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a positive integer")
			return
		}

		var req ProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		p := req.toProvider()
		p.ID = id
		updated, err := svc.Update(r.Context(), p)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toProviderResponse(*updated))
	}
}

func setProviderAvailabilityHandler(svc ProviderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a positive integer")
			return
		}

		var req AvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Available == nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "available must be a boolean")
			return
		}

		updated, err := svc.SetAvailability(r.Context(), id, *req.Available)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toProviderResponse(*updated))
	}
}
