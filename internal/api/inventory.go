package api

import (
	"net/http"
	"strconv"

	"stockscan/internal/middleware"
	"stockscan/internal/notify"
)

type itemRequest struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
	Quantity *int    `json:"quantity"`
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, s.Inventory.Filter(r.URL.Query().Get("q")))
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	item, err := s.Inventory.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, item)
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if req.Name == nil || req.Quantity == nil {
		badRequest(w, r, "name and quantity are required")
		return
	}
	category := ""
	if req.Category != nil {
		category = *req.Category
	}

	item, err := s.Inventory.Add(*req.Name, category, *req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	notify.Success(s.Notifier, "", "Inventory item added")
	middleware.WriteAPISuccessStatus(w, r, http.StatusCreated, item)
}

// updateItem applies the fields present in the body; absent fields keep
// their current value.
func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}

	current, err := s.Inventory.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Category != nil {
		current.Category = *req.Category
	}
	if req.Quantity != nil {
		current.Quantity = *req.Quantity
	}

	item, err := s.Inventory.Update(id, current.Name, current.Category, current.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	notify.Success(s.Notifier, "", "Inventory item updated")
	middleware.WriteAPISuccess(w, r, item)
}

// deleteItem succeeds whether or not the item existed.
func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	removed := s.Inventory.Delete(id)
	if removed {
		notify.Success(s.Notifier, "", "Item removed from inventory")
	}
	middleware.WriteAPISuccess(w, r, map[string]bool{"removed": removed})
}

func itemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		badRequest(w, r, "item id must be a positive integer")
		return 0, false
	}
	return id, true
}
