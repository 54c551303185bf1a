package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/saylorsolutions/eventdemo/dispatch"
	"github.com/saylorsolutions/eventdemo/eventhttp"
	"github.com/saylorsolutions/eventdemo/httpx"
)

type fieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

type eventInfo struct {
	Name      dispatch.EventName `json:"name"`
	HasSchema bool               `json:"has_schema"`
	Fields    []fieldInfo        `json:"fields,omitempty"`
	Handlers  int                `json:"handlers"`
}

type eventList struct {
	Events []eventInfo `json:"events"`
}

type acceptedEvent struct {
	Event  dispatch.EventName `json:"event"`
	Status string             `json:"status"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(httpx.HeaderContentType, "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) listEvents(w http.ResponseWriter, _ *http.Request) error {
	list := eventList{Events: []eventInfo{}}
	for _, name := range s.reg.Events() {
		info := eventInfo{
			Name:     name,
			Handlers: s.reg.HandlerCount(name),
		}
		if schema, ok := s.reg.Schema(name); ok {
			info.HasSchema = true
			for _, f := range schema.Fields() {
				info.Fields = append(info.Fields, fieldInfo{
					Name:     f.Name,
					Type:     f.Type.String(),
					Optional: f.Optional,
				})
			}
		}
		list.Events = append(list.Events, info)
	}
	return httpx.WriteJSON(w, http.StatusOK, list)
}

// postEvent accepts a JSON object as the payload for the named event.
// The event is validated now, and dispatched once the response is written.
func (s *Server) postEvent(w http.ResponseWriter, r *http.Request) error {
	name := dispatch.EventName(chi.URLParam(r, "name"))
	var payload map[string]any
	if err := httpx.DecodeJSON(w, r, &payload); err != nil {
		return err
	}
	if payload == nil {
		return fmt.Errorf("%w: request body must be a JSON object", httpx.ErrClientError)
	}
	if err := eventhttp.Emit(r.Context(), name, payload); err != nil {
		return err
	}
	return httpx.WriteJSON(w, http.StatusAccepted, acceptedEvent{Event: name, Status: "accepted"})
}
