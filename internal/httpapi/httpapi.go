// Package httpapi exposes spec.md §6's HTTP surface on the
// instance-manager's port plus the SPEC_FULL.md-supplemented query
// routes, routed with gorilla/mux.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/familycache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/resourcegroup"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/roster"
)

// QueryNamedInsResponse is spec.md §6's response for
// GET /instance-manager/named-ins.
type QueryNamedInsResponse struct {
	Names []string `json:"names"`
}

// QueryInstancesInfoResponse is the SUPPLEMENTED full-snapshot query.
type QueryInstancesInfoResponse struct {
	Instances []*model.InstanceInfo `json:"instances"`
}

// QueryResourcesInfoResponse is spec.md §6's response for
// GET /global-scheduler/resources: every cached bundle, for operational
// visibility into current placement.
type QueryResourcesInfoResponse struct {
	Bundles []*model.BundleInfo `json:"bundles"`
}

// QueryNodesResponse is the SUPPLEMENTED roster snapshot query.
type QueryNodesResponse struct {
	Nodes map[string]string `json:"nodes"`
}

// Server holds the read-only collaborators httpapi routes query. It
// never mutates any component's state -- every handler is a GET.
type Server struct {
	Families *familycache.Cache
	Bundles  *resourcegroup.Manager
	Nodes    *roster.NodeRoster
	Store    metastore.Client
	Logger   *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Router builds the mux.Router carrying every route this server serves.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/instance-manager/named-ins", s.handleNamedIns).Methods(http.MethodGet)
	r.HandleFunc("/instance-manager/instances", s.handleInstances).Methods(http.MethodGet)
	r.HandleFunc("/instance-manager/debug-instances/{instanceId}", s.handleDebugInstance).Methods(http.MethodGet)
	r.HandleFunc("/global-scheduler/resources", s.handleResources).Methods(http.MethodGet)
	r.HandleFunc("/global-scheduler/healthy", s.handleHealthy).Methods(http.MethodGet)
	r.HandleFunc("/global-scheduler/nodes", s.handleNodes).Methods(http.MethodGet)
	return r
}

func (s *Server) handleNamedIns(w http.ResponseWriter, r *http.Request) {
	var names []string
	for _, inst := range s.Families.All() {
		if inst.Extensions["NAMED"] == "true" {
			names = append(names, inst.InstanceID)
		}
	}
	writeJSON(w, s.logger(), http.StatusOK, QueryNamedInsResponse{Names: names})
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	function := r.URL.Query().Get("function")

	all := s.Families.All()
	out := make([]*model.InstanceInfo, 0, len(all))
	for _, inst := range all {
		if jobID != "" && inst.JobID != jobID {
			continue
		}
		if function != "" && inst.Function != function {
			continue
		}
		out = append(out, inst)
	}
	writeJSON(w, s.logger(), http.StatusOK, QueryInstancesInfoResponse{Instances: out})
}

func (s *Server) handleDebugInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := mux.Vars(r)["instanceId"]
	kv, ok, err := s.Store.Get(r.Context(), model.DebugInstanceKey(instanceID))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	var info model.DebugInstanceInfo
	if err := json.Unmarshal(kv.Value, &info); err != nil {
		http.Error(w, "malformed debug instance record", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.logger(), http.StatusOK, info)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger(), http.StatusOK, QueryResourcesInfoResponse{Bundles: s.Bundles.Caches().AllBundles()})
}

func (s *Server) handleHealthy(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger(), http.StatusOK, QueryNodesResponse{Nodes: s.Nodes.Snapshot()})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("httpapi: encoding response failed", "err", err)
	}
}
