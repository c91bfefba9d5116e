package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/familycache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/localctrl/localctrlmock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/metastore/metastoremock"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/model"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/operatecache"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/resourcegroup"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/rolegate"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/roster"
	"github.com/wolfbolin/yuanrong-functionsystem-sub012/internal/scheduler/schedulermock"
)

func newTestServer(t *testing.T) (*Server, *metastoremock.MockClient) {
	ctrl := gomock.NewController(t)
	store := metastoremock.NewMockClient(ctrl)
	rpc := localctrlmock.NewMockClient(ctrl)
	sched := schedulermock.NewMockScheduler(ctrl)
	gate := rolegate.New()

	families := familycache.New(nil)
	families.Add(&model.InstanceInfo{InstanceID: "i1", JobID: "j1", Function: "f1", Extensions: map[string]string{"NAMED": "true"}})
	families.Add(&model.InstanceInfo{InstanceID: "i2", JobID: "j1", Function: "f2"})

	bundles := resourcegroup.New(store, operatecache.New(), rpc, sched, gate, nil)
	nodes := roster.NewNodeRoster()
	nodes.Add("n1", "n1:9000")

	return &Server{Families: families, Bundles: bundles, Nodes: nodes, Store: store}, store
}

func TestHandleNamedIns_ListsOnlyNamedInstances(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/instance-manager/named-ins", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp QueryNamedInsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"i1"}, resp.Names)
}

func TestHandleInstances_FiltersByJobID(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/instance-manager/instances?jobId=j1", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp QueryInstancesInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Instances, 2)
}

func TestHandleDebugInstance_NotFound(t *testing.T) {
	s, store := newTestServer(t)
	store.EXPECT().Get(gomock.Any(), model.DebugInstanceKey("ghost")).Return(metastore.KeyValue{}, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/instance-manager/debug-instances/ghost", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealthy_ReturnsOK(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/global-scheduler/healthy", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleNodes_ReturnsRosterSnapshot(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/global-scheduler/nodes", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp QueryNodesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "n1:9000", resp.Nodes["n1"])
}
