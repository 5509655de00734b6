package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwave-gw/zipgw/internal/core/domain"
)

func testServer() *Server {
	diag := Diagnostics{
		Nodes: func() []domain.NodeEntry {
			return []domain.NodeEntry{{NodeID: 7, State: domain.NodeDone}}
		},
		NMState: func() (domain.NMState, domain.NMFlags) { return domain.NMIdle, 0 },
		IPAssocs: func() []domain.IPAssociation {
			return []domain.IPAssociation{{VirtualID: 3, HanNode: 7}}
		},
	}
	return NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), ":0", diag)
}

func TestServer_HandleNodes(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest("GET", "/api/nodes", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body struct {
		Nodes []domain.NodeEntry `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Nodes, 1)
	assert.Equal(t, domain.NodeID(7), body.Nodes[0].NodeID)
}

func TestServer_HandleNMState(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest("GET", "/api/nms", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Idle", body.State)
}

func TestServer_HandleAssociations(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest("GET", "/api/associations", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body struct {
		Associations []domain.IPAssociation `json:"associations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Associations, 1)
	assert.Equal(t, domain.NodeID(3), body.Associations[0].VirtualID)
}
