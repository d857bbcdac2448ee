package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tessera.estate/internal/money"
	"tessera.estate/internal/protocol"
	"tessera.estate/internal/sim/market"
	"tessera.estate/internal/sim/multinet"
	"tessera.estate/internal/sim/network"
)

func testConfig(id string) network.Config {
	return network.Config{
		NetworkID: id,
		Seed:      42,
		ConditionTable: market.TransitionWeights{
			market.Stable: {market.Stable: 1},
		},
		DriftTable: market.DriftTable{market.Stable: {MinBps: 0, MaxBps: 0}},
		Genesis: network.Genesis{
			Participants: []network.GenesisParticipant{
				{ID: "foundation", Role: market.RoleFoundation, Balance: money.Cents(10_000_000)},
				{ID: "alice", Role: market.RoleInvestor, Balance: money.Cents(1_000_000)},
			},
			Properties: []network.GenesisProperty{
				{ID: "prop-1", TotalTokens: 100_000, Valuation: money.Cents(50_000_000), RentYieldBps: 120},
			},
		},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *multinet.Manager) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	runtimes := map[string]*multinet.Runtime{}
	for _, id := range []string{"net-a", "net-b"} {
		s, err := network.NewSession(testConfig(id), logger)
		require.NoError(t, err)
		runtimes[id] = &multinet.Runtime{Session: s, Clock: network.NewClock(s)}
	}
	mgr, err := multinet.NewManager(runtimes, "net-a")
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(mgr, logger).Router())
	t.Cleanup(srv.Close)
	return srv, mgr
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out any) int {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestListNetworks(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Networks []struct {
			ID      string `json:"id"`
			Default bool   `json:"default"`
		} `json:"networks"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/networks", &body))
	require.Len(t, body.Networks, 2)
	require.Equal(t, "net-a", body.Networks[0].ID)
	require.True(t, body.Networks[0].Default)
	require.False(t, body.Networks[1].Default)
}

func TestUnknownNetworkIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	require.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/networks/net-z/market", &body))
	require.Equal(t, protocol.ErrNetworkNotFound, body["code"])
}

func TestClockStatusAndControl(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/v1/networks/net-a"

	var st protocol.ClockStatus
	require.Equal(t, http.StatusOK, getJSON(t, base+"/clock", &st))
	require.Equal(t, "net-a", st.NetworkID)
	require.Equal(t, network.ModeAuto, st.Mode)
	require.Equal(t, 0, st.Month)

	require.Equal(t, http.StatusOK, postJSON(t, base+"/clock/interval", map[string]int{"seconds": 60}, &st))
	require.Equal(t, 60, st.IntervalSeconds)

	require.Equal(t, http.StatusOK, postJSON(t, base+"/clock/pause", nil, &st))
	require.Equal(t, network.ModePaused, st.Mode)
	require.Equal(t, http.StatusOK, postJSON(t, base+"/clock/resume", nil, &st))
	require.Equal(t, network.ModeAuto, st.Mode)

	code := postJSON(t, base+"/clock/mode", map[string]string{"mode": "warp"}, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestClockIntervalPresets(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/v1/networks/net-a"

	// The default preset table rides along with the status.
	var st protocol.ClockStatus
	require.Equal(t, http.StatusOK, getJSON(t, base+"/clock", &st))
	require.Equal(t, 60, st.IntervalPresets["fast"])
	require.Equal(t, 3600, st.IntervalPresets["hourly"])

	require.Equal(t, http.StatusOK, postJSON(t, base+"/clock/interval", map[string]string{"preset": "fast"}, &st))
	require.Equal(t, 60, st.IntervalSeconds)

	require.Equal(t, http.StatusOK, postJSON(t, base+"/clock/interval", map[string]string{"preset": "hourly"}, &st))
	require.Equal(t, 3600, st.IntervalSeconds)

	code := postJSON(t, base+"/clock/interval", map[string]string{"preset": "ludicrous"}, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestSubmitAndForceTick(t *testing.T) {
	srv, mgr := newTestServer(t)
	base := srv.URL + "/v1/networks/net-a"

	payload, _ := json.Marshal(protocol.BuyPayload{PropertyID: "prop-1", Tokens: 100})
	req := protocol.SubmitRequest{
		ActorID: "alice",
		Action:  protocol.ActionMsg{ID: "act-1", Type: protocol.ActionBuy, Payload: payload},
	}

	var receipt protocol.SubmitReceipt
	require.Equal(t, http.StatusOK, postJSON(t, base+"/actions", req, &receipt))
	require.True(t, receipt.Accepted)
	require.Equal(t, 1, receipt.QueuedForMonth)

	// Same action id again: the original receipt comes back flagged.
	var dup protocol.SubmitReceipt
	require.Equal(t, http.StatusOK, postJSON(t, base+"/actions", req, &dup))
	require.True(t, dup.Duplicate)
	require.Equal(t, receipt.ActionID, dup.ActionID)

	var tick struct {
		Month  int    `json:"month"`
		Digest string `json:"digest"`
	}
	require.Equal(t, http.StatusOK, postJSON(t, base+"/clock/force-tick", nil, &tick))
	require.Equal(t, 1, tick.Month)
	require.NotEmpty(t, tick.Digest)
	require.Equal(t, 1, mgr.Runtime("net-a").Session.Month())

	// net-b shares nothing with net-a.
	require.Equal(t, 0, mgr.Runtime("net-b").Session.Month())
}

func TestSubmitRejectionIs422(t *testing.T) {
	srv, _ := newTestServer(t)

	payload, _ := json.Marshal(protocol.BuyPayload{PropertyID: "prop-1", Tokens: 100})
	req := protocol.SubmitRequest{
		ActorID: "nobody",
		Action:  protocol.ActionMsg{Type: protocol.ActionBuy, Payload: payload},
	}
	var receipt protocol.SubmitReceipt
	code := postJSON(t, srv.URL+"/v1/networks/net-a/actions", req, &receipt)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.False(t, receipt.Accepted)
	require.Equal(t, protocol.ErrUnknownActor, receipt.Code)
}

func TestMarketAndLedgerReads(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/v1/networks/net-a"

	var snap market.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, base+"/market", &snap))
	require.Equal(t, "net-a", snap.NetworkID)
	require.Len(t, snap.Properties, 1)

	var ledgerBody struct {
		Entries []struct {
			Type string `json:"type"`
			To   string `json:"to"`
		} `json:"entries"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, base+"/ledger?participant=alice", &ledgerBody))
	require.Len(t, ledgerBody.Entries, 1)
	require.Equal(t, "alice", ledgerBody.Entries[0].To)

	var healing network.HealingState
	require.Equal(t, http.StatusOK, getJSON(t, base+"/healing", &healing))
	require.NotNil(t, healing.Weights)
}
