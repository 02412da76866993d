package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"confidential-revote/encryption"
	"confidential-revote/service"
	"confidential-revote/storage"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	t      *testing.T
	ts     *httptest.Server
	scheme *encryption.PaillierAdapter
}

func newEnv(t *testing.T) *testEnv {
	scheme := encryption.NewPaillierAdapter(512, nil)
	require.NoError(t, scheme.Initialize())

	vs, err := service.NewVotingService(storage.NewMemoryStore(), scheme, service.Options{Difficulty: 1})
	require.NoError(t, err)

	ts := httptest.NewServer(NewServer(vs, time.Minute).Handler())
	t.Cleanup(ts.Close)
	return &testEnv{t: t, ts: ts, scheme: scheme}
}

// do sends a request, signing it with kp when kp is non-nil, and decodes
// the JSON response into out.
func (e *testEnv) do(method, path string, body interface{}, kp *encryption.Keypair, out interface{}) int {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(e.t, err)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, bytes.NewReader(raw))
	require.NoError(e.t, err)
	if kp != nil {
		require.NoError(e.t, SignRequest(req, raw, kp.PrivateKey, time.Now()))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) ballot(option uint64) VoteRequest {
	var nk NetworkKeyResponse
	require.Equal(e.t, http.StatusOK, e.do("GET", "/api/network-key", nil, nil, &nk))
	raw, err := hexutil.Decode(nk.PublicKey)
	require.NoError(e.t, err)
	pub, err := encryption.ParseNetworkKey(raw)
	require.NoError(e.t, err)
	typ, err := encryption.TypeForWidth(nk.BallotWidth)
	require.NoError(e.t, err)

	ct, err := encryption.EncryptInput(pub, option, typ)
	require.NoError(e.t, err)
	return VoteRequest{EncryptedOption: hexutil.Encode(ct.Bytes())}
}

func keypair(t *testing.T) *encryption.Keypair {
	kp, err := encryption.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func TestServer_PollLifecycle(t *testing.T) {
	e := newEnv(t)
	alice, bob := keypair(t), keypair(t)

	var fee map[string]string
	require.Equal(t, http.StatusOK, e.do("GET", "/api/fee", nil, nil, &fee))

	var created CreatePollResponse
	status := e.do("POST", "/api/polls", CreatePollRequest{
		Question: "tabs or spaces?",
		Options:  []string{"tabs", "spaces"},
		Fee:      fee["fee"],
	}, alice, &created)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, uint64(0), created.PollID)

	var voted VoteResponse
	require.Equal(t, http.StatusCreated, e.do("POST", "/api/polls/0/votes", e.ballot(1), bob, &voted))
	require.NotEmpty(t, voted.ReceiptID)

	var errResp ErrorResponse
	require.Equal(t, http.StatusConflict, e.do("POST", "/api/polls/0/votes", e.ballot(0), bob, &errResp))
	require.Equal(t, "DoubleVotingNotAllowed", errResp.Error)

	var results ResultsResponse
	require.Equal(t, http.StatusOK, e.do("GET", "/api/polls/0/results?public_key="+hexutil.Encode(alice.PublicKey()), nil, nil, &results))
	require.Len(t, results.Results, 2)
	for i, want := range []uint64{0, 1} {
		sealed, err := hexutil.Decode(results.Results[i])
		require.NoError(t, err)
		got, _, err := alice.Decrypt(sealed)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	var own OwnBallotResponse
	require.Equal(t, http.StatusOK, e.do("GET", "/api/polls/0/my-vote?public_key="+hexutil.Encode(bob.PublicKey()), nil, bob, &own))
	sealed, err := hexutil.Decode(own.Ballot)
	require.NoError(t, err)
	choice, _, err := bob.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, uint64(1), choice)

	require.Equal(t, http.StatusNotFound, e.do("GET", "/api/polls/0/my-vote?public_key="+hexutil.Encode(alice.PublicKey()), nil, alice, &errResp))
	require.Equal(t, "BallotNotFound", errResp.Error)

	var byCreator map[string][]uint64
	require.Equal(t, http.StatusOK, e.do("GET", "/api/creators/"+alice.Address().Hex()+"/polls", nil, nil, &byCreator))
	require.Equal(t, []uint64{0}, byCreator["poll_ids"])

	var poll PollResponse
	require.Equal(t, http.StatusOK, e.do("GET", "/api/polls/0", nil, nil, &poll))
	require.Equal(t, []string{"tabs", "spaces"}, poll.Options)
	require.Len(t, poll.Tally, 2)
	require.NotEmpty(t, voted.Handle)

	var validation struct {
		IsValid    bool `json:"is_valid"`
		BlockCount int  `json:"block_count"`
	}
	require.Equal(t, http.StatusOK, e.do("GET", "/api/ledger/validate", nil, nil, &validation))
	require.True(t, validation.IsValid)
	require.Equal(t, 2, validation.BlockCount)
}

func TestServer_Errors(t *testing.T) {
	e := newEnv(t)
	alice := keypair(t)
	var errResp ErrorResponse

	require.Equal(t, http.StatusPaymentRequired, e.do("POST", "/api/polls", CreatePollRequest{
		Question: "q", Options: []string{"a", "b"}, Fee: "1",
	}, alice, &errResp))
	require.Equal(t, "InsufficientFee", errResp.Error)

	require.Equal(t, http.StatusBadRequest, e.do("POST", "/api/polls", CreatePollRequest{
		Question: "q", Options: []string{"a"}, Fee: service.DefaultMinimumFee.Dec(),
	}, alice, &errResp))
	require.Equal(t, "InvalidOptionCount", errResp.Error)

	require.Equal(t, http.StatusNotFound, e.do("GET", "/api/polls/5", nil, nil, &errResp))
	require.Equal(t, "PollNotFound", errResp.Error)

	require.Equal(t, http.StatusNotFound, e.do("POST", "/api/polls/5/votes", e.ballot(0), alice, &errResp))

	require.Equal(t, http.StatusBadRequest, e.do("GET", "/api/polls/abc", nil, nil, nil))
	require.Equal(t, http.StatusBadRequest, e.do("GET", "/api/creators/nobody/polls", nil, nil, nil))
	require.Equal(t, http.StatusBadRequest, e.do("GET", "/api/polls/0/results", nil, nil, nil))
}

func TestServer_Unauthorized(t *testing.T) {
	e := newEnv(t)
	alice := keypair(t)
	var errResp ErrorResponse

	body := CreatePollRequest{Question: "q", Options: []string{"a", "b"}, Fee: service.DefaultMinimumFee.Dec()}
	require.Equal(t, http.StatusUnauthorized, e.do("POST", "/api/polls", body, nil, &errResp))
	require.Equal(t, "Unauthorized", errResp.Error)

	// Stale timestamps are rejected even with a valid signature.
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", e.ts.URL+"/api/polls", bytes.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, SignRequest(req, raw, alice.PrivateKey, time.Now().Add(-time.Hour)))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Replay(t *testing.T) {
	e := newEnv(t)
	alice := keypair(t)

	raw, err := json.Marshal(CreatePollRequest{Question: "q", Options: []string{"a", "b"}, Fee: service.DefaultMinimumFee.Dec()})
	require.NoError(t, err)
	req, err := http.NewRequest("POST", e.ts.URL+"/api/polls", bytes.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, SignRequest(req, raw, alice.PrivateKey, time.Now()))

	send := func() int {
		replay, err := http.NewRequest(req.Method, req.URL.String(), bytes.NewReader(raw))
		require.NoError(t, err)
		replay.Header = req.Header.Clone()
		resp, err := http.DefaultClient.Do(replay)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	require.Equal(t, http.StatusCreated, send())
	require.Equal(t, http.StatusUnauthorized, send())

	var polls []PollResponse
	require.Equal(t, http.StatusOK, e.do("GET", "/api/polls", nil, nil, &polls))
	require.Len(t, polls, 1)
}

func TestReplayCache(t *testing.T) {
	c := newReplayCache()
	now := time.Unix(1000, 0)

	require.True(t, c.remember("a", now.Add(time.Minute), now))
	require.False(t, c.remember("a", now.Add(time.Minute), now.Add(30*time.Second)))
	require.True(t, c.remember("b", now.Add(time.Minute), now))

	// Expired entries are dropped.
	later := now.Add(2 * time.Minute)
	require.True(t, c.remember("a", later.Add(time.Minute), later))
	require.Len(t, c.seen, 1)
}
