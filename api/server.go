package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"confidential-revote/encryption"
	"confidential-revote/models"
	"confidential-revote/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"go.dedis.ch/onet/v3/log"
)

type Server struct {
	votingService *service.VotingService
	crypto        *encryption.CryptoService
	maxClockSkew  time.Duration
	now           func() time.Time
	replays       *replayCache
	mux           *http.ServeMux
}

type CreatePollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Fee      string   `json:"fee"` // wei, decimal
}

type CreatePollResponse struct {
	PollID uint64 `json:"poll_id"`
}

type VoteRequest struct {
	EncryptedOption string `json:"encrypted_option"` // hex
}

type VoteResponse struct {
	PollID    uint64 `json:"poll_id"`
	ReceiptID string `json:"receipt_id"`
	Handle    string `json:"handle"`
}

type PollResponse struct {
	ID        uint64   `json:"id"`
	Creator   string   `json:"creator"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	Tally     []string `json:"tally"` // ciphertext handles
	FeePaid   string   `json:"fee_paid"`
	CreatedAt int64    `json:"created_at"`
}

type ResultsResponse struct {
	PollID  uint64   `json:"poll_id"`
	Results []string `json:"results"` // sealed counters, hex, option order
}

type OwnBallotResponse struct {
	PollID uint64 `json:"poll_id"`
	Ballot string `json:"ballot"` // sealed option, hex
}

type NetworkKeyResponse struct {
	Scheme      string `json:"scheme"`
	PublicKey   string `json:"public_key"`
	BallotType  string `json:"ballot_type"`
	BallotWidth int    `json:"ballot_width"`
	CounterType string `json:"counter_type"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewServer(vs *service.VotingService, maxClockSkew time.Duration) *Server {
	s := &Server{
		votingService: vs,
		crypto:        encryption.NewCryptoService(),
		maxClockSkew:  maxClockSkew,
		now:           time.Now,
		replays:       newReplayCache(),
		mux:           http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/fee", s.handleGetFee)
	s.mux.HandleFunc("GET /api/network-key", s.handleGetNetworkKey)
	s.mux.HandleFunc("POST /api/polls", s.authenticated(s.handleCreatePoll))
	s.mux.HandleFunc("GET /api/polls", s.handleGetPolls)
	s.mux.HandleFunc("GET /api/polls/{id}", s.handleGetPoll)
	s.mux.HandleFunc("GET /api/creators/{address}/polls", s.handleGetPollsByCreator)
	s.mux.HandleFunc("POST /api/polls/{id}/votes", s.authenticated(s.handleVote))
	s.mux.HandleFunc("GET /api/polls/{id}/results", s.handleGetResults)
	s.mux.HandleFunc("GET /api/polls/{id}/my-vote", s.authenticated(s.handleGetOwnBallot))
	s.mux.HandleFunc("GET /api/ledger", s.handleGetLedger)
	s.mux.HandleFunc("GET /api/ledger/validate", s.handleValidateLedger)
	s.mux.HandleFunc("GET /api/metrics", s.handleGetMetrics)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleGetFee(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"fee": s.votingService.PollCreationFee().Dec()})
}

func (s *Server) handleGetNetworkKey(w http.ResponseWriter, r *http.Request) {
	bt := s.votingService.BallotType()
	writeJSON(w, http.StatusOK, NetworkKeyResponse{
		Scheme:      s.votingService.SchemeName(),
		PublicKey:   hexutil.Encode(s.votingService.NetworkKey()),
		BallotType:  bt.String(),
		BallotWidth: bt.Bits(),
		CounterType: service.CounterType.String(),
	})
}

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	var req CreatePollRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	fee, err := uint256.FromDecimal(req.Fee)
	if err != nil {
		http.Error(w, "Invalid fee", http.StatusBadRequest)
		return
	}

	id, err := s.votingService.CreatePoll(caller, req.Question, req.Options, fee)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatePollResponse{PollID: id})
}

func (s *Server) handleGetPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := s.votingService.GetPolls()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pollResponses(polls))
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	poll, err := s.votingService.GetPollByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pollResponse(poll))
}

func (s *Server) handleGetPollsByCreator(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	if !common.IsHexAddress(addr) {
		http.Error(w, "Invalid address", http.StatusBadRequest)
		return
	}
	ids, err := s.votingService.GetPollsByCreator(common.HexToAddress(addr))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]uint64{"poll_ids": ids})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	var req VoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	option, err := decodeHex(req.EncryptedOption)
	if err != nil {
		http.Error(w, "Invalid encrypted_option", http.StatusBadRequest)
		return
	}

	ballot, err := s.votingService.Vote(caller, id, option)
	if err != nil {
		writeError(w, err)
		return
	}
	ct, _ := encryption.ParseCiphertext(ballot.EncryptedOption)
	writeJSON(w, http.StatusCreated, VoteResponse{
		PollID:    id,
		ReceiptID: ballot.ReceiptID,
		Handle:    ct.Handle(),
	})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	pub, ok := publicKey(w, r)
	if !ok {
		return
	}

	sealed, err := s.votingService.GetResults(id, pub)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := ResultsResponse{PollID: id, Results: make([]string, len(sealed))}
	for i, c := range sealed {
		resp.Results[i] = hexutil.Encode(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetOwnBallot(w http.ResponseWriter, r *http.Request, caller common.Address, _ []byte) {
	id, ok := pollID(w, r)
	if !ok {
		return
	}
	pub, ok := publicKey(w, r)
	if !ok {
		return
	}

	sealed, err := s.votingService.GetVoteByPollAndVoter(caller, id, pub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OwnBallotResponse{PollID: id, Ballot: hexutil.Encode(sealed)})
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := s.votingService.Ledger()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

func (s *Server) handleValidateLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := s.votingService.Ledger()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		IsValid    bool   `json:"is_valid"`
		Error      string `json:"error,omitempty"`
		BlockCount int    `json:"block_count"`
		LastHash   string `json:"last_hash"`
	}{
		IsValid:    ledger.IsValid,
		Error:      ledger.Error,
		BlockCount: ledger.BlockCount,
		LastHash:   ledger.LastHash,
	})
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.votingService.Metrics().GetMetrics())
}

func pollResponse(p *models.Poll) PollResponse {
	handles := make([]string, len(p.Tally))
	for i, raw := range p.Tally {
		if ct, err := encryption.ParseCiphertext(raw); err == nil {
			handles[i] = ct.Handle()
		}
	}
	return PollResponse{
		ID:        p.ID,
		Creator:   p.Creator.Hex(),
		Question:  p.Question,
		Options:   p.Options,
		Tally:     handles,
		FeePaid:   p.FeePaid,
		CreatedAt: p.CreatedAt,
	}
}

func pollResponses(polls []*models.Poll) []PollResponse {
	out := make([]PollResponse, len(polls))
	for i, p := range polls {
		out[i] = pollResponse(p)
	}
	return out
}

func pollID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid poll id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func publicKey(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	pub, err := decodeHex(r.URL.Query().Get("public_key"))
	if err != nil || len(pub) == 0 {
		http.Error(w, "Missing or invalid public_key", http.StatusBadRequest)
		return nil, false
	}
	return pub, true
}

// decodeHex accepts hex with or without a 0x prefix.
func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func statusFor(err error) int {
	if errors.Is(err, errUnauthorized) {
		return http.StatusUnauthorized
	}
	switch service.ErrorKind(err) {
	case "InsufficientFee":
		return http.StatusPaymentRequired
	case "PollNotFound", "BallotNotFound":
		return http.StatusNotFound
	case "DoubleVotingNotAllowed":
		return http.StatusConflict
	case "InvalidOptionCount", "InvalidCiphertext", "InvalidPublicKey", "IncorrectKeyPair":
		return http.StatusBadRequest
	case "ValueOutOfRange":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	kind := service.ErrorKind(err)
	if status == http.StatusUnauthorized {
		kind = "Unauthorized"
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed:", err)
	}
	writeJSON(w, status, ErrorResponse{Error: kind, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Lvl2("failed to write response:", err)
	}
}
