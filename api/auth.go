package api

import (
	"bytes"
	"crypto/ecdsa"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"confidential-revote/encryption"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/xerrors"
)

const (
	HeaderTimestamp = "X-Revote-Timestamp"
	HeaderSignature = "X-Revote-Signature"

	maxBodyBytes = 1 << 20
)

var errUnauthorized = xerrors.New("unauthorized")

// RequestDigest is the Keccak-256 hash a caller signs to authenticate a
// request: method, request URI, unix timestamp and body, newline separated.
func RequestDigest(method, requestURI string, timestamp int64, body []byte) []byte {
	return encryption.NewCryptoService().Keccak256(
		[]byte(method), []byte("\n"),
		[]byte(requestURI), []byte("\n"),
		[]byte(strconv.FormatInt(timestamp, 10)), []byte("\n"),
		body,
	)
}

// SignRequest sets the authentication headers on req. body must be the
// exact bytes sent as the request body.
func SignRequest(req *http.Request, body []byte, key *ecdsa.PrivateKey, now time.Time) error {
	ts := now.Unix()
	sig, err := encryption.NewCryptoService().Sign(RequestDigest(req.Method, req.URL.RequestURI(), ts, body), key)
	if err != nil {
		return xerrors.Errorf("failed to sign request: %w", err)
	}
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, hexutil.Encode(sig))
	return nil
}

type authedHandler func(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte)

// authenticated recovers the caller from the request signature and passes
// it on with the already-read body.
func (s *Server) authenticated(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		caller, err := s.authenticate(r, body)
		if err != nil {
			writeError(w, err)
			return
		}
		h(w, r, caller, body)
	}
}

func (s *Server) authenticate(r *http.Request, body []byte) (common.Address, error) {
	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return common.Address{}, xerrors.Errorf("%w: missing or bad %s", errUnauthorized, HeaderTimestamp)
	}
	skew := s.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.maxClockSkew {
		return common.Address{}, xerrors.Errorf("%w: timestamp outside allowed skew", errUnauthorized)
	}

	sig, err := hexutil.Decode(r.Header.Get(HeaderSignature))
	if err != nil {
		return common.Address{}, xerrors.Errorf("%w: missing or bad %s", errUnauthorized, HeaderSignature)
	}
	digest := RequestDigest(r.Method, r.URL.RequestURI(), ts, body)
	caller, err := s.crypto.RecoverAddress(digest, sig)
	if err != nil {
		return common.Address{}, xerrors.Errorf("%w: %v", errUnauthorized, err)
	}

	// Reads only re-seal data to a key named in the signed URI, so only
	// mutations are checked for replay.
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		key := string(digest) + string(caller.Bytes())
		if !s.replays.remember(key, time.Unix(ts, 0).Add(s.maxClockSkew), s.now()) {
			return common.Address{}, xerrors.Errorf("%w: request already seen", errUnauthorized)
		}
	}
	return caller, nil
}

// replayCache remembers signed requests until their timestamp leaves the
// skew window; past that the timestamp check rejects them on its own.
// Entries are keyed by digest and signer, not by signature bytes, since a
// secp256k1 signature can be re-encoded without the key.
type replayCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newReplayCache() *replayCache {
	return &replayCache{seen: make(map[string]time.Time)}
}

// remember records key until expires and reports whether it was new.
func (c *replayCache) remember(key string, expires, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, exp := range c.seen {
		if now.After(exp) {
			delete(c.seen, k)
		}
	}
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = expires
	return true
}
