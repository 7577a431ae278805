package api

import (
	"errors"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/busybox42/replyaddr/pkg/replyaddr"
)

// errUnknownAddress is the single answer for every failed decode so
// callers cannot tell a bad digest from an expired or malformed token
const errUnknownAddress = "unknown address"

// ReplyEncodeRequest asks for a reply address
type ReplyEncodeRequest struct {
	MailFrom        string `json:"mail_from"`
	RcptToLocalPart string `json:"rcpt_to_local_part"`
}

// BounceEncodeRequest asks for a bounce address
type BounceEncodeRequest struct {
	ID int64 `json:"id"`
}

// DecodeRequest carries an address to resolve
type DecodeRequest struct {
	Address string `json:"address"`
}

// AddressResponse returns an issued address and its local-part token
type AddressResponse struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

// BounceDecodeResponse returns the id carried by a bounce address
type BounceDecodeResponse struct {
	ID int64 `json:"id"`
}

// HealthResponse represents server health
type HealthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	Uptime        int64     `json:"uptime"` // seconds
	GoVersion     string    `json:"go_version"`
	NumGoroutines int       `json:"num_goroutines"`
}

func tokenOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 {
		return address[:i]
	}
	return address
}

func (s *Server) handleReplyEncode(w http.ResponseWriter, r *http.Request) {
	var req ReplyEncodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr, err := s.service.ReplyAddress(r.Context(), req.MailFrom, req.RcptToLocalPart)
	if err != nil {
		if errors.Is(err, replyaddr.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid mail_from or rcpt_to_local_part")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, AddressResponse{Address: addr, Token: tokenOf(addr)})
}

func (s *Server) handleReplyDecode(w http.ResponseWriter, r *http.Request) {
	var req DecodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info, ok := s.service.ResolveReply(r.Context(), req.Address)
	if !ok {
		writeError(w, http.StatusNotFound, errUnknownAddress)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleBounceEncode(w http.ResponseWriter, r *http.Request) {
	var req BounceEncodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr, err := s.service.BounceAddress(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, replyaddr.ErrInvalidBounceID) {
			writeError(w, http.StatusBadRequest, "id out of range")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, AddressResponse{Address: addr, Token: tokenOf(addr)})
}

func (s *Server) handleBounceDecode(w http.ResponseWriter, r *http.Request) {
	var req DecodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, ok := s.service.ResolveBounce(r.Context(), req.Address)
	if !ok {
		writeError(w, http.StatusNotFound, errUnknownAddress)
		return
	}

	writeJSON(w, http.StatusOK, BounceDecodeResponse{ID: id})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Version:       s.config.Version,
		StartedAt:     s.startedAt,
		Uptime:        int64(time.Since(s.startedAt).Seconds()),
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
	})
}
