package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"beatsketch/internal/analysis"
	"beatsketch/internal/audio"
	"beatsketch/internal/beat"

	"github.com/dustin/go-humanize"
)

// maxURLBody bounds the JSON body of /v1/analyze/url.
const maxURLBody = 64 << 10

// AnalyzeResponse is the body of a successful analyze request.
type AnalyzeResponse struct {
	Notes   []beat.Note      `json:"notes"`
	Summary analysis.Summary `json:"summary"`
	Trace   []analysis.Trace `json:"trace,omitempty"`
}

// URLRequest is the body of /v1/analyze/url.
type URLRequest struct {
	URL string `json:"url"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) healthz(r *http.Request) any {
	return &healthResponse{Status: "ok"}
}

// analyzeUpload analyses a raw WAV request body.
func (s *Server) analyzeUpload(r *http.Request) any {
	ct := r.Header.Get("Content-Type")
	if !s.mimeAllowed(ct) {
		return UnsupportedType(fmt.Sprintf("Content-Type %q is not one of %s", ct, strings.Join(s.opts.AllowedMIMETypes, ", ")))
	}
	if r.ContentLength > s.opts.MaxBytes {
		return RequestTooLarge(fmt.Sprintf("Body of %s exceeds the %s limit",
			humanize.IBytes(uint64(r.ContentLength)), humanize.IBytes(uint64(s.opts.MaxBytes))))
	}

	// The declared type was checked against the configured list above; the
	// content is still sniffed.
	buf, err := audio.Decode(r.Body, "", s.opts.MaxBytes)
	if err != nil {
		return errorFor(err)
	}
	return s.analyze(r, buf)
}

// analyzeURL downloads the WAV named in the JSON body and analyses it.
func (s *Server) analyzeURL(r *http.Request) any {
	var req URLRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxURLBody)).Decode(&req); err != nil {
		return BadRequest("Body must be a JSON object with a \"url\" field")
	}
	if strings.TrimSpace(req.URL) == "" {
		return BadRequest("Missing url")
	}

	buf, err := s.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		return errorFor(err)
	}
	return s.analyze(r, buf)
}

func (s *Server) analyze(r *http.Request, buf *audio.Buffer) any {
	res, err := s.analyzer.Analyze(r.Context(), buf)
	if err != nil {
		return errorFor(err)
	}

	out := &AnalyzeResponse{Notes: res.Notes, Summary: res.Summary}
	if trace, _ := strconv.ParseBool(r.URL.Query().Get("trace")); trace {
		out.Trace = res.Trace
	}
	return out
}

func (s *Server) mimeAllowed(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, a := range s.opts.AllowedMIMETypes {
		if strings.EqualFold(mt, a) {
			return true
		}
	}
	return false
}
