package httpd

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gargoton.petite-maison-orange.fr/eric/devicehost/gena"
	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/errs"
	"gargoton.petite-maison-orange.fr/eric/devicehost/soap"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.docsMu.RLock()
	doc, ok := s.docs[r.URL.Path]
	s.docsMu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", doc.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(doc.data)
	}
}

// handleControl dispatches a SOAP action POST (spec.md §4.D). Response
// code taxonomy: 404 unknown service/action, 400 malformed envelope, 500
// handler failure (carried as a SOAP fault body), 200 success.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.store.ActionForControlURL(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	serviceType, actionName, err := soap.ParseSOAPAction(r.Header.Get("SOAPACTION"))
	if err != nil {
		http.Error(w, "malformed SOAPACTION", http.StatusBadRequest)
		return
	}

	action, ok := svc.Action(actionName)
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	req, err := soap.DecodeRequest(svc, actionName, body)
	if err != nil {
		s.writeFault(w, http.StatusBadRequest, tree.InvalidArgs, err.Error())
		return
	}

	out, err := svc.InvokeAction(req.ActionName, req.Args)
	if err != nil {
		code, desc := classifyActionError(err)
		s.writeFault(w, http.StatusInternalServerError, code, desc)
		return
	}

	respBody, err := soap.EncodeResponse(serviceType, actionName, action, svc, out)
	if err != nil {
		s.writeFault(w, http.StatusInternalServerError, tree.ActionFailed, err.Error())
		return
	}

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.Header().Set("EXT", "")
	w.WriteHeader(http.StatusOK)
	w.Write(respBody)
}

func (s *Server) writeFault(w http.ResponseWriter, status int, code tree.ErrorCode, desc string) {
	body, err := soap.EncodeFault(code, desc)
	if err != nil {
		http.Error(w, desc, status)
		return
	}
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(status)
	w.Write(body)
}

func classifyActionError(err error) (tree.ErrorCode, string) {
	if ae, ok := err.(*tree.ActionError); ok {
		return ae.Code, ae.Description
	}
	return tree.ActionFailed, err.Error()
}

// handleSubscribe implements both the initial-subscribe and renewal forms
// of SUBSCRIBE (spec.md §4.D, §4.E).
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.store.ServiceForEventURL(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !svc.IsEvented() {
		http.NotFound(w, r)
		return
	}

	nt := r.Header.Get("NT")
	callbackHeader := r.Header.Get("CALLBACK")
	sid := r.Header.Get("SID")
	timeout := parseTimeout(r.Header.Get("TIMEOUT"))

	isInitial := nt != "" || callbackHeader != ""
	isRenewal := sid != ""

	if isInitial && isRenewal {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if isRenewal {
		sub, err := s.mgr.Renew(sid, r.RemoteAddr, timeout)
		if err != nil {
			if errs.KindOf(err) == errs.ActionFailed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		writeSubscribeResponse(w, sub)
		return
	}

	if nt != "upnp:event" || callbackHeader == "" {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	callbacks := parseCallbacks(callbackHeader)
	if len(callbacks) == 0 {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	sub, err := s.mgr.Subscribe(svc, r.RemoteAddr, callbacks, timeout)
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	writeSubscribeResponse(w, sub)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.store.ServiceForEventURL(r.URL.Path); !ok {
		http.NotFound(w, r)
		return
	}

	sid := r.Header.Get("SID")
	if sid == "" || r.Header.Get("NT") != "" || r.Header.Get("CALLBACK") != "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := s.mgr.Unsubscribe(sid); err != nil {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeSubscribeResponse(w http.ResponseWriter, sub *gena.Subscription) {
	w.Header().Set("SID", sub.SID())
	w.Header().Set("TIMEOUT", sub.TimeoutHeader())
	w.Header().Set("DATE", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
}

func parseTimeout(header string) time.Duration {
	if header == "" {
		return 0
	}
	if strings.EqualFold(header, "Second-infinite") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(header, "Second-"))
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Second
}

func parseCallbacks(header string) []string {
	var out []string
	for _, part := range strings.Split(header, "<") {
		if idx := strings.Index(part, ">"); idx >= 0 {
			out = append(out, strings.TrimSpace(part[:idx]))
		}
	}
	return out
}
