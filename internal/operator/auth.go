package operator

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderCaller    = "x-brainlink-caller"
	HeaderTS        = "x-ts"
	HeaderSignature = "x-signature"
	HeaderNonce     = "x-nonce"

	signatureWindow = 300 * time.Second
)

func canonicalString(ts, method, pathname, caller, nonce string, rawBody []byte) string {
	return ts + "\n" + strings.ToUpper(method) + "\n" + pathname + "\n" + strings.TrimSpace(caller) + "\n" + strings.TrimSpace(nonce) + "\n" + string(rawBody)
}

func signHMAC(secret []byte, canonical string) string {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// Sign sets the auth headers on req for body. The caller must still attach
// body to req.
func Sign(req *http.Request, body []byte, secret, caller, nonce string, now time.Time) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	sig := signHMAC([]byte(secret), canonicalString(ts, req.Method, req.URL.Path, caller, nonce, body))
	req.Header.Set(HeaderCaller, caller)
	req.Header.Set(HeaderTS, ts)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, sig)
}

type verifyResult struct {
	Caller     string
	Signature  string
	HTTPStatus int
	Message    string
}

func verifyHMAC(r *http.Request, rawBody []byte, secret []byte, now time.Time) verifyResult {
	caller := strings.TrimSpace(r.Header.Get(HeaderCaller))
	if caller == "" {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing " + HeaderCaller}
	}
	tsStr := strings.TrimSpace(r.Header.Get(HeaderTS))
	if tsStr == "" {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing x-ts"}
	}
	sig := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderSignature)))
	if sig == "" {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing x-signature"}
	}
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	if nonce == "" {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing x-nonce"}
	}

	tsMS, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "bad x-ts"}
	}
	window := signatureWindow.Milliseconds()
	if d := now.UnixMilli() - tsMS; d > window || d < -window {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "x-ts outside window"}
	}

	exp := signHMAC(secret, canonicalString(tsStr, r.Method, r.URL.Path, caller, nonce, rawBody))
	if !hmac.Equal([]byte(sig), []byte(exp)) {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "bad signature"}
	}
	return verifyResult{Caller: caller, Signature: sig}
}
