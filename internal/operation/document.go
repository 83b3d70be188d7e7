package operation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DocumentKeyPrecedence resolves which source wins when a request
// carries both a trusted-document id and a persisted-query hash,
// per the `operation_preparation.document_key_precedence` config key.
type DocumentKeyPrecedence string

const (
	PrecedenceTrusted DocumentKeyPrecedence = "trusted"
	PrecedenceAPQ     DocumentKeyPrecedence = "apq"
)

// TrustedDocumentStore resolves a (client name, document id) pair to
// its query text; the manifest-backed implementation lives with
// whatever loads the trusted-document bundle (outside this package).
type TrustedDocumentStore interface {
	Lookup(clientName, documentID string) (query string, ok bool)
}

// DocumentSource resolves the request's query text per §4.C step 1,
// in priority order governed by precedence when more than one source
// is present: trusted documents, then APQ, then a plain request body.
type DocumentSource struct {
	TrustedDocumentsEnabled bool
	TrustedDocuments        TrustedDocumentStore
	BypassHeaderMatched     bool
	APQEnabled              bool
	APQCache                *APQCache
	Precedence              DocumentKeyPrecedence
}

func persistedQueryHash(extensions map[string]interface{}) (string, bool) {
	pq, ok := extensions["persistedQuery"].(map[string]interface{})
	if !ok {
		return "", false
	}
	hash, ok := pq["sha256Hash"].(string)
	return hash, ok
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Resolve returns the query text and its document key, or a
// RequestError naming the §6 rejection code.
func (s *DocumentSource) Resolve(req Request) (query string, documentKey string, err *RequestError) {
	hasTrusted := s.TrustedDocumentsEnabled && req.DocumentID != ""
	hash, hasAPQ := persistedQueryHash(req.Extensions)
	hasAPQ = hasAPQ && s.APQEnabled

	useTrustedFirst := s.Precedence != PrecedenceAPQ

	if s.TrustedDocumentsEnabled && !hasTrusted && !s.BypassHeaderMatched && req.Query == "" && !hasAPQ {
		return "", "", &RequestError{Code: CodeTrustedDocumentError, Message: "trusted documents required: missing documentId, persisted-query hash, or bypass header"}
	}

	if hasTrusted && (useTrustedFirst || !hasAPQ) {
		if req.ClientName == "" {
			return "", "", &RequestError{Code: CodeTrustedDocumentError, Message: "trusted documents require a client name header"}
		}
		q, ok := s.TrustedDocuments.Lookup(req.ClientName, req.DocumentID)
		if !ok {
			return "", "", &RequestError{Code: CodeTrustedDocumentError, Message: fmt.Sprintf("unknown trusted document %q for client %q", req.DocumentID, req.ClientName)}
		}
		return q, "trusted:" + req.ClientName + ":" + req.DocumentID, nil
	}

	if hasAPQ {
		if req.Query == "" {
			cached, ok := s.APQCache.Get(hash)
			if !ok {
				return "", "", &RequestError{Code: CodePersistedQueryNotFound, Message: "persisted query not found"}
			}
			return cached, "apq:" + hash, nil
		}
		if sha256Hex(req.Query) != hash {
			return "", "", &RequestError{Code: CodePersistedQueryError, Message: "persisted query hash mismatch"}
		}
		s.APQCache.Put(hash, req.Query)
		return req.Query, "apq:" + hash, nil
	}

	if req.Query == "" {
		return "", "", &RequestError{Code: CodeRequestError, Message: "missing query"}
	}
	return req.Query, "text:" + sha256Hex(req.Query), nil
}
