package domain

type IdentityClass string

const (
	IdentityAnonymous IdentityClass = "anonymous"
	IdentityAPIKey    IdentityClass = "api_key"
)

// CallerIdentity is inferred outside the core: Key carries the client
// address for anonymous callers and the validated key ID for API-key
// callers.
type CallerIdentity struct {
	Class IdentityClass
	Key   string
}

func (c CallerIdentity) BucketKey() string {
	return string(c.Class) + ":" + c.Key
}

// VerificationRequest is the normalized, immutable input to the pipeline.
// All four digests are lowercase hex of DigestHexLen.
type VerificationRequest struct {
	ContentHash         string
	ManifestHash        string
	SignatureHash       string
	AttestationCertHash string

	ManifestSummary map[string]string
	ClientNonce     string
	ClientVersion   string

	Caller CallerIdentity
}

func (r VerificationRequest) Triple() HashTriple {
	return HashTriple{
		ContentHash:   r.ContentHash,
		ManifestHash:  r.ManifestHash,
		SignatureHash: r.SignatureHash,
	}
}
