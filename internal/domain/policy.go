package domain

// PolicyInput is what a deploy-time trust policy sees: the digests under
// decision and the outcome of the fixed pipeline stages, never raw media.
type PolicyInput struct {
	ContentHash         string              `json:"content_hash"`
	ManifestHash        string              `json:"manifest_hash"`
	SignatureHash       string              `json:"signature_hash"`
	AttestationCertHash string              `json:"attestation_cert_hash"`
	CallerClass         string              `json:"caller_class"`
	ProofLevel          ProofLevel          `json:"proof_level"`
	Details             VerificationDetails `json:"details"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleID   string       `json:"bundle_id,omitempty"`
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}
