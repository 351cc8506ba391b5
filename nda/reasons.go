package nda

// Outcome reasons. Timeout reasons never coincide with decline reasons.
const (
	ReasonAutoApproved         = "Auto-approved: low risk"
	ReasonCreatorApproved      = "Approved by creator"
	ReasonLegalApproved        = "Approved by legal review"
	ReasonLegalModified        = "Approved by legal review with modified terms"
	ReasonCreatorRejected      = "Rejected by creator"
	ReasonLegalRejected        = "Rejected by legal review"
	ReasonCreatorReviewTimeout = "Creator review timed out"
	ReasonLegalReviewTimeout   = "Legal review timed out"
	ReasonSentForSignature     = "Sent for signature"
	ReasonViewed               = "Viewed by requester"
	ReasonSigned               = "Signed by requester"
	ReasonDeclined             = "Declined by requester"
	ReasonSignatureTimeout     = "Signature deadline missed"
	ReasonActivated            = "Agreement active"
	ReasonTermEnded            = "Agreement term ended"
	ReasonCancelled            = "Cancelled"
)
