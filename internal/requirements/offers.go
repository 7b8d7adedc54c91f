// Package requirements turns a route's configured price tags into x402
// PaymentRequirement offers, resolving the "resource" field either once (a
// fixed resource URL) or per request (derived from the incoming request's
// path and query against a configured base URL). Grounded on the original
// PaymentOffers/X402Middleware::recompute_offers and
// gather_payment_requirements in the middleware layer this gateway
// replaces.
package requirements

import (
	"encoding/json"
	"net/url"

	"github.com/umbra-labs/x402-gateway/internal/x402types"
)

const defaultMimeType = "application/json"

// RouteMetadata is the route-level description carried onto every
// PaymentRequirement produced for it.
type RouteMetadata struct {
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
}

func (m RouteMetadata) mimeType() string {
	if m.MimeType == "" {
		return defaultMimeType
	}
	return m.MimeType
}

// partialsFromPriceTags converts price tags into resource-less requirement
// partials, carrying the EIP-712 domain (if the token has one) as Extra.
func partialsFromPriceTags(tags []x402types.PriceTag, meta RouteMetadata) ([]x402types.PaymentRequirementPartial, error) {
	partials := make([]x402types.PaymentRequirementPartial, 0, len(tags))
	for _, tag := range tags {
		var extra json.RawMessage
		if tag.Token.EIP712 != nil {
			encoded, err := json.Marshal(tag.Token.EIP712)
			if err != nil {
				return nil, err
			}
			extra = encoded
		}
		partials = append(partials, x402types.PaymentRequirementPartial{
			Scheme:            x402types.SchemeExact,
			Network:           tag.Token.Network,
			MaxAmountRequired: tag.Amount,
			Description:       meta.Description,
			MimeType:          meta.mimeType(),
			PayTo:             tag.PayTo,
			MaxTimeoutSeconds: meta.MaxTimeoutSeconds,
			Asset:             tag.Token.Address,
			Extra:             extra,
		})
	}
	return partials, nil
}

// Offers is either a fixed set of fully-resolved PaymentRequirements (Ready)
// or a set of partials awaiting a per-request resource URL (Deferred). The
// type itself enforces that a Ready offer can never be missing its
// resource: the zero value of Offers is an empty Ready set, matching the
// teacher's "default to a harmless empty state" idiom.
type Offers struct {
	ready   []x402types.PaymentRequirement
	partial []x402types.PaymentRequirementPartial
	baseURL *url.URL
}

// Ready builds a fixed offer set: every requirement already names its
// resource and Resolve ignores the request URL entirely.
func Ready(requirements []x402types.PaymentRequirement) Offers {
	return Offers{ready: requirements}
}

// Deferred builds an offer set whose resource is filled in from the
// incoming request's path and query, joined against baseURL.
func Deferred(partials []x402types.PaymentRequirementPartial, baseURL *url.URL) Offers {
	return Offers{partial: partials, baseURL: baseURL}
}

// NewReady builds a Ready Offers directly from price tags and a fixed
// resource URL.
func NewReady(tags []x402types.PriceTag, meta RouteMetadata, resourceURL string) (Offers, error) {
	partials, err := partialsFromPriceTags(tags, meta)
	if err != nil {
		return Offers{}, err
	}
	requirements := make([]x402types.PaymentRequirement, 0, len(partials))
	for _, p := range partials {
		requirements = append(requirements, p.Resolve(resourceURL))
	}
	return Ready(requirements), nil
}

// NewDeferred builds a Deferred Offers from price tags and a base URL; the
// resource is completed per-request by Resolve.
func NewDeferred(tags []x402types.PriceTag, meta RouteMetadata, baseURL *url.URL) (Offers, error) {
	partials, err := partialsFromPriceTags(tags, meta)
	if err != nil {
		return Offers{}, err
	}
	return Deferred(partials, baseURL), nil
}

// Resolve produces the concrete PaymentRequirement set to advertise/verify
// for a specific incoming request. For a Deferred offer set, the resource is
// built by substituting the request's path and query onto the base URL —
// never appending, matching the original's resource_url.set_path/set_query.
func (o Offers) Resolve(requestURL *url.URL) []x402types.PaymentRequirement {
	if o.baseURL == nil {
		if o.ready == nil {
			return []x402types.PaymentRequirement{}
		}
		return o.ready
	}
	resource := *o.baseURL
	resource.Path = requestURL.Path
	resource.RawQuery = requestURL.RawQuery
	resourceStr := resource.String()

	resolved := make([]x402types.PaymentRequirement, 0, len(o.partial))
	for _, p := range o.partial {
		resolved = append(resolved, p.Resolve(resourceStr))
	}
	return resolved
}

// WithOverride returns a copy of requirements with PayTo and
// MaxAmountRequired replaced on every entry — used by the paygate to apply a
// per-API payment_config lookup on top of a route's statically configured
// offers.
func WithOverride(reqs []x402types.PaymentRequirement, payTo x402types.MixedAddress, amount x402types.TokenAmount) []x402types.PaymentRequirement {
	updated := make([]x402types.PaymentRequirement, len(reqs))
	for i, r := range reqs {
		r.PayTo = payTo
		r.MaxAmountRequired = amount
		updated[i] = r
	}
	return updated
}
